package pdfsplit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeBoundariesFixedPageCount(t *testing.T) {
	boundaries, err := ComputeBoundaries(5, Policy{Method: MethodFixedPageCount, PagesPerDocument: 2})
	require.NoError(t, err)

	require.Equal(t, []Boundary{
		{Index: 0, StartPage: 1, EndPage: 2},
		{Index: 1, StartPage: 3, EndPage: 4},
		{Index: 2, StartPage: 5, EndPage: 5},
	}, boundaries)
}

func TestComputeBoundariesCoversEveryPageOnce(t *testing.T) {
	for pageCount := 1; pageCount <= 40; pageCount++ {
		for k := 1; k <= 10; k++ {
			boundaries, err := ComputeBoundaries(pageCount, Policy{Method: MethodFixedPageCount, PagesPerDocument: k})
			require.NoError(t, err)

			next := 1
			for i, b := range boundaries {
				require.Equal(t, i, b.Index)
				require.Equal(t, next, b.StartPage, "pages=%d k=%d", pageCount, k)
				require.GreaterOrEqual(t, b.EndPage, b.StartPage)
				require.LessOrEqual(t, b.Pages(), k)
				next = b.EndPage + 1
			}
			require.Equal(t, pageCount+1, next, "pages=%d k=%d", pageCount, k)
		}
	}
}

func TestComputeBoundariesNoneSinglePage(t *testing.T) {
	boundaries, err := ComputeBoundaries(1, Policy{Method: MethodNone})
	require.NoError(t, err)
	require.Equal(t, []Boundary{{Index: 0, StartPage: 1, EndPage: 1}}, boundaries)
}

func TestComputeBoundariesNoneMultiPageFallsBackToSinglePages(t *testing.T) {
	boundaries, err := ComputeBoundaries(3, Policy{Method: MethodNone})
	require.NoError(t, err)
	require.Len(t, boundaries, 3)
	for i, b := range boundaries {
		require.Equal(t, i+1, b.StartPage)
		require.Equal(t, i+1, b.EndPage)
	}
}

func TestComputeBoundariesRejectsBadInput(t *testing.T) {
	_, err := ComputeBoundaries(0, Policy{Method: MethodFixedPageCount, PagesPerDocument: 2})
	require.Error(t, err)

	_, err = ComputeBoundaries(4, Policy{Method: MethodFixedPageCount, PagesPerDocument: 0})
	require.Error(t, err)

	_, err = ComputeBoundaries(4, Policy{Method: "split_on_blank"})
	require.Error(t, err)
}
