package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryGateConsumeDebitsOnce(t *testing.T) {
	g := NewMemoryGate(5, time.Time{})
	ctx := context.Background()
	docID := uuid.New()

	ok, err := g.Consume(ctx, docID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Idempotent per document: the repeat bills nothing.
	ok, err = g.Consume(ctx, docID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	st, err := g.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, st.Remaining)
}

func TestMemoryGateNeverGoesNegative(t *testing.T) {
	const capacity = 3
	const attempts = 50
	g := NewMemoryGate(capacity, time.Time{})
	ctx := context.Background()

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.Consume(ctx, uuid.New(), 1)
			require.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(capacity), granted.Load())
	st, err := g.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, st.Remaining)
}

func TestMemoryGateHasCapacity(t *testing.T) {
	g := NewMemoryGate(1, time.Time{})
	ctx := context.Background()

	ok, err := g.HasCapacity(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.HasCapacity(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = g.Consume(ctx, uuid.New(), 1)
	require.NoError(t, err)

	ok, err = g.HasCapacity(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryGateExpiryDeniesCapacity(t *testing.T) {
	g := NewMemoryGate(10, time.Now().Add(-time.Hour))
	ctx := context.Background()

	ok, err := g.HasCapacity(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = g.Consume(ctx, uuid.New(), 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryGateReleaseRefunds(t *testing.T) {
	g := NewMemoryGate(2, time.Time{})
	ctx := context.Background()
	docID := uuid.New()

	ok, err := g.Consume(ctx, docID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.Release(ctx, docID))

	st, err := g.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Remaining)

	// Release of an unknown document is a no-op.
	require.NoError(t, g.Release(ctx, uuid.New()))
	st, _ = g.Status(ctx)
	require.Equal(t, 2, st.Remaining)
}
