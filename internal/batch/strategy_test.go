package batch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scanvault/docpipe/constants"
	"github.com/scanvault/docpipe/internal/imaging"
	"github.com/scanvault/docpipe/internal/textextract"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, string) (textextract.Result, error) {
	return textextract.Result{Text: f.text, Pages: 1}, f.err
}

type fakeRenderer struct{ png []byte }

func (f *fakeRenderer) RenderPage(context.Context, string, int) ([]byte, error) {
	return f.png, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestTextLayerStrategy(t *testing.T) {
	s := &TextLayerStrategy{Extractor: &fakeExtractor{text: "TOTAL DUE 12.50 ..."}, MinTextLength: 5}

	p, err := s.Build(context.Background(), &Unit{Kind: constants.PDF})
	require.NoError(t, err)
	require.Equal(t, "TOTAL DUE 12.50 ...", p.Text)
	require.Empty(t, p.Image)

	// Page separators and whitespace alone are not a text layer.
	s.Extractor = &fakeExtractor{text: " \f \f "}
	_, err = s.Build(context.Background(), &Unit{Kind: constants.PDF})
	require.ErrorIs(t, err, ErrNotApplicable)

	_, err = s.Build(context.Background(), &Unit{Kind: constants.IMAGE})
	require.ErrorIs(t, err, ErrNotApplicable)
}

func TestRenderedImageStrategyPDF(t *testing.T) {
	s := &RenderedImageStrategy{
		Renderer:   &fakeRenderer{png: pngBytes(t, 40, 20)},
		Normalizer: imaging.NewNormalizer(2048, 80),
	}
	p, err := s.Build(context.Background(), &Unit{Kind: constants.PDF, SourcePath: "whatever.pdf"})
	require.NoError(t, err)
	require.NotEmpty(t, p.Image)
	require.Empty(t, p.Text)
}

func TestRenderedImageStrategyImageFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(src, pngBytes(t, 30, 30), 0o644))

	s := &RenderedImageStrategy{Normalizer: imaging.NewNormalizer(2048, 80)}
	p, err := s.Build(context.Background(), &Unit{Kind: constants.IMAGE, SourcePath: src})
	require.NoError(t, err)
	require.NotEmpty(t, p.Image)

	// Undecodable bytes with no converter configured fail the unit.
	bad := filepath.Join(dir, "noise.bin")
	require.NoError(t, os.WriteFile(bad, []byte{0xde, 0xad}, 0o644))
	_, err = s.Build(context.Background(), &Unit{Kind: constants.IMAGE, SourcePath: bad})
	require.Error(t, err)
}
