package batch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/scanvault/docpipe/constants"
	"github.com/scanvault/docpipe/internal/common"
	"github.com/scanvault/docpipe/internal/imaging"
	"github.com/scanvault/docpipe/internal/textextract"
)

// ErrNotApplicable signals that a strategy cannot produce a payload for this
// unit and the next strategy should be tried.
var ErrNotApplicable = errors.New("strategy not applicable")

// Payload is the recognition input built for one unit. Exactly one of
// Text / Image is set.
type Payload struct {
	Text  string
	Image []byte
}

// PayloadStrategy turns a unit into a recognition payload. Strategies are
// tried in order; the cheap text layer goes first, rasterization is the
// fallback.
type PayloadStrategy interface {
	Name() string
	Build(ctx context.Context, u *Unit) (*Payload, error)
}

// TextExtractor is the slice of textextract.Extractor the text strategy needs.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (textextract.Result, error)
}

// PageRenderer is the slice of imaging.PageRenderer the image strategy needs.
type PageRenderer interface {
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

// ImageNormalizer bounds raster payload size before transport.
type ImageNormalizer interface {
	NormalizeBytes(data []byte) ([]byte, error)
}

// TextLayerStrategy reads the embedded PDF text layer. Image units and
// scanned PDFs without a meaningful layer are passed on to the fallback.
type TextLayerStrategy struct {
	Extractor     TextExtractor
	MinTextLength int
}

func (s *TextLayerStrategy) Name() string { return "text_layer" }

func (s *TextLayerStrategy) Build(ctx context.Context, u *Unit) (*Payload, error) {
	if u.Kind != constants.PDF {
		return nil, ErrNotApplicable
	}
	res, err := s.Extractor.Extract(ctx, u.SourcePath)
	if err != nil {
		// A broken text layer is not fatal for the unit; rasterization
		// may still succeed.
		return nil, fmt.Errorf("%w: extract text layer: %v", ErrNotApplicable, err)
	}
	if !textextract.Meaningful(res.Text, s.MinTextLength) {
		return nil, ErrNotApplicable
	}
	return &Payload{Text: res.Text}, nil
}

// RenderedImageStrategy rasterizes the unit into a normalized JPEG. For PDFs
// the first page of the boundary slice is rendered; images are normalized
// directly, going through the external converter when the built-in decoders
// cannot handle the format.
type RenderedImageStrategy struct {
	Renderer   PageRenderer
	Normalizer ImageNormalizer
	Runner     imaging.Runner
	Converter  string
	CacheDir   string
	Logger     *slog.Logger
}

func (s *RenderedImageStrategy) Name() string { return "rendered_image" }

func (s *RenderedImageStrategy) Build(ctx context.Context, u *Unit) (*Payload, error) {
	switch u.Kind {
	case constants.PDF:
		raw, err := s.Renderer.RenderPage(ctx, u.SourcePath, 1)
		if err != nil {
			return nil, common.NewError(common.KindCorruptDocument, "render page", err)
		}
		img, err := s.Normalizer.NormalizeBytes(raw)
		if err != nil {
			return nil, common.NewError(common.KindCorruptDocument, "normalize rendered page", err)
		}
		return &Payload{Image: img}, nil

	case constants.IMAGE:
		raw, err := os.ReadFile(u.SourcePath)
		if err != nil {
			return nil, common.NewError(common.KindCorruptDocument, "read image", err)
		}
		img, err := s.Normalizer.NormalizeBytes(raw)
		if err == nil {
			return &Payload{Image: img}, nil
		}
		if s.Converter == "" {
			return nil, common.NewError(common.KindCorruptDocument, "decode image", err)
		}
		converted, cleanup, convErr := imaging.ConvertToPNG(
			ctx, s.Runner, s.Logger, s.Converter, u.SourcePath, s.CacheDir, hex.EncodeToString(u.SourceHash))
		if cleanup != nil {
			defer cleanup()
		}
		if convErr != nil {
			return nil, common.NewError(common.KindCorruptDocument, "convert image", convErr)
		}
		raw, err = os.ReadFile(converted)
		if err != nil {
			return nil, common.NewError(common.KindCorruptDocument, "read converted image", err)
		}
		img, err = s.Normalizer.NormalizeBytes(raw)
		if err != nil {
			return nil, common.NewError(common.KindCorruptDocument, "normalize converted image", err)
		}
		return &Payload{Image: img}, nil

	default:
		return nil, ErrNotApplicable
	}
}
