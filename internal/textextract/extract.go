// Package textextract pulls the embedded text layer out of PDFs. Scanned
// PDFs with no text layer yield an empty result, which sends the caller down
// the image-fallback path.
package textextract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/scanvault/docpipe/internal/imaging"
)

// Result is the text-layer extraction outcome for one PDF.
type Result struct {
	Text  string
	Pages int
}

// Extractor wraps pdftotext behind the stubbable Runner.
type Extractor struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	runner    imaging.Runner
	logger    *slog.Logger
}

func NewExtractor(pdftotext string, runner imaging.Runner, logger *slog.Logger) *Extractor {
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	if runner == nil {
		runner = imaging.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Pdftotext: pdftotext, runner: runner, logger: logger}
}

// Extract returns the PDF's text layer. An empty text layer is not an error.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		e.logger.Error("pdftotext failed", "path", path, "stderr", string(errb), "error", err)
		return Result{}, err
	}
	text := string(out)
	// A form-feed \f is used as page separator by default.
	pages := 1 + strings.Count(text, "\f")
	return Result{Text: text, Pages: pages}, nil
}

// Meaningful reports whether text is substantial enough for text-mode
// recognition: whitespace and page separators alone don't count.
func Meaningful(text string, minLength int) bool {
	trimmed := strings.TrimSpace(strings.ReplaceAll(text, "\f", " "))
	return len(trimmed) >= minLength
}
