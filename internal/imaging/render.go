package imaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// PageRenderer rasterizes single PDF pages for image-mode recognition.
type PageRenderer struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI, default 150
	runner   Runner
	logger   *slog.Logger
}

func NewPageRenderer(pdftoppm string, dpi int, runner Runner, logger *slog.Logger) *PageRenderer {
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageRenderer{Pdftoppm: pdftoppm, DPI: dpi, runner: runner, logger: logger}
}

// RenderPage rasterizes one page of the PDF at path into PNG bytes.
func (r *PageRenderer) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	if page < 1 {
		page = 1
	}

	tmpDir, err := os.MkdirTemp("", "dp-render-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f <p> -l <p> -r <dpi> -png <in.pdf> <tmp/page>
	args := []string{
		"-f", fmt.Sprintf("%d", page),
		"-l", fmt.Sprintf("%d", page),
		"-r", fmt.Sprintf("%d", r.DPI),
		"-png", path, prefix,
	}
	if _, errb, err := r.runner.Run(ctx, r.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, truncate(string(errb), 512))
	}

	// pdftoppm numbers its output (page-1.png, page-01.png, ...).
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no image for page %d of %s", page, filepath.Base(path))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}
	return data, nil
}
