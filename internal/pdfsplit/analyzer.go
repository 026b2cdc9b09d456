package pdfsplit

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/scanvault/docpipe/internal/common"
)

// Method selects how a PDF's pages are partitioned into logical documents.
type Method string

const (
	// MethodNone treats the file as a single document. Only valid for
	// genuinely single-page sources; multi-page inputs fall back to a fixed
	// page count of 1.
	MethodNone Method = "none"
	// MethodFixedPageCount partitions pages into runs of PagesPerDocument.
	MethodFixedPageCount Method = "fixed_page_count"
)

// Policy describes how to split a PDF into logical documents.
type Policy struct {
	Method           Method
	PagesPerDocument int
}

// Boundary is a contiguous page range assigned to one logical document.
// Index is stable and assigned in page order; it determines the persisted
// ordinal regardless of completion order downstream.
type Boundary struct {
	Index     int
	StartPage int
	EndPage   int
}

// Pages returns the number of pages the boundary covers.
func (b Boundary) Pages() int {
	return b.EndPage - b.StartPage + 1
}

// Analyzer partitions PDFs into boundaries and extracts per-boundary files.
type Analyzer struct {
	conf   *model.Configuration
	logger *slog.Logger
}

func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Analyzer{conf: conf, logger: logger}
}

// Analyze opens the PDF at path and returns its boundaries under policy.
// A PDF that cannot be opened or parsed fails fast with CorruptDocument and
// no boundaries.
func (a *Analyzer) Analyze(path string, policy Policy) ([]Boundary, error) {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		a.logger.Error("failed to read pdf page count", "path", path, "error", err)
		return nil, common.NewError(common.KindCorruptDocument, fmt.Sprintf("unreadable pdf %q", filepath.Base(path)), err)
	}
	if pageCount < 1 {
		return nil, common.NewError(common.KindCorruptDocument, fmt.Sprintf("pdf %q has no pages", filepath.Base(path)), nil)
	}

	boundaries, err := ComputeBoundaries(pageCount, policy)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("pdf analyzed", "path", path, "pages", pageCount, "boundaries", len(boundaries), "method", policy.Method)
	return boundaries, nil
}

// ComputeBoundaries partitions pageCount pages under policy. Boundaries cover
// every page exactly once, in increasing page order.
func ComputeBoundaries(pageCount int, policy Policy) ([]Boundary, error) {
	if pageCount < 1 {
		return nil, fmt.Errorf("page count must be >= 1, got %d", pageCount)
	}

	k := policy.PagesPerDocument
	switch policy.Method {
	case MethodNone:
		if pageCount == 1 {
			return []Boundary{{Index: 0, StartPage: 1, EndPage: 1}}, nil
		}
		// "none" is only valid for single-page inputs.
		k = 1
	case MethodFixedPageCount:
		if k < 1 {
			return nil, fmt.Errorf("pages per document must be >= 1, got %d", k)
		}
	default:
		return nil, fmt.Errorf("unknown separation method %q", policy.Method)
	}

	var boundaries []Boundary
	for start := 1; start <= pageCount; start += k {
		end := start + k - 1
		if end > pageCount {
			end = pageCount
		}
		boundaries = append(boundaries, Boundary{
			Index:     len(boundaries),
			StartPage: start,
			EndPage:   end,
		})
	}
	return boundaries, nil
}

// ExtractBoundary writes the boundary's page range into destDir as its own
// PDF and returns the new file's path.
func (a *Analyzer) ExtractBoundary(src, destDir string, b Boundary) (string, error) {
	base := filepath.Base(src)
	out := filepath.Join(destDir, fmt.Sprintf("%s-%02d.pdf", trimExt(base), b.Index+1))

	pages := []string{fmt.Sprintf("%d-%d", b.StartPage, b.EndPage)}
	if err := api.TrimFile(src, out, pages, a.conf); err != nil {
		a.logger.Error("failed to extract boundary", "src", src, "start", b.StartPage, "end", b.EndPage, "error", err)
		return "", common.NewError(common.KindCorruptDocument, fmt.Sprintf("extract pages %d-%d from %q", b.StartPage, b.EndPage, base), err)
	}
	return out, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
