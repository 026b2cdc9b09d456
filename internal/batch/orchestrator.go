// Package batch coordinates one ingestion run end to end: validate the
// selection, carve uploads into logical documents, recognize each unit under
// the worker cap, and persist what succeeded. A unit's failure never takes
// its siblings down; partial success is a normal outcome.
package batch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/scanvault/docpipe/constants"
	"github.com/scanvault/docpipe/internal/common"
	"github.com/scanvault/docpipe/internal/entity"
	"github.com/scanvault/docpipe/internal/pdfsplit"
	"github.com/scanvault/docpipe/internal/quota"
	"github.com/scanvault/docpipe/internal/recognition"
	"github.com/scanvault/docpipe/internal/repository"
	"github.com/scanvault/docpipe/internal/scheduler"
	"github.com/scanvault/docpipe/internal/storage"
)

// BoundaryAnalyzer is the slice of pdfsplit.Analyzer the orchestrator needs.
type BoundaryAnalyzer interface {
	Analyze(path string, policy pdfsplit.Policy) ([]pdfsplit.Boundary, error)
	ExtractBoundary(src, destDir string, b pdfsplit.Boundary) (string, error)
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Batches    repository.BatchRepository
	Documents  repository.DocumentRepository
	Gate       quota.Gate
	Recognizer recognition.Recognizer
	Analyzer   BoundaryAnalyzer
	Strategies []PayloadStrategy
	Store      storage.ObjectStore
	Pool       *scheduler.Pool
	WorkDir    string // scratch space for boundary slices; "" -> system temp
	Logger     *slog.Logger
}

// Orchestrator drives ingestion runs.
type Orchestrator struct {
	deps Deps
	log  *slog.Logger
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pool == nil {
		deps.Pool = scheduler.NewPool(deps.Logger)
	}
	return &Orchestrator{deps: deps, log: deps.Logger}
}

// Start validates the request synchronously, then processes the batch in the
// background. Precondition failures surface immediately with no side effects.
func (o *Orchestrator) Start(ctx context.Context, reg *Registry, req Request) (*Run, error) {
	if err := o.validate(ctx, req); err != nil {
		return nil, err
	}
	run, err := reg.begin(req.BatchID)
	if err != nil {
		return nil, err
	}
	go func() {
		summary, perr := o.run(ctx, req)
		run.finish(summary, perr)
	}()
	return run, nil
}

// Process runs one ingestion synchronously. The returned error is non-nil
// only for run-level failures (preconditions, counter bookkeeping); per-unit
// failures land in the summary.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Summary, error) {
	if err := o.validate(ctx, req); err != nil {
		return nil, err
	}
	return o.run(ctx, req)
}

func (o *Orchestrator) validate(ctx context.Context, req Request) error {
	if req.ProjectID == uuid.Nil {
		return common.NewError(common.KindPreconditionFailed, "no project selected", nil)
	}
	if req.BatchID == uuid.Nil {
		return common.NewError(common.KindPreconditionFailed, "no batch selected", nil)
	}
	if len(req.Files) == 0 {
		return common.NewError(common.KindPreconditionFailed, "no files to ingest", nil)
	}
	exists, err := o.deps.Batches.Exists(ctx, req.BatchID)
	if err != nil {
		return common.NewError(common.KindPersistenceFailed, "batch lookup failed", err)
	}
	if !exists {
		return common.NewError(common.KindPreconditionFailed,
			fmt.Sprintf("batch %s no longer exists", req.BatchID), nil)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Summary, error) {
	runDir, err := os.MkdirTemp(o.deps.WorkDir, "ingest-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(runDir) }()

	units, summary := o.buildUnits(ctx, req, runDir)

	if len(units) > 0 {
		if err := o.deps.Batches.AddTotal(ctx, req.BatchID, len(units)); err != nil {
			return nil, common.NewError(common.KindPersistenceFailed, "update batch totals", err)
		}
	}

	results := o.deps.Pool.RunAll(ctx, len(units), func(ctx context.Context, i int) error {
		return o.processUnit(ctx, req, units[i])
	})
	for i, rerr := range results {
		if rerr == nil {
			summary.Succeeded++
			continue
		}
		summary.Failures = append(summary.Failures, unitError(units[i].Name, rerr))
	}

	summary.Status = statusOf(summary)
	o.log.Info("ingestion run finished",
		"batch_id", req.BatchID,
		"status", summary.Status,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"deduplicated", summary.Deduplicated,
		"failed", len(summary.Failures),
	)
	return summary, nil
}

// buildUnits expands uploads into logical documents. File-level problems
// (unreadable payloads, corrupt PDFs) are recorded as failures without
// stopping the rest of the batch.
func (o *Orchestrator) buildUnits(ctx context.Context, req Request, runDir string) ([]*Unit, *Summary) {
	summary := &Summary{BatchID: req.BatchID}
	var units []*Unit

	for _, f := range req.Files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			summary.Total++
			summary.Failures = append(summary.Failures,
				unitError(baseName(f.Name), common.NewError(common.KindCorruptDocument, "unreadable upload", err)))
			continue
		}
		hash := sha256.Sum256(data)

		dup, err := o.deps.Documents.ExistsBySourceHash(ctx, req.BatchID, hash[:])
		if err != nil {
			summary.Total++
			summary.Failures = append(summary.Failures,
				unitError(baseName(f.Name), common.NewError(common.KindPersistenceFailed, "duplicate lookup failed", err)))
			continue
		}
		if dup {
			o.log.Info("skipping duplicate upload", "batch_id", req.BatchID, "file", f.Name)
			summary.Deduplicated++
			continue
		}

		ref, err := o.deps.Store.Put(ctx, path.Join(req.BatchID.String(), f.Name), data, contentTypeFor(f.Kind))
		if err != nil {
			summary.Total++
			summary.Failures = append(summary.Failures,
				unitError(baseName(f.Name), common.NewError(common.KindPersistenceFailed, "store upload payload", err)))
			continue
		}

		switch f.Kind {
		case constants.PDF:
			fileUnits, ferrs := o.expandPDF(req, f, runDir, hash[:], ref)
			units = append(units, fileUnits...)
			summary.Total += len(ferrs)
			summary.Failures = append(summary.Failures, ferrs...)
		default:
			units = append(units, &Unit{
				Name:       baseName(f.Name),
				Kind:       f.Kind,
				SourcePath: f.Path,
				SourceName: f.Name,
				SourceHash: hash[:],
				ContentRef: ref,
				Boundary:   pdfsplit.Boundary{Index: 0, StartPage: 1, EndPage: 1},
			})
		}
	}

	summary.Total += len(units)
	return units, summary
}

// expandPDF analyzes one PDF and extracts a slice per boundary. A file that
// splits into a single boundary is used as-is.
func (o *Orchestrator) expandPDF(req Request, f UploadFile, runDir string, hash []byte, ref string) ([]*Unit, []common.UnitError) {
	boundaries, err := o.deps.Analyzer.Analyze(f.Path, req.Policy)
	if err != nil {
		return nil, []common.UnitError{unitError(baseName(f.Name), err)}
	}

	if len(boundaries) == 1 {
		return []*Unit{{
			Name:       baseName(f.Name),
			Kind:       constants.PDF,
			SourcePath: f.Path,
			SourceName: f.Name,
			SourceHash: hash,
			ContentRef: ref,
			Boundary:   boundaries[0],
		}}, nil
	}

	var units []*Unit
	var failures []common.UnitError
	for _, b := range boundaries {
		name := fmt.Sprintf("%s-%02d", baseName(f.Name), b.Index+1)
		slice, err := o.deps.Analyzer.ExtractBoundary(f.Path, runDir, b)
		if err != nil {
			failures = append(failures, unitError(name, err))
			continue
		}
		units = append(units, &Unit{
			Name:       name,
			Kind:       constants.PDF,
			SourcePath: slice,
			SourceName: f.Name,
			SourceHash: hash,
			ContentRef: ref,
			Boundary:   b,
		})
	}
	return units, failures
}

// processUnit takes one logical document from capacity check to persisted
// row. Quota is debited only after a successful save; a save whose debit
// loses the capacity race is rolled back.
func (o *Orchestrator) processUnit(ctx context.Context, req Request, u *Unit) error {
	ok, err := o.deps.Gate.HasCapacity(ctx, 1)
	if err != nil {
		return common.NewError(common.KindPersistenceFailed, "quota lookup failed", err)
	}
	if !ok {
		return common.NewError(common.KindQuotaExceeded, "no remaining document quota", nil)
	}

	var lastErr error
	for _, s := range o.deps.Strategies {
		payload, err := s.Build(ctx, u)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}

		res, err := o.deps.Recognizer.Recognize(ctx, recognition.Request{
			Text:                 payload.Text,
			Image:                payload.Image,
			ExtractionFields:     req.ExtractionFields,
			TableFields:          req.TableFields,
			CheckedFieldsEnabled: req.CheckedFieldsEnabled,
			TenantID:             req.TenantID,
		})
		if err != nil {
			return recognitionError(err)
		}

		// A text layer that recognizes to nothing sends the unit down the
		// rasterized fallback; an image result is terminal either way.
		if payload.Text != "" && emptyResult(res) {
			o.log.Info("text recognition yielded no data, falling back",
				"unit", u.Name, "strategy", s.Name())
			lastErr = nil
			continue
		}
		return o.persist(ctx, req, u, res)
	}

	if lastErr != nil {
		return lastErr
	}
	// Every strategy declined the unit: a pipeline wiring problem, not a
	// defect in the document itself.
	return common.NewError(common.KindPreconditionFailed,
		fmt.Sprintf("no payload strategy applies to %s unit", u.Kind), nil)
}

func (o *Orchestrator) persist(ctx context.Context, req Request, u *Unit, res *recognition.Result) error {
	doc := &entity.Document{
		ID:         uuid.New(),
		BatchID:    req.BatchID,
		Name:       u.Name,
		Kind:       string(u.Kind),
		ContentRef: u.ContentRef,
		SourceHash: u.SourceHash,
		PageStart:  u.Boundary.StartPage,
		PageEnd:    u.Boundary.EndPage,
		Ordinal:    u.Boundary.Index,
		Text:       res.Text,
		Metadata:   res.Metadata,
		LineItems:  res.LineItems,
	}
	if err := o.deps.Documents.Save(ctx, doc); err != nil {
		return common.NewError(common.KindPersistenceFailed, "save document", err)
	}

	billed, err := o.deps.Gate.Consume(ctx, doc.ID, 1)
	if err != nil {
		o.compensate(ctx, doc.ID, u.Name)
		return common.NewError(common.KindPersistenceFailed, "quota debit failed", err)
	}
	if !billed {
		// Capacity was exhausted by a concurrent unit between the pre-check
		// and the debit. Roll the save back so remaining never goes negative.
		o.compensate(ctx, doc.ID, u.Name)
		return common.NewError(common.KindQuotaExceeded, "quota exhausted during processing", nil)
	}

	if err := o.deps.Batches.IncrementProcessed(ctx, req.BatchID); err != nil {
		// The document is saved and billed; a stale counter is repairable.
		o.log.Warn("failed to advance batch counter", "batch_id", req.BatchID, "unit", u.Name, "error", err)
	}
	return nil
}

func (o *Orchestrator) compensate(ctx context.Context, docID uuid.UUID, unitName string) {
	if err := o.deps.Documents.Delete(ctx, docID); err != nil {
		o.log.Error("failed to roll back document after quota refusal",
			"document_id", docID, "unit", unitName, "error", err)
	}
}

func recognitionError(err error) error {
	switch {
	case common.KindOf(err) != "":
		return err
	case errors.Is(err, recognition.ErrPayloadTooLarge):
		return common.NewError(common.KindPreconditionFailed, "payload exceeds transport limit", err)
	default:
		// Malformed responses and other terminal client errors.
		return common.NewError(common.KindRecognitionUnavailable, err.Error(), err)
	}
}

func unitError(name string, err error) common.UnitError {
	kind := common.KindOf(err)
	if kind == "" {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = common.KindPreconditionFailed
		} else {
			kind = common.KindPersistenceFailed
		}
	}
	return common.UnitError{UnitName: name, Kind: kind, Message: err.Error()}
}

func emptyResult(res *recognition.Result) bool {
	return res.Text == "" && len(res.Metadata) == 0 && len(res.LineItems) == 0
}

func statusOf(s *Summary) constants.RunStatus {
	switch {
	case len(s.Failures) == 0:
		return constants.RunStatusSucceeded
	case s.Succeeded > 0:
		return constants.RunStatusPartialSuccess
	default:
		return constants.RunStatusFailed
	}
}

func contentTypeFor(k constants.Kind) string {
	if k == constants.PDF {
		return "application/pdf"
	}
	return "image/*"
}

func baseName(name string) string {
	base := filepath.Base(name)
	return base[:len(base)-len(filepath.Ext(base))]
}
