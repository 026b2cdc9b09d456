package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scanvault/docpipe/constants"
	"github.com/scanvault/docpipe/internal/batch"
	"github.com/scanvault/docpipe/internal/common"
	"github.com/scanvault/docpipe/internal/entity"
	"github.com/scanvault/docpipe/internal/pdfsplit"
	"github.com/scanvault/docpipe/internal/recognition"
)

const maxUploadBytes = 256 << 20

type handler struct {
	deps Deps
	log  *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createBatchRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
}

func (h *handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.ProjectID == uuid.Nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id and name are required"))
		return
	}

	b := &entity.Batch{ProjectID: req.ProjectID, Name: req.Name}
	if err := h.deps.Batches.Create(r.Context(), b); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type batchStatusResponse struct {
	Batch   *entity.Batch  `json:"batch"`
	Running bool           `json:"running"`
	LastRun *batch.Summary `json:"last_run,omitempty"`
}

func (h *handler) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid batch id"))
		return
	}

	b, err := h.deps.Batches.Get(r.Context(), batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("batch %s not found", batchID))
		return
	}

	resp := batchStatusResponse{Batch: b, Running: h.deps.Registry.IsRunning(batchID)}
	if run, ok := h.deps.Registry.Get(batchID); ok {
		if summary, running := run.Snapshot(); !running {
			resp.LastRun = summary
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid batch id"))
		return
	}
	docs, err := h.deps.Documents.ListByBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// ingest accepts a multipart upload and starts a background run for the
// batch. The response carries the run ID; progress is polled via getBatch.
func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid batch id"))
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	projectID, err := uuid.Parse(r.FormValue("project_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id is required"))
		return
	}

	policy, err := parsePolicy(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	extractionFields, err := parseFields(r.FormValue("extraction_fields"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("extraction_fields: %w", err))
		return
	}
	tableFields, err := parseFields(r.FormValue("table_fields"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("table_fields: %w", err))
		return
	}

	uploadDir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	files, err := h.spoolUploads(r, uploadDir)
	if err != nil {
		_ = os.RemoveAll(uploadDir)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := batch.Request{
		ProjectID:            projectID,
		BatchID:              batchID,
		TenantID:             h.deps.TenantID,
		Files:                files,
		Policy:               policy,
		ExtractionFields:     extractionFields,
		TableFields:          tableFields,
		CheckedFieldsEnabled: r.FormValue("checked_fields") == "true",
	}

	// The run outlives this request; it owns the spooled files.
	run, err := h.deps.Orchestrator.Start(context.WithoutCancel(r.Context()), h.deps.Registry, req)
	if err != nil {
		_ = os.RemoveAll(uploadDir)
		writeError(w, statusForKind(common.KindOf(err)), err)
		return
	}
	go func() {
		<-run.Done()
		_ = os.RemoveAll(uploadDir)
	}()

	h.log.Info("ingestion run accepted", "batch_id", batchID, "run_id", run.ID, "files", len(files))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   run.ID,
		"batch_id": batchID,
		"files":    len(files),
		"status":   constants.RunStatusRunning,
	})
}

func (h *handler) quotaStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Gate.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// spoolUploads writes each multipart file part to uploadDir and classifies it
// by extension. Unsupported extensions reject the whole request up front.
func (h *handler) spoolUploads(r *http.Request, uploadDir string) ([]batch.UploadFile, error) {
	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		return nil, fmt.Errorf("no files in upload")
	}

	var files []batch.UploadFile
	for _, part := range parts {
		name := filepath.Base(part.Filename)
		kind := constants.MapExtToKind(filepath.Ext(name))
		if kind == "" {
			return nil, fmt.Errorf("unsupported file type %q", name)
		}

		src, err := part.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", name, err)
		}
		dest := filepath.Join(uploadDir, name)
		out, err := os.Create(dest)
		if err != nil {
			_ = src.Close()
			return nil, err
		}
		_, err = io.Copy(out, src)
		_ = src.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("spool upload %q: %w", name, err)
		}

		files = append(files, batch.UploadFile{Name: name, Path: dest, Kind: kind})
	}
	return files, nil
}

func parsePolicy(r *http.Request) (pdfsplit.Policy, error) {
	method := pdfsplit.Method(r.FormValue("separation_method"))
	if method == "" {
		method = pdfsplit.MethodNone
	}
	policy := pdfsplit.Policy{Method: method}
	if v := r.FormValue("pages_per_document"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return policy, fmt.Errorf("pages_per_document must be a positive integer")
		}
		policy.PagesPerDocument = n
	}
	if method == pdfsplit.MethodFixedPageCount && policy.PagesPerDocument < 1 {
		return policy, fmt.Errorf("pages_per_document is required for fixed_page_count")
	}
	return policy, nil
}

func parseFields(raw string) ([]recognition.FieldSpec, error) {
	if raw == "" {
		return nil, nil
	}
	var fields []recognition.FieldSpec
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func statusForKind(kind common.Kind) int {
	switch kind {
	case common.KindPreconditionFailed:
		return http.StatusConflict
	case common.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case common.KindCorruptDocument:
		return http.StatusBadRequest
	case common.KindRecognitionUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
