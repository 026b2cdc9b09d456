package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/scanvault/docpipe/internal/batch"
	"github.com/scanvault/docpipe/internal/imaging"
	"github.com/scanvault/docpipe/internal/pdfsplit"
	"github.com/scanvault/docpipe/internal/quota"
	"github.com/scanvault/docpipe/internal/recognition"
	"github.com/scanvault/docpipe/internal/repository"
	"github.com/scanvault/docpipe/internal/storage"
)

type stubRecognizer struct{}

func (stubRecognizer) Recognize(_ context.Context, _ recognition.Request) (*recognition.Result, error) {
	return &recognition.Result{Text: "RECEIPT", Metadata: map[string]string{"total": "3.50"}}, nil
}

func newTestRouter(t *testing.T) (http.Handler, Deps) {
	t.Helper()
	store, err := repository.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gate := quota.NewMemoryGate(10, time.Time{})
	orch := batch.NewOrchestrator(batch.Deps{
		Batches:    store.Batches(),
		Documents:  store.Documents(),
		Gate:       gate,
		Recognizer: stubRecognizer{},
		Analyzer:   pdfsplit.NewAnalyzer(nil),
		Strategies: []batch.PayloadStrategy{
			&batch.RenderedImageStrategy{Normalizer: imaging.NewNormalizer(2048, 80)},
		},
		Store:   mustFSStore(t),
		WorkDir: t.TempDir(),
	})

	deps := Deps{
		Orchestrator: orch,
		Registry:     batch.NewRegistry(),
		Batches:      store.Batches(),
		Documents:    store.Documents(),
		Gate:         gate,
		TenantID:     "acme",
	}
	srv := New(":0", deps)
	return srv.httpServer.Handler, deps
}

func mustFSStore(t *testing.T) *storage.FSStore {
	t.Helper()
	fs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func pngUpload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func TestCreateAndGetBatch(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"project_id": uuid.New(), "name": "scans"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/batches", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEqual(t, uuid.Nil, created.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status batchStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Running)
	require.Nil(t, status.LastRun)
}

func TestGetBatchNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestRunsToCompletion(t *testing.T) {
	router, deps := newTestRouter(t)

	b := mustCreateBatch(t, router)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("project_id", uuid.NewString()))
	require.NoError(t, mw.WriteField("separation_method", "none"))
	fw, err := mw.CreateFormFile("files", "receipt.png")
	require.NoError(t, err)
	_, err = fw.Write(pngUpload(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/batches/%s/ingest", b), &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	run, ok := deps.Registry.Get(b)
	require.True(t, ok)
	summary, err := run.Wait()
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/batches/%s/documents", b), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/quota", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st quota.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, 9, st.Remaining)
}

func TestIngestRejectsUnsupportedExtension(t *testing.T) {
	router, _ := newTestRouter(t)
	b := mustCreateBatch(t, router)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("project_id", uuid.NewString()))
	fw, err := mw.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/batches/%s/ingest", b), &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestUnknownBatchConflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("project_id", uuid.NewString()))
	fw, err := mw.CreateFormFile("files", "receipt.png")
	require.NoError(t, err)
	_, err = fw.Write(pngUpload(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/batches/%s/ingest", uuid.New()), &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func mustCreateBatch(t *testing.T, router http.Handler) uuid.UUID {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"project_id": uuid.New(), "name": "scans"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/batches", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.ID
}
