package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scanvault/docpipe/internal/entity"
)

// SQLiteStore is the embedded store for local/single-node mode and
// integration tests. It implements both repository interfaces.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	name TEXT NOT NULL,
	total_documents INTEGER NOT NULL DEFAULT 0,
	processed_documents INTEGER NOT NULL DEFAULT 0,
	ready_for_export INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES batches(id),
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	content_ref TEXT NOT NULL DEFAULT '',
	source_hash BLOB,
	page_start INTEGER NOT NULL DEFAULT 0,
	page_end INTEGER NOT NULL DEFAULT 0,
	ordinal INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	line_items TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_batch_hash ON documents(batch_id, source_hash);
`

// OpenSQLite opens (and bootstraps) the embedded store. Use ":memory:" for
// tests.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	// The embedded store serializes writers anyway; one connection keeps
	// ":memory:" databases coherent across goroutines.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
	}
	logger.Info("sqlite store ready", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Batches returns the batch repository view of the store.
func (s *SQLiteStore) Batches() BatchRepository { return (*sqliteBatchRepo)(s) }

// Documents returns the document repository view of the store.
func (s *SQLiteStore) Documents() DocumentRepository { return (*sqliteDocumentRepo)(s) }

type sqliteBatchRepo SQLiteStore

func (r *sqliteBatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO batches (id, project_id, name, total_documents, processed_documents, ready_for_export, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.ProjectID.String(), b.Name, b.TotalDocuments, b.ProcessedDocuments,
		boolToInt(b.ReadyForExport), b.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (r *sqliteBatchRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	var b entity.Batch
	var idStr, projectStr, createdAt string
	var ready int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, total_documents, processed_documents, ready_for_export, created_at
		   FROM batches WHERE id = ?`, id.String(),
	).Scan(&idStr, &projectStr, &b.Name, &b.TotalDocuments, &b.ProcessedDocuments, &ready, &createdAt)
	if err != nil {
		return nil, err
	}
	if b.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if b.ProjectID, err = uuid.Parse(projectStr); err != nil {
		return nil, err
	}
	b.ReadyForExport = ready != 0
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &b, nil
}

func (r *sqliteBatchRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *sqliteBatchRepo) AddTotal(ctx context.Context, id uuid.UUID, n int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE batches SET total_documents = total_documents + ? WHERE id = ?`, n, id.String())
	return err
}

func (r *sqliteBatchRepo) IncrementProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE batches
		    SET processed_documents = processed_documents + 1,
		        ready_for_export = (processed_documents + 1 >= total_documents)
		  WHERE id = ?`, id.String())
	return err
}

type sqliteDocumentRepo SQLiteStore

func (r *sqliteDocumentRepo) Save(ctx context.Context, d *entity.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	metadata, lineItems, err := marshalContent(d)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents
		   (id, batch_id, name, kind, content_ref, source_hash, page_start, page_end, ordinal, text, metadata, line_items, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.BatchID.String(), d.Name, d.Kind, d.ContentRef, d.SourceHash,
		d.PageStart, d.PageEnd, d.Ordinal, d.Text, string(metadata), string(lineItems),
		d.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		r.logger.Error("failed to save document", "batch_id", d.BatchID, "name", d.Name, "error", err)
	}
	return err
}

func (r *sqliteDocumentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	return err
}

func (r *sqliteDocumentRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, batch_id, name, kind, content_ref, source_hash, page_start, page_end, ordinal, text, metadata, line_items, created_at
		   FROM documents WHERE batch_id = ? ORDER BY name, ordinal`, batchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		var d entity.Document
		var idStr, batchStr, createdAt string
		var metadata, lineItems []byte
		if err := rows.Scan(&idStr, &batchStr, &d.Name, &d.Kind, &d.ContentRef, &d.SourceHash,
			&d.PageStart, &d.PageEnd, &d.Ordinal, &d.Text, &metadata, &lineItems, &createdAt); err != nil {
			return nil, err
		}
		if d.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if d.BatchID, err = uuid.Parse(batchStr); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if err := unmarshalContent(&d, metadata, lineItems); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *sqliteDocumentRepo) ExistsBySourceHash(ctx context.Context, batchID uuid.UUID, hash []byte) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE batch_id = ? AND source_hash = ? LIMIT 1`,
		batchID.String(), hash,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
