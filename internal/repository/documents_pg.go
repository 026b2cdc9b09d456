package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scanvault/docpipe/internal/entity"
)

type pgDocumentRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGDocumentRepository(pool *pgxpool.Pool, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &pgDocumentRepo{pool: pool, logger: logger}
}

func (r *pgDocumentRepo) Save(ctx context.Context, d *entity.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	metadata, lineItems, err := marshalContent(d)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO documents
		   (id, batch_id, name, kind, content_ref, source_hash, page_start, page_end, ordinal, text, metadata, line_items, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, now())`,
		d.ID, d.BatchID, d.Name, d.Kind, d.ContentRef, d.SourceHash,
		d.PageStart, d.PageEnd, d.Ordinal, d.Text, string(metadata), string(lineItems),
	)
	if err != nil {
		r.logger.Error("failed to save document", "batch_id", d.BatchID, "name", d.Name, "error", err)
	}
	return err
}

func (r *pgDocumentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

func (r *pgDocumentRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, name, kind, content_ref, source_hash, page_start, page_end, ordinal, text, metadata, line_items, created_at
		   FROM documents WHERE batch_id = $1 ORDER BY name, ordinal`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		var d entity.Document
		var metadata, lineItems []byte
		if err := rows.Scan(&d.ID, &d.BatchID, &d.Name, &d.Kind, &d.ContentRef, &d.SourceHash,
			&d.PageStart, &d.PageEnd, &d.Ordinal, &d.Text, &metadata, &lineItems, &d.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalContent(&d, metadata, lineItems); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *pgDocumentRepo) ExistsBySourceHash(ctx context.Context, batchID uuid.UUID, hash []byte) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM documents WHERE batch_id = $1 AND source_hash = $2 LIMIT 1`,
		batchID, hash,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func marshalContent(d *entity.Document) (metadata, lineItems []byte, err error) {
	metadata, err = json.Marshal(d.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	lineItems, err = json.Marshal(d.LineItems)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal line items: %w", err)
	}
	return metadata, lineItems, nil
}

func unmarshalContent(d *entity.Document, metadata, lineItems []byte) error {
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &d.LineItems); err != nil {
			return fmt.Errorf("unmarshal line items: %w", err)
		}
	}
	return nil
}
