package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scanvault/docpipe/internal/entity"
)

type pgBatchRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGBatchRepository(pool *pgxpool.Pool, logger *slog.Logger) BatchRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &pgBatchRepo{pool: pool, logger: logger}
}

func (r *pgBatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO batches (id, project_id, name, total_documents, processed_documents, ready_for_export, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		b.ID, b.ProjectID, b.Name, b.TotalDocuments, b.ProcessedDocuments, b.ReadyForExport,
	)
	if err != nil {
		r.logger.Error("failed to create batch", "batch_id", b.ID, "error", err)
	}
	return err
}

func (r *pgBatchRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	var b entity.Batch
	err := r.pool.QueryRow(ctx,
		`SELECT id, project_id, name, total_documents, processed_documents, ready_for_export, created_at
		   FROM batches WHERE id = $1`, id,
	).Scan(&b.ID, &b.ProjectID, &b.Name, &b.TotalDocuments, &b.ProcessedDocuments, &b.ReadyForExport, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *pgBatchRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM batches WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("failed to check batch existence", "batch_id", id, "error", err)
		return false, err
	}
	return true, nil
}

func (r *pgBatchRepo) AddTotal(ctx context.Context, id uuid.UUID, n int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE batches SET total_documents = total_documents + $2 WHERE id = $1`, id, n)
	return err
}

func (r *pgBatchRepo) IncrementProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE batches
		    SET processed_documents = processed_documents + 1,
		        ready_for_export = (processed_documents + 1 >= total_documents)
		  WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("failed to increment batch counters", "batch_id", id, "error", err)
	}
	return err
}
