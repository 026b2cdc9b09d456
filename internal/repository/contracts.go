package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/scanvault/docpipe/internal/entity"
)

// BatchRepository is the batch side of the persistence gateway. Counter
// increments use the same atomic discipline as the quota gate.
type BatchRepository interface {
	Create(ctx context.Context, b *entity.Batch) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// AddTotal raises the expected document count when boundaries are known.
	AddTotal(ctx context.Context, id uuid.UUID, n int) error
	// IncrementProcessed advances the processed counter by one and flips
	// ready_for_export once processed catches up with total.
	IncrementProcessed(ctx context.Context, id uuid.UUID) error
}

// DocumentRepository stores logical documents and their extracted content.
type DocumentRepository interface {
	Save(ctx context.Context, d *entity.Document) error
	// Delete removes a document (compensation when quota consumption loses
	// the race after a save).
	Delete(ctx context.Context, id uuid.UUID) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.Document, error)
	// ExistsBySourceHash reports whether any document in the batch came from
	// an upload with this content hash (duplicate detection).
	ExistsBySourceHash(ctx context.Context, batchID uuid.UUID, hash []byte) (bool, error)
}
