package repository

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/scanvault/docpipe/internal/entity"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteBatchLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	batches := store.Batches()

	b := &entity.Batch{ProjectID: uuid.New(), Name: "august-scans"}
	require.NoError(t, batches.Create(ctx, b))
	require.NotEqual(t, uuid.Nil, b.ID)

	exists, err := batches.Exists(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = batches.Exists(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, batches.AddTotal(ctx, b.ID, 2))

	require.NoError(t, batches.IncrementProcessed(ctx, b.ID))
	got, err := batches.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.TotalDocuments)
	require.Equal(t, 1, got.ProcessedDocuments)
	require.False(t, got.ReadyForExport)

	require.NoError(t, batches.IncrementProcessed(ctx, b.ID))
	got, err = batches.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.ProcessedDocuments)
	require.True(t, got.ReadyForExport)
}

func TestSQLiteDocumentRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	b := &entity.Batch{ProjectID: uuid.New(), Name: "b"}
	require.NoError(t, store.Batches().Create(ctx, b))

	hash := sha256.Sum256([]byte("scan bytes"))
	doc := &entity.Document{
		BatchID:    b.ID,
		Name:       "invoice-01",
		Kind:       "PDF",
		ContentRef: "uploads/b/invoice.pdf",
		SourceHash: hash[:],
		PageStart:  1,
		PageEnd:    2,
		Ordinal:    0,
		Text:       "INVOICE 42",
		Metadata:   map[string]string{"invoice_number": "42"},
		LineItems:  []map[string]string{{"description": "widget", "amount": "9.99"}},
	}
	require.NoError(t, store.Documents().Save(ctx, doc))

	docs, err := store.Documents().ListByBatch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, doc.Name, docs[0].Name)
	require.Equal(t, doc.Metadata, docs[0].Metadata)
	require.Equal(t, doc.LineItems, docs[0].LineItems)
	require.Equal(t, hash[:], docs[0].SourceHash)

	exists, err := store.Documents().ExistsBySourceHash(ctx, b.ID, hash[:])
	require.NoError(t, err)
	require.True(t, exists)

	other := sha256.Sum256([]byte("different bytes"))
	exists, err = store.Documents().ExistsBySourceHash(ctx, b.ID, other[:])
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Documents().Delete(ctx, doc.ID))
	docs, err = store.Documents().ListByBatch(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestSQLiteDocumentsOrderedByNameAndOrdinal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	b := &entity.Batch{ProjectID: uuid.New(), Name: "b"}
	require.NoError(t, store.Batches().Create(ctx, b))

	// Insert out of order; listing follows name/ordinal, not insert time.
	for _, ord := range []int{2, 0, 1} {
		require.NoError(t, store.Documents().Save(ctx, &entity.Document{
			BatchID: b.ID,
			Name:    "scan",
			Kind:    "PDF",
			Ordinal: ord,
		}))
	}

	docs, err := store.Documents().ListByBatch(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, d := range docs {
		require.Equal(t, i, d.Ordinal)
	}
}
