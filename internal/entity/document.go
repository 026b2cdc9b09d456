package entity

import (
	"time"

	"github.com/google/uuid"
)

// Document is one persisted logical document: the unit of recognition.
// Ordinal reflects original page order within the source file, not
// completion order.
type Document struct {
	ID         uuid.UUID           `json:"id"`
	BatchID    uuid.UUID           `json:"batch_id"`
	Name       string              `json:"name"`
	Kind       string              `json:"kind"`
	ContentRef string              `json:"content_ref"`
	SourceHash []byte              `json:"source_hash,omitempty"`
	PageStart  int                 `json:"page_start"`
	PageEnd    int                 `json:"page_end"`
	Ordinal    int                 `json:"ordinal"`
	Text       string              `json:"text"`
	Metadata   map[string]string   `json:"metadata"`
	LineItems  []map[string]string `json:"line_items"`
	CreatedAt  time.Time           `json:"created_at"`
}
