package entity

import (
	"time"

	"github.com/google/uuid"
)

// Batch aggregates the documents produced by one capture session.
type Batch struct {
	ID                 uuid.UUID `json:"id"`
	ProjectID          uuid.UUID `json:"project_id"`
	Name               string    `json:"name"`
	TotalDocuments     int       `json:"total_documents"`
	ProcessedDocuments int       `json:"processed_documents"`
	ReadyForExport     bool      `json:"ready_for_export"`
	CreatedAt          time.Time `json:"created_at"`
}
