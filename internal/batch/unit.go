package batch

import (
	"github.com/google/uuid"

	"github.com/scanvault/docpipe/internal/common"
	"github.com/scanvault/docpipe/internal/pdfsplit"
	"github.com/scanvault/docpipe/internal/recognition"

	"github.com/scanvault/docpipe/constants"
)

// UploadFile is one file as submitted by the user. Ephemeral: it lives only
// for the duration of processing.
type UploadFile struct {
	Name string
	Path string // local path of the payload
	Kind constants.Kind
}

// Request describes one ingestion run.
type Request struct {
	ProjectID            uuid.UUID
	BatchID              uuid.UUID
	TenantID             string
	Files                []UploadFile
	Policy               pdfsplit.Policy
	ExtractionFields     []recognition.FieldSpec
	TableFields          []recognition.FieldSpec
	CheckedFieldsEnabled bool
}

// Unit is one logical document: the unit of recognition and persistence.
// The boundary index assigned at analysis time determines the persisted
// ordinal and name regardless of completion order.
type Unit struct {
	Name       string
	Kind       constants.Kind
	SourcePath string // boundary PDF or image file to recognize from
	SourceName string // original upload name
	SourceHash []byte
	ContentRef string
	Boundary   pdfsplit.Boundary
}

// Summary is the aggregate outcome of one run. Partial success is a
// first-class outcome: any persisted unit keeps the run out of FAILED.
type Summary struct {
	BatchID      uuid.UUID           `json:"batch_id"`
	Total        int                 `json:"total"`
	Succeeded    int                 `json:"succeeded"`
	Deduplicated int                 `json:"deduplicated"`
	Failures     []common.UnitError  `json:"failures,omitempty"`
	Status       constants.RunStatus `json:"status"`
}
