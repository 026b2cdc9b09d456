package recognition

import "context"

// FieldSpec names one extraction field the caller wants back.
type FieldSpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// Request is the payload sent to the remote recognition service. Exactly one
// of Text / Image is populated.
type Request struct {
	Text                 string      `json:"text,omitempty"`
	Image                []byte      `json:"image,omitempty"`
	ExtractionFields     []FieldSpec `json:"extraction_fields"`
	TableFields          []FieldSpec `json:"table_fields,omitempty"`
	CheckedFieldsEnabled bool        `json:"checked_fields_enabled,omitempty"`
	TenantID             string      `json:"tenant_id"`
}

// Result is the recognition service's response for one logical document.
type Result struct {
	Text      string              `json:"text"`
	Metadata  map[string]string   `json:"metadata"`
	LineItems []map[string]string `json:"line_items,omitempty"`
}

// Recognizer invokes the remote OCR/field-extraction service for one logical
// document. Implementations own their retry policy.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (*Result, error)
}
