package common

import (
	"errors"
	"fmt"
)

// Kind classifies every terminal failure the pipeline can produce.
// The set is closed: callers branch on Kind, never on message text.
type Kind string

const (
	// KindPreconditionFailed means no project/batch was selected or the batch
	// vanished before work started. Fatal for the whole run.
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	// KindCorruptDocument means a PDF could not be opened or parsed. Fatal for
	// that file only.
	KindCorruptDocument Kind = "CORRUPT_DOCUMENT"
	// KindQuotaExceeded means the document quota had no remaining capacity.
	// Fatal for that unit only; recognition is never attempted.
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	// KindRecognitionUnavailable means the remote service failed every retry.
	KindRecognitionUnavailable Kind = "RECOGNITION_UNAVAILABLE"
	// KindPersistenceFailed means the save failed after successful
	// recognition; quota is not consumed for such units.
	KindPersistenceFailed Kind = "PERSISTENCE_FAILED"
)

// Error is a typed pipeline error carrying its taxonomy kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a typed Error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UnitError is the structured per-unit failure surfaced to callers.
type UnitError struct {
	UnitName string `json:"unit_name"`
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
}

func (u UnitError) Error() string {
	return fmt.Sprintf("%s: %s: %s", u.UnitName, u.Kind, u.Message)
}

// WrapError wraps err with a message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
