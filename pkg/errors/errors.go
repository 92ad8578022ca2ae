// Package errors defines the checklist engine's error kinds. Services return
// these; the HTTP layer translates them with ToHTTPError.
package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind classifies a checklist error independent of transport
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindDuplicateKey     Kind = "duplicate_key"
	KindIllegalState     Kind = "illegal_state"
	KindValidationFailed Kind = "validation_failed"
	KindInvalidValue     Kind = "invalid_value"
	KindMissingTemplate  Kind = "missing_template"
	KindMediaUnavailable Kind = "media_unavailable"
)

// ChecklistError is the engine's domain error
type ChecklistError struct {
	Kind         Kind
	Message      string
	MissingItems []string // populated for KindValidationFailed
}

func (e *ChecklistError) Error() string {
	return e.Message
}

func newError(kind Kind, format string, args ...any) *ChecklistError {
	return &ChecklistError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFound creates a NotFound error
func NewNotFound(format string, args ...any) *ChecklistError {
	return newError(KindNotFound, format, args...)
}

// NewDuplicateKey creates a DuplicateKey error
func NewDuplicateKey(format string, args ...any) *ChecklistError {
	return newError(KindDuplicateKey, format, args...)
}

// NewIllegalState creates an IllegalState error
func NewIllegalState(format string, args ...any) *ChecklistError {
	return newError(KindIllegalState, format, args...)
}

// NewInvalidValue creates an InvalidValue error
func NewInvalidValue(format string, args ...any) *ChecklistError {
	return newError(KindInvalidValue, format, args...)
}

// NewMissingTemplate creates a MissingTemplate error
func NewMissingTemplate(format string, args ...any) *ChecklistError {
	return newError(KindMissingTemplate, format, args...)
}

// NewMediaUnavailable creates a MediaUnavailable error
func NewMediaUnavailable(format string, args ...any) *ChecklistError {
	return newError(KindMediaUnavailable, format, args...)
}

// NewValidationFailed creates a ValidationFailed error naming every
// required item that blocked submission
func NewValidationFailed(missingItems []string) *ChecklistError {
	return &ChecklistError{
		Kind:         KindValidationFailed,
		Message:      fmt.Sprintf("checklist is missing required items: %s", strings.Join(missingItems, ", ")),
		MissingItems: missingItems,
	}
}

// KindOf returns the Kind of err, or "" when err is not a ChecklistError
func KindOf(err error) Kind {
	ce, ok := err.(*ChecklistError)
	if !ok {
		return ""
	}
	return ce.Kind
}

// IsKind reports whether err is a ChecklistError of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ToHTTPError translates a ChecklistError into an ectoerror HTTP error. Other
// errors pass through untouched so route middleware can handle them.
func ToHTTPError(err error) error {
	ce, ok := err.(*ChecklistError)
	if !ok {
		return err
	}

	var status int
	switch ce.Kind {
	case KindNotFound:
		status = http.StatusNotFound
	case KindDuplicateKey, KindIllegalState:
		status = http.StatusConflict
	case KindValidationFailed:
		status = http.StatusUnprocessableEntity
	case KindInvalidValue:
		status = http.StatusBadRequest
	case KindMissingTemplate:
		status = http.StatusPreconditionFailed
	case KindMediaUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	httpErr := httperror.NewHTTPError(status, ce.Message).AddMetaValue("kind", string(ce.Kind))
	if len(ce.MissingItems) > 0 {
		httpErr = httpErr.AddMetaValue("missing_items", strings.Join(ce.MissingItems, ", "))
	}
	return httpErr
}
