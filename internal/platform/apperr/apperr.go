// Package apperr defines the error taxonomy shared by the billing services and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Type classifies an error for callers.
type Type string

const (
	TypeValidation    Type = "validation"
	TypeNotFound      Type = "not_found"
	TypeStateConflict Type = "state_conflict"
	TypePersistence   Type = "persistence"
	TypeBatchItem     Type = "batch_item"
	TypeUnknown       Type = "unknown"
)

// UnknownError replaces recovered values that are not errors, so arbitrary
// payloads never reach log sinks or responses.
const UnknownError = "Unknown error"

// Error is the concrete error carried through the services.
type Error struct {
	Type    Type
	Message string
	Fields  map[string]string
	Key     string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fields collects per-field validation messages.
type Fields map[string]string

// Add records msg for field unless the field already has a message.
func (f Fields) Add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

// Err returns a validation error, or nil when nothing was recorded.
func (f Fields) Err() error {
	if len(f) == 0 {
		return nil
	}
	return Validation(f)
}

// Validation reports malformed input.
func Validation(fields map[string]string) *Error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Error{
		Type:    TypeValidation,
		Message: "invalid input: " + strings.Join(keys, ", "),
		Fields:  fields,
	}
}

// Invalid is a single-field validation error.
func Invalid(field, msg string) *Error {
	return Validation(map[string]string{field: msg})
}

// NotFound reports a missing resource for the current tenant.
func NotFound(resource, id string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

// Conflict reports an operation that is illegal in the current state.
func Conflict(format string, args ...any) *Error {
	return &Error{
		Type:    TypeStateConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// Persistence wraps a store failure. Only "failed to <op>" is shown to callers.
func Persistence(op string, err error) *Error {
	return &Error{
		Type:    TypePersistence,
		Message: "failed to " + op,
		Err:     err,
	}
}

// NewBatchItemError isolates one batch item's failure.
func NewBatchItemError(key string, err error) *Error {
	return &Error{
		Type:    TypeBatchItem,
		Message: PublicMessage(err),
		Key:     key,
		Err:     err,
	}
}

// Normalize converts a recovered panic value into an error.
func Normalize(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New(UnknownError)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf returns the type of the outermost *Error, or TypeUnknown.
func TypeOf(err error) Type {
	if e, ok := As(err); ok {
		if e.Type == TypeBatchItem && e.Err != nil {
			return TypeOf(e.Err)
		}
		return e.Type
	}
	return TypeUnknown
}

// Is reports whether err carries the given type.
func Is(err error, t Type) bool {
	return TypeOf(err) == t
}

// PublicMessage is the text safe to show a caller.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Message
	}
	if err.Error() == UnknownError {
		return UnknownError
	}
	return "internal error"
}

// HTTPStatus maps an error onto a response status.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
