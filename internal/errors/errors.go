// Package errors defines the error taxonomy shared by every layer of the
// repairs service. Errors carry a machine-readable code so transport handlers
// can map them onto status codes without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Code classifies an error for callers.
type Code string

const (
	// ErrCodeValidation is a field-level input error. The caller can fix the
	// input and resubmit; it is never retried automatically.
	ErrCodeValidation Code = "validation"
	// ErrCodeForbiddenTransition is a business-rule guard failure: the repair
	// is not in a state that allows the requested action. The caller must
	// re-fetch current state before retrying.
	ErrCodeForbiddenTransition Code = "forbidden_transition"
	// ErrCodeNotFound means a referenced repair, item, user or source item
	// does not exist.
	ErrCodeNotFound Code = "not_found"
	// ErrCodeConflict means an optimistic-concurrency guard failed at commit
	// time: another actor changed the aggregate between read and write.
	ErrCodeConflict Code = "conflict"
	// ErrCodeUnauthorized means the actor may not perform the action.
	ErrCodeUnauthorized Code = "unauthorized"
	// ErrCodeInternal is an unexpected infrastructure failure.
	ErrCodeInternal Code = "internal"
)

// Error is the service error type.
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
		}
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports that a resource with the given ID does not exist.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// Conflict reports an optimistic-concurrency failure.
func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// ForbiddenTransition reports a guard failure with a human-readable reason.
func ForbiddenTransition(reason string) *Error {
	return &Error{Code: ErrCodeForbiddenTransition, Message: reason}
}

// InvalidInput reports a validation failure on a single field.
func InvalidInput(field, reason string) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: "validation failed",
		Fields:  map[string]string{field: reason},
	}
}

// Validation reports a validation failure across multiple fields.
// Returns nil when fields is empty so validators can return their
// accumulator directly.
func Validation(fields map[string]string) *Error {
	if len(fields) == 0 {
		return nil
	}
	return &Error{
		Code:    ErrCodeValidation,
		Message: "validation failed",
		Fields:  fields,
	}
}

// CodeOf extracts the code from an error, defaulting to ErrCodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// FieldsOf returns the field error map when err is a validation error.
func FieldsOf(err error) map[string]string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// HTTPStatus maps an error code onto an HTTP status. Validation errors and
// forbidden transitions are deliberately distinct so a client can tell
// "fix my input" from "this repair's state already moved on".
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeForbiddenTransition:
		return http.StatusPreconditionFailed
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
