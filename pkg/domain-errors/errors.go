// Package derrors provides coded domain errors.
//
// Services return these so transport layers can map outcomes to status
// codes without string matching, and so expected conditions (conflict,
// not found, not pending) stay distinguishable from hard failures.
package derrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeBadRequest marks malformed request shapes (missing fields,
	// length violations). Rejected before any persistence attempt.
	CodeBadRequest Code = "bad_request"

	// CodeInvalidInput marks values that fail domain-primitive parsing
	// (IDs, URLs). Mapped to the same HTTP status as bad_request but
	// kept separate for logging.
	CodeInvalidInput Code = "invalid_input"

	// CodeUnauthorized marks missing or unverifiable credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks authenticated callers lacking privileges.
	CodeForbidden Code = "forbidden"

	// CodeNotFound marks lookups with no matching record.
	CodeNotFound Code = "not_found"

	// CodeConflict marks uniqueness violations (duplicate endpoint URL).
	CodeConflict Code = "conflict"

	// CodeInvalidState marks operations against a record in the wrong
	// lifecycle state, e.g. deciding a registration that is no longer
	// Pending. Distinct from CodeNotFound even when the boundary folds
	// both into one response.
	CodeInvalidState Code = "invalid_state"

	// CodeInvalidRange marks time-range filters where to < from.
	CodeInvalidRange Code = "invalid_range"

	// CodeInternal marks unexpected faults. Detail is logged, never
	// returned to the caller.
	CodeInternal Code = "internal_error"
)

// Error is a domain error carrying a classification code.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Message returns the human-readable description without the code prefix.
func (e *Error) Message() string { return e.message }

// New builds a domain error with the given code.
func New(code Code, message string) error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(cause error, code Code, message string) error {
	return &Error{code: code, message: message, cause: cause}
}

// CodeOf extracts the code from err, walking the wrap chain.
// Errors without a code report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}

// Is is a readability alias for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }

// MessageOf returns the domain message for err, or a generic fallback.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.message
	}
	return "internal error"
}
