// Package errors defines the error types used across the gateway.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrValidation is returned when input fails validation, including
	// attempts to mutate immutable fields.
	ErrValidation = "validation"

	// ErrConflict is returned when a record with the same name already exists.
	ErrConflict = "conflict"

	// ErrNotFound is returned when a record or workload is not found.
	ErrNotFound = "not_found"

	// ErrForbidden is returned when the principal is not allowed to perform
	// the operation.
	ErrForbidden = "forbidden"

	// ErrUpstreamFailed is returned when the orchestrator API fails.
	ErrUpstreamFailed = "upstream_failed"

	// ErrUnavailable is returned when no backend endpoint can serve a request.
	ErrUnavailable = "unavailable"

	// ErrBackendUnavailable is returned when the backing store cannot be reached.
	ErrBackendUnavailable = "backend_unavailable"
)

// Error represents an error in the gateway.
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, cause error) *Error {
	return NewError(ErrConflict, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string, cause error) *Error {
	return NewError(ErrForbidden, message, cause)
}

// NewUpstreamFailedError creates a new upstream failed error
func NewUpstreamFailedError(message string, cause error) *Error {
	return NewError(ErrUpstreamFailed, message, cause)
}

// NewUnavailableError creates a new unavailable error
func NewUnavailableError(message string, cause error) *Error {
	return NewError(ErrUnavailable, message, cause)
}

// NewBackendUnavailableError creates a new backend unavailable error
func NewBackendUnavailableError(message string, cause error) *Error {
	return NewError(ErrBackendUnavailable, message, cause)
}

// isType reports whether err is an *Error of the given type.
func isType(err error, errorType string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return isType(err, ErrValidation) }

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool { return isType(err, ErrConflict) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return isType(err, ErrNotFound) }

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool { return isType(err, ErrForbidden) }

// IsUpstreamFailed checks if the error is an upstream failed error
func IsUpstreamFailed(err error) bool { return isType(err, ErrUpstreamFailed) }

// IsUnavailable checks if the error is an unavailable error
func IsUnavailable(err error) bool { return isType(err, ErrUnavailable) }

// IsBackendUnavailable checks if the error is a backend unavailable error
func IsBackendUnavailable(err error) bool { return isType(err, ErrBackendUnavailable) }
