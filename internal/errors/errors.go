// Package errors defines the engine's exhaustive error kinds (spec.md §7) as a
// single AppError sum type, following the teacher's AppError/NewXError idiom.
package errors

import "fmt"

// Kind is one of the exhaustive error kinds from spec.md §7.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindValidationError Kind = "validation_error"
	KindFilterTypeError Kind = "filter_type_error"
	KindConflict        Kind = "conflict"
	KindTransient       Kind = "transient"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

// AppError is the engine's error type. Every error that crosses a public
// Facade boundary is one of these.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *AppError) Unwrap() error { return e.cause }

// WithDetails attaches structured details and returns the receiver for chaining.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithCause attaches an underlying error and returns the receiver for chaining.
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

func newError(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// NewNotFound creates a NotFound error: entity does not exist.
func NewNotFound(message string) *AppError { return newError(KindNotFound, message) }

// NewValidation creates a ValidationError: input violates a type, length, or range invariant.
func NewValidation(message string) *AppError { return newError(KindValidationError, message) }

// NewFilterType creates a FilterTypeError: filter compilation failed for a type reason.
func NewFilterType(message string) *AppError { return newError(KindFilterTypeError, message) }

// NewConflict creates a Conflict error: optimistic concurrency or uniqueness violation.
func NewConflict(message string) *AppError { return newError(KindConflict, message) }

// NewTransient creates a Transient error: temporarily unavailable store/cache/capability.
func NewTransient(message string) *AppError { return newError(KindTransient, message) }

// NewCancelled creates a Cancelled error: deadline or explicit cancellation fired.
func NewCancelled(message string) *AppError { return newError(KindCancelled, message) }

// NewInternal creates an Internal error: invariant violation, not user-caused.
func NewInternal(message string) *AppError { return newError(KindInternal, message) }

// Is reports whether err is an *AppError of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Kind == kind
}

// As extracts the *AppError from err, if any.
func As(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}
