package types

import "fmt"

// ErrorCode represents a unified error code across the module.
type ErrorCode string

const (
	// ErrNotFound indicates an unknown agent, session, or listing id.
	// Callers treat it as a degraded no-op, never as fatal.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrValidation indicates a request rejected before any mutation,
	// such as a non-positive service radius or an unknown routing strategy.
	ErrValidation ErrorCode = "VALIDATION"
	// ErrCapacityExhausted indicates a spawn quota prevented creating a
	// new agent for an otherwise unservable request.
	ErrCapacityExhausted ErrorCode = "CAPACITY_EXHAUSTED"
	// ErrIdentityUnavailable indicates the external identity minter
	// failed or its circuit breaker is open.
	ErrIdentityUnavailable ErrorCode = "IDENTITY_UNAVAILABLE"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrNotFound
}

// IsValidation reports whether err carries the VALIDATION code.
func IsValidation(err error) bool {
	return GetErrorCode(err) == ErrValidation
}
