package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input or document
	ErrCatExecution  ErrorCategory = "execution"  // Remote call failed
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatAuth       ErrorCategory = "auth"       // Authentication failure
	ErrCatNetwork    ErrorCategory = "network"    // Network connectivity
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrNetwork creates a network error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      "NETWORK",
		Message:   message,
		Retryable: true,
	}
}

// ErrConflict creates a conflict error for a document changed by another writer.
func ErrConflict(id string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeVersionConflict,
		Message:   fmt.Sprintf("document %s was modified concurrently", id),
		Retryable: false,
	}
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatAuth,
		Code:      "AUTH_FAILED",
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeParseFailed     = "PARSE_FAILED"
	CodeInvalidNode     = "INVALID_NODE"
	CodeNoNodes         = "NO_NODES"
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeSearchFailed    = "SEARCH_FAILED"
	CodeUpdateFailed    = "UPDATE_FAILED"
	CodeDispatchFailed  = "DISPATCH_FAILED"
	CodeUnexpectedReply = "UNEXPECTED_REPLY"
)

// ErrFromStatus maps a non-2xx HTTP reply from a remote service to a
// DomainError. code is used for statuses that have no category of their own.
func ErrFromStatus(code string, status int, message string) *DomainError {
	var err *DomainError
	switch {
	case status == 401 || status == 403:
		err = ErrAuth(message)
	case status == 404:
		err = &DomainError{Category: ErrCatNotFound, Code: "NOT_FOUND", Message: message}
	case status == 409:
		err = &DomainError{Category: ErrCatConflict, Code: CodeVersionConflict, Message: message}
	case status == 408 || status == 429 || status >= 500:
		err = ErrExecution(code, message)
	default:
		err = ErrExecution(code, message)
		err.Retryable = false
	}
	return err.WithDetail("status", status)
}

// ErrFromTransport maps a failed HTTP round trip (no reply at all) to a
// timeout or network DomainError wrapping err.
func ErrFromTransport(message string, err error) *DomainError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrTimeout(message).WithCause(err)
	}
	return ErrNetwork(message).WithCause(err)
}
