package shared

import "errors"

// Error codes shared by every allocation path
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInvalidState         = "INVALID_STATE"
	CodeInsufficientCoverage = "INSUFFICIENT_COVERAGE"
	CodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	CodeAlreadyExists        = "ALREADY_EXISTS"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so callers can
// match a category with errors.Is regardless of the message.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound             = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists        = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput         = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState         = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrInsufficientCoverage = NewDomainError(CodeInsufficientCoverage, "Selected sources cannot cover the target")
	ErrConcurrencyConflict  = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)

// CodeOf returns the domain error code carried by err, or an empty string
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
