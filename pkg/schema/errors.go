package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeExpression     = "EXPRESSION_ERROR"
	ErrCodeEvaluation     = "EVALUATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeCacheIO        = "CACHE_IO_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeNativeDisabled = "NATIVE_DISABLED"
	ErrCodeIsolation      = "ISOLATION_ERROR"
	ErrCodeCircuitOpen    = "CIRCUIT_OPEN"
)

// BreezeError is the structured error type shared by the engine's packages.
type BreezeError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Template string         `json:"template,omitempty"`
	Cause    error          `json:"-"`
}

func (e *BreezeError) Error() string {
	if e.Template != "" {
		return fmt.Sprintf("[%s] template %s: %s", e.Code, e.Template, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BreezeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BreezeError.
func NewError(code, message string) *BreezeError {
	return &BreezeError{Code: code, Message: message}
}

// NewErrorf creates a new BreezeError with a formatted message.
func NewErrorf(code, format string, args ...any) *BreezeError {
	return &BreezeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTemplate attaches the source identity of the template involved.
func (e *BreezeError) WithTemplate(source string) *BreezeError {
	e.Template = source
	return e
}

// WithCause attaches an underlying cause.
func (e *BreezeError) WithCause(err error) *BreezeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BreezeError) WithDetails(details map[string]any) *BreezeError {
	e.Details = details
	return e
}

// HasCode reports whether err (or anything it wraps) is a BreezeError with the given code.
func HasCode(err error, code string) bool {
	var be *BreezeError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsNotFound is shorthand for HasCode(err, ErrCodeNotFound).
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}
