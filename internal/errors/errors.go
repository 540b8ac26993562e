package errors

import (
	"errors"
	"fmt"
)

// QuarryError is the structured error type for Quarry.
// It provides rich context for error handling, logging, and user presentation.
type QuarryError struct {
	// Code is the unique error code (e.g., "ERR_301_DUPLICATE_PATH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Storage, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with QuarryError.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new QuarryError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *QuarryError {
	return &QuarryError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a QuarryError from an existing error.
// The error's message becomes the QuarryError message.
func Wrap(code string, err error) *QuarryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a validation-related error.
func ValidationError(message string) *QuarryError {
	return New(ErrCodeInvalidInput, message, nil)
}

// NotFoundError creates a document-not-found error.
func NotFoundError(message string) *QuarryError {
	return New(ErrCodeDocNotFound, message, nil)
}

// DuplicatePathError creates a duplicate file path error.
func DuplicatePathError(path string) *QuarryError {
	return New(ErrCodeDuplicatePath, fmt.Sprintf("document already exists for path: %s", path), nil).
		WithDetail("path", path)
}

// TimeoutError creates a parse timeout error.
func TimeoutError(message string, cause error) *QuarryError {
	return New(ErrCodeParseTimeout, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *QuarryError {
	return New(ErrCodeInternal, message, cause)
}

// hasCode reports whether err carries the given error code.
func hasCode(err error, code string) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Category == CategoryValidation
	}
	return false
}

// IsNotFound checks if an error is a document-not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeDocNotFound)
}

// IsDuplicatePath checks if an error is a duplicate path error.
func IsDuplicatePath(err error) bool {
	return hasCode(err, ErrCodeDuplicatePath)
}

// IsTimeout checks if an error is a parse timeout error.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeParseTimeout)
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a QuarryError.
// Returns empty string if not a QuarryError.
func GetCode(err error) string {
	var qe *QuarryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
