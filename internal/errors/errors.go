package errors

import (
	stderrors "errors"
	"fmt"
)

// AmanError is the structured error type used across the index engine.
// It carries a stable code, a category and severity derived from that code,
// and an optional suggestion for the user.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_207_INDEX_LOCKED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AmanError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, ErrIndexLocked) works on any
// AmanError carrying that code.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AmanError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AmanError from an existing error.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrIndexLocked       = &AmanError{Code: ErrCodeIndexLocked}
	ErrCorruptIndex      = &AmanError{Code: ErrCodeCorruptIndex}
	ErrProviderTransient = &AmanError{Code: ErrCodeProviderTransient}
	ErrFilePermission    = &AmanError{Code: ErrCodeFilePermission}
	ErrCycleFailed       = &AmanError{Code: ErrCodeCycleFailed}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// TransientProviderError marks an embedding provider failure that is worth
// retrying: rate limits, timeouts, connection resets.
func TransientProviderError(message string, cause error) *AmanError {
	return New(ErrCodeProviderTransient, message, cause)
}

// IndexLockedError reports that the persisted index is held by another
// consumer and cannot be wiped or opened.
func IndexLockedError(path string, cause error) *AmanError {
	return New(ErrCodeIndexLocked, "index is locked by another consumer", cause).
		WithDetail("path", path).
		WithSuggestion("Close other processes using the index and retry")
}

// CorruptIndexError reports a failed health check or unreadable artifact.
func CorruptIndexError(message string, cause error) *AmanError {
	return New(ErrCodeCorruptIndex, message, cause).
		WithSuggestion("Run 'amanindex rebuild' to rebuild the index from scratch")
}

// FilesystemPermissionError reports a directory or file the crawler could
// not read. It never aborts a crawl.
func FilesystemPermissionError(path string, cause error) *AmanError {
	return New(ErrCodeFilePermission, "permission denied", cause).WithDetail("path", path)
}

// ScheduledCycleError wraps any failure escaping a background cycle.
func ScheduledCycleError(cycleID string, cause error) *AmanError {
	return New(ErrCodeCycleFailed, "scheduled update cycle failed", cause).WithDetail("cycle_id", cycleID)
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// AmanError.
func IsRetryable(err error) bool {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first AmanError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
