package errors

import (
	stderrors "errors"
	"fmt"
)

// QAError is the structured error type for codeqa.
// It provides rich context for error handling, logging, and user presentation.
type QAError struct {
	// Code is the unique error code (e.g., "ERR_310_EMBEDDING_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
	Category Category

	// Severity is the error severity level.
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
func (e *QAError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QAError) Unwrap() error {
	return e.Cause
}

// Is matches QAErrors by code so errors.Is works across wrap layers.
func (e *QAError) Is(target error) bool {
	if t, ok := target.(*QAError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QAError) WithDetail(key, value string) *QAError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *QAError) WithSuggestion(suggestion string) *QAError {
	e.Suggestion = suggestion
	return e
}

// New creates a new QAError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *QAError {
	return &QAError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QAError from an existing error.
// The error's message becomes the QAError message.
func Wrap(code string, err error) *QAError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IO creates a file/disk I/O error.
func IO(message string, cause error) *QAError {
	return New(ErrCodeFileUnreadable, message, cause)
}

// Embedding creates an embedding-provider error. The provider's own
// message is carried unchanged in the cause chain.
func Embedding(message string, cause error) *QAError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// Completion creates a completion-provider error.
func Completion(message string, cause error) *QAError {
	return New(ErrCodeCompletionFailed, message, cause)
}

// InvalidArg creates an invalid-argument error.
func InvalidArg(message string) *QAError {
	return New(ErrCodeInvalidArgument, message, nil)
}

// EmptyIndex creates an error for a query against an index with zero chunks.
func EmptyIndex(message string) *QAError {
	return New(ErrCodeEmptyIndex, message, nil).
		WithSuggestion("run 'codeqa index' to build the index first")
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *QAError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *QAError {
	return New(ErrCodeInternal, message, cause)
}

// IsProvider reports whether err (anywhere in its chain) is a provider
// failure, embedding or completion alike.
func IsProvider(err error) bool {
	var qe *QAError
	if stderrors.As(err, &qe) {
		return qe.Category == CategoryProvider
	}
	return false
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a QAError with Retryable set.
func IsRetryable(err error) bool {
	var qe *QAError
	if stderrors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var qe *QAError
	if stderrors.As(err, &qe) {
		return qe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a QAError chain.
// Returns empty string if the chain has no QAError.
func GetCode(err error) string {
	var qe *QAError
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// GetCategory extracts the category from a QAError chain.
func GetCategory(err error) Category {
	var qe *QAError
	if stderrors.As(err, &qe) {
		return qe.Category
	}
	return ""
}
