// Package errors provides structured error handling for codeqa.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index storage)
//   - 3XX: Provider errors (embedding/completion services)
//   - 4XX: Validation errors
//   - 5XX: State errors (index lifecycle)
//   - 6XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryProvider indicates embedding/completion provider failures.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryState indicates index lifecycle/state errors.
	CategoryState Category = "STATE"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileUnreadable = "ERR_200_FILE_UNREADABLE"
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileTooLarge   = "ERR_202_FILE_TOO_LARGE"
	ErrCodeCorruptIndex   = "ERR_203_CORRUPT_INDEX"

	// Provider errors (300-399)
	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"
	ErrCodeProviderRateLimited = "ERR_303_PROVIDER_RATE_LIMITED"
	ErrCodeEmbeddingFailed     = "ERR_310_EMBEDDING_FAILED"
	ErrCodeCompletionFailed    = "ERR_311_COMPLETION_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidArgument   = "ERR_400_INVALID_ARGUMENT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeEmptyIndex        = "ERR_404_EMPTY_INDEX"
	ErrCodeInvalidPath       = "ERR_406_INVALID_PATH"

	// State errors (500-599)
	ErrCodeProviderMismatch = "ERR_501_PROVIDER_MISMATCH"
	ErrCodeIndexLocked      = "ERR_502_INDEX_LOCKED"
	ErrCodeIndexNotBuilt    = "ERR_503_INDEX_NOT_BUILT"

	// Internal errors (600-699)
	ErrCodeInternal        = "ERR_601_INTERNAL"
	ErrCodeChunkingFailed  = "ERR_602_CHUNKING_FAILED"
	ErrCodeIndexBuildFault = "ERR_603_INDEX_BUILD_FAULT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "310" from "ERR_310_EMBEDDING_FAILED".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	case '5':
		return CategoryState
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable, ErrCodeProviderRateLimited:
		return true
	default:
		return false
	}
}
