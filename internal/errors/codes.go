// Package errors provides structured error handling for Quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and parse errors (file, disk, extraction)
//   - 3XX: Storage errors (SQLite, schema, integrity)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryStorage indicates document store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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

	// IO and parse errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileRead     = "ERR_202_FILE_READ"
	ErrCodeParseFailed  = "ERR_203_PARSE_FAILED"
	ErrCodeParseTimeout = "ERR_204_PARSE_TIMEOUT"
	ErrCodeNoParser     = "ERR_205_NO_PARSER"

	// Storage errors (300-399)
	ErrCodeDuplicatePath  = "ERR_301_DUPLICATE_PATH"
	ErrCodeDocNotFound    = "ERR_302_DOCUMENT_NOT_FOUND"
	ErrCodeTransaction    = "ERR_303_TRANSACTION_FAILED"
	ErrCodeCorruptStore   = "ERR_304_CORRUPT_STORE"
	ErrCodeStoreClosed    = "ERR_305_STORE_CLOSED"
	ErrCodeLibraryExists  = "ERR_306_LIBRARY_EXISTS"
	ErrCodeLibraryUnknown = "ERR_307_LIBRARY_UNKNOWN"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidMode  = "ERR_403_INVALID_MODE"
	ErrCodeInvalidPage  = "ERR_404_INVALID_PAGE"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_503_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_DUPLICATE_PATH")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryStorage
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStore:
		return SeverityFatal
	case ErrCodeParseFailed, ErrCodeParseTimeout, ErrCodeNoParser, ErrCodeFileRead:
		// Per-file failures are absorbed into indexing statistics.
		return SeverityWarning
	}
	return SeverityError
}
