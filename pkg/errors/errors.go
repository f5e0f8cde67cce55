package errors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategorySource        ErrorCategory = "source"
	CategoryAuth          ErrorCategory = "auth"
	CategoryRow           ErrorCategory = "row"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Source errors
	CodeSourceUnavailable ErrorCode = "source_unavailable"
	CodeMalformedResponse ErrorCode = "malformed_response"

	// Auth errors
	CodeInvalidCredentials ErrorCode = "invalid_credentials"
	CodeTokenExpired       ErrorCode = "token_expired"

	// Row errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeMissingField  ErrorCode = "missing_field"

	// Timeout errors
	CodeDeadlineExceeded ErrorCode = "deadline_exceeded"

	// Persistence errors
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeTableNotFound    ErrorCode = "table_not_found"
	CodeWriteFailed      ErrorCode = "write_failed"

	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeEncodingError ErrorCode = "encoding_error"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryRow:
		return 3
	case CategoryConfiguration:
		return 4
	case CategorySource:
		return 5
	case CategoryAuth:
		return 6
	case CategoryPersistence:
		return 7
	case CategoryTimeout:
		return 8
	case CategoryInternal:
		return 9
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// Specific error constructors

// SourceError creates an error for an unreachable or misbehaving upstream provider.
// The provider's own message is kept so operators see what the upstream said.
func SourceError(code ErrorCode, source string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeSourceUnavailable:
		message = fmt.Sprintf("%s unavailable", source)
		suggestion = "the provider is down or unreachable; retry later"
	case CodeMalformedResponse:
		message = fmt.Sprintf("%s returned malformed data", source)
		suggestion = "check the provider API version and response format"
	default:
		message = fmt.Sprintf("%s error", source)
		suggestion = "check the provider status and try again"
	}
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}

	return build(CategorySource, code, message, err).
		WithSuggestion(suggestion).
		WithContext("source", source)
}

// AuthError creates an error for rejected or expired credentials.
func AuthError(code ErrorCode, source string, err error) *ReconcilerError {
	var message string
	switch code {
	case CodeTokenExpired:
		message = fmt.Sprintf("%s token expired", source)
	default:
		message = fmt.Sprintf("%s rejected credentials", source)
	}
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}

	return build(CategoryAuth, code, message, err).
		WithSuggestion("fix the credentials for this provider; the provider itself is reachable").
		WithContext("source", source)
}

// RowError creates a recoverable error for a single malformed record.
func RowError(code ErrorCode, recordID string, field string, value interface{}, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("record %s: invalid amount in field '%s': %v", recordID, field, value)
	case CodeMissingField:
		message = fmt.Sprintf("record %s: required field '%s' is missing or empty", recordID, field)
	default:
		message = fmt.Sprintf("record %s: invalid field '%s': %v", recordID, field, value)
	}

	return build(CategoryRow, code, message, err).
		WithContext("record_id", recordID).
		WithContext("field", field).
		WithContext("value", value)
}

// TimeoutError creates an error for an exceeded wall-clock budget.
func TimeoutError(operation string, err error) *ReconcilerError {
	return build(CategoryTimeout, CodeDeadlineExceeded,
		fmt.Sprintf("timed out during %s", operation), err).
		WithSuggestion("retry the run or raise --timeout").
		WithContext("operation", operation)
}

// PersistenceError creates an error for a rejected sink write.
func PersistenceError(code ErrorCode, table string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodePermissionDenied:
		message = fmt.Sprintf("permission denied writing table '%s'", table)
		suggestion = "share the spreadsheet with the service account as an editor"
	case CodeTableNotFound:
		message = fmt.Sprintf("table '%s' not found", table)
		suggestion = "check the spreadsheet id and tab names"
	default:
		message = fmt.Sprintf("failed to write table '%s'", table)
		suggestion = "check the sink credentials and try again"
	}
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}

	return build(CategoryPersistence, code, message, err).
		WithSuggestion(suggestion).
		WithContext("table", table)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "verify the file integrity and try using a backup copy"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "check the data format and ensure it matches the expected structure"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "verify the file has all required columns with correct headers"
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in file %s at line %d", file, line)
		suggestion = "ensure the file is saved in UTF-8 encoding"
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
		suggestion = "check the file format and data integrity"
	}

	return build(CategoryParse, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "set it with a flag, a RECONCILER_ environment variable or the config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *ReconcilerError {
	return build(CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation), err).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"errors"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*ReconcilerError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// Utility functions

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a ReconcilerError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	if rerr, ok := AsReconcilerError(err); ok {
		return rerr.Category == category
	}
	return false
}

// IsTimeout reports whether err is a timeout, either classified or a raw deadline.
func IsTimeout(err error) bool {
	if IsCategory(err, CategoryTimeout) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
