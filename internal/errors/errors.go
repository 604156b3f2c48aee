// Package errors provides a lightweight structured error type (ExecutorError)
// for category-based classification of build task failures and CLI exit codes.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of an executor error for classification
type ErrorCategory string

const (
	// Process setup errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryDescriptor ErrorCategory = "descriptor"

	// Build pipeline errors
	CategoryContext ErrorCategory = "context"
	CategoryStream  ErrorCategory = "stream"
	CategoryParse   ErrorCategory = "parse"
	CategoryTag     ErrorCategory = "tag"

	// External system errors
	CategoryDaemon       ErrorCategory = "daemon"
	CategoryOrchestrator ErrorCategory = "orchestrator"
	CategoryJournal      ErrorCategory = "journal"

	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// ExecutorError is a structured error with category, retryability, and context
type ExecutorError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for ExecutorError
type ContextFields map[string]any

// Error implements the error interface
func (e *ExecutorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ExecutorError) WithContext(key string, value any) *ExecutorError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new ExecutorError
func New(category ErrorCategory, severity ErrorSeverity, message string) *ExecutorError {
	return &ExecutorError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new ExecutorError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *ExecutorError {
	return &ExecutorError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable ExecutorError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *ExecutorError {
	return &ExecutorError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As returns the outermost ExecutorError in err's chain.
func As(err error) (*ExecutorError, bool) {
	var ee *ExecutorError
	if stdErrors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if ee, ok := As(err); ok {
		return ee.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if ee, ok := As(err); ok {
		return ee.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not an ExecutorError
func GetCategory(err error) ErrorCategory {
	if ee, ok := As(err); ok {
		return ee.Category
	}
	return CategoryInternal
}
