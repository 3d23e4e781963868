// Package errors provides structured error types for the xcat worker.
// All errors include a category, code, message, and retryable flag so the
// entry point can print one diagnostic line per fatal condition and choose
// the exit status.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies errors by worker component.
type ErrorCategory string

const (
	ErrCategoryContext  ErrorCategory = "CONTEXT"
	ErrCategoryDispatch ErrorCategory = "DISPATCH"
	ErrCategoryRecord   ErrorCategory = "RECORD"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryEngine   ErrorCategory = "ENGINE"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Context codes
	CodeContextLoadFailed = "CONTEXT_LOAD_FAILED"
	CodeInvalidConfig     = "INVALID_CONFIG"

	// Dispatch codes
	CodeUnknownOperation = "UNKNOWN_OPERATION"
	CodeInvalidCommand   = "INVALID_COMMAND"

	// Record codes
	CodeMalformedRecord = "MALFORMED_RECORD"
	CodeUnrepresentable = "UNREPRESENTABLE"

	// Storage codes
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeCheckpointExists = "CHECKPOINT_EXISTS"

	// Engine codes
	CodeEngineFailure = "ENGINE_FAILURE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Detail keys attached by the dispatch loop.
const (
	DetailLine      = "line"
	DetailOperation = "operation"
	DetailKey       = "key"
)

// XcatError is the structured error type used throughout the worker.
type XcatError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string. Details are rendered in key order
// so the diagnostic line is stable.
func (e *XcatError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Category, e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *XcatError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *XcatError) Is(target error) bool {
	var t *XcatError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new XcatError.
func New(category ErrorCategory, code, message string) *XcatError {
	return &XcatError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new XcatError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *XcatError {
	return &XcatError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details merged
// over the existing ones.
func (e *XcatError) WithDetails(details map[string]interface{}) *XcatError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var xe *XcatError
	if errors.As(err, &xe) {
		return xe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an XcatError.
func GetCategory(err error) ErrorCategory {
	var xe *XcatError
	if errors.As(err, &xe) {
		return xe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an XcatError.
func GetCode(err error) string {
	var xe *XcatError
	if errors.As(err, &xe) {
		return xe.Code
	}
	return ""
}

// Annotate attaches details to err. XcatErrors keep their category and code;
// anything else is wrapped as an engine failure, since the only foreign
// errors reaching the dispatch loop come from the inference engine.
func Annotate(err error, details map[string]interface{}) *XcatError {
	var xe *XcatError
	if errors.As(err, &xe) {
		return xe.WithDetails(details)
	}
	return NewEngineError("operation failed", err).WithDetails(details)
}

// isRetryable determines if an error code is retryable. Nothing inside the
// worker retries; the flag tells the surrounding orchestration which task
// failures are worth rescheduling.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeStoreUnavailable:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewContextError(message string, cause error) *XcatError {
	return Wrap(ErrCategoryContext, CodeContextLoadFailed, message, cause)
}

func NewConfigError(message string, cause error) *XcatError {
	return Wrap(ErrCategoryContext, CodeInvalidConfig, message, cause)
}

func NewUnknownOperation(name string) *XcatError {
	return New(ErrCategoryDispatch, CodeUnknownOperation, fmt.Sprintf("unknown operation %q", name))
}

func NewCommandError(message string, cause error) *XcatError {
	return Wrap(ErrCategoryDispatch, CodeInvalidCommand, message, cause)
}

func NewMalformedRecord(message string, cause error) *XcatError {
	return Wrap(ErrCategoryRecord, CodeMalformedRecord, message, cause)
}

func NewUnrepresentable(message string) *XcatError {
	return New(ErrCategoryRecord, CodeUnrepresentable, message)
}

func NewStoreUnavailable(message string, cause error) *XcatError {
	return Wrap(ErrCategoryStorage, CodeStoreUnavailable, message, cause)
}

func NewCheckpointExists(name string) *XcatError {
	return New(ErrCategoryStorage, CodeCheckpointExists, fmt.Sprintf("checkpoint %q already written", name))
}

func NewEngineError(message string, cause error) *XcatError {
	return Wrap(ErrCategoryEngine, CodeEngineFailure, message, cause)
}

func NewInternalError(message string, cause error) *XcatError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Sentinels for errors.Is matching by category and code.
var (
	ErrContextLoad      = New(ErrCategoryContext, CodeContextLoadFailed, "")
	ErrUnknownOperation = New(ErrCategoryDispatch, CodeUnknownOperation, "")
	ErrMalformedRecord  = New(ErrCategoryRecord, CodeMalformedRecord, "")
	ErrStoreUnavailable = New(ErrCategoryStorage, CodeStoreUnavailable, "")
	ErrCheckpointExists = New(ErrCategoryStorage, CodeCheckpointExists, "")
	ErrEngineFailure    = New(ErrCategoryEngine, CodeEngineFailure, "")
)
