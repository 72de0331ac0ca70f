package errors

import (
	"fmt"
)

// ErrorType classifies an AppError by the concern that produced it. The
// type appears in brackets at the front of the rendered message, so log
// lines stay grep-able by failure class.
type ErrorType string

const (
	// ErrTypeNetwork covers HTTP fetches and other transport failures.
	ErrTypeNetwork ErrorType = "NETWORK"
	// ErrTypeParsing covers CSV bodies, snapshot payloads and timestamps
	// the parsers cannot read.
	ErrTypeParsing ErrorType = "PARSING"
	// ErrTypeStorage covers cache artifacts, report files and any other
	// local IO.
	ErrTypeStorage ErrorType = "STORAGE"
	// ErrTypeValidation covers rejected inputs: malformed descriptors,
	// bad reducer names, out-of-range query windows.
	ErrTypeValidation ErrorType = "VALIDATION"
	// ErrTypeNotFound covers lookups for series, runs or files that do
	// not exist.
	ErrTypeNotFound ErrorType = "NOT_FOUND"
	// ErrTypePipeline covers the run-fatal ingestion conditions.
	ErrTypePipeline ErrorType = "PIPELINE"
	// ErrTypeConfig covers configuration and source-catalog problems.
	ErrTypeConfig ErrorType = "CONFIG"
)

// AppError is the error shape the ingestion layers return: a failure class,
// a human-readable message, the wrapped cause, and free-form context pairs
// for diagnostics. It satisfies errors.Is/As through Unwrap.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches one diagnostic key to the error and returns it, so
// call sites can chain: NewParsingError(...).WithContext("row", n).
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError builds an AppError of an arbitrary type. The typed
// constructors below are preferred at call sites.
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewNetworkError wraps a transport failure, e.g. a failed EMI request.
func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNetwork, message, cause)
}

// NewParsingError wraps a payload the row or snapshot parser rejected.
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError wraps a local IO failure: cache write, report export.
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError reports a rejected input. There is no cause: the
// input itself is the problem.
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError reports a missing resource by name.
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, resource+" not found", nil)
}

// NewPipelineError wraps one of the run-fatal conditions so the sentinel
// stays reachable through errors.Is.
func NewPipelineError(message string, cause error) *AppError {
	return NewAppError(ErrTypePipeline, message, cause)
}

// NewConfigError wraps a configuration or catalog problem.
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
