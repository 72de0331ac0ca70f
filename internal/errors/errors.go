package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// Machine-readable error codes carried on APIError responses. The handler
// layer maps them onto RFC 7807 problem types; dashboard clients branch on
// them instead of parsing messages.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeSeriesNotFound      = "SERIES_NOT_FOUND"
	CodeNoRunYet            = "NO_RUN_YET"
	CodeNoDataInRange       = "NO_DATA_IN_RANGE"
	CodeFileNotFound        = "FILE_NOT_FOUND"
	CodeRefreshInProgress   = "REFRESH_IN_PROGRESS"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_SERVER_ERROR"
)

// APIError is the structured error the HTTP layer returns before problem
// conversion: a status, a stable code, a message and optional details.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer so handlers can respond with the error
// directly.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New builds an APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails builds an APIError carrying a details payload, e.g. the
// offending field or the underlying error text.
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	e := New(statusCode, errorCode, message)
	e.Details = details
	return e
}

// ValidationError names one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrValidation rejects one named field with a 400.
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed,
		"Request validation failed",
		ValidationError{Field: field, Message: message})
}

// NewValidationError rejects a request with a bare message when no single
// field is to blame.
func NewValidationError(message string) *APIError {
	return New(http.StatusBadRequest, CodeValidationFailed, message)
}

// InvalidRequestWithError rejects a request the decoder could not read.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest,
		"Invalid request format", err.Error())
}

// ErrorResponse is the JSON envelope WriteError emits.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// WriteError responds with the APIError outside the render pipeline, for
// handlers that have already started writing by hand.
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: err})
}
