package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Pipeline sentinel errors. Per-source and per-row failures are absorbed
// into diagnostics and never surface as errors; only these total-failure
// conditions terminate a run. Callers match them with errors.Is.
var (
	// ErrNoSourcesAvailable means every descriptor in the run failed to
	// fetch. Nothing downstream of the fetcher ran.
	ErrNoSourcesAvailable = errors.New("no sources available")

	// ErrEmptyMergeResult means at least one fetch succeeded but parsing
	// retained zero rows, so there is nothing to aggregate. Distinct from
	// ErrNoSourcesAvailable by contract.
	ErrEmptyMergeResult = errors.New("merge produced no rows")

	// ErrSourceUnavailable is the per-descriptor failure cause wrapped into
	// fetch outcomes: a missing file or a failed HTTP request.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapPipelineError maps pipeline errors to HTTP problem details
func MapPipelineError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/refresh#trace-%s", traceID)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return NewProblemDetails(
			apiErr.StatusCode,
			"/errors/"+apiErr.ErrorCode,
			http.StatusText(apiErr.StatusCode),
			apiErr.Message,
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", apiErr.ErrorCode)
	}

	switch {
	case errors.Is(err, ErrNoSourcesAvailable):
		return NewProblemDetails(
			http.StatusBadGateway,
			"/errors/no-sources-available",
			"No Sources Available",
			"Every configured data source failed to fetch. Check connectivity and the source catalog.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "NO_SOURCES_AVAILABLE")

	case errors.Is(err, ErrEmptyMergeResult):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/empty-merge-result",
			"Empty Merge Result",
			"Sources were fetched but no rows survived parsing. The upstream export format may have changed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "EMPTY_MERGE_RESULT")

	case errors.Is(err, ErrSourceUnavailable):
		return NewProblemDetails(
			http.StatusBadGateway,
			"/errors/source-unavailable",
			"Source Unavailable",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "SOURCE_UNAVAILABLE")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
