package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// RFC 7807 problem type URIs. Generic request problems first, then the
// ingestion-domain conditions.
const (
	TypeValidation  = "/errors/validation"
	TypeNotFound    = "/errors/not-found"
	TypeRateLimit   = "/errors/rate-limit"
	TypeInternal    = "/errors/internal"
	TypeServiceDown = "/errors/service-unavailable"
	TypeTimeout     = "/errors/timeout"
	TypeConflict    = "/errors/conflict"

	TypeNoSources      = "/errors/pipeline/no-sources-available"
	TypeEmptyMerge     = "/errors/pipeline/empty-merge-result"
	TypeSourceDown     = "/errors/pipeline/source-unavailable"
	TypeDataNotFound   = "/errors/data/not-found"
	TypeUnreadableData = "/errors/data/unreadable"
)

// ErrorHandler converts handler errors into RFC 7807 responses and logs
// them with request context. One instance is shared by every handler.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates the shared handler. includeStack attaches stack
// traces to responses and is meant for local development only.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and responds with its problem representation. A nil
// err is a no-op so handlers can call it unconditionally on their error
// paths.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("stack", currentStack())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem maps an error onto problem details. Precedence: context
// cancellation, explicit APIError, the pipeline sentinels, typed AppError,
// then a generic 500. Unknown errors never leak their message to clients.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	switch {
	case errors.Is(err, ErrNoSourcesAvailable):
		return NewProblemDetails(http.StatusBadGateway, TypeNoSources,
			"No Sources Available",
			"Every configured data source failed to fetch",
			r.URL.Path)
	case errors.Is(err, ErrEmptyMergeResult):
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeEmptyMerge,
			"Empty Merge Result",
			"Sources were fetched but no rows survived parsing",
			r.URL.Path)
	case errors.Is(err, ErrSourceUnavailable):
		return NewProblemDetails(http.StatusBadGateway, TypeSourceDown,
			"Source Unavailable", err.Error(), r.URL.Path)
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return h.appErrorToProblem(appErr, r)
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path)
}

// appErrorToProblem maps an ingestion-layer AppError by its failure class.
func (h *ErrorHandler) appErrorToProblem(appErr *AppError, r *http.Request) *ProblemDetails {
	problem := func(status int, problemType, title string) *ProblemDetails {
		return NewProblemDetails(status, problemType, title, appErr.Message, r.URL.Path).
			WithExtension("error_type", string(appErr.Type))
	}

	switch appErr.Type {
	case ErrTypeValidation:
		return problem(http.StatusBadRequest, TypeValidation, "Validation Failed")
	case ErrTypeNotFound:
		return problem(http.StatusNotFound, TypeNotFound, "Not Found")
	case ErrTypeNetwork:
		return problem(http.StatusBadGateway, TypeSourceDown, "Upstream Request Failed")
	case ErrTypeParsing:
		return problem(http.StatusUnprocessableEntity, TypeUnreadableData, "Unreadable Data")
	case ErrTypeStorage, ErrTypeConfig, ErrTypePipeline:
		// Server-side faults: keep the class, hide the internals.
		p := problem(http.StatusInternalServerError, TypeInternal, "Internal Server Error")
		p.Detail = "An unexpected error occurred while processing your request"
		return p
	default:
		return problem(http.StatusInternalServerError, TypeInternal, "Internal Server Error")
	}
}

// apiErrorToProblem maps an APIError through its machine-readable code.
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case CodeValidationFailed, CodeInvalidRequest:
		problemType = TypeValidation
	case CodeNotFound, CodeSeriesNotFound, CodeNoRunYet:
		problemType = TypeNotFound
	case CodeNoDataInRange, CodeFileNotFound:
		problemType = TypeDataNotFound
	case CodeRefreshInProgress:
		problemType = TypeConflict
	case CodeRateLimitExceeded:
		problemType = TypeRateLimit
	case CodeServiceUnavailable:
		problemType = TypeServiceDown
	case CodeUpstreamUnavailable:
		problemType = TypeNoSources
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

func currentStack() string {
	buf := make([]byte, 8*1024)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
