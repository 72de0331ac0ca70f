package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "emicli/internal/errors"
	"emicli/internal/pipeline"
	"emicli/internal/services"
	api "emicli/pkg/contracts/api/v1"
)

// DataHandler serves the dashboard data API with RFC 7807 error responses.
type DataHandler struct {
	service      DataServiceInterface
	refresh      RefreshServiceInterface
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a data handler over the read and refresh services.
func NewDataHandler(service DataServiceInterface, refresh RefreshServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DataHandler {
	return &DataHandler{
		service:      service,
		refresh:      refresh,
		validate:     validator.New(),
		logger:       logger.With(slog.String("component", "data_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the data routes, mounted under /api.
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/series", h.ListSeries)
	r.Get("/aggregates", h.GetAggregates)
	r.Get("/diagnostics", h.GetDiagnostics)
	r.Get("/diagnostics/history", h.GetRunHistory)
	r.Post("/refresh", h.TriggerRefresh)

	// Export routes: artifact listing, filtered CSV download, raw files
	r.Get("/exports", h.ListReports)
	r.Get("/exports/aggregates.csv", h.ExportAggregatesCSV)
	r.Route("/exports/{type}/{filename}", func(r chi.Router) {
		r.Use(h.DownloadCtx)
		r.Get("/", h.DownloadFile)
	})

	return r
}

// DownloadCtx rejects download requests before the handler touches the
// filesystem. Only report and snapshot artifacts are downloadable; cache
// and source files never leave the data directory.
func (h *DataHandler) DownloadCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch fileType := chi.URLParam(r, "type"); fileType {
		case "reports", "report", "csv", "snapshots", "snapshot":
		default:
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("type", fmt.Sprintf("Invalid file type: %s", fileType)))
			return
		}

		if chi.URLParam(r, "filename") == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("filename", "Filename is required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// errNoRun is the shared 404 for endpoints that need a completed run.
func errNoRun(detail string) error {
	return apierrors.New(http.StatusNotFound, "NO_RUN_YET", detail)
}

// ListSeries handles GET /api/series
func (h *DataHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	summaries, err := h.service.ListSeries(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list series",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		if errors.Is(err, services.ErrNoRunAvailable) {
			h.errorHandler.HandleError(w, r, errNoRun("No completed pipeline run is available yet"))
			return
		}

		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.SeriesListResponse{
		Status: "success",
		Data:   summaries,
		Count:  len(summaries),
	})
}

// GetAggregates handles GET /api/aggregates with date range and series filters
func (h *DataHandler) GetAggregates(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	req, err := h.decodeAggregatesRequest(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching aggregates",
		slog.String("request_id", reqID),
		slog.String("from", req.From),
		slog.String("to", req.To),
		slog.String("series", req.Series),
	)

	rows, err := h.service.GetAggregates(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get aggregates",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		if errors.Is(err, services.ErrNoRunAvailable) {
			h.errorHandler.HandleError(w, r, errNoRun("No completed pipeline run is available yet"))
			return
		}

		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.AggregatesResponse{
		Status: "success",
		Data:   rows,
		Count:  len(rows),
		From:   req.From,
		To:     req.To,
	})
}

// GetDiagnostics handles GET /api/diagnostics, the last run's outcome
func (h *DataHandler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	diagnostics, err := h.service.GetDiagnostics(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get diagnostics",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		if errors.Is(err, services.ErrNoRunAvailable) {
			h.errorHandler.HandleError(w, r, errNoRun("No pipeline run has been recorded yet"))
			return
		}

		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.DiagnosticsResponse{
		Status: "success",
		Data:   diagnostics,
	})
}

// GetRunHistory handles GET /api/diagnostics/history, newest first
func (h *DataHandler) GetRunHistory(w http.ResponseWriter, r *http.Request) {
	history := h.service.RunHistory(r.Context())

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   history,
		"count":  len(history),
	})
}

// TriggerRefresh handles POST /api/refresh. The run executes asynchronously;
// the 202 response carries the run id to follow on /api/diagnostics or the
// WebSocket stream.
func (h *DataHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	// The body is optional; an empty POST is a plain refresh.
	var req api.RefreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
	}

	runID, err := h.refresh.TriggerRefresh(r.Context(), pipeline.TriggerManual, req.Force)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to trigger refresh",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		if errors.Is(err, services.ErrRefreshRunning) {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusConflict,
				"REFRESH_IN_PROGRESS",
				"A refresh run is already in progress",
			))
			return
		}

		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "refresh accepted",
		slog.String("request_id", reqID),
		slog.String("run_id", runID),
		slog.Bool("force", req.Force),
	)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, api.RefreshAcceptedResponse{
		Status: "accepted",
		RunID:  runID,
	})
}

// ListReports handles GET /api/exports, the generated artifact listing
func (h *DataHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	reports, err := h.service.ListReports(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list reports",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   reports,
		"count":  len(reports),
	})
}

// ExportAggregatesCSV handles GET /api/exports/aggregates.csv. The service
// streams the download directly, so errors are rendered only while the
// response is still unwritten.
func (h *DataHandler) ExportAggregatesCSV(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	req, err := h.decodeExportRequest(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "exporting aggregates",
		slog.String("request_id", reqID),
		slog.String("from", req.From),
		slog.String("to", req.To),
		slog.String("prefix", req.Prefix),
	)

	if err := h.service.ExportAggregatesCSV(r.Context(), w, req); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to export aggregates",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)

		if !isResponseWritten(w) {
			switch {
			case errors.Is(err, services.ErrNoRunAvailable):
				h.errorHandler.HandleError(w, r, errNoRun("No completed pipeline run is available yet"))
			case errors.Is(err, services.ErrNoDataInRange):
				h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
					http.StatusNotFound,
					"NO_DATA_IN_RANGE",
					"No aggregate rows in the requested range",
					map[string]interface{}{
						"from":   req.From,
						"to":     req.To,
						"series": req.Series,
					},
				))
			default:
				h.errorHandler.HandleError(w, r, err)
			}
		}
	}
}

// DownloadFile handles GET /api/exports/{type}/{filename}
func (h *DataHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	fileType := chi.URLParam(r, "type")
	filename := chi.URLParam(r, "filename")

	h.logger.InfoContext(r.Context(), "downloading file",
		slog.String("request_id", reqID),
		slog.String("file_type", fileType),
		slog.String("filename", filename),
	)

	// The service streams the file straight into the response.
	if err := h.service.DownloadFile(r.Context(), w, r, fileType, filename); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to download file",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
			slog.String("file_type", fileType),
			slog.String("filename", filename),
		)

		if isResponseWritten(w) {
			return
		}

		details := map[string]interface{}{
			"type":     fileType,
			"filename": filename,
		}
		switch {
		case errors.Is(err, services.ErrFileNotFound):
			h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusNotFound,
				"FILE_NOT_FOUND",
				fmt.Sprintf("File '%s' not found", filename),
				details,
			))
		case errors.Is(err, services.ErrInvalidFileType):
			h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusBadRequest,
				"INVALID_FILE_TYPE",
				fmt.Sprintf("Invalid file type: %s", fileType),
				details,
			))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
	}
}

// decodeAggregatesRequest binds and validates the filter query parameters.
func (h *DataHandler) decodeAggregatesRequest(r *http.Request) (api.AggregatesRequest, error) {
	q := r.URL.Query()
	req := api.AggregatesRequest{
		DateRangeRequest: api.DateRangeRequest{
			From: q.Get("from"),
			To:   q.Get("to"),
		},
		Series: q.Get("series"),
	}

	if err := h.validate.Struct(req); err != nil {
		return req, h.validationError(err)
	}

	from, to := req.Bounds()
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return req, apierrors.ErrValidation("from", "from must not be after to")
	}

	return req, nil
}

// decodeExportRequest extends the aggregates filter with the download prefix.
func (h *DataHandler) decodeExportRequest(r *http.Request) (api.ExportRequest, error) {
	agg, err := h.decodeAggregatesRequest(r)
	if err != nil {
		return api.ExportRequest{}, err
	}

	req := api.ExportRequest{
		AggregatesRequest: agg,
		Prefix:            r.URL.Query().Get("prefix"),
	}
	if err := h.validate.Struct(req); err != nil {
		return req, h.validationError(err)
	}

	return req, nil
}

// validationError converts validator errors into a 400 API error keyed by
// the first failing field.
func (h *DataHandler) validationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return apierrors.ErrValidation(strings.ToLower(fe.Field()), validationMessage(fe))
	}
	return apierrors.InvalidRequestWithError(err)
}

// validationMessage formats a field error for the response body.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD form", strings.ToLower(fe.Field()))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", strings.ToLower(fe.Field()), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag())
	}
}

// isResponseWritten reports whether a streaming handler already emitted a
// status line, in which case a problem document can no longer be rendered.
func isResponseWritten(w http.ResponseWriter) bool {
	ww, ok := w.(interface{ Status() int })
	return ok && ww.Status() != 0
}
