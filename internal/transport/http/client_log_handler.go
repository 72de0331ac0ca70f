package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "emicli/internal/errors"
)

// ClientLogHandler ingests log entries from the dashboard frontend so
// browser-side failures land in the server log.
type ClientLogHandler struct {
	logger *slog.Logger
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(logger *slog.Logger) *ClientLogHandler {
	return &ClientLogHandler{
		logger: logger.With(slog.String("component", "client_log")),
	}
}

// ClientLogEntry is one frontend log line.
type ClientLogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Page    string                 `json:"page,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ClientLogBatch is the POST /api/client-logs payload. The frontend buffers
// entries and flushes them in batches.
type ClientLogBatch struct {
	Entries []ClientLogEntry `json:"entries"`
}

// Handle processes POST /api/client-logs
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var batch ClientLogBatch
	if err := render.DecodeJSON(r.Body, &batch); err != nil {
		apierrors.WriteError(w, apierrors.NewValidationError("Invalid client log payload"))
		return
	}

	for _, entry := range batch.Entries {
		attrs := []slog.Attr{
			slog.String("page", entry.Page),
		}
		if entry.Data != nil {
			attrs = append(attrs, slog.Any("data", entry.Data))
		}
		h.logger.LogAttrs(r.Context(), clientLogLevel(entry.Level), entry.Message, attrs...)
	}

	render.JSON(w, r, map[string]interface{}{
		"success":  true,
		"accepted": len(batch.Entries),
	})
}

// clientLogLevel maps the frontend level names onto slog levels. Unknown
// levels log at info.
func clientLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
