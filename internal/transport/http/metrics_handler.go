package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"emicli/internal/infrastructure"
)

// MetricsHandler exposes the Prometheus scrape endpoint and a JSON snapshot
// of process statistics for the dashboard status page.
type MetricsHandler struct {
	prometheus http.Handler
	collector  *infrastructure.SystemMetricsCollector
	logger     *slog.Logger
}

// NewMetricsHandler creates a metrics handler. prometheus may be nil when
// telemetry is disabled; collector may be nil when background collection is
// not running.
func NewMetricsHandler(prometheus http.Handler, collector *infrastructure.SystemMetricsCollector, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		prometheus: prometheus,
		collector:  collector,
		logger:     logger.With(slog.String("component", "metrics_handler")),
	}
}

// Prometheus handles GET /metrics
func (h *MetricsHandler) Prometheus(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		http.Error(w, "metrics collection disabled", http.StatusServiceUnavailable)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}

// SystemStats handles GET /api/metrics, a JSON runtime snapshot
func (h *MetricsHandler) SystemStats(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		render.JSON(w, r, map[string]interface{}{
			"status": "disabled",
		})
		return
	}

	stats := h.collector.GetCurrentStats(r.Context())
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   stats.FormatStats(),
	})
}
