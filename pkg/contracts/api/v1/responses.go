package api

import (
	"time"

	"emicli/pkg/contracts/domain"
)

// SeriesListResponse is the envelope for GET /api/series.
type SeriesListResponse struct {
	Status string                 `json:"status"`
	Data   []domain.SeriesSummary `json:"data"`
	Count  int                    `json:"count"`
}

// AggregatesResponse is the envelope for GET /api/aggregates.
type AggregatesResponse struct {
	Status string                `json:"status"`
	Data   domain.AggregateTable `json:"data"`
	Count  int                   `json:"count"`
	From   string                `json:"from,omitempty"`
	To     string                `json:"to,omitempty"`
}

// DiagnosticsResponse is the envelope for GET /api/diagnostics.
type DiagnosticsResponse struct {
	Status string                 `json:"status"`
	Data   *domain.RunDiagnostics `json:"data"`
}

// RefreshAcceptedResponse acknowledges POST /api/refresh.
type RefreshAcceptedResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// VersionResponse reports build identity.
type VersionResponse struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version,omitempty"`
	GoVersion  string `json:"go_version,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}
