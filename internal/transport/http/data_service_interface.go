package http

import (
	"context"
	"net/http"

	"emicli/internal/services"
	api "emicli/pkg/contracts/api/v1"
	"emicli/pkg/contracts/domain"
)

// DataServiceInterface defines the read-side operations the data handler
// depends on. *services.DataService satisfies it; tests substitute fakes.
type DataServiceInterface interface {
	ListSeries(ctx context.Context) ([]domain.SeriesSummary, error)
	GetAggregates(ctx context.Context, req api.AggregatesRequest) (domain.AggregateTable, error)
	GetDiagnostics(ctx context.Context) (*domain.RunDiagnostics, error)
	RunHistory(ctx context.Context) []domain.RunDiagnostics
	ExportAggregatesCSV(ctx context.Context, w http.ResponseWriter, req api.ExportRequest) error
	ListReports(ctx context.Context) ([]services.ReportFile, error)
	DownloadFile(ctx context.Context, w http.ResponseWriter, r *http.Request, fileType, filename string) error
}
