package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"emicli/internal/config"
	"emicli/internal/dataprocessing"
	"emicli/internal/exporter"
	"emicli/internal/infrastructure"
	"emicli/internal/pipeline"
	api "emicli/pkg/contracts/api/v1"
	"emicli/pkg/contracts/domain"
)

// DataService is the read side of the dashboard API. It answers every query
// from the in-memory RunStore, so handlers never touch the pipeline or the
// filesystem layout directly.
type DataService struct {
	store      *pipeline.RunStore
	paths      *config.Paths
	summarizer *dataprocessing.Summarizer
	logger     *slog.Logger
}

// NewDataService creates a data service reading from store.
func NewDataService(store *pipeline.RunStore, paths *config.Paths, logger *slog.Logger) *DataService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "data_service"))

	logger.Info("DataService initialized",
		slog.String("reports_dir", paths.ReportsDir),
		slog.String("snapshots_dir", paths.SnapshotsDir))

	return &DataService{
		store:      store,
		paths:      paths,
		summarizer: dataprocessing.NewSummarizer(logger, dataprocessing.SummarizerConfig{}),
		logger:     logger,
	}
}

// ListSeries returns per-series summary statistics over the latest run's
// unified table.
func (ds *DataService) ListSeries(ctx context.Context) ([]domain.SeriesSummary, error) {
	result, ok := ds.store.Latest()
	if !ok {
		return nil, ErrNoRunAvailable
	}

	summaries, err := ds.summarizer.Generate(ctx, result.Unified)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize series: %w", err)
	}
	return summaries, nil
}

// GetAggregates returns the latest run's aggregate rows filtered by the
// request's date range and series list.
func (ds *DataService) GetAggregates(ctx context.Context, req api.AggregatesRequest) (domain.AggregateTable, error) {
	result, ok := ds.store.Latest()
	if !ok {
		return nil, ErrNoRunAvailable
	}

	from, to := req.Bounds()
	filtered := result.Aggregates.FilterRange(from, to, req.SeriesList())

	ds.logger.DebugContext(ctx, "Aggregates filtered",
		slog.String("from", req.From),
		slog.String("to", req.To),
		slog.Int("series_filter", len(req.SeriesList())),
		slog.Int("rows", len(filtered)))

	return filtered, nil
}

// GetDiagnostics returns the diagnostics of the most recent run, successful
// or failed.
func (ds *DataService) GetDiagnostics(ctx context.Context) (*domain.RunDiagnostics, error) {
	diagnostics, ok := ds.store.LastDiagnostics()
	if !ok {
		return nil, ErrNoRunAvailable
	}
	return &diagnostics, nil
}

// RunHistory returns the stored run diagnostics, newest first.
func (ds *DataService) RunHistory(ctx context.Context) []domain.RunDiagnostics {
	return ds.store.History()
}

// ExportAggregatesCSV streams the filtered aggregate table as a CSV download
// with the covered date range embedded in the filename, e.g.
// ftr_prices_2024-01-01_to_2024-01-31.csv.
func (ds *DataService) ExportAggregatesCSV(ctx context.Context, w http.ResponseWriter, req api.ExportRequest) error {
	filtered, err := ds.GetAggregates(ctx, req.AggregatesRequest)
	if err != nil {
		return err
	}
	if len(filtered) == 0 {
		return ErrNoDataInRange
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = "aggregates"
	}

	// The filename range comes from the rows themselves, not the request, so
	// open-ended requests still produce a fully qualified name.
	from, to := filtered.DateRange()
	filename := fmt.Sprintf("%s_%s_to_%s.csv", prefix,
		from.Format("2006-01-02"), to.Format("2006-01-02"))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if err := exporter.WriteAggregateTo(w, filtered); err != nil {
		return fmt.Errorf("failed to stream aggregate export: %w", err)
	}

	ds.logger.InfoContext(ctx, "Aggregate CSV exported",
		slog.String("filename", filename),
		slog.Int("rows", len(filtered)))
	return nil
}

// ReportFile describes one generated artifact available for download.
type ReportFile struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Category string    `json:"category"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListReports returns the generated report files, newest first. A missing
// reports directory is an empty listing, not an error.
func (ds *DataService) ListReports(ctx context.Context) ([]ReportFile, error) {
	entries, err := os.ReadDir(ds.paths.ReportsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ReportFile{}, nil
		}
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	reports := make([]ReportFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".csv" && ext != ".json" && ext != ".xlsx" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, ReportFile{
			Name:     entry.Name(),
			Path:     entry.Name(),
			Category: reportCategory(entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Modified.After(reports[j].Modified)
	})

	ds.logger.DebugContext(ctx, "Reports listed",
		slog.Int("count", len(reports)))
	return reports, nil
}

// reportCategory buckets a report filename by the dataset or artifact kind
// it carries, for the dashboard's download filters.
func reportCategory(name string) string {
	switch {
	case strings.HasPrefix(name, config.HydroReportPrefix):
		return config.DatasetHydro
	case strings.HasPrefix(name, config.FTRReportPrefix):
		return config.DatasetFTR
	case strings.HasPrefix(name, config.FuturesReportPrefix):
		return config.DatasetFutures
	case strings.HasPrefix(name, config.UnifiedReportPrefix):
		return "unified"
	case strings.Contains(name, "summary"):
		return "summary"
	case strings.HasSuffix(name, ".xlsx"):
		return "workbook"
	default:
		return "uncategorized"
	}
}

// DownloadFile serves a generated file for download. fileType selects the
// directory ("reports" or "snapshots"); filename may contain subdirectories
// but is confined to the selected directory.
func (ds *DataService) DownloadFile(ctx context.Context, w http.ResponseWriter, r *http.Request, fileType, filename string) error {
	var dir string
	switch fileType {
	case "reports", "report", "csv":
		dir = ds.paths.ReportsDir
	case "snapshots", "snapshot":
		dir = ds.paths.SnapshotsDir
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFileType, fileType)
	}

	// Clean the path to prevent directory traversal attacks.
	cleanedFilename := filepath.FromSlash(filepath.Clean(filename))

	filePath := filepath.Join(dir, cleanedFilename)
	absFilePath, err := filepath.Abs(filePath)
	if err != nil {
		ds.logger.ErrorContext(ctx, "Failed to resolve file path",
			slog.String("file_path", filePath),
			slog.String("error", err.Error()))
		return ErrFileNotFound
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		ds.logger.ErrorContext(ctx, "Failed to resolve directory path",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return ErrFileNotFound
	}

	// The resolved path must stay inside the selected directory.
	absFilePath = filepath.Clean(absFilePath)
	absDir = filepath.Clean(absDir)
	if absFilePath != absDir && !strings.HasPrefix(absFilePath, absDir+string(filepath.Separator)) {
		ds.logger.WarnContext(ctx, "Attempted directory traversal",
			slog.String("requested_path", filename),
			slog.String("resolved_path", absFilePath),
			slog.String("base_dir", absDir))
		return ErrFileNotFound
	}

	info, err := os.Stat(absFilePath)
	if err != nil || info.IsDir() {
		ds.logger.WarnContext(ctx, "Download target not found",
			slog.String("requested_file", filename),
			slog.String("full_path", absFilePath))
		return ErrFileNotFound
	}

	baseFilename := filepath.Base(cleanedFilename)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", baseFilename))
	w.Header().Set("Content-Type", "application/octet-stream")

	http.ServeFile(w, r, absFilePath)

	ds.logger.InfoContext(ctx, "File served",
		slog.String("file_type", fileType),
		slog.String("filename", baseFilename),
		slog.Int64("size", info.Size()))
	return nil
}
