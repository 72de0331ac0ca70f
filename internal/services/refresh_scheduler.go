package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"emicli/internal/config"
	"emicli/internal/dataprocessing"
	apperrors "emicli/internal/errors"
	"emicli/internal/exporter"
	"emicli/internal/fetch"
	"emicli/internal/infrastructure"
	"emicli/internal/pipeline"
)

// RefreshService runs the ingestion pipeline on demand and on a cron
// schedule. Successful runs are published to the RunStore and the report
// files are rewritten so downloads stay current with what the API serves.
type RefreshService struct {
	pipe       *pipeline.Pipeline
	store      *pipeline.RunStore
	catalog    *config.Catalog
	paths      *config.Paths
	summarizer *dataprocessing.Summarizer
	aggregates *exporter.AggregateExporter
	workbook   *exporter.WorkbookExporter
	runTimeout time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	running bool

	cron *cron.Cron
}

// RefreshOptions wires the refresh service's dependencies.
type RefreshOptions struct {
	Pipeline *pipeline.Pipeline
	Store    *pipeline.RunStore
	Catalog  *config.Catalog
	Paths    *config.Paths

	// RunTimeout bounds one pipeline run; zero means no deadline.
	RunTimeout time.Duration

	Logger *slog.Logger
}

// NewRefreshService creates a refresh service.
func NewRefreshService(opts RefreshOptions) *RefreshService {
	logger := opts.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "refresh_service"))

	return &RefreshService{
		pipe:       opts.Pipeline,
		store:      opts.Store,
		catalog:    opts.Catalog,
		paths:      opts.Paths,
		summarizer: dataprocessing.NewSummarizer(logger, dataprocessing.SummarizerConfig{}),
		aggregates: exporter.NewAggregateExporter(opts.Paths),
		workbook:   exporter.NewWorkbookExporter(opts.Paths),
		runTimeout: opts.RunTimeout,
		logger:     logger,
	}
}

// TriggerRefresh starts a pipeline run in the background and returns its run
// id immediately. Only one run may be in flight; a second trigger while one
// is running returns ErrRefreshRunning.
func (s *RefreshService) TriggerRefresh(ctx context.Context, trigger string, force bool) (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrRefreshRunning
	}
	s.running = true
	s.mu.Unlock()

	runID := uuid.NewString()
	s.logger.InfoContext(ctx, "Refresh triggered",
		slog.String("run_id", runID),
		slog.String("trigger", trigger),
		slog.Bool("force", force))

	go s.execute(runID, trigger, force)
	return runID, nil
}

// IsRunning reports whether a refresh is in flight.
func (s *RefreshService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// execute performs one run end to end. It owns the running flag and always
// releases it.
func (s *RefreshService) execute(runID, trigger string, force bool) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	// The run outlives the request that triggered it.
	ctx := context.Background()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.pipe.Run(ctx, pipeline.RunOptions{
		RunID:       runID,
		Descriptors: fetch.FromCatalog(s.catalog, s.paths),
		Trigger:     trigger,
		Force:       force,
	})
	if err != nil {
		if result != nil {
			s.store.RecordFailure(result.Diagnostics)
		}
		s.logger.Error("Refresh run failed",
			slog.String("run_id", runID),
			slog.String("trigger", trigger),
			slog.String("error", err.Error()))
		return
	}

	s.store.SetLatest(result)
	s.publishReports(ctx, result)

	s.logger.Info("Refresh run completed",
		slog.String("run_id", runID),
		slog.String("trigger", trigger),
		slog.Int("rows_kept", result.Diagnostics.RowsKept),
		slog.Int("aggregate_rows", result.Diagnostics.AggregateRows),
		slog.Bool("from_cache", result.Diagnostics.FromCache))
}

// publishReports rewrites the downloadable artifacts from a successful run.
// Failures here never fail the run; the tables are already served from
// memory.
func (s *RefreshService) publishReports(ctx context.Context, result *pipeline.Result) {
	if _, err := s.aggregates.ExportByDataset(result.Aggregates, result.SeriesDatasets); err != nil {
		s.logger.Warn("Failed to write per-dataset reports",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()))
	}
	if _, err := s.aggregates.ExportUnified(result.Unified); err != nil {
		s.logger.Warn("Failed to write unified report",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()))
	}

	summaries, err := s.summarizer.Generate(ctx, result.Unified)
	if err != nil {
		s.logger.Warn("Failed to summarize series for reports",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()))
		return
	}
	if err := s.summarizer.WriteCSV(ctx, s.paths.SummaryCSV, summaries); err != nil {
		s.logger.Warn("Failed to write summary CSV",
			slog.String("error", err.Error()))
	}
	if err := s.summarizer.WriteJSON(ctx, s.paths.SummaryJSON, summaries); err != nil {
		s.logger.Warn("Failed to write summary JSON",
			slog.String("error", err.Error()))
	}

	byDataset := exporter.SliceByDataset(result.Aggregates, result.SeriesDatasets)
	if err := s.workbook.ExportWorkbook(s.paths.WorkbookXLSX, summaries, byDataset); err != nil {
		s.logger.Warn("Failed to write workbook",
			slog.String("error", err.Error()))
	}
}

// StartScheduler begins the cron refresh if the configuration enables it.
func (s *RefreshService) StartScheduler(cfg config.SchedulerConfig) error {
	if !cfg.Enabled {
		s.logger.Info("Scheduled refresh disabled")
		return nil
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return apperrors.NewConfigError("invalid scheduler timezone "+cfg.Timezone, err)
	}
	spec := cfg.Spec
	if spec == "" {
		spec = config.DefaultRefreshSpec
	}

	c := cron.New(cron.WithLocation(location))
	if _, err := c.AddFunc(spec, s.scheduledRun); err != nil {
		return apperrors.NewConfigError("invalid refresh spec "+spec, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("Scheduled refresh enabled",
		slog.String("spec", spec),
		slog.String("timezone", cfg.Timezone))
	return nil
}

// scheduledRun fires from cron. A refresh already in flight just skips this
// tick; the next one will catch up.
func (s *RefreshService) scheduledRun() {
	if _, err := s.TriggerRefresh(context.Background(), pipeline.TriggerScheduled, false); err != nil {
		s.logger.Warn("Scheduled refresh skipped",
			slog.String("reason", err.Error()))
	}
}

// StopScheduler halts the cron schedule. Safe to call when the scheduler
// never started.
func (s *RefreshService) StopScheduler() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("Scheduled refresh stopped")
}
