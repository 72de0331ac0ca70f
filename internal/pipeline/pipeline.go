package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"emicli/internal/config"
	"emicli/internal/dataprocessing"
	apperrors "emicli/internal/errors"
	"emicli/internal/fetch"
	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/domain"
)

// TracerName identifies this package's spans.
const TracerName = "emicli.pipeline"

// Run triggers, recorded on metrics and diagnostics.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerCLI       = "cli"
)

// RunOptions control a single pipeline run.
type RunOptions struct {
	// Descriptors are the sources to ingest, in catalog order.
	Descriptors []fetch.Descriptor

	// Trigger names what started the run. Defaults to manual.
	Trigger string

	// Force skips the merged-artifact cache and refetches every source.
	Force bool

	// RunID identifies the run. Callers that answer requests before the run
	// finishes assign it up front; empty means a fresh id is generated.
	RunID string
}

// Result is everything one run produced. On a failed run the tables are nil
// but RunID and Diagnostics are still populated, so callers can record what
// happened.
type Result struct {
	RunID      string
	Unified    domain.UnifiedTable
	Aggregates domain.AggregateTable

	// SeriesDatasets maps each series id in the unified table to the
	// dataset it was parsed from. Exporters use it to slice the aggregate
	// table into per-dataset reports.
	SeriesDatasets map[string]string

	Diagnostics domain.RunDiagnostics
}

// Dependencies carries the pipeline's collaborators. Fetcher is required;
// nil processing components are constructed with the logger, a nil Reporter
// falls back to NopReporter and a nil Cache disables the short-circuit.
type Dependencies struct {
	Fetcher    *fetch.Fetcher
	Cache      fetch.Cache
	Parser     *dataprocessing.Parser
	Futures    *dataprocessing.FuturesParser
	Aggregator *dataprocessing.Aggregator
	Metrics    *infrastructure.PipelineMetrics
	Reporter   ProgressReporter
	Logger     *slog.Logger
}

// Pipeline runs the ingestion flow: fetch every source, parse the payloads,
// merge the records and aggregate per (date, series). Per-source and
// per-row failures are absorbed into the run diagnostics; only losing every
// source, producing an empty merge, or cancellation fail a run.
type Pipeline struct {
	fetcher    *fetch.Fetcher
	cache      fetch.Cache
	parser     *dataprocessing.Parser
	futures    *dataprocessing.FuturesParser
	aggregator *dataprocessing.Aggregator
	metrics    *infrastructure.PipelineMetrics
	reporter   ProgressReporter
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates a pipeline from its dependencies.
func New(deps Dependencies) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if deps.Parser == nil {
		deps.Parser = dataprocessing.NewParser(logger)
	}
	if deps.Futures == nil {
		deps.Futures = dataprocessing.NewFuturesParser(logger)
	}
	if deps.Aggregator == nil {
		deps.Aggregator = dataprocessing.NewAggregator(dataprocessing.ReduceMean, logger)
	}
	if deps.Reporter == nil {
		deps.Reporter = NopReporter{}
	}

	return &Pipeline{
		fetcher:    deps.Fetcher,
		cache:      deps.Cache,
		parser:     deps.Parser,
		futures:    deps.Futures,
		aggregator: deps.Aggregator,
		metrics:    deps.Metrics,
		reporter:   deps.Reporter,
		logger:     logger.With(slog.String("component", "pipeline")),
		tracer:     otel.Tracer(TracerName),
	}
}

// Run executes one pipeline run over the given sources.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if len(opts.Descriptors) == 0 {
		return nil, fmt.Errorf("no sources configured: %w", apperrors.ErrNoSourcesAvailable)
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.trigger", opts.Trigger),
			attribute.Int("run.sources", len(opts.Descriptors)),
			attribute.Bool("run.force", opts.Force),
		))
	defer span.End()

	start := time.Now()
	infrastructure.RecordActiveRunChange(ctx, p.metrics, 1, opts.Trigger)
	defer infrastructure.RecordActiveRunChange(ctx, p.metrics, -1, opts.Trigger)

	p.reporter.RunStarted(runID, opts.Trigger, Stages())
	p.logger.InfoContext(ctx, "Pipeline run started",
		slog.String("run_id", runID),
		slog.String("trigger", opts.Trigger),
		slog.Int("sources", len(opts.Descriptors)),
		slog.Bool("force", opts.Force))

	result := &Result{
		RunID:       runID,
		Diagnostics: domain.RunDiagnostics{RunID: runID, StartedAt: start},
	}

	table, fromCache := p.tryCache(ctx, opts, result)
	if !fromCache {
		var err error
		table, err = p.ingest(ctx, runID, opts, result)
		if err != nil {
			return result, p.failRun(ctx, span, result, opts.Trigger, StageFetch, start, err)
		}
	}
	result.Unified = table
	result.Diagnostics.FromCache = fromCache

	finishAggregate := p.stageTimer(ctx, runID, StageAggregate)
	rows, err := p.aggregator.Aggregate(ctx, table)
	if err != nil {
		finishAggregate(false, "")
		return result, p.failRun(ctx, span, result, opts.Trigger, StageAggregate, start, err)
	}
	finishAggregate(true, fmt.Sprintf("%d aggregate rows", len(rows)))

	result.Aggregates = rows
	result.Diagnostics.AggregateRows = len(rows)
	result.Diagnostics.SeriesCount = len(table.SeriesIDs())
	result.Diagnostics.FinishedAt = time.Now()

	if p.metrics != nil {
		p.metrics.AggregateRows.Record(ctx, int64(len(rows)))
	}
	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"run.rows_kept":      result.Diagnostics.RowsKept,
		"run.aggregate_rows": len(rows),
		"run.series":         result.Diagnostics.SeriesCount,
		"run.from_cache":     fromCache,
	})
	infrastructure.RecordRunMetrics(ctx, p.metrics, runID, opts.Trigger, time.Since(start), true, nil)
	p.reporter.RunCompleted(runID, result.Diagnostics)
	p.logger.InfoContext(ctx, "Pipeline run completed",
		slog.String("run_id", runID),
		slog.Duration("duration", result.Diagnostics.Duration()),
		slog.Bool("from_cache", fromCache),
		slog.Int("rows_kept", result.Diagnostics.RowsKept),
		slog.Int("aggregate_rows", len(rows)),
		slog.Int("failed_sources", len(result.Diagnostics.FailedSources())))

	return result, nil
}

// tryCache attempts the merged-artifact short-circuit. On a hit it fills the
// result's outcomes and dataset mapping and returns the decoded table. A
// corrupt artifact is treated as a miss; the run refetches and overwrites
// it.
func (p *Pipeline) tryCache(ctx context.Context, opts RunOptions, result *Result) (domain.UnifiedTable, bool) {
	if p.cache == nil || opts.Force {
		return nil, false
	}

	key := fetch.CacheKey(opts.Descriptors)
	payload, ok := p.cache.Get(key)
	if !ok {
		infrastructure.RecordCacheLookup(ctx, p.metrics, false)
		return nil, false
	}

	table, err := dataprocessing.DecodeUnifiedTable(payload)
	if err != nil {
		p.logger.WarnContext(ctx, "Cache artifact is unreadable, refetching",
			slog.String("key", key),
			slog.String("error", err.Error()))
		infrastructure.RecordCacheLookup(ctx, p.metrics, false)
		return nil, false
	}

	infrastructure.RecordCacheLookup(ctx, p.metrics, true)
	infrastructure.AddSpanEvent(ctx, "cache.hit", map[string]interface{}{
		"key":  key,
		"rows": len(table),
	})
	p.logger.InfoContext(ctx, "Serving run from merged cache artifact",
		slog.String("key", key),
		slog.Int("rows", len(table)))

	for _, d := range opts.Descriptors {
		result.Diagnostics.Sources = append(result.Diagnostics.Sources, domain.SourceOutcome{
			SeriesID: d.SeriesID,
			Origin:   d.Origin,
			Status:   domain.SourceFromCache,
		})
	}
	result.Diagnostics.RowsKept = len(table)
	result.SeriesDatasets = p.loadDatasetMap(key, opts.Descriptors)

	return table, true
}

// ingest runs the fetch, parse and merge stages and stores the merged
// artifact on success.
func (p *Pipeline) ingest(ctx context.Context, runID string, opts RunOptions, result *Result) (domain.UnifiedTable, error) {
	finishFetch := p.stageTimer(ctx, runID, StageFetch)
	results, err := p.fetcher.FetchAll(ctx, opts.Descriptors)
	for _, r := range results {
		infrastructure.RecordSourceFetch(ctx, p.metrics, r.Descriptor.Dataset, r.Duration, int64(len(r.Payload)), r.Err)
		outcome := domain.SourceOutcome{
			SeriesID: r.Descriptor.SeriesID,
			Origin:   r.Descriptor.Origin,
			Status:   domain.SourceOK,
		}
		if !r.OK() {
			outcome.Status = domain.SourceUnavailable
			outcome.Reason = r.Err.Error()
		}
		result.Diagnostics.Sources = append(result.Diagnostics.Sources, outcome)
	}
	if err != nil {
		finishFetch(false, "")
		return nil, err
	}
	finishFetch(true, fmt.Sprintf("%d of %d sources fetched",
		result.Diagnostics.SucceededSources(), len(opts.Descriptors)))

	finishParse := p.stageTimer(ctx, runID, StageParse)
	result.SeriesDatasets = make(map[string]string)
	batches := make([][]domain.SeriesRecord, 0, len(results))
	for i := range results {
		r := &results[i]
		if !r.OK() {
			continue
		}

		records, stats, perr := p.parsePayload(ctx, r)
		outcome := &result.Diagnostics.Sources[i]
		if perr != nil {
			// A fetched payload the parser cannot read leaves the source
			// as unavailable as a failed download.
			outcome.Status = domain.SourceUnavailable
			outcome.Reason = "parse: " + perr.Error()
			p.logger.WarnContext(ctx, "Source failed to parse, skipping",
				slog.String("series", r.Descriptor.SeriesID),
				slog.String("origin", r.Descriptor.Origin),
				slog.String("error", perr.Error()))
			continue
		}

		outcome.RowsRead = stats.RowsRead
		outcome.RowsKept = stats.RowsKept
		outcome.TimestampDrops = stats.TimestampDrops
		outcome.ValueDrops = stats.ValueDrops
		result.Diagnostics.RowsRead += stats.RowsRead
		result.Diagnostics.RowsKept += stats.RowsKept
		result.Diagnostics.TimestampDrops += stats.TimestampDrops
		result.Diagnostics.ValueDrops += stats.ValueDrops
		infrastructure.RecordRowCounts(ctx, p.metrics, r.Descriptor.Dataset,
			int64(stats.RowsKept), int64(stats.TimestampDrops), int64(stats.ValueDrops))

		for _, record := range records {
			result.SeriesDatasets[record.SeriesID] = r.Descriptor.Dataset
		}
		batches = append(batches, records)
	}
	finishParse(true, fmt.Sprintf("%d rows kept", result.Diagnostics.RowsKept))

	finishMerge := p.stageTimer(ctx, runID, StageMerge)
	table := dataprocessing.Merge(batches...)
	finishMerge(true, fmt.Sprintf("%d records merged", len(table)))

	if len(table) > 0 {
		p.storeCache(ctx, opts, table, result.SeriesDatasets)
	}
	return table, nil
}

// parsePayload dispatches one fetched payload to the right parser.
func (p *Pipeline) parsePayload(ctx context.Context, r *fetch.Result) ([]domain.SeriesRecord, dataprocessing.ParseStats, error) {
	if r.Descriptor.Dataset == config.DatasetFutures {
		return p.futures.ParseSnapshot(ctx, r.Payload)
	}
	return p.parser.Parse(ctx, r.Payload, dataprocessing.ParseOptions{
		SkipRows:        r.Descriptor.SkipRows,
		TimestampColumn: r.Descriptor.TimestampColumn,
		TimeColumn:      r.Descriptor.TimeColumn,
		ValueColumn:     r.Descriptor.ValueColumn,
		SeriesColumn:    r.Descriptor.SeriesColumn,
		SeriesID:        r.Descriptor.SeriesID,
	})
}

// storeCache publishes the merged artifact and its dataset mapping. Cache
// writes are best effort; a failure is logged and the run proceeds.
func (p *Pipeline) storeCache(ctx context.Context, opts RunOptions, table domain.UnifiedTable, datasets map[string]string) {
	if p.cache == nil {
		return
	}

	key := fetch.CacheKey(opts.Descriptors)
	payload, err := dataprocessing.EncodeUnifiedTable(table)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to encode cache artifact",
			slog.String("error", err.Error()))
		return
	}
	if err := p.cache.Put(key, payload); err != nil {
		p.logger.WarnContext(ctx, "Failed to store cache artifact",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}

	meta, err := json.Marshal(datasets)
	if err == nil {
		if err := p.cache.Put(datasetMapKey(key), meta); err != nil {
			p.logger.WarnContext(ctx, "Failed to store dataset map",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

// loadDatasetMap restores the series-to-dataset mapping stored beside the
// artifact. When the sidecar is missing it falls back to the descriptors,
// which covers single-series sources; series discovered from file contents
// stay unmapped until the next fresh run.
func (p *Pipeline) loadDatasetMap(key string, descriptors []fetch.Descriptor) map[string]string {
	if payload, ok := p.cache.Get(datasetMapKey(key)); ok {
		datasets := make(map[string]string)
		if err := json.Unmarshal(payload, &datasets); err == nil {
			return datasets
		}
	}

	datasets := make(map[string]string, len(descriptors))
	for _, d := range descriptors {
		if d.SeriesColumn == "" && d.Dataset != config.DatasetFutures {
			datasets[d.SeriesID] = d.Dataset
		}
	}
	return datasets
}

func datasetMapKey(key string) string {
	return key + "-datasets"
}

// stageTimer starts a stage's reporting and returns its finish callback.
func (p *Pipeline) stageTimer(ctx context.Context, runID, stage string) func(success bool, detail string) {
	p.reporter.StageStarted(runID, stage)
	infrastructure.AddSpanEvent(ctx, "stage.started", map[string]interface{}{"stage": stage})
	start := time.Now()

	return func(success bool, detail string) {
		infrastructure.RecordStageMetrics(ctx, p.metrics, runID, stage, time.Since(start), success)
		if success {
			p.reporter.StageCompleted(runID, stage, detail)
		}
	}
}

// failRun finalises a failed run's telemetry and returns the error the
// caller should propagate.
func (p *Pipeline) failRun(ctx context.Context, span trace.Span, result *Result, trigger, stage string, start time.Time, err error) error {
	result.Diagnostics.FinishedAt = time.Now()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if ctx.Err() != nil {
		infrastructure.RecordRunCancellation(ctx, p.metrics, result.RunID, trigger, ctx.Err().Error())
	}
	infrastructure.RecordRunMetrics(ctx, p.metrics, result.RunID, trigger, time.Since(start), false, err)
	p.reporter.RunFailed(result.RunID, stage, err)
	p.logger.ErrorContext(ctx, "Pipeline run failed",
		slog.String("run_id", result.RunID),
		slog.String("stage", stage),
		slog.String("error", err.Error()))

	return err
}
