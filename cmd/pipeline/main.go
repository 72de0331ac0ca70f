package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"emicli/internal/config"
	"emicli/internal/dataprocessing"
	"emicli/internal/exporter"
	"emicli/internal/fetch"
	"emicli/internal/infrastructure"
	"emicli/internal/pipeline"
	"emicli/pkg/contracts"
	"emicli/pkg/contracts/domain"
)

func main() {
	sourcesFile := flag.String("sources", "", "source catalog file (defaults to data/sources/sources.yml relative to executable)")
	outDir := flag.String("out", "", "output directory for reports (defaults to data/reports relative to executable)")
	useCache := flag.Bool("cache", true, "reuse the merged artifact when every source is unchanged")
	force := flag.Bool("force", false, "ignore the cached artifact and refetch every source")
	reducerName := flag.String("reducer", "", "daily aggregate reducer: mean, min, max or last (defaults to configuration)")
	runTimeout := flag.Duration("timeout", 0, "overall run deadline, e.g. 10m (defaults to configuration)")
	discoverURL := flag.String("discover", "", "EMI listing page to scrape for storage CSV links instead of the catalog")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.VersionString())
		return
	}

	loadEnvFile()

	paths, err := config.GetPaths()
	if err != nil {
		slog.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	if *outDir != "" {
		retargetReports(paths, *outDir)
	}
	if err := os.MkdirAll(paths.ReportsDir, 0755); err != nil {
		logger.Error("Failed to create output directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sourcesPath := *sourcesFile
	if sourcesPath == "" {
		sourcesPath = paths.SourcesFile
	}
	catalog, err := config.LoadCatalog(sourcesPath)
	if err != nil {
		logger.Error("Failed to load source catalog",
			slog.String("path", sourcesPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	name := *reducerName
	if name == "" {
		name = cfg.Pipeline.AggregateReduce
	}
	reducer, err := dataprocessing.ParseReducer(name)
	if err != nil {
		logger.Error("Invalid reducer", slog.String("reducer", name), slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting EMI pipeline run",
		slog.String("sources_file", sourcesPath),
		slog.String("reports_dir", paths.ReportsDir),
		slog.Bool("cache", *useCache),
		slog.Bool("force", *force),
		slog.String("reducer", string(reducer)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout := *runTimeout
	if timeout == 0 {
		timeout = cfg.Pipeline.RunTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var descriptors []fetch.Descriptor
	if *discoverURL != "" {
		links, err := fetch.DiscoverCSVLinks(ctx, nil, *discoverURL)
		if err != nil {
			logger.Error("Discovery failed",
				slog.String("url", *discoverURL),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		if len(links) == 0 {
			logger.Error("Listing page has no CSV links", slog.String("url", *discoverURL))
			os.Exit(1)
		}
		fmt.Printf("Discovered %d storage files\n", len(links))
		for _, link := range links {
			descriptors = append(descriptors, fetch.HydroDescriptorFromURL(link))
		}
	} else {
		descriptors = fetch.FromCatalog(catalog, paths)
	}

	fetcher := fetch.NewFetcher(fetch.Config{
		Timeout:        cfg.Pipeline.FetchTimeout,
		RateLimitRPS:   cfg.Pipeline.RateLimitRPS,
		RateLimitBurst: cfg.Pipeline.RateLimitBurst,
		UserAgent:      cfg.Pipeline.UserAgent,
		MaxParallel:    cfg.Pipeline.MaxParallel,
	}, logger)

	var cache fetch.Cache
	if *useCache {
		cache = fetch.NewFileCache(paths.CacheDir, logger)
	}

	pipe := pipeline.New(pipeline.Dependencies{
		Fetcher:    fetcher,
		Cache:      cache,
		Aggregator: dataprocessing.NewAggregator(reducer, logger),
		Reporter:   consoleReporter{},
		Logger:     logger,
	})

	result, err := pipe.Run(ctx, pipeline.RunOptions{
		Descriptors: descriptors,
		Trigger:     pipeline.TriggerCLI,
		Force:       *force,
	})
	if err != nil {
		if result != nil {
			for _, src := range result.Diagnostics.FailedSources() {
				fmt.Fprintf(os.Stderr, "source %s unavailable: %s\n", src.SeriesID, src.Reason)
			}
		}
		logger.Error("Pipeline run failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "pipeline run failed: %v\n", err)
		os.Exit(1)
	}

	for _, src := range result.Diagnostics.FailedSources() {
		fmt.Printf("Warning: source %s unavailable: %s\n", src.SeriesID, src.Reason)
	}

	if err := writeReports(ctx, logger, paths, result); err != nil {
		logger.Error("Failed to write reports", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "failed to write reports: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("All reports written")
}

// writeReports rewrites every downloadable artifact from a completed run.
func writeReports(ctx context.Context, logger *slog.Logger, paths *config.Paths, result *pipeline.Result) error {
	aggregates := exporter.NewAggregateExporter(paths)

	datasetPaths, err := aggregates.ExportByDataset(result.Aggregates, result.SeriesDatasets)
	if err != nil {
		return fmt.Errorf("writing per-dataset reports: %w", err)
	}
	for _, dataset := range sortedKeys(datasetPaths) {
		fmt.Printf("Wrote %s\n", datasetPaths[dataset])
	}

	unifiedPath, err := aggregates.ExportUnified(result.Unified)
	if err != nil {
		return fmt.Errorf("writing unified report: %w", err)
	}
	fmt.Printf("Wrote %s\n", unifiedPath)

	summarizer := dataprocessing.NewSummarizer(logger, dataprocessing.SummarizerConfig{})
	summaries, err := summarizer.Generate(ctx, result.Unified)
	if err != nil {
		return fmt.Errorf("summarizing series: %w", err)
	}
	if err := summarizer.WriteCSV(ctx, paths.SummaryCSV, summaries); err != nil {
		return fmt.Errorf("writing summary CSV: %w", err)
	}
	fmt.Printf("Wrote %s\n", paths.SummaryCSV)
	if err := summarizer.WriteJSON(ctx, paths.SummaryJSON, summaries); err != nil {
		return fmt.Errorf("writing summary JSON: %w", err)
	}
	fmt.Printf("Wrote %s\n", paths.SummaryJSON)

	workbook := exporter.NewWorkbookExporter(paths)
	byDataset := exporter.SliceByDataset(result.Aggregates, result.SeriesDatasets)
	if err := workbook.ExportWorkbook(paths.WorkbookXLSX, summaries, byDataset); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	fmt.Printf("Wrote %s\n", paths.WorkbookXLSX)

	return nil
}

// retargetReports points every report artifact at dir, keeping the
// well-known file names.
func retargetReports(paths *config.Paths, dir string) {
	paths.ReportsDir = dir
	paths.SummaryJSON = filepath.Join(dir, filepath.Base(paths.SummaryJSON))
	paths.SummaryCSV = filepath.Join(dir, filepath.Base(paths.SummaryCSV))
	paths.WorkbookXLSX = filepath.Join(dir, filepath.Base(paths.WorkbookXLSX))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loadEnvFile populates the environment from the executable-relative .env,
// falling back to the working directory. Variables already set win.
func loadEnvFile() {
	if paths, err := config.GetPaths(); err == nil {
		if err := godotenv.Load(paths.EnvFile); err == nil {
			return
		}
	}
	_ = godotenv.Load()
}

// consoleReporter prints run progress as plain lines for terminal use and
// for scripts that tail the output.
type consoleReporter struct{}

func (consoleReporter) RunStarted(runID, trigger string, stages []string) {
	fmt.Printf("Run %s started (%s): %s\n", runID, trigger, strings.Join(stages, " -> "))
}

func (consoleReporter) StageStarted(runID, stage string) {
	fmt.Printf("  %s...\n", stage)
}

func (consoleReporter) StageCompleted(runID, stage, detail string) {
	if detail != "" {
		fmt.Printf("  %s done: %s\n", stage, detail)
		return
	}
	fmt.Printf("  %s done\n", stage)
}

func (consoleReporter) RunCompleted(runID string, diagnostics domain.RunDiagnostics) {
	fmt.Printf("Run %s completed in %s: %d rows read, %d kept, %d aggregate rows across %d series\n",
		runID, diagnostics.Duration().Round(time.Millisecond),
		diagnostics.RowsRead, diagnostics.RowsKept,
		diagnostics.AggregateRows, diagnostics.SeriesCount)
}

func (consoleReporter) RunFailed(runID, stage string, err error) {
	fmt.Printf("Run %s failed at %s: %v\n", runID, stage, err)
}
