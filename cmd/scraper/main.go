package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/joho/godotenv"

	"emicli/internal/config"
	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/domain"
)

const (
	// chartReadyJS reports whether the page has rendered the embedded chart
	// config the extractor reads. The EMI dashboard writes its Highcharts
	// series inline, so the marker shows up as soon as the board is drawn.
	chartReadyJS = `document.documentElement.outerHTML.indexOf('Date.UTC') !== -1`

	chartPollInterval = 500 * time.Millisecond
)

var (
	// seriesNameRE finds the name of each series entry in the embedded chart
	// config. The page emits both quote styles depending on the renderer.
	seriesNameRE = regexp.MustCompile(`['"]?name['"]?\s*:\s*['"]([^'"]+)['"]`)

	// pointRE matches one raw chart point. Null prices stay in: the futures
	// parser counts them as value drops, so the snapshot must carry them.
	pointRE = regexp.MustCompile(`\[\s*Date\.UTC\(\s*\d+\s*,\s*\d+\s*,\s*\d+\s*\)\s*,\s*(?:-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?|null)\s*\]`)
)

func main() {
	// Declared before the recovery handler so a panic after logger setup
	// still reaches the log file.
	var logger *slog.Logger
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC RECOVERED: %v\n", r)
			fmt.Printf("Stack trace:\n%s\n", debug.Stack())
			if logger != nil {
				logger.Error("Scraper panicked",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
			os.Exit(1)
		}
	}()

	sourcesFile := flag.String("sources", "", "source catalog file (defaults to data/sources/sources.yml relative to executable)")
	outDir := flag.String("out", "", "directory for snapshot files (defaults to data/snapshots relative to executable)")
	boardsFilter := flag.String("boards", "", "comma-separated board keys to scrape, e.g. BEN_QTR,OTA_MON (defaults to every catalog board)")
	headless := flag.Bool("headless", true, "run browser headless")
	boardTimeout := flag.Duration("timeout", 0, "per-board deadline, e.g. 90s (defaults to the configured fetch timeout)")
	force := flag.Bool("force", false, "re-scrape boards whose snapshot was already captured today")
	flag.Parse()

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
	if *outDir == "" {
		*outDir = paths.SnapshotsDir
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		slog.Error("Failed to create output directory", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err = infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
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

	boards, err := selectBoards(catalog.Futures, *boardsFilter)
	if err != nil {
		logger.Error("Invalid boards filter", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(boards) == 0 {
		logger.Error("Source catalog defines no futures boards", slog.String("path", sourcesPath))
		fmt.Fprintln(os.Stderr, "Error: source catalog defines no futures boards")
		os.Exit(1)
	}

	logger.Info("EMI futures scraper starting",
		slog.Int("boards", len(boards)),
		slog.String("output_dir", *outDir),
		slog.Bool("headless", *headless),
		slog.String("executable_dir", paths.ExecutableDir))

	// Boards already captured today keep their snapshot unless forced, so a
	// rerun after a partial failure only revisits what it has to.
	now := time.Now().UTC()
	var pending []config.FuturesBoard
	for _, board := range boards {
		dest := snapshotPath(board, paths, *outDir)
		if !*force && snapshotIsFresh(dest, now) {
			fmt.Printf("Snapshot %s already captured today, skipping\n", board.Key())
			logger.Info("Snapshot fresh, skipping board",
				slog.String("board", board.Key()),
				slog.String("path", dest))
			continue
		}
		pending = append(pending, board)
	}
	if len(pending) == 0 {
		fmt.Println("All snapshots up to date")
		logger.Info("All snapshots up to date", slog.Int("boards", len(boards)))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", *headless))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeout := *boardTimeout
	if timeout <= 0 {
		timeout = cfg.Pipeline.FetchTimeout
	}

	captured := 0
	for _, board := range pending {
		if ctx.Err() != nil {
			break
		}

		fmt.Printf("Scraping board %s...\n", board.Key())
		snapshot, err := scrapeBoard(browserCtx, board, timeout, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: board %s failed: %v\n", board.Key(), err)
			logger.Error("Board scrape failed",
				slog.String("board", board.Key()),
				slog.String("error", err.Error()))
			continue
		}

		dest := snapshotPath(board, paths, *outDir)
		if err := writeSnapshot(dest, snapshot); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: board %s failed: %v\n", board.Key(), err)
			logger.Error("Snapshot write failed",
				slog.String("board", board.Key()),
				slog.String("path", dest),
				slog.String("error", err.Error()))
			continue
		}

		captured++
		fmt.Printf("Captured %s: %d contracts, %d points\n",
			board.Key(), len(snapshot.Contracts), countPoints(snapshot.Contracts))
		fmt.Printf("Wrote %s\n", dest)
		logger.Info("Snapshot captured",
			slog.String("board", board.Key()),
			slog.String("path", dest),
			slog.Int("contracts", len(snapshot.Contracts)),
			slog.Int("points", countPoints(snapshot.Contracts)))
	}

	if interrupted := ctx.Err(); interrupted != nil {
		logger.Warn("Scrape interrupted", slog.String("reason", interrupted.Error()))
	}
	if captured == 0 {
		logger.Error("No snapshots captured", slog.Int("boards", len(pending)))
		fmt.Fprintln(os.Stderr, "scraper failed: no snapshots captured")
		os.Exit(1)
	}

	fmt.Printf("Scraper finished: %d of %d boards captured\n", captured, len(pending))
	logger.Info("Scraper finished",
		slog.Int("captured", captured),
		slog.Int("boards", len(pending)))
}

// scrapeBoard drives one board page in the browser and captures the contract
// series its chart embeds.
func scrapeBoard(ctx context.Context, board config.FuturesBoard, timeout time.Duration, logger *slog.Logger) (*domain.FuturesSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pageURL := boardURL(board)
	logger.Info("Loading board page",
		slog.String("board", board.Key()),
		slog.String("url", pageURL))

	var ready bool
	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(chartReadyJS, &ready, chromedp.WithPollingInterval(chartPollInterval)),
		chromedp.Evaluate(`document.documentElement.outerHTML`, &html),
	)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", pageURL, err)
	}

	contracts := extractBoardSeries(html)
	if len(contracts) == 0 {
		return nil, fmt.Errorf("page %s embeds no contract series", pageURL)
	}

	return &domain.FuturesSnapshot{
		Location:   board.Hub,
		Duration:   board.Duration,
		CapturedAt: time.Now().UTC(),
		Contracts:  contracts,
	}, nil
}

// extractBoardSeries pulls every contract series out of a rendered board
// page. The chart config embeds one {name, data} entry per contract whose
// points are [Date.UTC(y,m,d), price] literals, kept verbatim here; name
// matches without such points (axis titles, tooltip code) are dropped.
func extractBoardSeries(html string) map[string][]string {
	matches := seriesNameRE.FindAllStringSubmatchIndex(html, -1)
	if len(matches) == 0 {
		return nil
	}

	contracts := make(map[string][]string)
	for i, match := range matches {
		name := html[match[2]:match[3]]
		end := len(html)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		points := pointRE.FindAllString(html[match[1]:end], -1)
		if len(points) == 0 {
			continue
		}
		contracts[name] = append(contracts[name], points...)
	}
	if len(contracts) == 0 {
		return nil
	}
	return contracts
}

// boardURL builds the dashboard URL for one board. The page keys the chart
// it renders off the location and duration query parameters.
func boardURL(board config.FuturesBoard) string {
	u, err := url.Parse(config.EMIFuturesReportURL)
	if err != nil {
		return config.EMIFuturesReportURL
	}
	q := u.Query()
	q.Set("location", board.Hub)
	q.Set("duration", board.Duration)
	u.RawQuery = q.Encode()
	return u.String()
}

// snapshotPath mirrors the descriptor resolution the pipeline applies, so
// the scraper writes exactly where a later run reads. A catalog snapshot
// override wins; otherwise boards land in outDir under the same well-known
// name the default descriptor expects.
func snapshotPath(board config.FuturesBoard, paths *config.Paths, outDir string) string {
	if board.Snapshot != "" {
		if filepath.IsAbs(board.Snapshot) {
			return board.Snapshot
		}
		return filepath.Join(paths.ExecutableDir, filepath.FromSlash(board.Snapshot))
	}
	return filepath.Join(outDir, fmt.Sprintf("futures_%s_%s.json", board.Hub, board.Duration))
}

// snapshotIsFresh reports whether path already holds a snapshot captured on
// the same UTC day as now. Unreadable or malformed files count as stale.
func snapshotIsFresh(path string, now time.Time) bool {
	payload, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var snapshot domain.FuturesSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return false
	}
	capturedY, capturedM, capturedD := snapshot.CapturedAt.UTC().Date()
	nowY, nowM, nowD := now.UTC().Date()
	return capturedY == nowY && capturedM == nowM && capturedD == nowD
}

// selectBoards filters the catalog boards by a comma-separated list of board
// keys. An empty filter keeps every board; a key the catalog does not define
// is an error rather than a silent no-op.
func selectBoards(boards []config.FuturesBoard, filter string) ([]config.FuturesBoard, error) {
	if strings.TrimSpace(filter) == "" {
		return boards, nil
	}

	wanted := make(map[string]bool)
	for _, key := range strings.Split(filter, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		wanted[strings.ToUpper(key)] = false
	}

	var selected []config.FuturesBoard
	for _, board := range boards {
		if _, ok := wanted[board.Key()]; ok {
			selected = append(selected, board)
			wanted[board.Key()] = true
		}
	}

	var missing []string
	for key, found := range wanted {
		if !found {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("boards not in the source catalog: %s", strings.Join(missing, ", "))
	}
	return selected, nil
}

// writeSnapshot publishes the snapshot temp-then-rename so a pipeline run
// never reads a half-written board.
func writeSnapshot(path string, snapshot *domain.FuturesSnapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func countPoints(contracts map[string][]string) int {
	total := 0
	for _, points := range contracts {
		total += len(points)
	}
	return total
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
