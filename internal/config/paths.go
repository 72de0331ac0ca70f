package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Paths resolves every file location the application touches. Everything
// hangs off the executable directory so the layout survives being launched
// from any working directory:
//
//	<exe dir>/
//	  data/
//	    sources/    sources.yml plus locally staged CSVs
//	    downloads/  raw CSVs fetched from EMI
//	    cache/      hash-keyed aggregate artifacts
//	    snapshots/  futures board JSON snapshots
//	    reports/    exported CSV and XLSX reports
//	  logs/
//	  web/static/
type Paths struct {
	ExecutableDir string
	WebDir        string
	StaticDir     string
	DataDir       string
	SourcesDir    string
	DownloadsDir  string
	CacheDir      string
	SnapshotsDir  string
	ReportsDir    string
	LogsDir       string

	SourcesFile string
	EnvFile     string

	// Fixed-name outputs in the reports directory.
	SummaryJSON  string
	SummaryCSV   string
	WorkbookXLSX string
}

// GetPaths resolves the layout rooted at the running executable.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return newPaths(filepath.Dir(exe)), nil
}

func newPaths(root string) *Paths {
	dataDir := filepath.Join(root, "data")
	sourcesDir := filepath.Join(dataDir, "sources")
	reportsDir := filepath.Join(dataDir, "reports")

	return &Paths{
		ExecutableDir: root,
		DataDir:       dataDir,
		WebDir:        filepath.Join(root, "web"),
		StaticDir:     filepath.Join(root, "web", "static"),
		SourcesDir:    sourcesDir,
		DownloadsDir:  filepath.Join(dataDir, "downloads"),
		CacheDir:      filepath.Join(dataDir, "cache"),
		SnapshotsDir:  filepath.Join(dataDir, "snapshots"),
		ReportsDir:    reportsDir,
		LogsDir:       filepath.Join(root, "logs"),

		SourcesFile: filepath.Join(sourcesDir, "sources.yml"),
		EnvFile:     filepath.Join(root, ".env"),

		SummaryJSON:  filepath.Join(reportsDir, SummaryReportName+".json"),
		SummaryCSV:   filepath.Join(reportsDir, SummaryReportName+".csv"),
		WorkbookXLSX: filepath.Join(reportsDir, "emi_datasets.xlsx"),
	}
}

// EnsureDirectories creates the full directory tree. Safe to call on every
// startup.
func (p *Paths) EnsureDirectories() error {
	logger := slog.Default()

	for _, dir := range []string{
		p.DataDir,
		p.SourcesDir,
		p.DownloadsDir,
		p.CacheDir,
		p.SnapshotsDir,
		p.ReportsDir,
		p.LogsDir,
		p.WebDir,
		p.StaticDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// GetRelativePath joins subpath onto the executable directory.
func (p *Paths) GetRelativePath(subpath string) string {
	return filepath.Join(p.ExecutableDir, subpath)
}

// FileExists reports whether path names an existing file or directory.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func (p *Paths) GetWebFilePath(filename string) string {
	return filepath.Join(p.WebDir, filename)
}

func (p *Paths) GetStaticFilePath(filename string) string {
	return filepath.Join(p.StaticDir, filename)
}

// GetSourcePath names a locally staged source file.
func (p *Paths) GetSourcePath(filename string) string {
	return filepath.Join(p.SourcesDir, filename)
}

func (p *Paths) GetDownloadPath(filename string) string {
	return filepath.Join(p.DownloadsDir, filename)
}

func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

func (p *Paths) GetSnapshotPath(filename string) string {
	return filepath.Join(p.SnapshotsDir, filename)
}

func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetAggregateCSVPath names an aggregate export covering the given date
// window, e.g. ftr_prices_2024-01-01_to_2024-01-31.csv.
func (p *Paths) GetAggregateCSVPath(prefix string, from, to time.Time) string {
	filename := fmt.Sprintf("%s_%s_to_%s.csv",
		prefix, from.Format("2006-01-02"), to.Format("2006-01-02"))
	return filepath.Join(p.ReportsDir, filename)
}

// GetFuturesSnapshotPath names the snapshot for one futures board, e.g.
// futures_BEN_QTR.json.
func (p *Paths) GetFuturesSnapshotPath(hub, duration string) string {
	return filepath.Join(p.SnapshotsDir, fmt.Sprintf("futures_%s_%s.json", hub, duration))
}

// GetSourcesFilePath resolves the source catalog location. The catalog is
// always executable-relative; there is no working-directory fallback.
func GetSourcesFilePath() (string, error) {
	paths, err := GetPaths()
	if err != nil {
		return "", fmt.Errorf("failed to get paths: %w", err)
	}

	absPath, _ := filepath.Abs(paths.SourcesFile)
	slog.Default().Debug("Source catalog path resolved",
		slog.String("configured", paths.SourcesFile),
		slog.String("absolute", absPath),
		slog.Bool("file_exists", FileExists(paths.SourcesFile)))

	return paths.SourcesFile, nil
}

// LogPathResolution dumps the resolved layout at startup for debugging.
func (p *Paths) LogPathResolution() {
	slog.Default().Info("Path resolution summary",
		slog.Group("directories",
			slog.String("executable", p.ExecutableDir),
			slog.String("data", p.DataDir),
			slog.String("sources", p.SourcesDir),
			slog.String("downloads", p.DownloadsDir),
			slog.String("cache", p.CacheDir),
			slog.String("snapshots", p.SnapshotsDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
			slog.String("web", p.WebDir),
		),
		slog.Group("config_files",
			slog.String("sources", p.SourcesFile),
			slog.String("env", p.EnvFile),
		),
		slog.Group("report_files",
			slog.String("summary_json", p.SummaryJSON),
			slog.String("summary_csv", p.SummaryCSV),
			slog.String("workbook_xlsx", p.WorkbookXLSX),
		))
}

// ValidateRequiredFiles reports which critical files are missing. A missing
// sources.yml is not fatal because a built-in catalog is embedded, but
// callers may want to warn about it.
func (p *Paths) ValidateRequiredFiles() error {
	required := map[string]string{
		"Sources catalog": p.SourcesFile,
	}

	var missing []string
	for name, path := range required {
		if !FileExists(path) {
			missing = append(missing, fmt.Sprintf("%s (%s)", name, path))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required files missing: %s", strings.Join(missing, ", "))
	}

	return nil
}
