package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)
	require.NotNil(t, paths)

	t.Run("everything is absolute", func(t *testing.T) {
		for name, p := range map[string]string{
			"ExecutableDir": paths.ExecutableDir,
			"DataDir":       paths.DataDir,
			"WebDir":        paths.WebDir,
			"LogsDir":       paths.LogsDir,
			"SourcesFile":   paths.SourcesFile,
		} {
			assert.True(t, filepath.IsAbs(p), "%s must be absolute, got %q", name, p)
		}
	})

	t.Run("layout hangs off the executable directory", func(t *testing.T) {
		root := paths.ExecutableDir
		assert.Equal(t, filepath.Join(root, "data"), paths.DataDir)
		assert.Equal(t, filepath.Join(root, "web"), paths.WebDir)
		assert.Equal(t, filepath.Join(root, "logs"), paths.LogsDir)
		assert.Equal(t, filepath.Join(root, ".env"), paths.EnvFile)

		assert.Equal(t, filepath.Join(paths.DataDir, "sources"), paths.SourcesDir)
		assert.Equal(t, filepath.Join(paths.DataDir, "downloads"), paths.DownloadsDir)
		assert.Equal(t, filepath.Join(paths.DataDir, "cache"), paths.CacheDir)
		assert.Equal(t, filepath.Join(paths.DataDir, "snapshots"), paths.SnapshotsDir)
		assert.Equal(t, filepath.Join(paths.DataDir, "reports"), paths.ReportsDir)
		assert.Equal(t, filepath.Join(paths.WebDir, "static"), paths.StaticDir)
	})

	t.Run("stable across calls", func(t *testing.T) {
		again, err := GetPaths()
		require.NoError(t, err)
		assert.Equal(t, paths.ExecutableDir, again.ExecutableDir)
		assert.Equal(t, paths.SourcesFile, again.SourcesFile)
	})

	t.Run("well-known files", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(paths.SourcesFile, paths.SourcesDir))
		assert.Equal(t, "sources.yml", filepath.Base(paths.SourcesFile))

		for _, report := range []string{paths.SummaryJSON, paths.SummaryCSV, paths.WorkbookXLSX} {
			assert.True(t, strings.HasPrefix(report, paths.ReportsDir))
		}
		assert.Equal(t, SummaryReportName+".json", filepath.Base(paths.SummaryJSON))
		assert.Equal(t, SummaryReportName+".csv", filepath.Base(paths.SummaryCSV))
		assert.Equal(t, "emi_datasets.xlsx", filepath.Base(paths.WorkbookXLSX))
	})
}

// testPaths builds a Paths struct rooted at dir instead of the executable.
func testPaths(dir string) *Paths {
	return newPaths(dir)
}

func TestEnsureDirectories(t *testing.T) {
	paths := testPaths(t.TempDir())

	require.NoError(t, paths.EnsureDirectories())

	for _, dir := range []string{
		paths.DataDir, paths.SourcesDir, paths.DownloadsDir,
		paths.CacheDir, paths.SnapshotsDir, paths.ReportsDir,
		paths.LogsDir, paths.WebDir, paths.StaticDir,
	} {
		assert.DirExists(t, dir)
	}

	// A second call over the existing tree must be a no-op.
	require.NoError(t, paths.EnsureDirectories())
}

func TestEnsureDirectoriesPermissionError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Permission testing is complex on Windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("Directory permissions do not bind when running as root")
	}

	readOnly := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readOnly, 0o555))

	paths := &Paths{DataDir: filepath.Join(readOnly, "data")}
	err := paths.EnsureDirectories()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create directory")
}

func TestPathHelperMethods(t *testing.T) {
	paths := testPaths("/app")

	cases := map[string]struct {
		got  string
		want string
	}{
		"relative":  {paths.GetRelativePath("config.yaml"), "/app/config.yaml"},
		"web":       {paths.GetWebFilePath("index.html"), "/app/web/index.html"},
		"static":    {paths.GetStaticFilePath("css/main.css"), "/app/web/static/css/main.css"},
		"sources":   {paths.GetSourcePath("ftr/BEN2201.csv"), "/app/data/sources/ftr/BEN2201.csv"},
		"downloads": {paths.GetDownloadPath("lake_taupo.csv"), "/app/data/downloads/lake_taupo.csv"},
		"cache":     {paths.GetCachePath("a1b2c3.csv"), "/app/data/cache/a1b2c3.csv"},
		"snapshots": {paths.GetSnapshotPath("futures_BEN_QTR.json"), "/app/data/snapshots/futures_BEN_QTR.json"},
		"reports":   {paths.GetReportPath("series_summary.csv"), "/app/data/reports/series_summary.csv"},
		"logs":      {paths.GetLogPath("emicli.log"), "/app/logs/emicli.log"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, filepath.ToSlash(tc.got))
		})
	}
}

func TestGetAggregateCSVPath(t *testing.T) {
	paths := testPaths("/app")

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	path := paths.GetAggregateCSVPath("ftr_prices", from, to)
	assert.Equal(t, "ftr_prices_2024-01-01_to_2024-01-31.csv", filepath.Base(path))
	assert.Contains(t, path, "reports")
}

func TestGetFuturesSnapshotPath(t *testing.T) {
	paths := testPaths("/app")

	for _, board := range []struct {
		hub, duration string
	}{
		{"BEN", "QTR"}, {"BEN", "MON"}, {"OTA", "QTR"}, {"OTA", "MON"},
	} {
		path := paths.GetFuturesSnapshotPath(board.hub, board.duration)
		assert.Equal(t, "futures_"+board.hub+"_"+board.duration+".json", filepath.Base(path))
		assert.Contains(t, path, "snapshots")
	}
}

func TestGetSourcesFilePath(t *testing.T) {
	path, err := GetSourcesFilePath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "sources.yml", filepath.Base(path))

	again, err := GetSourcesFilePath()
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "probe.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, FileExists(file))
	assert.True(t, FileExists(dir), "directories count as existing")
	assert.False(t, FileExists(filepath.Join(dir, "absent.txt")))
}

func TestValidateRequiredFiles(t *testing.T) {
	paths := &Paths{SourcesFile: filepath.Join(t.TempDir(), "sources.yml")}

	err := paths.ValidateRequiredFiles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sources catalog")

	require.NoError(t, os.WriteFile(paths.SourcesFile, []byte("hydro: []\n"), 0o644))
	assert.NoError(t, paths.ValidateRequiredFiles())
}

func BenchmarkPathHelpers(b *testing.B) {
	paths := testPaths("/app")

	b.Run("GetCachePath", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = paths.GetCachePath("artifact.csv")
		}
	})

	b.Run("GetAggregateCSVPath", func(b *testing.B) {
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
		for i := 0; i < b.N; i++ {
			_ = paths.GetAggregateCSVPath("ftr_prices", from, to)
		}
	})
}
