package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/config"
	"emicli/internal/fetch"
	"emicli/internal/pipeline"
	"emicli/internal/shared/testutil"
	"emicli/pkg/contracts/domain"
)

// writeHydroSource stages a hydro CSV with the standard EMI preamble.
func writeHydroSource(t *testing.T, paths *config.Paths) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Repeat("metadata line\n", config.EMICSVPreambleRows))
	b.WriteString("Date,Time,Active storage (Mm³)\n")
	b.WriteString("31/01/2020,00:00,\"1,234.5\"\n")
	b.WriteString("01/02/2020,00:00,1240.0\n")

	path := filepath.Join(paths.SourcesDir, "hydro.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func hydroCatalog(t *testing.T, paths *config.Paths) *config.Catalog {
	t.Helper()
	return &config.Catalog{
		Hydro: []config.SourceSpec{{
			SeriesID:        "lake_taupo",
			Dataset:         config.DatasetHydro,
			Location:        writeHydroSource(t, paths),
			SkipRows:        config.EMICSVPreambleRows,
			TimestampColumn: config.HydroDateColumn,
			TimeColumn:      config.HydroTimeColumn,
			ValueColumn:     config.HydroStorageColumn,
		}},
	}
}

func newTestRefreshService(t *testing.T, catalog *config.Catalog, paths *config.Paths) (*RefreshService, *pipeline.RunStore) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	cfg := fetch.DefaultConfig()
	cfg.RateLimitRPS = 1000
	cfg.RateLimitBurst = 100
	pipe := pipeline.New(pipeline.Dependencies{
		Fetcher: fetch.NewFetcher(cfg, logger),
		Logger:  logger,
	})
	store := pipeline.NewRunStore(0)
	service := NewRefreshService(RefreshOptions{
		Pipeline:   pipe,
		Store:      store,
		Catalog:    catalog,
		Paths:      paths,
		RunTimeout: 30 * time.Second,
		Logger:     logger,
	})
	return service, store
}

func waitForIdle(t *testing.T, s *RefreshService) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.IsRunning() },
		5*time.Second, 10*time.Millisecond)
}

func TestTriggerRefreshPublishesRun(t *testing.T) {
	paths := testPaths(t)
	service, store := newTestRefreshService(t, hydroCatalog(t, paths), paths)

	runID, err := service.TriggerRefresh(context.Background(), pipeline.TriggerManual, false)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	waitForIdle(t, service)

	result, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, runID, result.RunID)
	assert.Len(t, result.Unified, 2)
	assert.Equal(t, map[string]string{"lake_taupo": config.DatasetHydro}, result.SeriesDatasets)

	// The downloadable artifacts were rewritten from the run.
	jan31 := day(2020, time.January, 31)
	feb1 := day(2020, time.February, 1)
	published := []string{
		paths.GetAggregateCSVPath(config.HydroReportPrefix, jan31, feb1),
		paths.GetAggregateCSVPath(config.UnifiedReportPrefix, jan31, feb1),
		paths.SummaryCSV,
		paths.SummaryJSON,
		paths.WorkbookXLSX,
	}
	for _, path := range published {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Greater(t, info.Size(), int64(0), path)
	}
}

func TestTriggerRefreshRejectsConcurrentRuns(t *testing.T) {
	paths := testPaths(t)
	service, _ := newTestRefreshService(t, hydroCatalog(t, paths), paths)

	service.mu.Lock()
	service.running = true
	service.mu.Unlock()

	_, err := service.TriggerRefresh(context.Background(), pipeline.TriggerManual, false)
	assert.ErrorIs(t, err, ErrRefreshRunning)

	service.mu.Lock()
	service.running = false
	service.mu.Unlock()
}

func TestTriggerRefreshRecordsFailure(t *testing.T) {
	paths := testPaths(t)
	catalog := &config.Catalog{
		Hydro: []config.SourceSpec{{
			SeriesID:        "lake_taupo",
			Dataset:         config.DatasetHydro,
			Location:        filepath.Join(paths.SourcesDir, "missing.csv"),
			TimestampColumn: config.HydroDateColumn,
			ValueColumn:     config.HydroStorageColumn,
		}},
	}
	service, store := newTestRefreshService(t, catalog, paths)

	runID, err := service.TriggerRefresh(context.Background(), pipeline.TriggerManual, false)
	require.NoError(t, err)
	waitForIdle(t, service)

	_, ok := store.Latest()
	assert.False(t, ok)

	diagnostics, ok := store.LastDiagnostics()
	require.True(t, ok)
	assert.Equal(t, runID, diagnostics.RunID)
	require.Len(t, diagnostics.Sources, 1)
	assert.Equal(t, domain.SourceUnavailable, diagnostics.Sources[0].Status)
}

func TestStartSchedulerDisabled(t *testing.T) {
	paths := testPaths(t)
	service, _ := newTestRefreshService(t, &config.Catalog{}, paths)

	require.NoError(t, service.StartScheduler(config.SchedulerConfig{Enabled: false}))
	assert.Nil(t, service.cron)
	service.StopScheduler()
}

func TestStartSchedulerDefaultSpec(t *testing.T) {
	paths := testPaths(t)
	service, _ := newTestRefreshService(t, &config.Catalog{}, paths)

	require.NoError(t, service.StartScheduler(config.SchedulerConfig{
		Enabled:  true,
		Spec:     config.DefaultRefreshSpec,
		Timezone: config.DefaultTimezone,
	}))
	require.NotNil(t, service.cron)

	entries := service.cron.Entries()
	require.Len(t, entries, 1)

	// The default schedule fires at 06:10 local market time.
	location, err := time.LoadLocation(config.DefaultTimezone)
	require.NoError(t, err)
	next := entries[0].Next.In(location)
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 10, next.Minute())

	service.StopScheduler()
	assert.Nil(t, service.cron)
}

func TestStartSchedulerRejectsBadConfig(t *testing.T) {
	paths := testPaths(t)
	service, _ := newTestRefreshService(t, &config.Catalog{}, paths)

	err := service.StartScheduler(config.SchedulerConfig{
		Enabled:  true,
		Spec:     "not a cron spec",
		Timezone: "UTC",
	})
	require.Error(t, err)

	err = service.StartScheduler(config.SchedulerConfig{
		Enabled:  true,
		Spec:     "@daily",
		Timezone: "Mars/Olympus",
	})
	require.Error(t, err)
}
