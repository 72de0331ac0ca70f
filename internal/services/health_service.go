package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"emicli/internal/config"
	"emicli/internal/infrastructure"
	"emicli/internal/pipeline"
	"emicli/pkg/contracts"
	api "emicli/pkg/contracts/api/v1"
)

// ClientCounter reports the number of connected WebSocket clients. The hub
// implements it; health checks only need the count.
type ClientCounter interface {
	ClientCount() int
}

// HealthService answers the health, readiness and liveness probes.
type HealthService struct {
	paths     *config.Paths
	store     *pipeline.RunStore
	refresh   *RefreshService
	hub       ClientCounter
	logger    *slog.Logger
	startedAt time.Time
}

// NewHealthService creates a health service. refresh and hub may be nil in
// deployments without the scheduler or the WebSocket stream.
func NewHealthService(paths *config.Paths, store *pipeline.RunStore, refresh *RefreshService, hub ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &HealthService{
		paths:     paths,
		store:     store,
		refresh:   refresh,
		hub:       hub,
		logger:    logger.With(slog.String("component", "health_service")),
		startedAt: time.Now(),
	}
}

// HealthCheck reports overall component health. Partial source failures in
// the last run degrade the status; an unwritable data directory or a run
// that produced nothing marks it unhealthy.
func (hs *HealthService) HealthCheck(ctx context.Context) api.HealthResponse {
	checks := make(map[string]string)
	status := "healthy"

	if err := hs.checkDataDirs(); err != nil {
		checks["data_dirs"] = err.Error()
		status = "unhealthy"
	} else {
		checks["data_dirs"] = "ok"
	}

	if diagnostics, ok := hs.store.LastDiagnostics(); ok {
		failed := len(diagnostics.FailedSources())
		switch {
		case failed == 0:
			checks["last_run"] = "ok"
		case diagnostics.RowsKept > 0:
			checks["last_run"] = fmt.Sprintf("%d of %d sources unavailable",
				failed, len(diagnostics.Sources))
			status = degrade(status, "degraded")
		default:
			checks["last_run"] = "last run produced no rows"
			status = degrade(status, "unhealthy")
		}
	} else {
		checks["last_run"] = "no runs yet"
	}

	if hs.refresh != nil {
		if hs.refresh.IsRunning() {
			checks["refresh"] = "running"
		} else {
			checks["refresh"] = "idle"
		}
	}

	if hs.hub != nil {
		checks["websocket"] = fmt.Sprintf("%d clients", hs.hub.ClientCount())
	}

	hs.logger.DebugContext(ctx, "Health check completed",
		slog.String("status", status))

	return api.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// ReadinessCheck reports whether the service can take traffic: the data
// directories must be writable. An empty run store does not block readiness;
// a fresh deployment is ready before its first refresh.
func (hs *HealthService) ReadinessCheck(ctx context.Context) (api.HealthResponse, bool) {
	checks := make(map[string]string)
	ready := true

	if err := hs.checkDataDirs(); err != nil {
		checks["data_dirs"] = err.Error()
		ready = false
	} else {
		checks["data_dirs"] = "ok"
	}

	if _, ok := hs.store.Latest(); ok {
		checks["run_store"] = "populated"
	} else {
		checks["run_store"] = "empty"
	}

	status := "ready"
	if !ready {
		status = "not_ready"
	}
	return api.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	}, ready
}

// LivenessCheck reports process vitals. If this handler answers at all the
// process is alive; the payload is for operators.
func (hs *HealthService) LivenessCheck(ctx context.Context) map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(hs.startedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"alloc_mb":       mem.Alloc / 1024 / 1024,
		"sys_mb":         mem.Sys / 1024 / 1024,
		"num_gc":         mem.NumGC,
		"runs_recorded":  len(hs.store.History()),
	}
}

// Version reports build identity.
func (hs *HealthService) Version(ctx context.Context) api.VersionResponse {
	return api.VersionResponse{
		Version:    contracts.Version,
		APIVersion: contracts.APIVersion,
		GoVersion:  runtime.Version(),
		BuildTime:  contracts.BuildTime,
	}
}

// checkDataDirs verifies every runtime directory exists and is writable by
// creating and removing a probe file.
func (hs *HealthService) checkDataDirs() error {
	dirs := []string{
		hs.paths.DataDir,
		hs.paths.CacheDir,
		hs.paths.SnapshotsDir,
		hs.paths.ReportsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("directory %s not writable: %w", dir, err)
		}
		probe := filepath.Join(dir, ".health_probe")
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			return fmt.Errorf("directory %s not writable: %w", dir, err)
		}
		os.Remove(probe)
	}
	return nil
}

// degrade lowers current to next unless current is already worse.
func degrade(current, next string) string {
	rank := map[string]int{"healthy": 0, "degraded": 1, "unhealthy": 2}
	if rank[next] > rank[current] {
		return next
	}
	return current
}
