package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// SystemMetrics exports Go runtime health through OTel gauges. The health
// endpoint and the status page read the same numbers via SystemStats.
type SystemMetrics struct {
	goroutines    metric.Int64Gauge
	heapInUse     metric.Int64Gauge
	heapTotal     metric.Int64Gauge
	systemMemory  metric.Int64Gauge
	gcPause       metric.Float64Histogram
	processUptime metric.Float64Gauge
}

// NewSystemMetrics registers the runtime instruments on the meter.
func NewSystemMetrics(meter metric.Meter) (*SystemMetrics, error) {
	sm := &SystemMetrics{}

	instruments := []struct {
		gauge *metric.Int64Gauge
		name  string
		desc  string
		unit  string
	}{
		{&sm.goroutines, "system_goroutines", "Number of active goroutines", ""},
		{&sm.heapInUse, "system_memory_usage_bytes", "Heap bytes currently allocated", "By"},
		{&sm.heapTotal, "system_memory_allocated_bytes", "Cumulative bytes allocated by the runtime", "By"},
		{&sm.systemMemory, "system_memory_system_bytes", "Memory obtained from the OS", "By"},
	}
	for _, inst := range instruments {
		opts := []metric.Int64GaugeOption{metric.WithDescription(inst.desc)}
		if inst.unit != "" {
			opts = append(opts, metric.WithUnit(inst.unit))
		}
		gauge, err := meter.Int64Gauge(inst.name, opts...)
		if err != nil {
			return nil, err
		}
		*inst.gauge = gauge
	}

	var err error
	sm.gcPause, err = meter.Float64Histogram(
		"system_gc_pause_seconds",
		metric.WithDescription("Garbage collection pause duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	sm.processUptime, err = meter.Float64Gauge(
		"system_process_uptime_seconds",
		metric.WithDescription("Process uptime"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// SystemStats is one runtime snapshot.
type SystemStats struct {
	GoRoutines      int64
	MemoryUsage     int64
	MemoryAllocated int64
	MemorySystem    int64
	GCCount         uint32
	LastGCPause     time.Duration
	CPUCount        int
	ProcessUptime   time.Duration
	Timestamp       time.Time
}

// Collect snapshots the runtime and records every instrument.
func (sm *SystemMetrics) Collect(ctx context.Context, startTime time.Time) *SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := &SystemStats{
		GoRoutines:      int64(runtime.NumGoroutine()),
		MemoryUsage:     int64(mem.Alloc),
		MemoryAllocated: int64(mem.TotalAlloc),
		MemorySystem:    int64(mem.Sys),
		GCCount:         mem.NumGC,
		LastGCPause:     time.Duration(mem.PauseNs[(mem.NumGC+255)%256]),
		CPUCount:        runtime.NumCPU(),
		ProcessUptime:   time.Since(startTime),
		Timestamp:       time.Now(),
	}

	sm.goroutines.Record(ctx, stats.GoRoutines)
	sm.heapInUse.Record(ctx, stats.MemoryUsage)
	sm.heapTotal.Record(ctx, stats.MemoryAllocated)
	sm.systemMemory.Record(ctx, stats.MemorySystem)
	sm.processUptime.Record(ctx, stats.ProcessUptime.Seconds())
	if stats.LastGCPause > 0 {
		sm.gcPause.Record(ctx, stats.LastGCPause.Seconds())
	}

	return stats
}

// FormatStats shapes a snapshot for the JSON status endpoints.
func (stats *SystemStats) FormatStats() map[string]interface{} {
	return map[string]interface{}{
		"runtime": map[string]interface{}{
			"goroutines":       stats.GoRoutines,
			"memory_usage_mb":  stats.MemoryUsage / 1024 / 1024,
			"memory_alloc_mb":  stats.MemoryAllocated / 1024 / 1024,
			"memory_system_mb": stats.MemorySystem / 1024 / 1024,
			"gc_count":         stats.GCCount,
			"last_gc_pause_ms": stats.LastGCPause.Milliseconds(),
		},
		"system": map[string]interface{}{
			"cpu_count":      stats.CPUCount,
			"uptime_seconds": stats.ProcessUptime.Seconds(),
		},
		"timestamp": stats.Timestamp.Format(time.RFC3339),
	}
}

// SystemMetricsCollector drives periodic collection for the lifetime of
// the server.
type SystemMetricsCollector struct {
	metrics   *SystemMetrics
	startTime time.Time
	interval  time.Duration
	stopCh    chan struct{}
}

// NewSystemMetricsCollector builds a collector sampling at the given
// interval.
func NewSystemMetricsCollector(meter metric.Meter, interval time.Duration) (*SystemMetricsCollector, error) {
	metrics, err := NewSystemMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create system metrics: %w", err)
	}
	return &SystemMetricsCollector{
		metrics:   metrics,
		startTime: time.Now(),
		interval:  interval,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start samples immediately and then on every tick until Stop or context
// cancellation. Runs on the caller's goroutine.
func (smc *SystemMetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(smc.interval)
	defer ticker.Stop()

	smc.metrics.Collect(ctx, smc.startTime)
	for {
		select {
		case <-ticker.C:
			smc.metrics.Collect(ctx, smc.startTime)
		case <-smc.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates the collection loop.
func (smc *SystemMetricsCollector) Stop() {
	close(smc.stopCh)
}

// GetCurrentStats samples the runtime on demand, outside the loop's
// cadence.
func (smc *SystemMetricsCollector) GetCurrentStats(ctx context.Context) *SystemStats {
	return smc.metrics.Collect(ctx, smc.startTime)
}
