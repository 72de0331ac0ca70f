package websocket

import (
	"log/slog"
	"sync"
	"time"

	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/domain"
	"emicli/pkg/contracts/events"
)

// RefreshBroadcaster turns pipeline progress callbacks into refresh:snapshot
// events on the hub. It implements pipeline.ProgressReporter. The complete
// snapshot is rebuilt and broadcast on every transition, so a client that
// connects mid-run renders correctly from the next event.
type RefreshBroadcaster struct {
	hub    *Hub
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*events.RefreshSnapshot
}

// NewRefreshBroadcaster creates a broadcaster publishing to hub.
func NewRefreshBroadcaster(hub *Hub, logger *slog.Logger) *RefreshBroadcaster {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &RefreshBroadcaster{
		hub:    hub,
		logger: logger.With(slog.String("component", "websocket.refresh")),
		runs:   make(map[string]*events.RefreshSnapshot),
	}
}

// RunStarted announces a new run with every stage pending.
func (b *RefreshBroadcaster) RunStarted(runID, trigger string, stages []string) {
	snapshot := &events.RefreshSnapshot{
		RunID:     runID,
		Trigger:   trigger,
		Status:    events.StatusRunning,
		Stages:    make([]events.StageSnapshot, len(stages)),
		StartedAt: time.Now(),
	}
	for i, stage := range stages {
		snapshot.Stages[i] = events.StageSnapshot{Name: stage, Status: events.StatusPending}
	}

	b.mu.Lock()
	b.runs[runID] = snapshot
	out := b.snapshotLocked(snapshot)
	b.mu.Unlock()

	b.publish(out)
}

// StageStarted marks one stage as running.
func (b *RefreshBroadcaster) StageStarted(runID, stage string) {
	b.updateStage(runID, stage, events.StatusRunning, "")
}

// StageCompleted marks one stage as done.
func (b *RefreshBroadcaster) StageCompleted(runID, stage, detail string) {
	b.updateStage(runID, stage, events.StatusCompleted, detail)
}

// RunCompleted broadcasts the final snapshot with the run totals and forgets
// the run.
func (b *RefreshBroadcaster) RunCompleted(runID string, diagnostics domain.RunDiagnostics) {
	b.finish(runID, events.StatusCompleted, "", "", diagnostics)
}

// RunFailed broadcasts the failure, marking the stage it died in.
func (b *RefreshBroadcaster) RunFailed(runID, stage string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	b.finish(runID, events.StatusFailed, stage, message, domain.RunDiagnostics{})
}

func (b *RefreshBroadcaster) updateStage(runID, stage, status, detail string) {
	b.mu.Lock()
	snapshot, ok := b.runs[runID]
	if !ok {
		b.mu.Unlock()
		return
	}
	for i := range snapshot.Stages {
		if snapshot.Stages[i].Name == stage {
			snapshot.Stages[i].Status = status
			snapshot.Stages[i].Detail = detail
		}
	}
	if status == events.StatusRunning {
		snapshot.CurrentStage = stage
	}
	out := b.snapshotLocked(snapshot)
	b.mu.Unlock()

	b.publish(out)
}

func (b *RefreshBroadcaster) finish(runID, status, failedStage, message string, diagnostics domain.RunDiagnostics) {
	b.mu.Lock()
	snapshot, ok := b.runs[runID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.runs, runID)

	snapshot.Status = status
	snapshot.CurrentStage = ""
	snapshot.Error = message
	now := time.Now()
	snapshot.CompletedAt = &now

	if failedStage != "" {
		for i := range snapshot.Stages {
			if snapshot.Stages[i].Name == failedStage {
				snapshot.Stages[i].Status = events.StatusFailed
				snapshot.Stages[i].Detail = message
			}
		}
	}
	if status == events.StatusCompleted {
		snapshot.RowsKept = diagnostics.RowsKept
		snapshot.AggregateRows = diagnostics.AggregateRows
		snapshot.FailedSources = len(diagnostics.FailedSources())
		snapshot.FromCache = diagnostics.FromCache
	}

	out := b.snapshotLocked(snapshot)
	b.mu.Unlock()

	b.publish(out)
}

// snapshotLocked copies the snapshot so the broadcast never races later
// mutations. Callers hold b.mu.
func (b *RefreshBroadcaster) snapshotLocked(snapshot *events.RefreshSnapshot) events.RefreshSnapshot {
	out := *snapshot
	out.UpdatedAt = time.Now()
	out.Stages = make([]events.StageSnapshot, len(snapshot.Stages))
	copy(out.Stages, snapshot.Stages)
	return out
}

func (b *RefreshBroadcaster) publish(snapshot events.RefreshSnapshot) {
	if b.hub == nil {
		return
	}
	b.hub.BroadcastEvent(events.MessageTypeRefreshSnapshot, snapshot)
	b.logger.Debug("Refresh snapshot broadcast",
		slog.String("run_id", snapshot.RunID),
		slog.String("status", snapshot.Status),
		slog.String("current_stage", snapshot.CurrentStage))
}
