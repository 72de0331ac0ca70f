package websocket

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/pipeline"
	"emicli/internal/shared/testutil"
	"emicli/pkg/contracts/domain"
	"emicli/pkg/contracts/events"
)

var _ pipeline.ProgressReporter = (*RefreshBroadcaster)(nil)

// newRunFeed wires a running hub, one subscribed client with the welcome
// message already drained, and a broadcaster publishing to that hub.
func newRunFeed(t *testing.T) (*RefreshBroadcaster, *Client) {
	t.Helper()
	hub := startHub(t)
	logger, _ := testutil.NewTestLogger(t)

	client := NewClientWithConnection(hub, newFakeConn(), logger)
	hub.Register(client)
	receive(t, client) // welcome

	return NewRefreshBroadcaster(hub, logger), client
}

func receiveSnapshot(t *testing.T, client *Client) events.RefreshSnapshot {
	t.Helper()
	msg := receive(t, client)
	require.Equal(t, events.MessageTypeRefreshSnapshot, msg.Type)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var snapshot events.RefreshSnapshot
	require.NoError(t, json.Unmarshal(raw, &snapshot))
	return snapshot
}

func stageByName(t *testing.T, snapshot events.RefreshSnapshot, name string) events.StageSnapshot {
	t.Helper()
	for _, stage := range snapshot.Stages {
		if stage.Name == name {
			return stage
		}
	}
	t.Fatalf("stage %q not in snapshot", name)
	return events.StageSnapshot{}
}

func TestRefreshBroadcasterRunLifecycle(t *testing.T) {
	broadcaster, client := newRunFeed(t)

	broadcaster.RunStarted("run-1", pipeline.TriggerManual, pipeline.Stages())

	snapshot := receiveSnapshot(t, client)
	assert.Equal(t, "run-1", snapshot.RunID)
	assert.Equal(t, pipeline.TriggerManual, snapshot.Trigger)
	assert.Equal(t, events.StatusRunning, snapshot.Status)
	assert.False(t, snapshot.StartedAt.IsZero())
	require.Len(t, snapshot.Stages, len(pipeline.Stages()))
	for _, stage := range snapshot.Stages {
		assert.Equal(t, events.StatusPending, stage.Status)
	}

	broadcaster.StageStarted("run-1", pipeline.StageFetch)
	snapshot = receiveSnapshot(t, client)
	assert.Equal(t, pipeline.StageFetch, snapshot.CurrentStage)
	assert.Equal(t, events.StatusRunning, stageByName(t, snapshot, pipeline.StageFetch).Status)
	assert.Equal(t, events.StatusPending, stageByName(t, snapshot, pipeline.StageParse).Status)

	broadcaster.StageCompleted("run-1", pipeline.StageFetch, "2 of 2 sources fetched")
	snapshot = receiveSnapshot(t, client)
	fetch := stageByName(t, snapshot, pipeline.StageFetch)
	assert.Equal(t, events.StatusCompleted, fetch.Status)
	assert.Equal(t, "2 of 2 sources fetched", fetch.Detail)

	broadcaster.RunCompleted("run-1", domain.RunDiagnostics{
		RunID:         "run-1",
		RowsKept:      120,
		AggregateRows: 30,
		Sources: []domain.SourceOutcome{
			{SeriesID: "lake_taupo", Status: domain.SourceOK},
			{SeriesID: "ftr_nodes", Status: domain.SourceUnavailable, Reason: "connection refused"},
		},
	})
	snapshot = receiveSnapshot(t, client)
	assert.Equal(t, events.StatusCompleted, snapshot.Status)
	assert.Empty(t, snapshot.CurrentStage)
	require.NotNil(t, snapshot.CompletedAt)
	assert.Equal(t, 120, snapshot.RowsKept)
	assert.Equal(t, 30, snapshot.AggregateRows)
	assert.Equal(t, 1, snapshot.FailedSources)
	assert.False(t, snapshot.FromCache)
}

func TestRefreshBroadcasterRunFailed(t *testing.T) {
	broadcaster, client := newRunFeed(t)

	broadcaster.RunStarted("run-2", pipeline.TriggerScheduled, pipeline.Stages())
	receiveSnapshot(t, client)
	broadcaster.StageStarted("run-2", pipeline.StageFetch)
	receiveSnapshot(t, client)

	broadcaster.RunFailed("run-2", pipeline.StageFetch, errors.New("no sources configured"))

	snapshot := receiveSnapshot(t, client)
	assert.Equal(t, events.StatusFailed, snapshot.Status)
	assert.Equal(t, "no sources configured", snapshot.Error)
	require.NotNil(t, snapshot.CompletedAt)

	fetch := stageByName(t, snapshot, pipeline.StageFetch)
	assert.Equal(t, events.StatusFailed, fetch.Status)
	assert.Equal(t, "no sources configured", fetch.Detail)
}

func TestRefreshBroadcasterIgnoresUnknownRun(t *testing.T) {
	broadcaster, client := newRunFeed(t)

	broadcaster.StageCompleted("ghost", pipeline.StageFetch, "done")
	broadcaster.RunCompleted("ghost", domain.RunDiagnostics{})

	// The hub delivers in order, so a sentinel arriving first proves the
	// ghost updates published nothing.
	broadcaster.hub.BroadcastEvent(events.MessageTypeSystemStatus, events.SystemStatusEvent{Status: "healthy"})
	msg := receive(t, client)
	assert.Equal(t, events.MessageTypeSystemStatus, msg.Type)
}

func TestRefreshBroadcasterNilHub(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	broadcaster := NewRefreshBroadcaster(nil, logger)

	broadcaster.RunStarted("run-3", pipeline.TriggerCLI, pipeline.Stages())
	broadcaster.StageStarted("run-3", pipeline.StageFetch)
	broadcaster.RunFailed("run-3", pipeline.StageFetch, errors.New("boom"))
}
