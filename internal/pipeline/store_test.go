package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/pkg/contracts/domain"
)

func diagnostics(runID string) domain.RunDiagnostics {
	now := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	return domain.RunDiagnostics{
		RunID:      runID,
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
	}
}

func TestRunStoreLatest(t *testing.T) {
	store := NewRunStore(0)

	_, ok := store.Latest()
	assert.False(t, ok)
	_, ok = store.LastDiagnostics()
	assert.False(t, ok)

	store.SetLatest(&Result{RunID: "run-1", Diagnostics: diagnostics("run-1")})
	store.SetLatest(&Result{RunID: "run-2", Diagnostics: diagnostics("run-2")})

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, "run-2", latest.RunID)

	last, ok := store.LastDiagnostics()
	require.True(t, ok)
	assert.Equal(t, "run-2", last.RunID)
}

func TestRunStoreFailureKeepsLatest(t *testing.T) {
	store := NewRunStore(0)
	store.SetLatest(&Result{RunID: "run-1", Diagnostics: diagnostics("run-1")})

	store.RecordFailure(diagnostics("run-2"))

	// The failed run shows up in diagnostics but never replaces the data.
	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, "run-1", latest.RunID)

	last, ok := store.LastDiagnostics()
	require.True(t, ok)
	assert.Equal(t, "run-2", last.RunID)
}

func TestRunStoreHistoryNewestFirstAndBounded(t *testing.T) {
	store := NewRunStore(3)
	for i := 1; i <= 5; i++ {
		store.RecordFailure(diagnostics(fmt.Sprintf("run-%d", i)))
	}

	history := store.History()
	require.Len(t, history, 3)
	assert.Equal(t, "run-5", history[0].RunID)
	assert.Equal(t, "run-4", history[1].RunID)
	assert.Equal(t, "run-3", history[2].RunID)
}

func TestRunStoreIgnoresNilResult(t *testing.T) {
	store := NewRunStore(0)
	store.SetLatest(nil)

	_, ok := store.Latest()
	assert.False(t, ok)
	assert.Empty(t, store.History())
}
