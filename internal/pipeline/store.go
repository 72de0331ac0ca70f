package pipeline

import (
	"sync"

	"emicli/pkg/contracts/domain"
)

// DefaultHistoryLimit bounds the diagnostics history kept in memory.
const DefaultHistoryLimit = 50

// RunStore keeps the latest successful run and a bounded history of run
// diagnostics, successful or not. It is the read side the HTTP handlers
// and the scheduler share; the pipeline itself never touches it.
type RunStore struct {
	mu      sync.RWMutex
	latest  *Result
	history []domain.RunDiagnostics
	limit   int
}

// NewRunStore creates a store keeping at most limit diagnostics entries.
// Non-positive limits use DefaultHistoryLimit.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &RunStore{limit: limit}
}

// SetLatest publishes a successful run and records its diagnostics. The
// result must not be mutated after it is handed over.
func (s *RunStore) SetLatest(result *Result) {
	if result == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = result
	s.append(result.Diagnostics)
}

// RecordFailure keeps the diagnostics of a failed run without disturbing
// the latest successful result.
func (s *RunStore) RecordFailure(diagnostics domain.RunDiagnostics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(diagnostics)
}

// Latest returns the most recent successful run, or false when no run has
// completed yet.
func (s *RunStore) Latest() (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// LastDiagnostics returns the diagnostics of the most recent run of any
// outcome.
func (s *RunStore) LastDiagnostics() (domain.RunDiagnostics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return domain.RunDiagnostics{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns the stored diagnostics, newest first.
func (s *RunStore) History() []domain.RunDiagnostics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RunDiagnostics, len(s.history))
	for i, d := range s.history {
		out[len(s.history)-1-i] = d
	}
	return out
}

// append adds one entry under the write lock, evicting the oldest past the
// limit.
func (s *RunStore) append(d domain.RunDiagnostics) {
	s.history = append(s.history, d)
	if len(s.history) > s.limit {
		s.history = s.history[len(s.history)-s.limit:]
	}
}
