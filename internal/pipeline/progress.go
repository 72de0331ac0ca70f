package pipeline

import "emicli/pkg/contracts/domain"

// Stage identifiers in execution order. Progress consumers key their
// step displays off these, so they are stable identifiers, not labels.
const (
	StageFetch     = "fetch"
	StageParse     = "parse"
	StageMerge     = "merge"
	StageAggregate = "aggregate"
)

// Stages returns the run stages in execution order.
func Stages() []string {
	return []string{StageFetch, StageParse, StageMerge, StageAggregate}
}

// ProgressReporter receives run lifecycle events for live progress feeds.
// The pipeline calls it inline, so implementations must not block; hand off
// to a channel or goroutine if delivery is slow.
type ProgressReporter interface {
	RunStarted(runID, trigger string, stages []string)
	StageStarted(runID, stage string)
	StageCompleted(runID, stage, detail string)
	RunCompleted(runID string, diagnostics domain.RunDiagnostics)
	RunFailed(runID, stage string, err error)
}

// NopReporter discards all progress events. It stands in when no live feed
// is wired, e.g. in the batch CLI.
type NopReporter struct{}

func (NopReporter) RunStarted(string, string, []string)        {}
func (NopReporter) StageStarted(string, string)                {}
func (NopReporter) StageCompleted(string, string, string)      {}
func (NopReporter) RunCompleted(string, domain.RunDiagnostics) {}
func (NopReporter) RunFailed(string, string, error)            {}
