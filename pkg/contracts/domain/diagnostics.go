package domain

import "time"

// SourceStatus classifies the outcome of fetching one source descriptor.
type SourceStatus string

const (
	// SourceOK means the payload was retrieved and handed to the parser.
	SourceOK SourceStatus = "ok"

	// SourceUnavailable means the file was missing or the HTTP request
	// failed; the source was skipped and the pipeline continued.
	SourceUnavailable SourceStatus = "unavailable"

	// SourceFromCache means the merged cache artifact satisfied the run and
	// this descriptor was never fetched.
	SourceFromCache SourceStatus = "cache"
)

// SourceOutcome records what happened to a single descriptor during a run.
// Failed descriptors never abort their siblings; the outcome list is how
// per-source failures surface to callers.
type SourceOutcome struct {
	SeriesID string       `json:"series_id"`
	Origin   string       `json:"origin"` // path or URL
	Status   SourceStatus `json:"status"`
	Reason   string       `json:"reason,omitempty"`

	// Parse statistics for sources that reached the parser.
	RowsRead       int `json:"rows_read,omitempty"`
	RowsKept       int `json:"rows_kept,omitempty"`
	TimestampDrops int `json:"timestamp_drops,omitempty"`
	ValueDrops     int `json:"value_drops,omitempty"`
}

// RunDiagnostics is the observable account of one pipeline run: which
// sources succeeded or were skipped, how many rows were read, kept and
// dropped, and how long the run took. Per-row and per-source failures are
// absorbed into these counters rather than propagated as errors.
type RunDiagnostics struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	FromCache  bool            `json:"from_cache"`
	Sources    []SourceOutcome `json:"sources"`

	RowsRead       int `json:"rows_read"`
	RowsKept       int `json:"rows_kept"`
	TimestampDrops int `json:"timestamp_drops"`
	ValueDrops     int `json:"value_drops"`

	AggregateRows int `json:"aggregate_rows"`
	SeriesCount   int `json:"series_count"`
}

// FailedSources returns the outcomes recorded as unavailable, in input
// order. An empty result means every descriptor either succeeded or was
// served from cache.
func (d RunDiagnostics) FailedSources() []SourceOutcome {
	var failed []SourceOutcome
	for _, s := range d.Sources {
		if s.Status == SourceUnavailable {
			failed = append(failed, s)
		}
	}
	return failed
}

// SucceededSources returns the number of descriptors that produced a
// payload this run.
func (d RunDiagnostics) SucceededSources() int {
	n := 0
	for _, s := range d.Sources {
		if s.Status == SourceOK {
			n++
		}
	}
	return n
}

// Duration is the wall-clock time the run took.
func (d RunDiagnostics) Duration() time.Duration {
	return d.FinishedAt.Sub(d.StartedAt)
}
