package domain

import (
	"math"
	"sort"
	"time"
)

// SeriesRecord is the Single Source of Truth for one parsed observation in
// an EMI dataset: a timestamp, the logical series it belongs to (a node code,
// a lake name, a futures contract), and the measured value. Records are only
// created by the row parser after both the timestamp and the value parsed
// successfully; rows failing either parse never become SeriesRecords.
//
// The series identifier is assigned by the fetch layer from the source
// descriptor (or, for multi-series files, from a designated column). The
// parser never infers it from file contents.
type SeriesRecord struct {
	// Timestamp is the observation time. Source files carry timezone-naive
	// local timestamps; they are stored in UTC without conversion.
	Timestamp time.Time `json:"timestamp"`

	// SeriesID identifies the logical series, e.g. "BEN2201", "Lake Taupo"
	// or "BEN_QTR_2024Q3".
	SeriesID string `json:"series_id"`

	// Value is the primary measurement: $/MWh for prices, Mm³ for storage,
	// metres for lake levels. Always finite on a retained record.
	Value float64 `json:"value"`
}

// Date returns the calendar date of the observation, truncated to midnight
// UTC. Aggregation groups on this value.
func (r SeriesRecord) Date() time.Time {
	y, m, d := r.Timestamp.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Valid reports whether the record satisfies the retention invariant:
// a non-zero timestamp, a non-empty series id and a finite value.
func (r SeriesRecord) Valid() bool {
	return !r.Timestamp.IsZero() && r.SeriesID != "" &&
		!math.IsNaN(r.Value) && !math.IsInf(r.Value, 0)
}

// UnifiedTable is the concatenation of every successful source's records,
// sources appended in descriptor order, row order preserved within each
// source. It is immutable once built; downstream consumers only group and
// filter, never mutate.
type UnifiedTable []SeriesRecord

// SeriesIDs returns the distinct series identifiers present in the table,
// sorted for deterministic output.
func (t UnifiedTable) SeriesIDs() []string {
	seen := make(map[string]bool, len(t))
	var ids []string
	for _, r := range t {
		if !seen[r.SeriesID] {
			seen[r.SeriesID] = true
			ids = append(ids, r.SeriesID)
		}
	}
	sort.Strings(ids)
	return ids
}

// DateRange returns the earliest and latest observation dates in the table.
// Both are zero when the table is empty.
func (t UnifiedTable) DateRange() (from, to time.Time) {
	for _, r := range t {
		d := r.Date()
		if from.IsZero() || d.Before(from) {
			from = d
		}
		if to.IsZero() || d.After(to) {
			to = d
		}
	}
	return from, to
}

// AggregateRow is one (calendar date, series) cell of the aggregate table:
// the reduced value of every same-day observation of that series. Unique per
// (Date, SeriesID) pair; Date is always midnight UTC.
type AggregateRow struct {
	Date     time.Time `json:"date"`
	SeriesID string    `json:"series_id"`
	Value    float64   `json:"value"`

	// Count is the number of observations the reduction consumed.
	Count int `json:"count"`
}

// AggregateTable is the terminal pipeline artifact handed to the
// presentation layer, ordered by date then series id.
type AggregateTable []AggregateRow

// FilterRange returns the rows whose date lies in [from, to] (inclusive;
// zero bounds are open) and, when series is non-empty, whose SeriesID is in
// series. Row order is preserved.
func (a AggregateTable) FilterRange(from, to time.Time, series []string) AggregateTable {
	want := make(map[string]bool, len(series))
	for _, s := range series {
		want[s] = true
	}
	var out AggregateTable
	for _, row := range a {
		if !from.IsZero() && row.Date.Before(from) {
			continue
		}
		if !to.IsZero() && row.Date.After(to) {
			continue
		}
		if len(want) > 0 && !want[row.SeriesID] {
			continue
		}
		out = append(out, row)
	}
	return out
}

// DateRange returns the earliest and latest dates in the aggregate table.
func (a AggregateTable) DateRange() (from, to time.Time) {
	for _, row := range a {
		if from.IsZero() || row.Date.Before(from) {
			from = row.Date
		}
		if to.IsZero() || row.Date.After(to) {
			to = row.Date
		}
	}
	return from, to
}

// SeriesSummary carries the per-series descriptive statistics shown on the
// dashboards: mean, min, max and the most recent value over the whole
// ingested range, plus the span the series covers.
type SeriesSummary struct {
	SeriesID  string    `json:"series_id"`
	Count     int       `json:"count"`
	Mean      float64   `json:"mean"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Last      float64   `json:"last"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
}
