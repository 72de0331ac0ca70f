package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	apperrors "emicli/internal/errors"
	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/domain"
)

// Reducer names how same-day observations of one series collapse into a
// single aggregate value.
type Reducer string

const (
	ReduceMean Reducer = "mean"
	ReduceMin  Reducer = "min"
	ReduceMax  Reducer = "max"
	ReduceLast Reducer = "last"
)

// ParseReducer validates a configured reducer name.
func ParseReducer(name string) (Reducer, error) {
	switch Reducer(name) {
	case ReduceMean, ReduceMin, ReduceMax, ReduceLast:
		return Reducer(name), nil
	case "":
		return ReduceMean, nil
	default:
		return "", apperrors.NewConfigError(
			fmt.Sprintf("unknown aggregate reducer %q (want mean, min, max or last)", name), nil)
	}
}

// Merge concatenates per-source record batches into one unified table.
// Batches are appended in the order given, row order preserved within each
// batch, so reruns over the same sources produce the same table.
func Merge(batches ...[]domain.SeriesRecord) domain.UnifiedTable {
	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	table := make(domain.UnifiedTable, 0, total)
	for _, batch := range batches {
		table = append(table, batch...)
	}
	return table
}

// Aggregator reduces a unified table to one row per (calendar date, series).
type Aggregator struct {
	logger  *slog.Logger
	reducer Reducer
}

// NewAggregator creates an aggregator applying the given reducer. A nil
// logger falls back to the shared application logger.
func NewAggregator(reducer Reducer, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if reducer == "" {
		reducer = ReduceMean
	}
	return &Aggregator{
		logger:  logger.With(slog.String("component", "aggregator")),
		reducer: reducer,
	}
}

// groupKey identifies one aggregate cell.
type groupKey struct {
	date   time.Time
	series string
}

// accumulator carries a group's running reduction. The zero aggregate never
// appears: a group exists only once its first record has been folded in.
type accumulator struct {
	sum   float64
	min   float64
	max   float64
	last  float64
	count int
}

// Aggregate groups the table by (calendar date, series id) and reduces each
// group. The output is sorted by date then series id, so equal inputs always
// produce byte-identical exports. An empty table is an error: it means every
// fetched source parsed to nothing, which callers must surface rather than
// write out as an empty artifact.
func (a *Aggregator) Aggregate(ctx context.Context, table domain.UnifiedTable) (domain.AggregateTable, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("aggregate: %w", apperrors.ErrEmptyMergeResult)
	}

	groups := make(map[groupKey]*accumulator)
	for _, record := range table {
		key := groupKey{date: record.Date(), series: record.SeriesID}
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{min: record.Value, max: record.Value}
			groups[key] = acc
		}
		acc.sum += record.Value
		if record.Value < acc.min {
			acc.min = record.Value
		}
		if record.Value > acc.max {
			acc.max = record.Value
		}
		acc.last = record.Value
		acc.count++
	}

	rows := make(domain.AggregateTable, 0, len(groups))
	for key, acc := range groups {
		rows = append(rows, domain.AggregateRow{
			Date:     key.date,
			SeriesID: key.series,
			Value:    a.reduce(acc),
			Count:    acc.count,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].SeriesID < rows[j].SeriesID
	})

	a.logger.InfoContext(ctx, "Aggregated unified table",
		slog.String("reducer", string(a.reducer)),
		slog.Int("records", len(table)),
		slog.Int("aggregate_rows", len(rows)))

	return rows, nil
}

func (a *Aggregator) reduce(acc *accumulator) float64 {
	switch a.reducer {
	case ReduceMin:
		return acc.min
	case ReduceMax:
		return acc.max
	case ReduceLast:
		return acc.last
	default:
		return acc.sum / float64(acc.count)
	}
}
