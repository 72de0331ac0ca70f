package dataprocessing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "emicli/internal/errors"
	"emicli/internal/shared/testutil"
	"emicli/pkg/contracts/domain"
)

func day(yy, mm, dd int) time.Time {
	return time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
}

func record(ts time.Time, series string, value float64) domain.SeriesRecord {
	return domain.SeriesRecord{Timestamp: ts, SeriesID: series, Value: value}
}

func newTestAggregator(t *testing.T, reducer Reducer) *Aggregator {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewAggregator(reducer, logger)
}

func TestMergeKeepsBatchOrder(t *testing.T) {
	ftr := []domain.SeriesRecord{
		record(day(2020, 1, 31), "BEN2201", 85.5),
		record(day(2020, 2, 1), "BEN2201", 88.0),
	}
	hydro := []domain.SeriesRecord{
		record(day(2020, 1, 31), "lake_taupo", 1234.5),
	}

	table := Merge(ftr, hydro)
	require.Len(t, table, 3)
	assert.Equal(t, "BEN2201", table[0].SeriesID)
	assert.Equal(t, "BEN2201", table[1].SeriesID)
	assert.Equal(t, "lake_taupo", table[2].SeriesID)

	assert.Empty(t, Merge())
	assert.Empty(t, Merge(nil, nil))
}

func TestAggregateMean(t *testing.T) {
	table := domain.UnifiedTable{
		record(day(2020, 1, 31), "BEN2201", 80.0),
		record(day(2020, 1, 31), "BEN2201", 90.0),
		record(day(2020, 2, 1), "BEN2201", 88.0),
		record(day(2020, 1, 31), "OTA2201", 100.0),
	}

	rows, err := newTestAggregator(t, ReduceMean).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Sorted by date, then series id.
	assert.Equal(t, domain.AggregateRow{Date: day(2020, 1, 31), SeriesID: "BEN2201", Value: 85.0, Count: 2}, rows[0])
	assert.Equal(t, domain.AggregateRow{Date: day(2020, 1, 31), SeriesID: "OTA2201", Value: 100.0, Count: 1}, rows[1])
	assert.Equal(t, domain.AggregateRow{Date: day(2020, 2, 1), SeriesID: "BEN2201", Value: 88.0, Count: 1}, rows[2])
}

func TestAggregateReducers(t *testing.T) {
	table := domain.UnifiedTable{
		record(day(2020, 1, 31), "BEN2201", 80.0),
		record(day(2020, 1, 31), "BEN2201", 95.0),
		record(day(2020, 1, 31), "BEN2201", 86.0),
	}

	tests := []struct {
		reducer Reducer
		want    float64
	}{
		{reducer: ReduceMean, want: 87.0},
		{reducer: ReduceMin, want: 80.0},
		{reducer: ReduceMax, want: 95.0},
		{reducer: ReduceLast, want: 86.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.reducer), func(t *testing.T) {
			rows, err := newTestAggregator(t, tt.reducer).Aggregate(context.Background(), table)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tt.want, rows[0].Value)
			assert.Equal(t, 3, rows[0].Count)
		})
	}
}

func TestAggregateDeterministicOrder(t *testing.T) {
	shuffled := domain.UnifiedTable{
		record(day(2020, 2, 1), "OTA2201", 1),
		record(day(2020, 1, 31), "lake_taupo", 2),
		record(day(2020, 2, 1), "BEN2201", 3),
		record(day(2020, 1, 31), "BEN2201", 4),
	}

	rows, err := newTestAggregator(t, ReduceMean).Aggregate(context.Background(), shuffled)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "BEN2201", rows[0].SeriesID)
	assert.Equal(t, "lake_taupo", rows[1].SeriesID)
	assert.Equal(t, day(2020, 1, 31), rows[0].Date)
	assert.Equal(t, day(2020, 2, 1), rows[2].Date)
	assert.Equal(t, "BEN2201", rows[2].SeriesID)
	assert.Equal(t, "OTA2201", rows[3].SeriesID)
}

func TestAggregateGroupsIntradayObservations(t *testing.T) {
	// Two readings on the same calendar day collapse into one row even when
	// their clock times differ.
	table := domain.UnifiedTable{
		record(time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), "lake_taupo", 100),
		record(time.Date(2020, 1, 31, 12, 0, 0, 0, time.UTC), "lake_taupo", 110),
	}

	rows, err := newTestAggregator(t, ReduceMean).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 105.0, rows[0].Value)
	assert.Equal(t, 2, rows[0].Count)
}

func TestAggregateEmptyTable(t *testing.T) {
	_, err := newTestAggregator(t, ReduceMean).Aggregate(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrEmptyMergeResult)
}

func TestParseReducer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Reducer
		wantErr bool
	}{
		{name: "mean", input: "mean", want: ReduceMean},
		{name: "min", input: "min", want: ReduceMin},
		{name: "max", input: "max", want: ReduceMax},
		{name: "last", input: "last", want: ReduceLast},
		{name: "empty defaults to mean", input: "", want: ReduceMean},
		{name: "unknown rejected", input: "median", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReducer(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
