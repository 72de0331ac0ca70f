package dataprocessing

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/shared/testutil"
	"emicli/pkg/contracts/domain"
)

func newTestSummarizer(t *testing.T) *Summarizer {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewSummarizer(logger, SummarizerConfig{})
}

func TestGenerateSummaries(t *testing.T) {
	table := domain.UnifiedTable{
		record(day(2020, 1, 31), "BEN2201", 80.0),
		record(day(2020, 2, 1), "BEN2201", 90.0),
		record(day(2020, 2, 2), "BEN2201", 85.0),
		record(day(2020, 1, 31), "lake_taupo", 1234.5),
	}

	summaries, err := newTestSummarizer(t).Generate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	ben := summaries[0]
	assert.Equal(t, "BEN2201", ben.SeriesID)
	assert.Equal(t, 3, ben.Count)
	assert.Equal(t, 85.0, ben.Mean)
	assert.Equal(t, 80.0, ben.Min)
	assert.Equal(t, 90.0, ben.Max)
	assert.Equal(t, 85.0, ben.Last, "last must be the newest observation, not the largest")
	assert.Equal(t, day(2020, 1, 31), ben.FirstDate)
	assert.Equal(t, day(2020, 2, 2), ben.LastDate)

	taupo := summaries[1]
	assert.Equal(t, "lake_taupo", taupo.SeriesID)
	assert.Equal(t, 1, taupo.Count)
	assert.Equal(t, 1234.5, taupo.Last)
}

func TestGenerateLastPrefersLaterRowOnTies(t *testing.T) {
	ts := day(2020, 1, 31)
	table := domain.UnifiedTable{
		record(ts, "BEN2201", 80.0),
		record(ts, "BEN2201", 95.0),
	}

	summaries, err := newTestSummarizer(t).Generate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 95.0, summaries[0].Last)
}

func TestGenerateEmptyTable(t *testing.T) {
	summaries, err := newTestSummarizer(t).Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "summary.csv")
	summaries := []domain.SeriesSummary{
		{
			SeriesID:  "BEN2201",
			Count:     3,
			Mean:      85.0,
			Min:       80.0,
			Max:       90.0,
			Last:      85.0,
			FirstDate: day(2020, 1, 31),
			LastDate:  day(2020, 2, 2),
		},
	}

	err := newTestSummarizer(t).WriteCSV(context.Background(), path, summaries)
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"series_id", "count", "mean", "min", "max", "last", "first_date", "last_date"}, rows[0])
	assert.Equal(t, []string{"BEN2201", "3", "85.0000", "80.0000", "90.0000", "85.0000", "2020-01-31", "2020-02-02"}, rows[1])
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	summaries := []domain.SeriesSummary{
		{SeriesID: "lake_taupo", Count: 1, Mean: 1234.5, Min: 1234.5, Max: 1234.5, Last: 1234.5},
	}

	err := newTestSummarizer(t).WriteJSON(context.Background(), path, summaries)
	require.NoError(t, err)

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		Series      []domain.SeriesSummary `json:"series"`
		Count       int                    `json:"count"`
		GeneratedAt time.Time              `json:"generated_at"`
		Format      string                 `json:"format"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, 1, decoded.Count)
	assert.Equal(t, "series_summary_v1", decoded.Format)
	require.Len(t, decoded.Series, 1)
	assert.Equal(t, "lake_taupo", decoded.Series[0].SeriesID)
	assert.False(t, decoded.GeneratedAt.IsZero())
}
