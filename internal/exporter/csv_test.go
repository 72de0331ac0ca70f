package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/config"
)

// testPaths roots every application directory inside a temp dir.
func testPaths(t *testing.T) *config.Paths {
	t.Helper()
	base := t.TempDir()
	return &config.Paths{
		ExecutableDir: base,
		DataDir:       filepath.Join(base, "data"),
		DownloadsDir:  filepath.Join(base, "data", "downloads"),
		CacheDir:      filepath.Join(base, "data", "cache"),
		SnapshotsDir:  filepath.Join(base, "data", "snapshots"),
		ReportsDir:    filepath.Join(base, "data", "reports"),
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	payload = bytes.TrimPrefix(payload, []byte{0xEF, 0xBB, 0xBF})
	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSV(t *testing.T) {
	paths := testPaths(t)
	writer := NewCSVWriter(paths)

	err := writer.WriteCSV("prices.csv", WriteOptions{
		Headers: []string{"date", "series_id", "value"},
		Records: [][]string{
			{"2020-01-31", "BEN2201", "85.50"},
			{"2020-02-01", "BEN2201", "88.00"},
		},
		BOMPrefix: true,
	})
	require.NoError(t, err)

	fullPath := filepath.Join(paths.ReportsDir, "prices.csv")
	payload, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte{0xEF, 0xBB, 0xBF}), "report CSVs carry a BOM")

	rows := readCSV(t, fullPath)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "series_id", "value"}, rows[0])
	assert.Equal(t, "BEN2201", rows[1][1])
}

func TestWriteCSVAppend(t *testing.T) {
	paths := testPaths(t)
	writer := NewCSVWriter(paths)

	require.NoError(t, writer.WriteReportCSV("prices.csv",
		[]string{"date", "value"},
		[][]string{{"2020-01-31", "85.50"}}))

	require.NoError(t, writer.AppendToCSV("prices.csv",
		[][]string{{"2020-02-01", "88.00"}}))

	rows := readCSV(t, filepath.Join(paths.ReportsDir, "prices.csv"))
	require.Len(t, rows, 3, "append must not repeat the header")
	assert.Equal(t, "2020-02-01", rows[2][0])
}

func TestResolvePath(t *testing.T) {
	paths := testPaths(t)
	writer := NewCSVWriter(paths)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "default lands in reports",
			input: "prices.csv",
			want:  filepath.Join(paths.ReportsDir, "prices.csv"),
		},
		{
			name:  "cache prefix",
			input: "cache/merged.csv",
			want:  filepath.Join(paths.CacheDir, "merged.csv"),
		},
		{
			name:  "snapshots prefix",
			input: "snapshots/futures_BEN_QTR.json",
			want:  filepath.Join(paths.SnapshotsDir, "futures_BEN_QTR.json"),
		},
		{
			name:  "downloads prefix",
			input: "downloads/source.csv",
			want:  filepath.Join(paths.DownloadsDir, "source.csv"),
		},
		{
			name:  "absolute path untouched",
			input: filepath.Join(paths.ExecutableDir, "elsewhere.csv"),
			want:  filepath.Join(paths.ExecutableDir, "elsewhere.csv"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, writer.resolvePath(tt.input))
		})
	}
}

func TestStreamWriter(t *testing.T) {
	paths := testPaths(t)
	writer := NewCSVWriter(paths)

	stream, err := writer.CreateStreamWriter("streamed.csv", []string{"date", "value"})
	require.NoError(t, err)

	require.NoError(t, stream.WriteRecord([]string{"2020-01-31", "85.50"}))
	require.NoError(t, stream.WriteRecord([]string{"2020-02-01", "88.00"}))
	require.NoError(t, stream.Close())

	rows := readCSV(t, filepath.Join(paths.ReportsDir, "streamed.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "value"}, rows[0])
	assert.Equal(t, "88.00", rows[2][1])
}
