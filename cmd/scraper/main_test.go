package main

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/config"
	"emicli/pkg/contracts/domain"
)

func TestExtractBoardSeries(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected map[string][]string
	}{
		{
			name: "single contract with two points",
			html: `series: [{name: 'WTC2024Q1', data: [[Date.UTC(2024,0,15), 101.5], [Date.UTC(2024,0,16), 102.25]]}]`,
			expected: map[string][]string{
				"WTC2024Q1": {
					"[Date.UTC(2024,0,15), 101.5]",
					"[Date.UTC(2024,0,16), 102.25]",
				},
			},
		},
		{
			name: "two contracts split at the next name match",
			html: `{name: 'BEN2024Q1', data: [[Date.UTC(2024,0,15), 90]]},` +
				`{name: 'BEN2024Q2', data: [[Date.UTC(2024,3,1), 95.75]]}`,
			expected: map[string][]string{
				"BEN2024Q1": {"[Date.UTC(2024,0,15), 90]"},
				"BEN2024Q2": {"[Date.UTC(2024,3,1), 95.75]"},
			},
		},
		{
			name: "double-quoted names from the alternate renderer",
			html: `{"name": "OTA2025M06", "data": [[Date.UTC(2025,5,2), 140.1]]}`,
			expected: map[string][]string{
				"OTA2025M06": {"[Date.UTC(2025,5,2), 140.1]"},
			},
		},
		{
			name: "null prices kept verbatim",
			html: `{name: 'BEN2024Q3', data: [[Date.UTC(2024,6,1), null], [Date.UTC(2024,6,2), 88.2]]}`,
			expected: map[string][]string{
				"BEN2024Q3": {
					"[Date.UTC(2024,6,1), null]",
					"[Date.UTC(2024,6,2), 88.2]",
				},
			},
		},
		{
			name: "name matches without points dropped",
			html: `{name: 'xAxis title'}, {name: 'BEN2024Q1', data: [[Date.UTC(2024,0,15), 90]]}`,
			expected: map[string][]string{
				"BEN2024Q1": {"[Date.UTC(2024,0,15), 90]"},
			},
		},
		{
			name:     "page without chart config",
			html:     `<html><body>Maintenance window</body></html>`,
			expected: nil,
		},
		{
			name:     "names only, no points anywhere",
			html:     `{name: 'Series A'}, {name: 'Series B'}`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractBoardSeries(tt.html))
		})
	}
}

func TestSelectBoards(t *testing.T) {
	catalog := []config.FuturesBoard{
		{Hub: "BEN", Duration: "QTR"},
		{Hub: "BEN", Duration: "MON"},
		{Hub: "OTA", Duration: "QTR"},
		{Hub: "OTA", Duration: "MON"},
	}

	tests := []struct {
		name     string
		filter   string
		expected []string
		wantErr  string
	}{
		{
			name:     "empty filter keeps every board",
			filter:   "",
			expected: []string{"BEN_QTR", "BEN_MON", "OTA_QTR", "OTA_MON"},
		},
		{
			name:     "single key",
			filter:   "BEN_QTR",
			expected: []string{"BEN_QTR"},
		},
		{
			name:     "multiple keys keep catalog order",
			filter:   "OTA_MON,BEN_QTR",
			expected: []string{"BEN_QTR", "OTA_MON"},
		},
		{
			name:     "keys are case-insensitive and trimmed",
			filter:   " ben_mon , OTA_QTR ",
			expected: []string{"BEN_MON", "OTA_QTR"},
		},
		{
			name:    "unknown key is an error",
			filter:  "BEN_QTR,HLY_QTR",
			wantErr: "HLY_QTR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := selectBoards(catalog, tt.filter)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			keys := make([]string, len(selected))
			for i, board := range selected {
				keys[i] = board.Key()
			}
			assert.Equal(t, tt.expected, keys)
		})
	}
}

func TestBoardURL(t *testing.T) {
	raw := boardURL(config.FuturesBoard{Hub: "OTA", Duration: "MON"})

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "OTA", parsed.Query().Get("location"))
	assert.Equal(t, "MON", parsed.Query().Get("duration"))
	assert.Contains(t, raw, "emi.ea.govt.nz")
}

func TestSnapshotPath(t *testing.T) {
	paths := &config.Paths{ExecutableDir: filepath.Join("/", "opt", "emicli")}
	outDir := filepath.Join("/", "tmp", "snapshots")

	tests := []struct {
		name     string
		board    config.FuturesBoard
		expected string
	}{
		{
			name:     "default name under the output directory",
			board:    config.FuturesBoard{Hub: "BEN", Duration: "QTR"},
			expected: filepath.Join(outDir, "futures_BEN_QTR.json"),
		},
		{
			name:     "relative catalog override resolves against the executable",
			board:    config.FuturesBoard{Hub: "OTA", Duration: "MON", Snapshot: "data/custom/ota.json"},
			expected: filepath.Join("/", "opt", "emicli", "data", "custom", "ota.json"),
		},
		{
			name:     "absolute catalog override wins unchanged",
			board:    config.FuturesBoard{Hub: "OTA", Duration: "QTR", Snapshot: filepath.Join("/", "srv", "ota_qtr.json")},
			expected: filepath.Join("/", "srv", "ota_qtr.json"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, snapshotPath(tt.board, paths, outDir))
		})
	}
}

func TestSnapshotIsFresh(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	write := func(t *testing.T, name string, snapshot domain.FuturesSnapshot) string {
		t.Helper()
		payload, err := json.Marshal(snapshot)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, payload, 0644))
		return path
	}

	t.Run("captured earlier the same UTC day", func(t *testing.T) {
		path := write(t, "today.json", domain.FuturesSnapshot{
			Location:   "BEN",
			Duration:   "QTR",
			CapturedAt: now.Add(-6 * time.Hour),
		})
		assert.True(t, snapshotIsFresh(path, now))
	})

	t.Run("captured the previous day", func(t *testing.T) {
		path := write(t, "yesterday.json", domain.FuturesSnapshot{
			Location:   "BEN",
			Duration:   "QTR",
			CapturedAt: now.Add(-24 * time.Hour),
		})
		assert.False(t, snapshotIsFresh(path, now))
	})

	t.Run("missing file is stale", func(t *testing.T) {
		assert.False(t, snapshotIsFresh(filepath.Join(dir, "absent.json"), now))
	})

	t.Run("malformed file is stale", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
		assert.False(t, snapshotIsFresh(path, now))
	})
}

func TestWriteSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "boards", "futures_BEN_QTR.json")

	snapshot := &domain.FuturesSnapshot{
		Location:   "BEN",
		Duration:   "QTR",
		CapturedAt: time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC),
		Contracts: map[string][]string{
			"BEN2026Q4": {"[Date.UTC(2026,9,1), 112.4]"},
		},
	}
	require.NoError(t, writeSnapshot(dest, snapshot))

	payload, err := os.ReadFile(dest)
	require.NoError(t, err)
	var decoded domain.FuturesSnapshot
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, *snapshot, decoded)

	// The temp file used for the atomic publish must not linger.
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCountPoints(t *testing.T) {
	assert.Equal(t, 0, countPoints(nil))
	assert.Equal(t, 3, countPoints(map[string][]string{
		"A": {"p1", "p2"},
		"B": {"p3"},
	}))
}
