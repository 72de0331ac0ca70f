package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "emicli/internal/errors"
	"emicli/internal/shared/testutil"
)

const sampleNodeCSV = `EMI wholesale download
Report generated 2024-04-02
line 3
line 4
line 5
line 6
line 7
line 8
line 9
Trading date,Point of connection,$/MWh
1/03/2024,BEN2201,85.50
2/03/2024,BEN2201,91.25
`

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.RateLimitRPS = 1000 // keep tests fast
	cfg.RateLimitBurst = 100
	return NewFetcher(cfg, logger)
}

func TestFetchAllPartialFailure(t *testing.T) {
	// One source answers 200, the sibling 404s. The run must keep the good
	// payload and record the other as unavailable.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.csv":
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte(sampleNodeCSV))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := newTestFetcher(t)
	descriptors := []Descriptor{
		{SeriesID: "BEN2201", Dataset: "ftr_prices", Origin: server.URL + "/good.csv"},
		{SeriesID: "HAY2201", Dataset: "ftr_prices", Origin: server.URL + "/missing.csv"},
	}

	results, err := fetcher.FetchAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].OK())
	assert.Equal(t, sampleNodeCSV, string(results[0].Payload))
	assert.Equal(t, "BEN2201", results[0].Descriptor.SeriesID)

	assert.False(t, results[1].OK())
	assert.ErrorIs(t, results[1].Err, apperrors.ErrSourceUnavailable)
	assert.Nil(t, results[1].Payload)
}

func TestFetchAllAllSourcesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t)
	descriptors := []Descriptor{
		{SeriesID: "a", Origin: server.URL + "/a.csv"},
		{SeriesID: "b", Origin: server.URL + "/b.csv"},
		{SeriesID: "c", Origin: filepath.Join(t.TempDir(), "absent.csv")},
	}

	results, err := fetcher.FetchAll(context.Background(), descriptors)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoSourcesAvailable)

	// Results still describe every descriptor so diagnostics can report them.
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, apperrors.ErrSourceUnavailable)
	}
}

func TestFetchAllEmptyDescriptorList(t *testing.T) {
	fetcher := newTestFetcher(t)

	_, err := fetcher.FetchAll(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrNoSourcesAvailable)
}

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BEN2201.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleNodeCSV), 0644))

	fetcher := newTestFetcher(t)

	tests := []struct {
		name       string
		origin     string
		wantOK     bool
		wantErrIs  error
		wantLength int
	}{
		{
			name:       "staged file",
			origin:     path,
			wantOK:     true,
			wantLength: len(sampleNodeCSV),
		},
		{
			name:      "missing file skipped",
			origin:    filepath.Join(dir, "nope.csv"),
			wantOK:    false,
			wantErrIs: apperrors.ErrSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fetcher.fetchOne(context.Background(), Descriptor{
				SeriesID: "BEN2201",
				Origin:   tt.origin,
			})

			assert.Equal(t, tt.wantOK, result.OK())
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, result.Err, tt.wantErrIs)
			} else {
				assert.Len(t, result.Payload, tt.wantLength)
			}
		})
	}
}

func TestFetchAllParallelKeepsOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Slow the first request so completion order differs from input order.
		if r.URL.Path == "/0.csv" {
			time.Sleep(50 * time.Millisecond)
		}
		w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	logger, _ := testutil.NewTestLogger(t)
	cfg := DefaultConfig()
	cfg.RateLimitRPS = 1000
	cfg.RateLimitBurst = 100
	cfg.MaxParallel = 4
	fetcher := NewFetcher(cfg, logger)

	descriptors := []Descriptor{
		{SeriesID: "s0", Origin: server.URL + "/0.csv"},
		{SeriesID: "s1", Origin: server.URL + "/1.csv"},
		{SeriesID: "s2", Origin: server.URL + "/2.csv"},
	}

	results, err := fetcher.FetchAll(context.Background(), descriptors)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "/0.csv", string(results[0].Payload))
	assert.Equal(t, "/1.csv", string(results[1].Payload))
	assert.Equal(t, "/2.csv", string(results[2].Payload))
}

func TestFetchRemoteSendsUserAgentAndRange(t *testing.T) {
	var gotUA, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	fetcher := newTestFetcher(t)
	d := Descriptor{SeriesID: "BEN2201", Origin: server.URL + "/node.csv"}.
		WithDateRange(
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		)

	result := fetcher.fetchOne(context.Background(), d)
	require.True(t, result.OK())

	assert.Contains(t, gotUA, "emicli/")
	assert.Contains(t, gotQuery, "DateFrom=20240101")
	assert.Contains(t, gotQuery, "DateTo=20240131")
}

func TestFetchAllContextCancelled(t *testing.T) {
	fetcher := newTestFetcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.FetchAll(ctx, []Descriptor{{SeriesID: "a", Origin: "/tmp/a.csv"}})
	assert.ErrorIs(t, err, context.Canceled)
}
