package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"emicli/internal/config"
	"emicli/pkg/contracts"
)

// Descriptor identifies one raw payload the pipeline ingests: which logical
// series it feeds, where it lives and how its body is laid out. Origin is
// either an HTTP(S) URL or an absolute file path; relative catalog locations
// are resolved against the executable directory when the descriptor is built.
type Descriptor struct {
	SeriesID string `json:"series_id"`
	Dataset  string `json:"dataset"`
	Origin   string `json:"origin"`

	// CSV layout options handed through to the row parser. Futures snapshot
	// descriptors carry none of these; their payload is JSON.
	SkipRows        int    `json:"skip_rows,omitempty"`
	TimestampColumn string `json:"timestamp_column,omitempty"`
	TimeColumn      string `json:"time_column,omitempty"`
	ValueColumn     string `json:"value_column,omitempty"`

	// SeriesColumn optionally names a column whose per-row value overrides
	// SeriesID, for payloads that carry several series at once.
	SeriesColumn string `json:"series_column,omitempty"`
}

// IsRemote reports whether the descriptor points at an HTTP(S) URL rather
// than a file on disk.
func (d Descriptor) IsRemote() bool {
	return strings.HasPrefix(d.Origin, "http://") || strings.HasPrefix(d.Origin, "https://")
}

// WithDateRange returns a copy of the descriptor whose remote origin carries
// the EMI DateFrom/DateTo query parameters (YYYYMMDD). Local descriptors and
// zero bounds pass through unchanged.
func (d Descriptor) WithDateRange(from, to time.Time) Descriptor {
	if !d.IsRemote() || (from.IsZero() && to.IsZero()) {
		return d
	}

	u, err := url.Parse(d.Origin)
	if err != nil {
		return d
	}

	q := u.Query()
	if !from.IsZero() {
		q.Set("DateFrom", from.Format("20060102"))
	}
	if !to.IsZero() {
		q.Set("DateTo", to.Format("20060102"))
	}
	u.RawQuery = q.Encode()

	d.Origin = u.String()
	return d
}

// FromSpec builds a descriptor from a catalog source entry, resolving
// relative file locations against the executable directory.
func FromSpec(spec config.SourceSpec, paths *config.Paths) Descriptor {
	return Descriptor{
		SeriesID:        spec.SeriesID,
		Dataset:         spec.Dataset,
		Origin:          resolveLocation(spec.Location, paths),
		SkipRows:        spec.SkipRows,
		TimestampColumn: spec.TimestampColumn,
		TimeColumn:      spec.TimeColumn,
		ValueColumn:     spec.ValueColumn,
		SeriesColumn:    spec.SeriesColumn,
	}
}

// FromBoard builds a descriptor for a futures board snapshot. The payload is
// the JSON file cmd/scraper writes; the board key doubles as the series id
// prefix until the snapshot parser assigns per-contract ids.
func FromBoard(board config.FuturesBoard, paths *config.Paths) Descriptor {
	origin := board.Snapshot
	if origin == "" && paths != nil {
		origin = paths.GetFuturesSnapshotPath(board.Hub, board.Duration)
	}
	return Descriptor{
		SeriesID: board.Key(),
		Dataset:  config.DatasetFutures,
		Origin:   resolveLocation(origin, paths),
	}
}

// FromCatalog expands the whole source catalog into the ordered descriptor
// list a run fetches: hydro, then FTR, then futures boards.
func FromCatalog(catalog *config.Catalog, paths *config.Paths) []Descriptor {
	descriptors := make([]Descriptor, 0, len(catalog.Hydro)+len(catalog.FTR)+len(catalog.Futures))
	for _, spec := range catalog.AllSources() {
		descriptors = append(descriptors, FromSpec(spec, paths))
	}
	for _, board := range catalog.Futures {
		descriptors = append(descriptors, FromBoard(board, paths))
	}
	return descriptors
}

// resolveLocation leaves URLs and absolute paths alone and anchors relative
// paths at the executable directory, never the working directory.
func resolveLocation(location string, paths *config.Paths) string {
	if location == "" ||
		strings.HasPrefix(location, "http://") ||
		strings.HasPrefix(location, "https://") ||
		filepath.IsAbs(location) {
		return location
	}
	if paths == nil {
		return location
	}
	return filepath.Join(paths.ExecutableDir, filepath.FromSlash(location))
}

// CacheKey derives the artifact cache key for a descriptor set: the SHA-256
// of a canonical encoding of every descriptor in order. Any change to the
// set, its order or any parse option yields a different key. The artifact
// format version seeds the hash, so a layout bump invalidates old artifacts.
func CacheKey(descriptors []Descriptor) string {
	h := sha256.New()
	h.Write([]byte(contracts.DataFormatVersion))
	h.Write([]byte{'\n'})
	for _, d := range descriptors {
		fields := []string{
			d.SeriesID,
			d.Dataset,
			d.Origin,
			strconv.Itoa(d.SkipRows),
			d.TimestampColumn,
			d.TimeColumn,
			d.ValueColumn,
			d.SeriesColumn,
		}
		h.Write([]byte(strings.Join(fields, "\x1f")))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
