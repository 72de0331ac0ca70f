// Package api contains API contract definitions for the EMI dashboard
// backend. Version v1 represents the current stable API version.
package api

import (
	"strings"
	"time"
)

// DateRangeRequest represents a date range in query parameters.
type DateRangeRequest struct {
	From string `json:"from" query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// Bounds parses the range into time values. Zero values mean an open bound;
// validation has already guaranteed the format.
func (r DateRangeRequest) Bounds() (from, to time.Time) {
	if r.From != "" {
		from, _ = time.Parse("2006-01-02", r.From)
	}
	if r.To != "" {
		to, _ = time.Parse("2006-01-02", r.To)
	}
	return from, to
}

// AggregatesRequest selects a slice of the aggregate table.
type AggregatesRequest struct {
	DateRangeRequest
	// Series is a comma-separated list of series ids; empty means all.
	Series string `json:"series" query:"series" validate:"omitempty,max=2048"`
}

// SeriesList splits the series filter into individual ids, dropping blanks.
func (r AggregatesRequest) SeriesList() []string {
	if r.Series == "" {
		return nil
	}
	parts := strings.Split(r.Series, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// ExportRequest asks for a CSV download of the filtered aggregate table.
type ExportRequest struct {
	AggregatesRequest
	// Prefix names the dataset in the download filename, e.g. "ftr_prices".
	Prefix string `json:"prefix" query:"prefix" validate:"omitempty,max=64"`
}

// RefreshRequest triggers a pipeline run.
type RefreshRequest struct {
	// Force bypasses the merged cache artifact for this run.
	Force bool `json:"force"`
}
