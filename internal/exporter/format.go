package exporter

import (
	"strconv"
	"time"
)

// formatExact renders a value in its shortest form that parses back to the
// identical float64. Aggregate reports must survive an export-reparse cycle,
// so the value column never goes through a fixed-precision format.
func formatExact(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// formatCount formats an observation count
func formatCount(n int) string {
	return strconv.Itoa(n)
}

// formatDate renders a calendar date the way every report names them
func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
