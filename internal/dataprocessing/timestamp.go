package dataprocessing

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp strategy names as recorded in ParseStats and run diagnostics.
const (
	StrategyDateTime = "date_time_dayfirst"
	StrategyDateOnly = "date_dayfirst"
	StrategyStrict   = "date_strict_dmy"
	StrategyNone     = "none"
)

// EMI files carry timezone-naive local timestamps with the day before the
// month. The layouts use Go's non-padded verbs, so "1/03/2024" and
// "01/03/2024" both match the same entry.
var (
	dayFirstDateTimeLayouts = []string{
		"2/1/2006 15:04",
		"2/1/2006 15:04:05",
		"2-1-2006 15:04",
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	dayFirstDateLayouts = []string{
		"2/1/2006",
		"2-1-2006",
		"2 Jan 2006",
		"2006-01-02",
	}
)

// strictDayMonthYearLayout is the last-resort shape: day/month/year with a
// four-digit year, slash separators and nothing else.
const strictDayMonthYearLayout = "2/1/2006"

// timestampStrategy is one way of reading an observation time out of a row's
// date cell and optional time-of-day cell.
type timestampStrategy struct {
	name      string
	needsTime bool
	parse     func(date, timeOfDay string) (time.Time, error)
}

// timestampStrategies returns the candidate strategies in priority order.
// The parser tries them against a whole payload and commits to the first one
// that parses at least one row, so a single file never mixes
// interpretations.
func timestampStrategies() []timestampStrategy {
	return []timestampStrategy{
		{name: StrategyDateTime, needsTime: true, parse: parseDayFirstDateTime},
		{name: StrategyDateOnly, parse: parseDayFirstDate},
		{name: StrategyStrict, parse: parseStrictDayMonthYear},
	}
}

// parseDayFirstDateTime joins the date and time-of-day cells and parses the
// pair day-first, the way hydro storage files record their midnight
// readings.
func parseDayFirstDateTime(date, timeOfDay string) (time.Time, error) {
	combined := strings.TrimSpace(strings.TrimSpace(date) + " " + strings.TrimSpace(timeOfDay))
	return parseFirstLayout(combined, dayFirstDateTimeLayouts)
}

// parseDayFirstDate parses the date cell alone, day before month.
func parseDayFirstDate(date, _ string) (time.Time, error) {
	return parseFirstLayout(strings.TrimSpace(date), dayFirstDateLayouts)
}

// parseStrictDayMonthYear accepts only the plain d/m/yyyy form. It exists as
// a fallback for payloads whose date cells defeat the flexible layouts but
// still strip down to the canonical EMI shape.
func parseStrictDayMonthYear(date, _ string) (time.Time, error) {
	value := strings.TrimSpace(date)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date cell")
	}
	return time.Parse(strictDayMonthYearLayout, value)
}

func parseFirstLayout(value string, layouts []string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date cell")
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
