package dataprocessing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "emicli/internal/errors"
	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/domain"
)

// ParseOptions tell the parser how one CSV payload is laid out. They come
// straight from the source descriptor; the parser never guesses column
// roles from file contents.
type ParseOptions struct {
	// SkipRows is the number of raw metadata lines before the header row.
	// EMI wraps every CSV in the same preamble, so catalog entries set this
	// to the shared constant rather than per-file values.
	SkipRows int

	// TimestampColumn holds the observation date ("Trading date", "Date").
	TimestampColumn string

	// TimeColumn optionally holds a time-of-day cell that is combined with
	// the date before parsing. Empty when the file has no such column.
	TimeColumn string

	// ValueColumn holds the measurement to keep.
	ValueColumn string

	// SeriesColumn optionally names a column whose cell value becomes the
	// record's series id, expanding one file into many series. When empty,
	// SeriesID labels every row.
	SeriesColumn string

	// SeriesID is the fixed series identifier for single-series files.
	SeriesID string
}

// ParseStats counts what happened to one payload's rows. The pipeline folds
// these into the run diagnostics verbatim.
type ParseStats struct {
	RowsRead       int    `json:"rows_read"`
	RowsKept       int    `json:"rows_kept"`
	TimestampDrops int    `json:"timestamp_drops"`
	ValueDrops     int    `json:"value_drops"`
	Strategy       string `json:"strategy"`
}

// Parser converts raw EMI CSV payloads into SeriesRecords. Rows whose
// timestamp or value fail to parse are dropped and counted, never zero
// filled; a retained record always satisfies domain.SeriesRecord.Valid.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a CSV row parser. A nil logger falls back to the shared
// application logger.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Parser{logger: logger.With(slog.String("component", "parser"))}
}

// Parse reads one payload: skips the metadata preamble, maps the header row,
// then converts each data row. The returned stats are valid even when err is
// non-nil.
func (p *Parser) Parse(ctx context.Context, payload []byte, opts ParseOptions) ([]domain.SeriesRecord, ParseStats, error) {
	var stats ParseStats
	stats.Strategy = StrategyNone

	header, rows, err := p.readRows(payload, opts.SkipRows)
	if err != nil {
		return nil, stats, err
	}

	columns, err := mapColumns(header, opts)
	if err != nil {
		return nil, stats, err
	}

	stats.RowsRead = len(rows)
	if len(rows) == 0 {
		p.logger.WarnContext(ctx, "Payload has a header but no data rows",
			slog.String("series", opts.SeriesID))
		return nil, stats, nil
	}

	dates, times := extractCells(rows, columns)
	timestamps, strategy := p.selectTimestamps(ctx, dates, times, opts)
	stats.Strategy = strategy

	records := make([]domain.SeriesRecord, 0, len(rows))
	for i, row := range rows {
		if timestamps[i].IsZero() {
			stats.TimestampDrops++
			continue
		}

		value, err := parseValue(cellAt(row, columns.value))
		if err != nil {
			stats.ValueDrops++
			continue
		}

		seriesID := opts.SeriesID
		if columns.series >= 0 {
			seriesID = strings.TrimSpace(cellAt(row, columns.series))
			if seriesID == "" {
				// A row without a series label carries no usable
				// observation; count it with the value drops.
				stats.ValueDrops++
				continue
			}
		}

		records = append(records, domain.SeriesRecord{
			Timestamp: timestamps[i],
			SeriesID:  seriesID,
			Value:     value,
		})
	}

	stats.RowsKept = len(records)
	if stats.TimestampDrops > 0 || stats.ValueDrops > 0 {
		p.logger.WarnContext(ctx, "Dropped rows that failed to parse",
			slog.String("series", opts.SeriesID),
			slog.Int("timestamp_drops", stats.TimestampDrops),
			slog.Int("value_drops", stats.ValueDrops),
			slog.Int("rows_kept", stats.RowsKept))
	}
	p.logger.DebugContext(ctx, "Payload parsed",
		slog.String("series", opts.SeriesID),
		slog.String("strategy", strategy),
		slog.Int("rows_read", stats.RowsRead),
		slog.Int("rows_kept", stats.RowsKept))

	return records, stats, nil
}

// columnIndexes resolves the configured column names against the header row.
// series is -1 when no series column is configured.
type columnIndexes struct {
	date   int
	time   int
	value  int
	series int
}

// readRows skips the raw preamble lines, then reads the header row and every
// data row. The preamble is skipped line by line before the CSV reader sees
// the stream because EMI metadata lines contain unbalanced quotes that would
// derail it.
func (p *Parser) readRows(payload []byte, skipRows int) ([]string, [][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	for i := 0; i < skipRows; i++ {
		if _, err := reader.ReadString('\n'); err != nil {
			return nil, nil, apperrors.NewParsingError(
				fmt.Sprintf("payload ended inside the %d-line preamble", skipRows), err)
		}
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, apperrors.NewParsingError("payload has no header row", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A malformed line never became a row; log it and move on.
			p.logger.Debug("Skipping malformed CSV line", slog.String("error", err.Error()))
			continue
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// mapColumns locates every configured column in the header. Name matching is
// exact after trimming, then case-insensitive, so "Trading Date" still finds
// "Trading date" when EMI tweaks capitalisation.
func mapColumns(header []string, opts ParseOptions) (columnIndexes, error) {
	find := func(name string) int {
		for i, cell := range header {
			if strings.TrimSpace(cell) == name {
				return i
			}
		}
		for i, cell := range header {
			if strings.EqualFold(strings.TrimSpace(cell), name) {
				return i
			}
		}
		return -1
	}

	columns := columnIndexes{date: -1, time: -1, value: -1, series: -1}

	columns.date = find(opts.TimestampColumn)
	if columns.date < 0 {
		return columns, apperrors.NewParsingError(
			fmt.Sprintf("timestamp column %q not found in header", opts.TimestampColumn), nil)
	}

	columns.value = find(opts.ValueColumn)
	if columns.value < 0 {
		return columns, apperrors.NewParsingError(
			fmt.Sprintf("value column %q not found in header", opts.ValueColumn), nil)
	}

	if opts.TimeColumn != "" {
		// A missing time column only disables the combined strategy.
		columns.time = find(opts.TimeColumn)
	}

	if opts.SeriesColumn != "" {
		columns.series = find(opts.SeriesColumn)
		if columns.series < 0 {
			return columns, apperrors.NewParsingError(
				fmt.Sprintf("series column %q not found in header", opts.SeriesColumn), nil)
		}
	}

	return columns, nil
}

// extractCells pulls the date and time-of-day cells for every row so the
// strategy selection can scan the whole batch without re-indexing.
func extractCells(rows [][]string, columns columnIndexes) (dates, times []string) {
	dates = make([]string, len(rows))
	times = make([]string, len(rows))
	for i, row := range rows {
		dates[i] = cellAt(row, columns.date)
		if columns.time >= 0 {
			times[i] = cellAt(row, columns.time)
		}
	}
	return dates, times
}

// selectTimestamps tries each strategy over the whole batch and commits to
// the first one that parses at least one row. The winner's per-row results
// are returned as-is; rows it failed on stay zero and are dropped by the
// caller. When every strategy misses every row the batch parses to nothing.
func (p *Parser) selectTimestamps(ctx context.Context, dates, times []string, opts ParseOptions) ([]time.Time, string) {
	hasTime := opts.TimeColumn != "" && anyNonEmpty(times)

	for _, strategy := range timestampStrategies() {
		if strategy.needsTime && !hasTime {
			continue
		}

		parsed := make([]time.Time, len(dates))
		hits := 0
		for i := range dates {
			ts, err := strategy.parse(dates[i], times[i])
			if err != nil {
				continue
			}
			parsed[i] = ts
			hits++
		}
		if hits > 0 {
			if hits < len(dates) {
				p.logger.WarnContext(ctx, "Timestamp strategy parsed only part of the payload",
					slog.String("series", opts.SeriesID),
					slog.String("strategy", strategy.name),
					slog.Int("parsed", hits),
					slog.Int("rows", len(dates)))
			}
			return parsed, strategy.name
		}
	}

	p.logger.WarnContext(ctx, "No timestamp strategy matched any row",
		slog.String("series", opts.SeriesID),
		slog.Int("rows", len(dates)))
	return make([]time.Time, len(dates)), StrategyNone
}

// parseValue coerces one value cell to a finite float64. EMI writes
// thousands separators into larger storage figures, so commas are stripped
// before conversion. Placeholders like "N/A" simply fail the conversion.
func parseValue(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty value cell")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return value, nil
}

func cellAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}

func anyNonEmpty(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}
