package dataprocessing

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "emicli/internal/errors"
	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/domain"
)

// highchartsDateRE matches the Date.UTC(year, month, day) call embedded in a
// scraped chart point. The month argument is zero-based, JavaScript style.
var highchartsDateRE = regexp.MustCompile(`Date\.UTC\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\)`)

// FuturesParser converts a scraped futures board snapshot into
// SeriesRecords, one series per contract.
type FuturesParser struct {
	logger *slog.Logger
}

// NewFuturesParser creates a snapshot parser. A nil logger falls back to the
// shared application logger.
func NewFuturesParser(logger *slog.Logger) *FuturesParser {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &FuturesParser{logger: logger.With(slog.String("component", "futures_parser"))}
}

// ParseSnapshot decodes one snapshot JSON payload and parses every contract's
// raw Highcharts points. Points with an unparseable date or a null price are
// dropped and counted, matching the CSV parser's retention rules. Contracts
// are processed in name order so equal snapshots always parse to the same
// record sequence.
func (p *FuturesParser) ParseSnapshot(ctx context.Context, payload []byte) ([]domain.SeriesRecord, ParseStats, error) {
	stats := ParseStats{Strategy: StrategyNone}

	var snapshot domain.FuturesSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, stats, apperrors.NewParsingError("snapshot payload is not valid JSON", err)
	}
	if len(snapshot.Contracts) == 0 {
		p.logger.WarnContext(ctx, "Snapshot holds no contracts",
			slog.String("board", snapshot.BoardID()))
		return nil, stats, nil
	}

	contracts := make([]string, 0, len(snapshot.Contracts))
	for name := range snapshot.Contracts {
		contracts = append(contracts, name)
	}
	sort.Strings(contracts)

	var records []domain.SeriesRecord
	for _, contract := range contracts {
		for _, point := range snapshot.Contracts[contract] {
			stats.RowsRead++

			ts, rest, ok := parseHighchartsDate(point)
			if !ok {
				stats.TimestampDrops++
				continue
			}
			price, err := parseHighchartsPrice(rest)
			if err != nil {
				stats.ValueDrops++
				continue
			}

			records = append(records, domain.SeriesRecord{
				Timestamp: ts,
				SeriesID:  contract,
				Value:     price,
			})
		}
	}

	stats.RowsKept = len(records)
	if stats.RowsKept > 0 {
		stats.Strategy = StrategyDateOnly
	}
	if stats.TimestampDrops > 0 || stats.ValueDrops > 0 {
		p.logger.WarnContext(ctx, "Dropped snapshot points that failed to parse",
			slog.String("board", snapshot.BoardID()),
			slog.Int("timestamp_drops", stats.TimestampDrops),
			slog.Int("value_drops", stats.ValueDrops))
	}
	p.logger.DebugContext(ctx, "Snapshot parsed",
		slog.String("board", snapshot.BoardID()),
		slog.Int("contracts", len(contracts)),
		slog.Int("rows_kept", stats.RowsKept))

	return records, stats, nil
}

// parseHighchartsDate extracts the point's date. The zero-based month is
// shifted to calendar numbering, and values that would make time.Date
// normalise (month 13, day 32) are rejected instead of silently rolling
// over. It returns the remainder of the point string after the date call,
// which holds the price.
func parseHighchartsDate(point string) (time.Time, string, bool) {
	loc := highchartsDateRE.FindStringSubmatchIndex(point)
	if loc == nil {
		return time.Time{}, "", false
	}

	year, _ := strconv.Atoi(point[loc[2]:loc[3]])
	month, _ := strconv.Atoi(point[loc[4]:loc[5]])
	day, _ := strconv.Atoi(point[loc[6]:loc[7]])

	month++
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, "", false
	}
	ts := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if ts.Year() != year || ts.Month() != time.Month(month) || ts.Day() != day {
		return time.Time{}, "", false
	}
	return ts, point[loc[1]:], true
}

// parseHighchartsPrice reads the price that follows the date call, e.g. the
// ", 123.45]" tail of "[Date.UTC(2024,0,15), 123.45]". Null prices fail the
// float conversion and are dropped by the caller.
func parseHighchartsPrice(rest string) (float64, error) {
	cleaned := strings.TrimSpace(rest)
	cleaned = strings.TrimPrefix(cleaned, ",")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "]")
	return parseValue(cleaned)
}

// ContractGroups splits the contracts present in records into active and
// historic sets by each contract's newest observation. Both lists come back
// sorted.
func ContractGroups(records []domain.SeriesRecord, asOf time.Time) (active, historic []string) {
	latest := make(map[string]time.Time)
	for _, record := range records {
		if record.Timestamp.After(latest[record.SeriesID]) {
			latest[record.SeriesID] = record.Timestamp
		}
	}
	for contract, ts := range latest {
		if domain.ClassifyContract(ts, asOf) == domain.ContractActive {
			active = append(active, contract)
		} else {
			historic = append(historic, contract)
		}
	}
	sort.Strings(active)
	sort.Strings(historic)
	return active, historic
}
