package dataprocessing

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "emicli/internal/errors"
	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/domain"
)

// Summarizer is the single source of truth for per-series descriptive
// statistics. Every surface that shows series stats (the web API, the batch
// CLI's summary files) goes through it, so the numbers never diverge.
type Summarizer struct {
	logger     *slog.Logger
	dateFormat string
}

// SummarizerConfig holds the summarizer's options.
type SummarizerConfig struct {
	// DateFormat is the layout used for dates in file output.
	DateFormat string
}

// NewSummarizer creates a summarizer. A nil logger falls back to the shared
// application logger.
func NewSummarizer(logger *slog.Logger, config SummarizerConfig) *Summarizer {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if config.DateFormat == "" {
		config.DateFormat = "2006-01-02"
	}
	return &Summarizer{
		logger:     logger.With(slog.String("component", "summarizer")),
		dateFormat: config.DateFormat,
	}
}

// Generate computes one summary per series in the table: observation count,
// mean, min, max, the most recent value and the date span covered. The
// result is sorted by series id for consistent output.
func (s *Summarizer) Generate(ctx context.Context, table domain.UnifiedTable) ([]domain.SeriesSummary, error) {
	s.logger.DebugContext(ctx, "Generating series summaries",
		slog.Int("record_count", len(table)))

	if len(table) == 0 {
		return []domain.SeriesSummary{}, nil
	}

	type seriesState struct {
		summary domain.SeriesSummary
		lastTS  time.Time
		sum     float64
	}

	bySeries := make(map[string]*seriesState)
	for _, record := range table {
		state, ok := bySeries[record.SeriesID]
		if !ok {
			state = &seriesState{summary: domain.SeriesSummary{
				SeriesID: record.SeriesID,
				Min:      record.Value,
				Max:      record.Value,
			}}
			bySeries[record.SeriesID] = state
		}

		state.summary.Count++
		state.sum += record.Value
		if record.Value < state.summary.Min {
			state.summary.Min = record.Value
		}
		if record.Value > state.summary.Max {
			state.summary.Max = record.Value
		}

		date := record.Date()
		if state.summary.FirstDate.IsZero() || date.Before(state.summary.FirstDate) {
			state.summary.FirstDate = date
		}
		if date.After(state.summary.LastDate) {
			state.summary.LastDate = date
		}
		// Later rows win timestamp ties, matching concatenation order.
		if !record.Timestamp.Before(state.lastTS) {
			state.lastTS = record.Timestamp
			state.summary.Last = record.Value
		}
	}

	summaries := make([]domain.SeriesSummary, 0, len(bySeries))
	for _, state := range bySeries {
		state.summary.Mean = state.sum / float64(state.summary.Count)
		summaries = append(summaries, state.summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SeriesID < summaries[j].SeriesID
	})

	s.logger.InfoContext(ctx, "Generated series summaries",
		slog.Int("series_count", len(summaries)))

	return summaries, nil
}

// WriteCSV writes the summaries in the layout the dashboards download.
func (s *Summarizer) WriteCSV(ctx context.Context, path string, summaries []domain.SeriesSummary) error {
	s.logger.InfoContext(ctx, "Writing series summaries to CSV",
		slog.String("path", path),
		slog.Int("summary_count", len(summaries)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create directory for summary CSV", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError("failed to create summary CSV", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"series_id", "count", "mean", "min", "max", "last", "first_date", "last_date"}
	if err := writer.Write(header); err != nil {
		return apperrors.NewStorageError("failed to write summary CSV header", err)
	}

	for _, summary := range summaries {
		row := []string{
			summary.SeriesID,
			fmt.Sprintf("%d", summary.Count),
			fmt.Sprintf("%.4f", summary.Mean),
			fmt.Sprintf("%.4f", summary.Min),
			fmt.Sprintf("%.4f", summary.Max),
			fmt.Sprintf("%.4f", summary.Last),
			summary.FirstDate.Format(s.dateFormat),
			summary.LastDate.Format(s.dateFormat),
		}
		if err := writer.Write(row); err != nil {
			return apperrors.NewStorageError("failed to write summary CSV row", err)
		}
	}

	return nil
}

// WriteJSON writes the summaries with metadata for the web frontend.
func (s *Summarizer) WriteJSON(ctx context.Context, path string, summaries []domain.SeriesSummary) error {
	s.logger.InfoContext(ctx, "Writing series summaries to JSON",
		slog.String("path", path),
		slog.Int("summary_count", len(summaries)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create directory for summary JSON", err)
	}

	payload := map[string]interface{}{
		"series":       summaries,
		"count":        len(summaries),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"format":       "series_summary_v1",
	}

	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError("failed to create summary JSON", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return apperrors.NewStorageError("failed to encode summary JSON", err)
	}

	return nil
}
