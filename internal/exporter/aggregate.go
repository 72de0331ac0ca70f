package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"emicli/internal/config"
	"emicli/internal/dataprocessing"
	"emicli/pkg/contracts/domain"
)

// AggregateExporter writes the pipeline's tables to the range-stamped report
// files the dashboards and the batch CLI publish.
type AggregateExporter struct {
	csvWriter *CSVWriter
	paths     *config.Paths
}

// NewAggregateExporter creates a new aggregate report exporter
func NewAggregateExporter(paths *config.Paths) *AggregateExporter {
	return &AggregateExporter{
		csvWriter: NewCSVWriter(paths),
		paths:     paths,
	}
}

// ExportAggregate writes one dataset's aggregate rows to a range-stamped
// report, e.g. ftr_prices_2024-01-01_to_2024-01-31.csv, and returns the path
// written. The date window in the name comes from the rows themselves, so a
// rerun over the same data lands on the same file.
func (e *AggregateExporter) ExportAggregate(table domain.AggregateTable, prefix string) (string, error) {
	if len(table) == 0 {
		return "", fmt.Errorf("no aggregate rows to export for %s", prefix)
	}

	from, to := table.DateRange()
	path := e.paths.GetAggregateCSVPath(prefix, from, to)

	records := make([][]string, 0, len(table))
	for _, row := range table {
		records = append(records, []string{
			formatDate(row.Date),
			row.SeriesID,
			formatExact(row.Value),
			formatCount(row.Count),
		})
	}

	if err := e.csvWriter.WriteReportCSV(path, aggregateHeaders(), records); err != nil {
		return "", fmt.Errorf("failed to write %s aggregate report: %w", prefix, err)
	}
	return path, nil
}

// ExportByDataset slices the aggregate table per dataset and writes one
// range-stamped report for each. seriesDatasets maps a series id to the
// dataset it was parsed from; series without a mapping are skipped. The
// written paths come back keyed by dataset.
func (e *AggregateExporter) ExportByDataset(table domain.AggregateTable, seriesDatasets map[string]string) (map[string]string, error) {
	byDataset := SliceByDataset(table, seriesDatasets)

	datasets := make([]string, 0, len(byDataset))
	for dataset := range byDataset {
		datasets = append(datasets, dataset)
	}
	sort.Strings(datasets)

	written := make(map[string]string, len(datasets))
	for _, dataset := range datasets {
		path, err := e.ExportAggregate(byDataset[dataset], datasetPrefix(dataset))
		if err != nil {
			return written, err
		}
		written[dataset] = path
	}
	return written, nil
}

// ExportUnified writes the merged table itself, in the same layout the cache
// artifact uses so either file re-loads identically. It returns the path
// written.
func (e *AggregateExporter) ExportUnified(table domain.UnifiedTable) (string, error) {
	if len(table) == 0 {
		return "", fmt.Errorf("no unified records to export")
	}

	from, to := table.DateRange()
	path := e.paths.GetAggregateCSVPath(config.UnifiedReportPrefix, from, to)

	payload, err := dataprocessing.EncodeUnifiedTable(table)
	if err != nil {
		return "", fmt.Errorf("failed to encode unified table: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("failed to write unified table: %w", err)
	}
	return path, nil
}

// SliceByDataset splits the aggregate table by the dataset each series was
// parsed from. Series without a mapping are skipped.
func SliceByDataset(table domain.AggregateTable, seriesDatasets map[string]string) map[string]domain.AggregateTable {
	byDataset := make(map[string]domain.AggregateTable)
	for _, row := range table {
		dataset, ok := seriesDatasets[row.SeriesID]
		if !ok {
			continue
		}
		byDataset[dataset] = append(byDataset[dataset], row)
	}
	return byDataset
}

// WriteAggregateTo streams aggregate rows as CSV in the report column
// layout. The HTTP export endpoint writes downloads through this without a
// temp file.
func WriteAggregateTo(w io.Writer, table domain.AggregateTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(aggregateHeaders()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range table {
		record := []string{
			formatDate(row.Date),
			row.SeriesID,
			formatExact(row.Value),
			formatCount(row.Count),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// aggregateHeaders returns the column names of every aggregate report
func aggregateHeaders() []string {
	return []string{"date", "series_id", "value", "count"}
}

// datasetPrefix maps a dataset identifier to its report file prefix.
func datasetPrefix(dataset string) string {
	switch dataset {
	case config.DatasetHydro:
		return config.HydroReportPrefix
	case config.DatasetFTR:
		return config.FTRReportPrefix
	case config.DatasetFutures:
		return config.FuturesReportPrefix
	default:
		return dataset
	}
}
