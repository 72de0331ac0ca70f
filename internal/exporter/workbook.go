package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"emicli/internal/config"
	"emicli/pkg/contracts/domain"
)

// WorkbookExporter writes the multi-sheet XLSX bundle analysts pull instead
// of stitching CSVs together: a Summary sheet of per-series statistics and
// one sheet of aggregate rows per dataset.
type WorkbookExporter struct {
	paths *config.Paths
}

// NewWorkbookExporter creates a new workbook exporter
func NewWorkbookExporter(paths *config.Paths) *WorkbookExporter {
	return &WorkbookExporter{paths: paths}
}

// summarySheet is the first sheet of every workbook.
const summarySheet = "Summary"

// ExportWorkbook writes the workbook to path. Dataset sheets appear in
// sorted dataset order after the summary.
func (e *WorkbookExporter) ExportWorkbook(path string, summaries []domain.SeriesSummary, aggregates map[string]domain.AggregateTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := e.writeSummarySheet(f, summaries); err != nil {
		return err
	}

	datasets := make([]string, 0, len(aggregates))
	for dataset := range aggregates {
		datasets = append(datasets, dataset)
	}
	sort.Strings(datasets)

	for _, dataset := range datasets {
		if err := e.writeDatasetSheet(f, dataset, aggregates[dataset]); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create workbook directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (e *WorkbookExporter) writeSummarySheet(f *excelize.File, summaries []domain.SeriesSummary) error {
	header := []interface{}{"Series", "Count", "Mean", "Min", "Max", "Last", "First Date", "Last Date"}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}

	for i, summary := range summaries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to locate summary row %d: %w", i+2, err)
		}
		row := []interface{}{
			summary.SeriesID,
			summary.Count,
			summary.Mean,
			summary.Min,
			summary.Max,
			summary.Last,
			formatDate(summary.FirstDate),
			formatDate(summary.LastDate),
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+2, err)
		}
	}
	return nil
}

func (e *WorkbookExporter) writeDatasetSheet(f *excelize.File, dataset string, table domain.AggregateTable) error {
	sheet := sheetName(dataset)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	header := []interface{}{"Date", "Series", "Value", "Count"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i, row := range table {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to locate %s row %d: %w", sheet, i+2, err)
		}
		values := []interface{}{
			formatDate(row.Date),
			row.SeriesID,
			row.Value,
			row.Count,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// sheetName truncates a dataset id to Excel's 31-character sheet name limit.
func sheetName(dataset string) string {
	if len(dataset) > 31 {
		return dataset[:31]
	}
	return dataset
}
