// Package exporter writes the pipeline's tables to the files the dashboards
// and the batch CLI publish.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with support for headers,
// streaming, and UTF-8 BOM for Excel compatibility.
//
// AggregateExporter: Range-stamped aggregate reports per dataset
// (e.g. ftr_prices_2024-01-01_to_2024-01-31.csv) plus the unified-table
// export in the cache-artifact layout.
//
// WorkbookExporter: The multi-sheet XLSX bundle with a Summary sheet and one
// aggregate sheet per dataset.
//
// Example usage:
//
//	// Write one dataset's aggregate report
//	agg := exporter.NewAggregateExporter(paths)
//	path, err := agg.ExportAggregate(rows, config.FTRReportPrefix)
//
//	// Write the workbook
//	wb := exporter.NewWorkbookExporter(paths)
//	err = wb.ExportWorkbook(paths.GetReportPath("emi_data.xlsx"), summaries, aggregates)
package exporter
