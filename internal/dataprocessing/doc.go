// Package dataprocessing turns raw EMI payloads into the unified and
// aggregate tables the rest of the application serves. It owns row parsing,
// merge, aggregation and per-series summaries.
//
// # Architecture
//
// The package is organised into four main components:
//
// 1. Parser: converts EMI CSV payloads into SeriesRecords
// 2. FuturesParser: converts scraped futures board snapshots into SeriesRecords
// 3. Aggregator: merges per-source records and reduces them per (date, series)
// 4. Summarizer: computes per-series descriptive statistics
//
// # Usage
//
// Parsing one CSV payload:
//
//	parser := dataprocessing.NewParser(logger)
//	records, stats, err := parser.Parse(ctx, payload, dataprocessing.ParseOptions{
//	    SkipRows:        config.EMICSVPreambleRows,
//	    TimestampColumn: config.FTRDateColumn,
//	    ValueColumn:     config.FTRPriceColumn,
//	    SeriesColumn:    config.FTRNodeColumn,
//	})
//
// Merging and aggregating:
//
//	table := dataprocessing.Merge(ftrRecords, hydroRecords)
//	aggregator := dataprocessing.NewAggregator(dataprocessing.ReduceMean, logger)
//	rows, err := aggregator.Aggregate(ctx, table)
//
// # Data Flow
//
// The typical flow through this package:
//
//	Payload → Parser → SeriesRecords → Merge → UnifiedTable → Aggregator → AggregateTable
//
// # Retention Rules
//
// Rows never reach a table half-parsed. A row whose timestamp fails every
// strategy, or whose value cell does not coerce to a finite number, is
// dropped and counted in ParseStats; the counts surface in the run
// diagnostics. Timestamps are chosen per payload: the first strategy that
// parses at least one row wins for the whole file, so a file never mixes
// date interpretations.
package dataprocessing
