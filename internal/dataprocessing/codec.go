package dataprocessing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	apperrors "emicli/internal/errors"
	"emicli/pkg/contracts/domain"
)

// The merged-table cache artifact is itself a CSV so it can be inspected
// with the same tooling as the exports. Values round-trip exactly: the
// shortest decimal form of a float64 re-parses to the identical bits.
var unifiedTableHeader = []string{"timestamp", "series_id", "value"}

// EncodeUnifiedTable renders the table in the cache-artifact layout.
func EncodeUnifiedTable(table domain.UnifiedTable) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(unifiedTableHeader); err != nil {
		return nil, apperrors.NewStorageError("failed to write unified table header", err)
	}
	for _, record := range table {
		row := []string{
			record.Timestamp.UTC().Format(time.RFC3339),
			record.SeriesID,
			strconv.FormatFloat(record.Value, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, apperrors.NewStorageError("failed to write unified table row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.NewStorageError("failed to flush unified table", err)
	}
	return buf.Bytes(), nil
}

// DecodeUnifiedTable reads a cache artifact back into a unified table. A
// payload that does not carry the expected header is rejected rather than
// silently parsed, so stale artifacts from older layouts never poison a run.
func DecodeUnifiedTable(payload []byte) (domain.UnifiedTable, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = 3

	rows, err := r.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("cache artifact is not a valid CSV", err)
	}
	if len(rows) == 0 || !headerMatches(rows[0]) {
		return nil, apperrors.NewParsingError("cache artifact has an unexpected header", nil)
	}

	table := make(domain.UnifiedTable, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("cache artifact row %d has a bad timestamp", i+1), err)
		}
		value, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("cache artifact row %d has a bad value", i+1), err)
		}
		table = append(table, domain.SeriesRecord{
			Timestamp: ts,
			SeriesID:  row[1],
			Value:     value,
		})
	}
	return table, nil
}

func headerMatches(row []string) bool {
	if len(row) != len(unifiedTableHeader) {
		return false
	}
	for i, cell := range unifiedTableHeader {
		if row[i] != cell {
			return false
		}
	}
	return true
}
