// Package ingest reads building tables and outline collections and writes merged results.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
)

// ErrEmptyTable is returned when a table has no header line
var ErrEmptyTable = errors.New("table is empty: first line must be a header")

// RowError describes a table line that could not become a Row
type RowError struct {
	Line    int
	Columns []string
	Reason  string
}

func (e RowError) Error() string {
	return fmt.Sprintf("bad line %d: %s (%s)", e.Line, strings.Join(e.Columns, ","), e.Reason)
}

// Table is a parsed building table. Bad lines are collected, not fatal.
type Table struct {
	Header []string
	Rows   []buildings.Row
	Errors []RowError
}

// ReadTable parses a comma-separated building table with a header line.
// Blank lines are skipped; every other line becomes a Row or a RowError.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read table header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) == 0 || (len(header) == 1 && header[0] == "") {
		return nil, ErrEmptyTable
	}

	table := &Table{Header: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				table.Errors = append(table.Errors, RowError{Line: parseErr.StartLine, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("failed to read table: %w", err)
		}

		line, _ := cr.FieldPos(0)
		row, err := buildings.ParseRow(record, line)
		if err != nil {
			table.Errors = append(table.Errors, RowError{Line: line, Columns: record, Reason: err.Error()})
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ReadTableFile reads a table from path, decompressing by extension
func ReadTableFile(path string, logger *slog.Logger) (*Table, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(r, logger, "table_file")

	table, err := ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, rowErr := range table.Errors {
		logging.LogWarning(logger, "skipping bad table line",
			slog.Int("line", rowErr.Line),
			slog.String("reason", rowErr.Reason))
	}
	logging.LogOperation(logger, "table_loaded",
		slog.String("path", path),
		slog.Int("rows", len(table.Rows)),
		slog.Int("bad_lines", len(table.Errors)))
	return table, nil
}
