package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for CSV decoding.
var (
	ErrEmptyCSV       = errors.New("csv contains no header row")
	ErrBadDate        = errors.New("unparseable date")
	ErrDateNotFirst   = errors.New("first csv column must be Date")
	ErrRaggedCSVRow   = errors.New("csv row has wrong field count")
	ErrNoDataRowsCSV  = errors.New("csv contains no data rows")
	ErrDuplicateCol   = errors.New("duplicate column name")
	ErrBlankColumnCSV = errors.New("blank column name")
)

// Date layouts accepted across CSV files and DB results. Month names are
// matched case-insensitively.
var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-2006",
	"2-Jan-2006",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseDate parses a date-only value from any of the accepted layouts,
// truncating any time component.
func ParseDate(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	norm := normalizeMonth(raw)

	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, norm); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// normalizeMonth rewrites "25-SEP-2021" style month tokens to the Go layout
// casing "25-Sep-2021".
func normalizeMonth(s string) string {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[1]) != 3 {
		return s
	}

	m := parts[1]
	parts[1] = strings.ToUpper(m[:1]) + strings.ToLower(m[1:])

	return strings.Join(parts, "-")
}

// FromCSV decodes a daily table. The header's first column must be Date;
// remaining columns become numeric when every non-empty cell parses as a
// number, text otherwise.
func FromCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrEmptyCSV
	}

	header := records[0]
	if len(header) == 0 || strings.TrimSpace(header[0]) != DateColumn {
		return nil, ErrDateNotFirst
	}

	if len(records) == 1 {
		return nil, ErrNoDataRowsCSV
	}

	seen := make(map[string]bool, len(header))

	for _, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, ErrBlankColumnCSV
		}

		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCol, name)
		}

		seen[name] = true
	}

	rows := records[1:]
	dates := make([]time.Time, len(rows))
	cells := make([][]string, len(header)-1)

	for i := range cells {
		cells[i] = make([]string, len(rows))
	}

	for ri, rec := range rows {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d",
				ErrRaggedCSVRow, ri+2, len(rec), len(header))
		}

		d, err := ParseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", ri+2, err)
		}

		dates[ri] = d

		for ci := 1; ci < len(rec); ci++ {
			cells[ci-1][ri] = strings.TrimSpace(rec[ci])
		}
	}

	columns := make([]Column, len(header)-1)
	for ci := range columns {
		columns[ci] = buildColumn(strings.TrimSpace(header[ci+1]), cells[ci])
	}

	return New(dates, columns)
}

func buildColumn(name string, raw []string) Column {
	numeric := make([]float64, len(raw))
	isNumeric := true

	for i, cell := range raw {
		if cell == "" {
			numeric[i] = math.NaN()

			continue
		}

		v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
		if err != nil {
			isNumeric = false

			break
		}

		numeric[i] = v
	}

	if isNumeric {
		return Column{Name: name, Numeric: numeric}
	}

	return Column{Name: name, Text: raw}
}
