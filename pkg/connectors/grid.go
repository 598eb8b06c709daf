package connectors

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// tableFromGrid converts a generic query result into a frame. The date
// column is matched case-insensitively and renamed to the canonical "Date";
// Snowflake uppercases unquoted aliases and Redshift lowercases them.
func tableFromGrid(source string, header []string, grid [][]any) (*frame.Table, error) {
	if len(header) == 0 {
		return nil, wbrerr.New(wbrerr.KindData, source, "%s", ErrEmptyResult)
	}

	dateIdx := -1

	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), frame.DateColumn) {
			dateIdx = i

			break
		}
	}

	if dateIdx < 0 {
		return nil, wbrerr.New(wbrerr.KindData, source, "%s", ErrNoDateColumn)
	}

	dates := make([]time.Time, len(grid))

	for row, record := range grid {
		date, err := cellDate(record[dateIdx])
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindData, source, "row %d: %s", row+1, err)
		}

		dates[row] = date
	}

	columns := make([]frame.Column, 0, len(header)-1)

	for i, name := range header {
		if i == dateIdx {
			continue
		}

		columns = append(columns, buildGridColumn(strings.TrimSpace(name), i, grid))
	}

	return frame.New(dates, columns)
}

// buildGridColumn types a column numeric when every non-null cell converts
// to a number, text otherwise.
func buildGridColumn(name string, idx int, grid [][]any) frame.Column {
	numeric := make([]float64, len(grid))
	isNumeric := true

	for row, record := range grid {
		v, ok := cellNumber(record[idx])
		if !ok {
			isNumeric = false

			break
		}

		numeric[row] = v
	}

	if isNumeric {
		return frame.Column{Name: name, Numeric: numeric}
	}

	text := make([]string, len(grid))
	for row, record := range grid {
		text[row] = cellText(record[idx])
	}

	return frame.Column{Name: name, Text: text}
}

func cellDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case nil:
		return time.Time{}, fmt.Errorf("null date")
	default:
		return frame.ParseDate(cellText(v))
	}
}

// cellNumber converts a driver value to a float. Nulls become NaN so the
// aggregation layer can treat them as missing.
func cellNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		return parseNumericText(n)
	case []byte:
		return parseNumericText(string(n))
	}

	return 0, false
}

func parseNumericText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), true
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}
