// Package frame holds the date-indexed daily tables the pipeline operates
// on: CSV decoding, source merging and row filtering.
package frame

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateColumn is the canonical name of the date index column every source
// must provide.
const DateColumn = "Date"

// Sentinel errors for table operations.
var (
	ErrMissingDateColumn = errors.New("table must contain a Date column")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrLengthMismatch    = errors.New("column length does not match date count")
)

// Column is a named column of a table. Exactly one of Numeric or Text is
// populated; numeric gaps are NaN, text gaps are empty strings.
type Column struct {
	Name    string
	Numeric []float64
	Text    []string
}

// IsNumeric reports whether the column holds numbers.
func (c *Column) IsNumeric() bool {
	return c.Numeric != nil
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	if c.IsNumeric() {
		return len(c.Numeric)
	}

	return len(c.Text)
}

// Table is daily data indexed by date. Dates may repeat; duplicate rows are
// combined later by metric aggregation.
type Table struct {
	Dates   []time.Time
	Columns []Column

	byName map[string]int
}

// New assembles a table from dates and columns, validating lengths and
// rejecting repeated column names.
func New(dates []time.Time, columns []Column) (*Table, error) {
	t := &Table{Dates: dates, Columns: columns}

	seen := make(map[string]bool, len(columns))

	for i := range columns {
		if columns[i].Len() != len(dates) {
			return nil, fmt.Errorf("%w: column %q has %d values for %d dates",
				ErrLengthMismatch, columns[i].Name, columns[i].Len(), len(dates))
		}

		if seen[columns[i].Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCol, columns[i].Name)
		}

		seen[columns[i].Name] = true
	}

	t.reindex()

	return t, nil
}

func (t *Table) reindex() {
	t.byName = make(map[string]int, len(t.Columns))
	for i := range t.Columns {
		t.byName[t.Columns[i].Name] = i
	}
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return len(t.Dates)
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}

	return &t.Columns[i], nil
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]

	return ok
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i := range t.Columns {
		names[i] = t.Columns[i].Name
	}

	return names
}

// SortByDate returns a copy of the table with rows in ascending date order.
// The sort is stable so duplicate dates keep their source order.
func (t *Table) SortByDate() *Table {
	order := make([]int, t.NumRows())
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return t.Dates[order[a]].Before(t.Dates[order[b]])
	})

	return t.take(order)
}

// FilterRows returns a table holding only the rows where keep returns true.
func (t *Table) FilterRows(keep func(row int) bool) *Table {
	order := make([]int, 0, t.NumRows())

	for i := 0; i < t.NumRows(); i++ {
		if keep(i) {
			order = append(order, i)
		}
	}

	return t.take(order)
}

func (t *Table) take(rows []int) *Table {
	out := &Table{
		Dates:   make([]time.Time, len(rows)),
		Columns: make([]Column, len(t.Columns)),
	}

	for i, r := range rows {
		out.Dates[i] = t.Dates[r]
	}

	for ci := range t.Columns {
		src := &t.Columns[ci]
		dst := Column{Name: src.Name}

		if src.IsNumeric() {
			dst.Numeric = make([]float64, len(rows))
			for i, r := range rows {
				dst.Numeric[i] = src.Numeric[r]
			}
		} else {
			dst.Text = make([]string, len(rows))
			for i, r := range rows {
				dst.Text[i] = src.Text[r]
			}
		}

		out.Columns[ci] = dst
	}

	out.reindex()

	return out
}

// NaN is the numeric gap marker.
func NaN() float64 {
	return math.NaN()
}
