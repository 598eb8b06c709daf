package frame

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoSources is returned when a merge is attempted with no input tables.
var ErrNoSources = errors.New("no sources to merge")

// Source pairs a table with the alias its columns are namespaced under.
type Source struct {
	Alias string
	Table *Table
}

// Merge outer-joins the sources on Date into one master table. Every
// non-Date column is renamed to "alias.column". The first row per date in a
// source joins against the other sources; additional rows for the same date
// are appended with gaps in every other source's columns.
func Merge(sources []Source) (*Table, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	type part struct {
		alias   string
		table   *Table
		joinRow map[time.Time]int
		extras  []int
	}

	parts := make([]part, len(sources))
	dateSet := make(map[time.Time]bool)

	for i, src := range sources {
		p := part{
			alias:   src.Alias,
			table:   src.Table,
			joinRow: make(map[time.Time]int, src.Table.NumRows()),
		}

		for r := 0; r < src.Table.NumRows(); r++ {
			d := src.Table.Dates[r]
			if _, dup := p.joinRow[d]; dup {
				p.extras = append(p.extras, r)

				continue
			}

			p.joinRow[d] = r
			dateSet[d] = true
		}

		parts[i] = p
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}

	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })

	extraCount := 0
	for i := range parts {
		extraCount += len(parts[i].extras)
	}

	total := len(dates) + extraCount
	outDates := make([]time.Time, 0, total)
	outDates = append(outDates, dates...)

	for i := range parts {
		for _, r := range parts[i].extras {
			outDates = append(outDates, parts[i].table.Dates[r])
		}
	}

	var outColumns []Column

	extraOffset := len(dates)

	for pi := range parts {
		p := &parts[pi]

		for ci := range p.table.Columns {
			src := &p.table.Columns[ci]
			name := fmt.Sprintf("%s.%s", p.alias, src.Name)

			col := Column{Name: name}
			if src.IsNumeric() {
				col.Numeric = make([]float64, total)
				for i := range col.Numeric {
					col.Numeric[i] = NaN()
				}

				for i, d := range dates {
					if r, ok := p.joinRow[d]; ok {
						col.Numeric[i] = src.Numeric[r]
					}
				}
			} else {
				col.Text = make([]string, total)

				for i, d := range dates {
					if r, ok := p.joinRow[d]; ok {
						col.Text[i] = src.Text[r]
					}
				}
			}

			outColumns = append(outColumns, col)
		}

		// This source's duplicate-date rows carry values only in its own
		// columns.
		for ei, r := range p.extras {
			row := extraOffset + ei

			for ci := range p.table.Columns {
				src := &p.table.Columns[ci]
				dst := &outColumns[len(outColumns)-len(p.table.Columns)+ci]

				if src.IsNumeric() {
					dst.Numeric[row] = src.Numeric[r]
				} else {
					dst.Text[row] = src.Text[r]
				}
			}
		}

		extraOffset += len(p.extras)
	}

	merged, err := New(outDates, outColumns)
	if err != nil {
		return nil, err
	}

	return merged.SortByDate(), nil
}
