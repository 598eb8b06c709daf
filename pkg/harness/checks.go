package harness

import (
	"math"
	"strconv"
	"strings"

	"github.com/ethpandaops/wbr/pkg/deck"
)

// checkChart diffs a 6/12 chart block against its golden values.
func (r *Runner) checkChart(tc *TestCase, block *deck.ChartBlock, test testSpec) {
	tc.BlockType = "SixTwelveChart"

	if test.XAxis != nil {
		tc.XAxis = checkStrings("axis label test failed", dropGap(block.XAxis), test.XAxis)
	}

	series := pickSeries(block.YAxis, test.SeriesName)

	switch {
	case series == nil && test.SeriesName != "":
		tc.CYSixWeeks = &Check{
			Result:         StatusFailed,
			FailureMessage: "no series legended " + test.SeriesName,
		}
	case series != nil:
		if test.CYSixWeeks != nil {
			tc.CYSixWeeks = checkValues("cy six weeks test failed",
				axisFloats(series.Current, 0, "primaryAxis")[:engineWeeks], test.CYSixWeeks)
		}

		if test.CYMonthly != nil {
			tc.CYTwelveMonths = checkValues("cy monthly test failed",
				monthlyFloats(series.Current), test.CYMonthly)
		}

		priorYear := test.GraphPriorYearFlag == nil || *test.GraphPriorYearFlag

		if priorYear && test.PYSixWeeks != nil && len(series.Previous) > 0 {
			tc.PYSixWeeks = checkValues("py six weeks test failed",
				axisFloats(series.Previous, 0, "primaryAxis")[:engineWeeks], test.PYSixWeeks)
		}

		if priorYear && test.PYMonthly != nil && len(series.Previous) > 0 {
			tc.PYTwelveMonths = checkValues("py monthly test failed",
				monthlyFloats(series.Previous), test.PYMonthly)
		}
	}

	if test.BoxTotals != nil && len(block.Table.TableBody) > 0 {
		tc.Summary = checkValues("box total test failed",
			parseCells(block.Table.TableBody[0]), test.BoxTotals)
	}

	if test.NoteworthyEvents != nil {
		calculated := make(map[string]string, len(block.NoteworthyEvents))
		for _, e := range block.NoteworthyEvents {
			calculated[e.MetricName] = e.Description
		}

		tc.Events = checkEvents(calculated, test.NoteworthyEvents)
	}
}

// pickSeries selects the plotted series a test case targets: the entry whose
// legend matches seriesName, or the first plotted entry when no name is
// given.
func pickSeries(entries []deck.ChartSeries, seriesName string) *deck.MetricSeries {
	var first *deck.MetricSeries

	for i := range entries {
		series := entries[i].Metric
		if series == nil {
			series = entries[i].Target
		}

		if series == nil {
			continue
		}

		if seriesName != "" && entries[i].LegendName == seriesName {
			return series
		}

		if first == nil {
			first = series
		}
	}

	if seriesName != "" {
		return nil
	}

	return first
}

// checkTable diffs a trailing table block against its golden values.
func (r *Runner) checkTable(tc *TestCase, block *deck.TableBlock, test testSpec) {
	tc.BlockType = "TrailingTable"

	if test.Headers != nil {
		tc.Headers = checkStrings("trailing table header test failed", block.Headers, test.Headers)
	}

	if test.Rows == nil {
		return
	}

	tc.Rows = &Check{Result: StatusSuccess}

	for _, row := range block.Rows {
		expected, ok := test.Rows[row.RowHeader]
		if !ok {
			continue
		}

		calculated := cellFloats(row.RowData)

		if !valuesMatch(calculated, expected) {
			tc.Rows = &Check{
				Result:         StatusFailed,
				FailureMessage: row.RowHeader + " test failed for table",
				Expected:       stringify(expected),
				Calculated:     stringify(calculated),
			}

			return
		}
	}
}

const engineWeeks = 6

// dropGap removes the spacer label between the weekly and monthly halves.
func dropGap(labels []string) []string {
	out := make([]string, 0, len(labels))

	for _, l := range labels {
		if l != " " {
			out = append(out, l)
		}
	}

	return out
}

// axisFloats extracts one padded axis list as floats, empty slots as NaN.
func axisFloats(axes []deck.AxisValues, index int, key string) []float64 {
	if index >= len(axes) {
		return nil
	}

	return cellFloats(axes[index][key])
}

// monthlyFloats extracts the monthly values behind the 7-slot weekly pad.
func monthlyFloats(axes []deck.AxisValues) []float64 {
	values := axisFloats(axes, 1, "secondaryAxis")
	if len(values) <= engineWeeks+1 {
		return nil
	}

	return values[engineWeeks+1:]
}

func cellFloats(cells []any) []float64 {
	out := make([]float64, len(cells))

	for i, cell := range cells {
		switch v := cell.(type) {
		case float64:
			out[i] = v
		case int:
			out[i] = float64(v)
		case string:
			out[i] = parseCell(v)
		default:
			out[i] = math.NaN()
		}
	}

	return out
}

// parseCells converts a formatted summary row to floats, stripping the
// display units so golden values can be plain numbers.
func parseCells(cells []string) []float64 {
	out := make([]float64, len(cells))

	for i, cell := range cells {
		out[i] = parseCell(cell)
	}

	return out
}

func parseCell(cell string) float64 {
	s := strings.TrimSpace(cell)
	for _, unit := range []string{"%", "bps", "BB", "MM", "KK", "B", "M", "K"} {
		s = strings.TrimSuffix(s, unit)
	}

	s = strings.ReplaceAll(s, ",", "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}

	return v
}

func checkStrings(message string, calculated, expected []string) *Check {
	if len(calculated) == len(expected) {
		match := true

		for i := range expected {
			if calculated[i] != expected[i] {
				match = false

				break
			}
		}

		if match {
			return &Check{Result: StatusSuccess}
		}
	}

	return &Check{
		Result:         StatusFailed,
		FailureMessage: message,
		Expected:       expected,
		Calculated:     calculated,
	}
}

func checkEvents(calculated, expected map[string]string) *Check {
	match := len(calculated) == len(expected)

	for metric, description := range expected {
		if calculated[metric] != description {
			match = false
		}
	}

	if match {
		return &Check{Result: StatusSuccess}
	}

	return &Check{
		Result:         StatusFailed,
		FailureMessage: "noteworthy events test failed",
		Expected:       expected,
		Calculated:     calculated,
	}
}

func checkValues(message string, calculated, expected []float64) *Check {
	if valuesMatch(calculated, expected) {
		return &Check{Result: StatusSuccess}
	}

	return &Check{
		Result:         StatusFailed,
		FailureMessage: message,
		Expected:       stringify(expected),
		Calculated:     stringify(calculated),
	}
}

func valuesMatch(calculated, expected []float64) bool {
	if len(calculated) != len(expected) {
		return false
	}

	for i := range expected {
		if !nearlyEqual(calculated[i], expected[i]) {
			return false
		}
	}

	return true
}

// nearlyEqual compares to two decimal places so golden values survive
// formatting round trips.
func nearlyEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) == math.IsNaN(b)
	}

	if a == b {
		return true
	}

	return math.Abs(a-b) < 0.005
}

// stringify renders values for the result payload, keeping NaN readable in
// JSON.
func stringify(values []float64) []string {
	out := make([]string, len(values))

	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = "nan"
		} else {
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	return out
}
