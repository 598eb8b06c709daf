// Package calendar provides the date arithmetic behind trailing windows,
// prior-year alignment and fiscal periods.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// PriorYearOffsetDays is the weekday-preserving offset between a week ending
// date and its prior-year counterpart (52 whole weeks).
const PriorYearOffsetDays = 364

// ErrInvalidMonth is returned when a fiscal month is outside 1..12.
var ErrInvalidMonth = errors.New("month must be between 1 and 12")

// PriorYearWeekEnding returns the week ending date exactly 52 weeks before
// weekEnding, landing on the same weekday.
func PriorYearWeekEnding(weekEnding time.Time) time.Time {
	return weekEnding.AddDate(0, 0, -PriorYearOffsetDays)
}

// WeekEnds returns n week ending dates spaced 7 days apart, oldest first,
// with the last element equal to weekEnding.
func WeekEnds(weekEnding time.Time, n int) []time.Time {
	ends := make([]time.Time, n)
	for i := 0; i < n; i++ {
		ends[i] = weekEnding.AddDate(0, 0, -7*(n-1-i))
	}

	return ends
}

// WeekStart returns the first day of the 7-day week ending at weekEnd.
func WeekStart(weekEnd time.Time) time.Time {
	return weekEnd.AddDate(0, 0, -6)
}

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthEnd returns the last day of t's month.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// IsLastDayOfMonth reports whether d is the final day of its month.
func IsLastDayOfMonth(d time.Time) bool {
	return d.Day() == MonthEnd(d).Day()
}

// LastFullMonthEnd returns the end of the most recent complete calendar month
// as of weekEnding. When weekEnding itself is a month end that month counts
// as complete.
func LastFullMonthEnd(weekEnding time.Time) time.Time {
	if IsLastDayOfMonth(weekEnding) {
		return weekEnding
	}

	return MonthStart(weekEnding).AddDate(0, 0, -1)
}

// MonthEnds returns the ends of the n trailing complete months as of
// weekEnding, oldest first.
func MonthEnds(weekEnding time.Time, n int) []time.Time {
	last := LastFullMonthEnd(weekEnding)
	ends := make([]time.Time, n)

	for i := 0; i < n; i++ {
		ends[i] = MonthEnd(MonthStart(last).AddDate(0, -(n - 1 - i), 0))
	}

	return ends
}

// FiscalYearStart returns the first day of the fiscal year containing d,
// where the fiscal year ends on the last day of month endMonth.
func FiscalYearStart(d time.Time, endMonth time.Month) time.Time {
	startMonth := endMonth%12 + 1

	start := time.Date(d.Year(), startMonth, 1, 0, 0, 0, 0, d.Location())
	if start.After(d) {
		start = start.AddDate(-1, 0, 0)
	}

	return start
}

// FiscalQuarterStart returns the first day of the fiscal quarter containing
// d, where quarters are anchored to the fiscal year ending in endMonth.
func FiscalQuarterStart(d time.Time, endMonth time.Month) time.Time {
	start := FiscalYearStart(d, endMonth)
	for !start.AddDate(0, 3, 0).After(d) {
		start = start.AddDate(0, 3, 0)
	}

	return start
}

// ISOWeek returns the ISO 8601 week number of d.
func ISOWeek(d time.Time) int {
	_, week := d.ISOWeek()

	return week
}

// WeekLabels produces the six trailing week labels for the chart x-axis,
// oldest first. weekNumber is the 1-52 week number of the final week.
func WeekLabels(weekNumber int) []string {
	labels := make([]string, 0, 6)
	for i := 6; i > 0; i-- {
		n := (weekNumber-i)%52 + 1
		if n <= 0 {
			n += 52
		}

		labels = append(labels, fmt.Sprintf("wk %d", n))
	}

	return labels
}

// MonthLabels produces n month abbreviation labels ending at the last full
// month before weekEnding, oldest first.
func MonthLabels(weekEnding time.Time, n int) []string {
	first := MonthStart(LastFullMonthEnd(weekEnding)).AddDate(0, -(n - 1), 0)

	labels := make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = first.AddDate(0, i, 0).Month().String()[:3]
	}

	return labels
}

// AxisLabels builds the full 19-slot x-axis for a 6/12 chart: six week
// labels, one separator slot, then twelve month abbreviations.
func AxisLabels(weekEnding time.Time, weekNumber int) []string {
	labels := make([]string, 0, 19)
	labels = append(labels, WeekLabels(weekNumber)...)
	labels = append(labels, " ")
	labels = append(labels, MonthLabels(weekEnding, 12)...)

	return labels
}

// ValidateFiscalMonth checks a fiscal year end month is within 1..12.
func ValidateFiscalMonth(m int) error {
	if m < 1 || m > 12 {
		return fmt.Errorf("%w: got %d", ErrInvalidMonth, m)
	}

	return nil
}
