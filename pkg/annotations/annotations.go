// Package annotations loads noteworthy-event rows from CSV and database
// sources and narrows them to the events a deck can attach: rows inside the
// trailing six current-year or prior-year weeks, keyed by metric.
package annotations

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/calendar"
	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// Required columns of every annotation source.
const (
	ColumnDate        = "Date"
	ColumnMetricName  = "MetricName"
	ColumnDescription = "EventDescription"
)

// DisplayLayout renders event dates for the deck.
const DisplayLayout = "January 02 2006"

// Event is one noteworthy-event row.
type Event struct {
	Date             time.Time
	MetricName       string
	EventDescription string
}

// DisplayDate returns the event date the way decks show it.
func (e Event) DisplayDate() string {
	return e.Date.Format(DisplayLayout)
}

// ParseCSV reads annotation rows. The header must carry Date, MetricName and
// EventDescription in any column order.
func ParseCSV(r io.Reader, source string) ([]Event, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindAnnotation, source, "reading header: %s", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	for _, required := range []string{ColumnDate, ColumnMetricName, ColumnDescription} {
		if _, ok := idx[required]; !ok {
			return nil, wbrerr.New(wbrerr.KindAnnotation, source,
				"missing required column %q", required)
		}
	}

	var events []Event

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, wbrerr.New(wbrerr.KindAnnotation, source, "line %d: %s", line, err)
		}

		date, err := frame.ParseDate(record[idx[ColumnDate]])
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindAnnotation, source,
				"line %d: bad date %q", line, record[idx[ColumnDate]])
		}

		events = append(events, Event{
			Date:             date,
			MetricName:       strings.TrimSpace(record[idx[ColumnMetricName]]),
			EventDescription: record[idx[ColumnDescription]],
		})
	}

	return events, nil
}

// FromTable converts a query result into events. The query must alias its
// columns to Date, MetricName and EventDescription.
func FromTable(t *frame.Table, source string) ([]Event, error) {
	names, err := t.Column(ColumnMetricName)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindAnnotation, source,
			"query must return a %q column", ColumnMetricName)
	}

	descriptions, err := t.Column(ColumnDescription)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindAnnotation, source,
			"query must return a %q column", ColumnDescription)
	}

	if names.IsNumeric() || descriptions.IsNumeric() {
		return nil, wbrerr.New(wbrerr.KindAnnotation, source,
			"%s and %s must be text columns", ColumnMetricName, ColumnDescription)
	}

	events := make([]Event, t.NumRows())
	for i := range events {
		events[i] = Event{
			Date:             t.Dates[i],
			MetricName:       strings.TrimSpace(names.Text[i]),
			EventDescription: descriptions.Text[i],
		}
	}

	return events, nil
}

// Set is the resolved annotations of one run: at most one event per metric,
// plus the drop reasons for rows that referenced unknown metrics.
type Set struct {
	byMetric map[string]Event
	order    []string

	EventErrors []string
}

// For returns the surviving event for a metric.
func (s *Set) For(metric string) (Event, bool) {
	if s == nil {
		return Event{}, false
	}

	e, ok := s.byMetric[metric]

	return e, ok
}

// Metrics returns the metrics that kept an event, in first-seen order.
func (s *Set) Metrics() []string {
	if s == nil {
		return nil
	}

	return s.order
}

// Len returns the number of surviving events.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.byMetric)
}

// Resolve filters raw events to the run's window and metric set.
//
// An event survives when its date falls inside the trailing six current-year
// weeks or the matching prior-year weeks, and its metric resolves. When
// several surviving events share a metric the last one in source order wins.
func Resolve(log logrus.FieldLogger, events []Event, weekEnding time.Time, resolves func(name string) bool) *Set {
	set := &Set{byMetric: make(map[string]Event)}

	cyStart := calendar.WeekStart(calendar.WeekEnds(weekEnding, 6)[0])
	pyEnd := calendar.PriorYearWeekEnding(weekEnding)
	pyStart := calendar.WeekStart(calendar.WeekEnds(pyEnd, 6)[0])

	inWindow := func(d time.Time) bool {
		if !d.Before(cyStart) && !d.After(weekEnding) {
			return true
		}

		return !d.Before(pyStart) && !d.After(pyEnd)
	}

	for _, e := range events {
		if !inWindow(e.Date) {
			continue
		}

		if !resolves(e.MetricName) {
			msg := fmt.Sprintf("annotation for unknown metric %q on %s dropped",
				e.MetricName, e.Date.Format("2006-01-02"))
			set.EventErrors = append(set.EventErrors, msg)

			log.WithField("metric", e.MetricName).Warn("Dropping annotation for unknown metric")

			continue
		}

		if _, seen := set.byMetric[e.MetricName]; !seen {
			set.order = append(set.order, e.MetricName)
		}

		set.byMetric[e.MetricName] = e
	}

	return set
}
