package annotations

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wbr/pkg/frame"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseCSV(t *testing.T) {
	input := `Date,MetricName,EventDescription
2021-09-04,Impressions,Website outage
2021-09-10,Clicks,SEM test launched
`

	events, err := ParseCSV(strings.NewReader(input), "events.csv")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, day(2021, time.September, 4), events[0].Date)
	assert.Equal(t, "Impressions", events[0].MetricName)
	assert.Equal(t, "Website outage", events[0].EventDescription)
	assert.Equal(t, "September 04 2021", events[0].DisplayDate())
}

func TestParseCSVColumnOrder(t *testing.T) {
	input := `EventDescription,Date,MetricName
Holiday spike,25-Dec-2021,Orders
`

	events, err := ParseCSV(strings.NewReader(input), "events.csv")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Orders", events[0].MetricName)
	assert.Equal(t, day(2021, time.December, 25), events[0].Date)
}

func TestParseCSVMissingColumn(t *testing.T) {
	input := `Date,Metric
2021-09-04,Impressions
`

	_, err := ParseCSV(strings.NewReader(input), "events.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MetricName")
}

func TestFromTable(t *testing.T) {
	table, err := frame.New(
		[]time.Time{day(2021, time.September, 4)},
		[]frame.Column{
			{Name: "MetricName", Text: []string{"Impressions"}},
			{Name: "EventDescription", Text: []string{"Website outage"}},
		},
	)
	require.NoError(t, err)

	events, err := FromTable(table, "warehouse.events")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Impressions", events[0].MetricName)
}

func TestFromTableMissingColumn(t *testing.T) {
	table, err := frame.New(
		[]time.Time{day(2021, time.September, 4)},
		[]frame.Column{{Name: "MetricName", Text: []string{"Impressions"}}},
	)
	require.NoError(t, err)

	_, err = FromTable(table, "warehouse.events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EventDescription")
}

func TestResolveWindowAndDedup(t *testing.T) {
	weekEnding := day(2021, time.September, 25)
	resolves := func(name string) bool { return name != "Ghost" }

	events := []Event{
		// Inside the current-year window.
		{Date: day(2021, time.September, 4), MetricName: "Impressions", EventDescription: "first"},
		// Same metric, later in source order: wins.
		{Date: day(2021, time.September, 10), MetricName: "Impressions", EventDescription: "second"},
		// Prior-year window: Sep 26 2020 is the matching week ending.
		{Date: day(2020, time.September, 20), MetricName: "Clicks", EventDescription: "py event"},
		// Outside both windows.
		{Date: day(2021, time.June, 1), MetricName: "Clicks", EventDescription: "too old"},
		{Date: day(2020, time.June, 1), MetricName: "Clicks", EventDescription: "py too old"},
		// Unknown metric inside the window.
		{Date: day(2021, time.September, 22), MetricName: "Ghost", EventDescription: "dropped"},
	}

	set := Resolve(logrus.New(), events, weekEnding, resolves)

	require.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"Impressions", "Clicks"}, set.Metrics())

	imp, ok := set.For("Impressions")
	require.True(t, ok)
	assert.Equal(t, "second", imp.EventDescription)

	clicks, ok := set.For("Clicks")
	require.True(t, ok)
	assert.Equal(t, "py event", clicks.EventDescription)

	_, ok = set.For("Ghost")
	assert.False(t, ok)

	require.Len(t, set.EventErrors, 1)
	assert.Contains(t, set.EventErrors[0], "Ghost")
}

func TestResolveWindowEdges(t *testing.T) {
	weekEnding := day(2021, time.September, 25)
	resolves := func(string) bool { return true }

	events := []Event{
		// Oldest day of the six-week window: Aug 15 2021.
		{Date: day(2021, time.August, 15), MetricName: "A", EventDescription: "edge"},
		// One day before the window opens.
		{Date: day(2021, time.August, 14), MetricName: "B", EventDescription: "outside"},
		{Date: day(2021, time.September, 25), MetricName: "C", EventDescription: "week ending"},
	}

	set := Resolve(logrus.New(), events, weekEnding, resolves)

	_, ok := set.For("A")
	assert.True(t, ok)

	_, ok = set.For("B")
	assert.False(t, ok)

	_, ok = set.For("C")
	assert.True(t, ok)
}

func TestResolveNilSet(t *testing.T) {
	var set *Set

	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.Metrics())

	_, ok := set.For("anything")
	assert.False(t, ok)
}
