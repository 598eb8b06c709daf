package deck

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wbr/pkg/annotations"
	"github.com/ethpandaops/wbr/pkg/config"
	"github.com/ethpandaops/wbr/pkg/engine"
	"github.com/ethpandaops/wbr/pkg/frame"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func onesTable(t *testing.T) *frame.Table {
	t.Helper()

	var (
		dates  []time.Time
		values []float64
	)

	for d := day(2020, time.January, 1); !d.After(day(2021, time.September, 25)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
		values = append(values, 1)
	}

	table, err := frame.New(dates, []frame.Column{{Name: "ads.value", Numeric: values}})
	require.NoError(t, err)

	return table
}

const deckYAML = `
setup:
  weekEnding: 25-SEP-2021
  title: Marketing Review
metrics:
  Daily:
    column: ads.value
    aggf: sum
deck:
  - block:
      uiType: section
      title: Traffic
  - block:
      uiType: 6_12Graph
      title: Daily 6/12
      yScaling: "##"
      metrics:
        Daily: {}
  - block:
      uiType: 6_WeeksTable
      title: Weekly detail
      rows:
        - row:
            header: Daily
            metric: Daily
        - row:
            header: spacer
        - row:
            header: Daily WoW
            metric: DailyWOW
  - block:
      uiType: 12_MonthsTable
      title: Monthly detail
      rows:
        - row:
            header: Daily
            metric: Daily
  - block:
      uiType: embedded_content
      title: Dashboard
      source: https://example.com/dash
      width: 640px
      height: 480px
`

func buildDeck(t *testing.T, yamlText string, events *annotations.Set) *Document {
	t.Helper()

	cfg, err := config.Load([]byte(yamlText))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	eng, err := engine.New(logrus.New(), cfg, onesTable(t))
	require.NoError(t, err)
	require.NoError(t, eng.Materialize())

	doc, err := NewBuilder(logrus.New(), cfg, eng, events).Build()
	require.NoError(t, err)

	return doc
}

func TestBuildDocument(t *testing.T) {
	doc := buildDeck(t, deckYAML, nil)

	assert.Equal(t, "Marketing Review", doc.Title)
	assert.Equal(t, "25 September 2021", doc.WeekEnding)
	assert.Equal(t, 1, doc.BlockStartingNumber)
	require.Len(t, doc.Blocks, 5)

	section, ok := doc.Blocks[0].(*SectionBlock)
	require.True(t, ok)
	assert.Equal(t, PlotStyleSection, section.PlotStyle)
	assert.Equal(t, "Traffic", section.Title)

	// Chart and table blocks advance the numbering; sections and embedded
	// content do not.
	chart := doc.Blocks[1].(*ChartBlock)
	assert.Equal(t, 1, chart.BlockNumber)
	assert.Equal(t, 2, doc.Blocks[2].(*TableBlock).BlockNumber)
	assert.Equal(t, 3, doc.Blocks[3].(*TableBlock).BlockNumber)

	embedded := doc.Blocks[4].(*EmbeddedBlock)
	assert.Equal(t, PlotStyleEmbedded, embedded.PlotStyle)
	assert.Equal(t, "iframe_id", embedded.ID)
	assert.Equal(t, 640, embedded.Width)
	assert.Equal(t, 480, embedded.Height)
}

func TestBuildChartBlock(t *testing.T) {
	doc := buildDeck(t, deckYAML, nil)
	chart := doc.Blocks[1].(*ChartBlock)

	assert.Equal(t, PlotStyleChart, chart.PlotStyle)
	assert.Equal(t, "Daily 6/12", chart.Title)
	assert.Equal(t, "##", chart.YScale)
	assert.Equal(t, "false", chart.Tooltip)

	// Six week labels, a separator, twelve months.
	require.Len(t, chart.XAxis, 19)
	assert.Equal(t, "wk 33", chart.XAxis[0])
	assert.Equal(t, "wk 38", chart.XAxis[5])
	assert.Equal(t, " ", chart.XAxis[6])
	assert.Equal(t, "Sep", chart.XAxis[7])
	assert.Equal(t, "Aug", chart.XAxis[18])

	require.Len(t, chart.YAxis, 1)
	series := chart.YAxis[0]
	assert.Equal(t, "primary", series.LineStyle)
	assert.Equal(t, "Daily", series.LegendName)
	require.NotNil(t, series.Metric)
	assert.Nil(t, series.Target)

	require.Len(t, series.Metric.Current, 2)

	primary := series.Metric.Current[0]["primaryAxis"]
	require.Len(t, primary, 19)
	assert.Equal(t, 7.0, primary[0])
	assert.Equal(t, 7.0, primary[5])
	assert.Equal(t, "", primary[6])
	assert.Equal(t, "", primary[18])

	secondary := series.Metric.Current[1]["secondaryAxis"]
	require.Len(t, secondary, 19)
	assert.Equal(t, "", secondary[0])
	assert.Equal(t, "", secondary[6])
	assert.Equal(t, 30.0, secondary[7])
	assert.Equal(t, 31.0, secondary[18])

	// graphPriorYearFlag defaults to true.
	require.Len(t, series.Metric.Previous, 2)
	assert.Equal(t, 7.0, series.Metric.Previous[0]["primaryAxis"][0])

	// Monthly peak of 31 dwarfs the weekly 7, so two axes.
	assert.Equal(t, 2, chart.Axes)

	require.Equal(t, SummaryHeader, chart.Table.TableHeader)
	require.Len(t, chart.Table.TableBody, 1)

	row := chart.Table.TableBody[0]
	require.Len(t, row, 9)
	assert.Equal(t, "Daily", row[0])
	assert.Equal(t, "7", row[1])
	assert.Equal(t, "0.00%", row[2])
	assert.Equal(t, "25", row[3])
	assert.Equal(t, "-3.85%", row[4])
	assert.Equal(t, "87", row[5])
	assert.Equal(t, "268", row[7])
}

func TestBuildChartAxisRanges(t *testing.T) {
	doc := buildDeck(t, deckYAML, nil)
	chart := doc.Blocks[1].(*ChartBlock)

	// Flat weekly 7s snap to [6, 8] with a tick of 2.
	require.NotNil(t, chart.PrimaryRange)
	assert.InDelta(t, 6, chart.PrimaryRange.Min, 1e-9)
	assert.InDelta(t, 8, chart.PrimaryRange.Max, 1e-9)
	assert.InDelta(t, 2, chart.PrimaryRange.Tick, 1e-9)

	// Month lengths span 28 to 31; both edges sit on the snap and expand.
	require.NotNil(t, chart.SecondaryRange)
	assert.InDelta(t, 27, chart.SecondaryRange.Min, 1e-9)
	assert.InDelta(t, 32, chart.SecondaryRange.Max, 1e-9)
	assert.InDelta(t, 1, chart.SecondaryRange.Tick, 1e-9)
}

func TestBuildSixWeeksTable(t *testing.T) {
	doc := buildDeck(t, deckYAML, nil)
	table := doc.Blocks[2].(*TableBlock)

	assert.Equal(t, PlotStyleSixWeekTable, table.PlotStyle)
	assert.Equal(t, []string{"wk 33", "wk 34", "wk 35", "wk 36", "wk 37", "wk 38", "QTD", "YTD"}, table.Headers)
	require.Len(t, table.Rows, 3)

	daily := table.Rows[0]
	assert.Equal(t, "Daily", daily.RowHeader)
	require.Len(t, daily.RowData, 8)
	assert.Equal(t, 7.0, daily.RowData[0])
	assert.Equal(t, 87.0, daily.RowData[6])
	assert.Equal(t, 268.0, daily.RowData[7])

	// A row without a metric stays blank at full width.
	spacer := table.Rows[1]
	require.Len(t, spacer.RowData, 8)
	assert.Equal(t, " ", spacer.RowData[0])

	// Week-over-week rows leave the period totals blank.
	wow := table.Rows[2]
	require.Len(t, wow.RowData, 8)
	assert.Equal(t, 0.0, wow.RowData[0])
	assert.Equal(t, 0.0, wow.RowData[5])
	assert.Equal(t, " ", wow.RowData[6])
	assert.Equal(t, " ", wow.RowData[7])
}

func TestBuildTwelveMonthsTable(t *testing.T) {
	doc := buildDeck(t, deckYAML, nil)
	table := doc.Blocks[3].(*TableBlock)

	assert.Equal(t, PlotStyleTwelveMonthsTbl, table.PlotStyle)
	require.Len(t, table.Headers, 12)
	assert.Equal(t, "Sep", table.Headers[0])
	assert.Equal(t, "Aug", table.Headers[11])

	require.Len(t, table.Rows, 1)
	require.Len(t, table.Rows[0].RowData, 12)
	assert.Equal(t, 30.0, table.Rows[0].RowData[0])
	assert.Equal(t, 31.0, table.Rows[0].RowData[11])
}

func TestBuildFiscalYearMonthsTable(t *testing.T) {
	doc := buildDeck(t, `
setup:
  weekEnding: 25-SEP-2021
  title: Fiscal
  fiscalYearEndMonth: JUN
metrics:
  Daily:
    column: ads.value
    aggf: sum
deck:
  - block:
      uiType: 12_MonthsTable
      xAxisMonthlyDisplay: fiscal_year
      rows:
        - row:
            metric: Daily
`, nil)

	table := doc.Blocks[0].(*TableBlock)

	// Fiscal year starts in July; months past the data window stay blank.
	require.Len(t, table.Headers, 12)
	assert.Equal(t, "Jul", table.Headers[0])
	assert.Equal(t, "Jun", table.Headers[11])

	row := table.Rows[0].RowData
	require.Len(t, row, 12)
	assert.Equal(t, 31.0, row[0])
	assert.Equal(t, 31.0, row[1])
	assert.Equal(t, " ", row[2])
	assert.Equal(t, " ", row[11])
}

func TestBuildAttachesAnnotations(t *testing.T) {
	events := annotations.Resolve(logrus.New(), []annotations.Event{
		{Date: day(2021, time.September, 10), MetricName: "Daily", EventDescription: "Website outage"},
		{Date: day(2021, time.September, 12), MetricName: "Ghost", EventDescription: "dropped"},
	}, day(2021, time.September, 25), func(name string) bool { return name == "Daily" })

	doc := buildDeck(t, deckYAML, events)

	chart := doc.Blocks[1].(*ChartBlock)
	require.Len(t, chart.NoteworthyEvents, 1)
	assert.Equal(t, "Daily", chart.NoteworthyEvents[0].MetricName)
	assert.Equal(t, "September 10 2021", chart.NoteworthyEvents[0].Date)
	assert.Equal(t, "Website outage", chart.NoteworthyEvents[0].Description)

	weekly := doc.Blocks[2].(*TableBlock)
	require.Len(t, weekly.NoteworthyEvents, 1)

	require.Len(t, doc.EventErrors, 1)
	assert.Contains(t, doc.EventErrors[0], "Ghost")
}

func TestBuildTargetLineStyle(t *testing.T) {
	doc := buildDeck(t, `
setup:
  weekEnding: 25-SEP-2021
  title: Targets
metrics:
  Daily:
    column: ads.value
    aggf: sum
  Goal:
    function:
      product:
        - metric:
            name: Daily
        - value:
            n: 1.2
deck:
  - block:
      uiType: 6_12Graph
      metrics:
        Daily: {}
        Goal:
          lineStyle: target
          graphPriorYearFlag: false
`, nil)

	chart := doc.Blocks[0].(*ChartBlock)
	require.Len(t, chart.YAxis, 2)

	goal := chart.YAxis[1]
	assert.Equal(t, "target", goal.LineStyle)
	require.NotNil(t, goal.Target)
	assert.Nil(t, goal.Metric)
	assert.Empty(t, goal.Target.Previous)

	// Target lines never join the summary table.
	require.Len(t, chart.Table.TableBody, 1)
	assert.Equal(t, "Daily", chart.Table.TableBody[0][0])
}

func TestDocumentSerializesWithoutNaN(t *testing.T) {
	doc := buildDeck(t, deckYAML, nil)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "NaN")
}
