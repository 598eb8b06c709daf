// Package deck assembles the renderable deck document from materialized
// metric rollups. The emitted JSON is the stable wire format a renderer
// consumes without talking to the engine again.
package deck

// Plot styles emitted in block documents.
const (
	PlotStyleChart           = "6_12_chart"
	PlotStyleSixWeekTable    = "6_week_table"
	PlotStyleTwelveMonthsTbl = "12_MonthsTable"
	PlotStyleSection         = "section"
	PlotStyleEmbedded        = "embedded_content"
)

// WeekEndingDisplayLayout renders the deck-level week ending date.
const WeekEndingDisplayLayout = "02 January 2006"

// Document is a fully built deck.
type Document struct {
	Blocks              []any    `json:"blocks"`
	Title               string   `json:"title"`
	WeekEnding          string   `json:"weekEnding"`
	BlockStartingNumber int      `json:"blockStartingNumber"`
	XAxisMonthlyDisplay string   `json:"xAxisMonthlyDisplay,omitempty"`
	EventErrors         []string `json:"eventErrors,omitempty"`
}

// AxisValues is one padded value list keyed by axis name, either
// {"primaryAxis": [...]} or {"secondaryAxis": [...]}. Values are numbers
// with undefined slots rendered as empty strings.
type AxisValues map[string][]any

// MetricSeries carries the current-year and, when charted, prior-year
// padded value lists of one plotted metric.
type MetricSeries struct {
	Current  []AxisValues `json:"current"`
	Previous []AxisValues `json:"previous"`
}

// ChartSeries is one yAxis entry. A target line carries its series under
// Target instead of Metric and is excluded from the summary table.
type ChartSeries struct {
	LineStyle  string        `json:"lineStyle"`
	LegendName string        `json:"legendName"`
	Metric     *MetricSeries `json:"metric,omitempty"`
	Target     *MetricSeries `json:"Target,omitempty"`
}

// AxisRange is the snapped display range of one value axis.
type AxisRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Tick float64 `json:"tick"`
}

// SummaryTable is the box-totals table beneath a chart.
type SummaryTable struct {
	TableHeader []string   `json:"tableHeader"`
	TableBody   [][]string `json:"tableBody"`
}

// NoteworthyEvent is an annotation attached to a block.
type NoteworthyEvent struct {
	MetricName  string `json:"metricName"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// ChartBlock is the 6/12 chart document.
type ChartBlock struct {
	PlotStyle        string            `json:"plotStyle"`
	BlockNumber      int               `json:"blockNumber"`
	Title            string            `json:"title"`
	YLabel           string            `json:"yLabel"`
	YScale           string            `json:"yScale"`
	BoxTotalScale    string            `json:"boxTotalScale"`
	Axes             int               `json:"axes"`
	XAxis            []string          `json:"xAxis"`
	YAxis            []ChartSeries     `json:"yAxis"`
	PrimaryRange     *AxisRange        `json:"primaryAxisRange,omitempty"`
	SecondaryRange   *AxisRange        `json:"secondaryAxisRange,omitempty"`
	Table            SummaryTable      `json:"table"`
	Tooltip          string            `json:"tooltip"`
	NoteworthyEvents []NoteworthyEvent `json:"noteworthyEvents,omitempty"`
}

// TableRow is one row of a trailing table.
type TableRow struct {
	RowHeader string `json:"rowHeader"`
	RowData   []any  `json:"rowData"`
	RowStyle  string `json:"rowStyle"`
	YScale    string `json:"yScale"`
}

// TableBlock is a 6_week_table or 12_MonthsTable document.
type TableBlock struct {
	PlotStyle        string            `json:"plotStyle"`
	BlockNumber      int               `json:"blockNumber"`
	Title            string            `json:"title"`
	Headers          []string          `json:"headers"`
	Rows             []TableRow        `json:"rows"`
	NoteworthyEvents []NoteworthyEvent `json:"noteworthyEvents,omitempty"`
}

// SectionBlock is a divider between deck sections.
type SectionBlock struct {
	PlotStyle string `json:"plotStyle"`
	Title     string `json:"title"`
}

// EmbeddedBlock embeds external content into the deck.
type EmbeddedBlock struct {
	PlotStyle string `json:"plotStyle"`
	ID        string `json:"id"`
	Source    string `json:"source"`
	Name      string `json:"name"`
	Height    int    `json:"height"`
	Width     int    `json:"width"`
	Title     string `json:"title"`
}
