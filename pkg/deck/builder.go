package deck

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/annotations"
	"github.com/ethpandaops/wbr/pkg/calendar"
	"github.com/ethpandaops/wbr/pkg/config"
	"github.com/ethpandaops/wbr/pkg/engine"
	"github.com/ethpandaops/wbr/pkg/format"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// SummaryHeader is the fixed column set of the box-totals table.
var SummaryHeader = []string{"Metric", "LastWk", "YOY", "MTD", "YOY", "QTD", "YOY", "YTD", "YOY"}

// Builder walks the declared deck and produces the deck document.
type Builder struct {
	log    logrus.FieldLogger
	cfg    *config.Config
	eng    *engine.Engine
	events *annotations.Set
}

// NewBuilder wires a builder over a materialized engine. The annotation set
// may be nil when the run declares no annotation sources.
func NewBuilder(log logrus.FieldLogger, cfg *config.Config, eng *engine.Engine, events *annotations.Set) *Builder {
	return &Builder{
		log:    log.WithField("component", "deck"),
		cfg:    cfg,
		eng:    eng,
		events: events,
	}
}

// Build produces the complete deck document, emitting blocks in declaration
// order. Chart and trailing-table blocks advance the block number counter;
// sections and embedded content do not.
func (b *Builder) Build() (*Document, error) {
	doc := &Document{
		Blocks:              []any{},
		Title:               b.cfg.Setup.Title,
		WeekEnding:          b.eng.WeekEnding().Format(WeekEndingDisplayLayout),
		BlockStartingNumber: b.cfg.Setup.BlockStartingNumber,
		XAxisMonthlyDisplay: b.cfg.Setup.XAxisMonthlyDisplay,
	}

	if b.events != nil {
		doc.EventErrors = b.events.EventErrors
	}

	blockNumber := b.cfg.Setup.BlockStartingNumber

	for i := range b.cfg.Deck {
		block := &b.cfg.Deck[i].Block
		path := fmt.Sprintf("deck[%d]", i)

		switch block.UIType {
		case config.UIType612Graph:
			chart, err := b.buildChart(path, block, blockNumber)
			if err != nil {
				return nil, err
			}

			doc.Blocks = append(doc.Blocks, chart)
			blockNumber++
		case config.UIType6WeeksTable:
			table, err := b.buildSixWeeksTable(path, block, blockNumber)
			if err != nil {
				return nil, err
			}

			doc.Blocks = append(doc.Blocks, table)
			blockNumber++
		case config.UIType12MonthsTable:
			table, err := b.buildTwelveMonthsTable(path, block, blockNumber)
			if err != nil {
				return nil, err
			}

			doc.Blocks = append(doc.Blocks, table)
			blockNumber++
		case config.UITypeSection:
			doc.Blocks = append(doc.Blocks, &SectionBlock{PlotStyle: PlotStyleSection, Title: block.Title})
		case config.UITypeEmbeddedContent:
			embedded, err := buildEmbedded(path, block)
			if err != nil {
				return nil, err
			}

			doc.Blocks = append(doc.Blocks, embedded)
		default:
			return nil, wbrerr.New(wbrerr.KindConfig, path+".uiType", "unknown uiType %q", block.UIType)
		}
	}

	b.log.WithField("blocks", len(doc.Blocks)).Info("Built deck document")

	return doc, nil
}

// monthlyDisplay resolves a block's monthly display mode against the
// deck-level default.
func (b *Builder) monthlyDisplay(block *config.BlockConfig) string {
	if block.XAxisMonthlyDisplay != "" {
		return block.XAxisMonthlyDisplay
	}

	if b.cfg.Setup.XAxisMonthlyDisplay != "" {
		return b.cfg.Setup.XAxisMonthlyDisplay
	}

	return config.DisplayTrailingTwelveMonths
}

// monthOffset returns how many leading monthly slots a fiscal-year display
// drops. A trailing display keeps all twelve.
func (b *Builder) monthOffset(display string) int {
	if display != config.DisplayFiscalYear {
		return 0
	}

	fyStart := time.Month(int(b.eng.FiscalMonth())%12 + 1)
	monthEnds := calendar.MonthEnds(b.eng.WeekEnding(), engine.NumMonths)

	for i, m := range monthEnds {
		if m.Month() == fyStart {
			return i
		}
	}

	return engine.NumMonths
}

func (b *Builder) buildChart(path string, block *config.BlockConfig, blockNumber int) (*ChartBlock, error) {
	var mask format.Mask

	if block.YScaling != "" {
		var err error

		if mask, err = format.ParseMask(block.YScaling); err != nil {
			return nil, wbrerr.New(wbrerr.KindConfig, path+".yScaling", "%s", err)
		}
	}

	offset := b.monthOffset(b.monthlyDisplay(block))
	labels := calendar.AxisLabels(b.eng.WeekEnding(), b.eng.WeekNumber())

	chart := &ChartBlock{
		PlotStyle:     PlotStyleChart,
		BlockNumber:   blockNumber,
		Title:         block.Title,
		YScale:        block.YScaling,
		BoxTotalScale: string(format.ComparisonPct),
		XAxis:         append(append([]string{}, labels[:7]...), labels[7+offset:]...),
		Tooltip:       strconv.FormatBool(b.cfg.Setup.Tooltip),
		Table:         SummaryTable{TableHeader: append([]string{}, SummaryHeader...)},
	}

	singleAxis := false
	seenStyles := make(map[string]string)
	weekMin, weekMax := math.NaN(), math.NaN()
	monthMin, monthMax := math.NaN(), math.NaN()

	for i := range block.Metrics.Entries {
		entry := &block.Metrics.Entries[i]

		if prev, dup := seenStyles[entry.Style()]; dup {
			b.log.WithField("block", path).
				WithField("lineStyle", entry.Style()).
				Warnf("Line style already used by %q; chart will overlay both", prev)
		} else {
			seenStyles[entry.Style()] = entry.Name
		}

		rollup, err := b.eng.Resolve(entry.Name)
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindConfig, path+".metrics."+entry.Name, "%s", err)
		}

		series := ChartSeries{LineStyle: entry.Style(), LegendName: entry.Legend()}

		metricSeries := &MetricSeries{
			Current: axisValueLists(rollup.WeeklyCY, rollup.MonthlyCY[offset:]),
		}
		singleAxis = decideSingleAxis(rollup.WeeklyCY, rollup.MonthlyCY[offset:], singleAxis)
		weekMin, weekMax = foldExtent(weekMin, weekMax, rollup.WeeklyCY)
		monthMin, monthMax = foldExtent(monthMin, monthMax, rollup.MonthlyCY[offset:])

		_, _, derivative := config.GrowthBase(entry.Name)

		if entry.PriorYear() && !derivative {
			metricSeries.Previous = axisValueLists(rollup.WeeklyPY, rollup.MonthlyPY[offset:])
			singleAxis = decideSingleAxis(rollup.WeeklyPY, rollup.MonthlyPY[offset:], singleAxis)
			weekMin, weekMax = foldExtent(weekMin, weekMax, rollup.WeeklyPY)
			monthMin, monthMax = foldExtent(monthMin, monthMax, rollup.MonthlyPY[offset:])
		}

		if entry.Style() == "target" {
			series.Target = metricSeries
		} else {
			series.Metric = metricSeries
			chart.Table.TableBody = append(chart.Table.TableBody, summaryRow(entry.Legend(), rollup, mask, derivative))
			chart.BoxTotalScale = string(rollup.Method)
		}

		chart.YAxis = append(chart.YAxis, series)
		chart.NoteworthyEvents = b.appendEvents(chart.NoteworthyEvents, entry.Name)
	}

	if block.BoxTotalScaling != "" {
		chart.BoxTotalScale = block.BoxTotalScaling
	}

	switch {
	case block.Axes != 0:
		chart.Axes = block.Axes
	case singleAxis:
		chart.Axes = 1
	default:
		chart.Axes = 2
	}

	if rng := format.NiceAxisRange(weekMin, weekMax); rng.Tick != 0 {
		chart.PrimaryRange = &AxisRange{Min: rng.Min, Max: rng.Max, Tick: rng.Tick}
	}

	if rng := format.NiceAxisRange(monthMin, monthMax); rng.Tick != 0 {
		chart.SecondaryRange = &AxisRange{Min: rng.Min, Max: rng.Max, Tick: rng.Tick}
	}

	return chart, nil
}

// foldExtent widens the running extent with the defined values of one
// series.
func foldExtent(lo, hi float64, values []float64) (float64, float64) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		if math.IsNaN(lo) || v < lo {
			lo = v
		}

		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}

	return lo, hi
}

// axisValueLists pads weekly and monthly values into the interlaced axis
// shape: weekly at the head of the primary axis, monthly behind a seven-slot
// gap on the secondary axis.
func axisValueLists(weekly, monthly []float64) []AxisValues {
	primary := make([]any, 0, len(weekly)+13)
	for _, v := range weekly {
		primary = append(primary, chartValue(v))
	}

	for i := 0; i < 13; i++ {
		primary = append(primary, "")
	}

	secondary := make([]any, 0, 7+len(monthly))
	for i := 0; i < 7; i++ {
		secondary = append(secondary, "")
	}

	for _, v := range monthly {
		secondary = append(secondary, chartValue(v))
	}

	return []AxisValues{
		{"primaryAxis": primary},
		{"secondaryAxis": secondary},
	}
}

// chartValue renders an undefined slot as an empty string so the document
// never carries NaN.
func chartValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}

	return v
}

// decideSingleAxis keeps one axis when the monthly peak stays within three
// times the weekly peak.
func decideSingleAxis(weekly, monthly []float64, current bool) bool {
	weeklyMax := maxDefined(weekly)
	monthlyMax := maxDefined(monthly)

	if math.IsNaN(weeklyMax) || math.IsNaN(monthlyMax) {
		return current
	}

	return weeklyMax > 0 && monthlyMax > 0 && monthlyMax/weeklyMax <= 3
}

func maxDefined(values []float64) float64 {
	best := math.NaN()

	for _, v := range values {
		if !math.IsNaN(v) && (math.IsNaN(best) || v > best) {
			best = v
		}
	}

	return best
}

// summaryRow renders the box-totals row of one charted metric. Growth
// metrics carry pre-scaled comparison values and have no further YOY.
func summaryRow(legend string, rollup *engine.Rollup, mask format.Mask, derivative bool) []string {
	lastWk := rollup.WeeklyCY[engine.NumWeeks-1]
	lastWkPY := rollup.WeeklyPY[engine.NumWeeks-1]

	if derivative {
		scale := format.ComparisonScale(rollup.Method)

		return []string{
			legend,
			format.FormatComparison(rollup.Method, lastWk/scale),
			format.NotAvailable,
			format.FormatComparison(rollup.Method, rollup.MTD.CY/scale),
			format.NotAvailable,
			format.FormatComparison(rollup.Method, rollup.QTD.CY/scale),
			format.NotAvailable,
			format.FormatComparison(rollup.Method, rollup.YTD.CY/scale),
			format.NotAvailable,
		}
	}

	return []string{
		legend,
		mask.Format(lastWk),
		format.FormatComparison(rollup.Method, growthRatio(lastWk, lastWkPY)),
		mask.Format(rollup.MTD.CY),
		format.FormatComparison(rollup.Method, rollup.MTD.Ratio()),
		mask.Format(rollup.QTD.CY),
		format.FormatComparison(rollup.Method, rollup.QTD.Ratio()),
		mask.Format(rollup.YTD.CY),
		format.FormatComparison(rollup.Method, rollup.YTD.Ratio()),
	}
}

func growthRatio(cy, py float64) float64 {
	if math.IsNaN(cy) || math.IsNaN(py) || py == 0 {
		return math.NaN()
	}

	return (cy - py) / py
}

func (b *Builder) buildSixWeeksTable(path string, block *config.BlockConfig, blockNumber int) (*TableBlock, error) {
	headers := calendar.WeekLabels(b.eng.WeekNumber())
	headers = append(headers, "QTD", "YTD")

	table := &TableBlock{
		PlotStyle:   PlotStyleSixWeekTable,
		BlockNumber: blockNumber,
		Title:       block.Title,
		Headers:     headers,
	}

	for i := range block.Rows {
		rowCfg := &block.Rows[i].Row
		row := TableRow{
			RowHeader: rowCfg.Header,
			RowStyle:  rowCfg.Style,
			YScale:    rowCfg.YScaling,
			RowData:   blankRow(len(headers)),
		}

		if rowCfg.Metric != "" {
			rollup, err := b.eng.Resolve(rowCfg.Metric)
			if err != nil {
				return nil, wbrerr.New(wbrerr.KindConfig,
					fmt.Sprintf("%s.rows[%d].metric", path, i), "%s", err)
			}

			row.RowData = sixWeeksRowData(rowCfg.Metric, rollup)
			table.NoteworthyEvents = b.appendEvents(table.NoteworthyEvents, rowCfg.Metric)
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// sixWeeksRowData renders the six weekly values plus the QTD and YTD box
// totals. Week-over-week rows have no meaningful period totals and leave
// those cells blank.
func sixWeeksRowData(metric string, rollup *engine.Rollup) []any {
	data := make([]any, 0, engine.NumWeeks+2)
	for _, v := range rollup.WeeklyCY {
		data = append(data, tableValue(v))
	}

	if _, suffix, ok := config.GrowthBase(metric); ok && suffix == "WOW" {
		return append(data, " ", " ")
	}

	return append(data, tableValue(rollup.QTD.CY), tableValue(rollup.YTD.CY))
}

func (b *Builder) buildTwelveMonthsTable(path string, block *config.BlockConfig, blockNumber int) (*TableBlock, error) {
	display := b.monthlyDisplay(block)
	monthEnds := calendar.MonthEnds(b.eng.WeekEnding(), engine.NumMonths)

	// Fiscal display realigns the columns to the fiscal year holding the
	// last full month; months past the data window stay blank.
	labelMonths := monthEnds
	if display == config.DisplayFiscalYear {
		fyStart := calendar.FiscalYearStart(monthEnds[len(monthEnds)-1], b.eng.FiscalMonth())

		labelMonths = make([]time.Time, engine.NumMonths)
		for i := range labelMonths {
			labelMonths[i] = fyStart.AddDate(0, i, 0)
		}
	}

	headers := make([]string, len(labelMonths))
	for i, m := range labelMonths {
		headers[i] = m.Month().String()[:3]
	}

	table := &TableBlock{
		PlotStyle:   PlotStyleTwelveMonthsTbl,
		BlockNumber: blockNumber,
		Title:       block.Title,
		Headers:     headers,
	}

	for i := range block.Rows {
		rowCfg := &block.Rows[i].Row
		row := TableRow{
			RowHeader: rowCfg.Header,
			RowStyle:  rowCfg.Style,
			YScale:    rowCfg.YScaling,
			RowData:   blankRow(len(headers)),
		}

		if rowCfg.Metric != "" {
			rollup, err := b.eng.Resolve(rowCfg.Metric)
			if err != nil {
				return nil, wbrerr.New(wbrerr.KindConfig,
					fmt.Sprintf("%s.rows[%d].metric", path, i), "%s", err)
			}

			row.RowData = monthlyRowData(rollup, monthEnds, labelMonths)
			table.NoteworthyEvents = b.appendEvents(table.NoteworthyEvents, rowCfg.Metric)
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// monthlyRowData matches each column month against the trailing window by
// calendar month and year.
func monthlyRowData(rollup *engine.Rollup, monthEnds, labelMonths []time.Time) []any {
	data := make([]any, len(labelMonths))

	for i, label := range labelMonths {
		data[i] = " "

		for j, end := range monthEnds {
			if end.Year() == label.Year() && end.Month() == label.Month() {
				data[i] = tableValue(rollup.MonthlyCY[j])

				break
			}
		}
	}

	return data
}

func tableValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return " "
	}

	return v
}

func blankRow(n int) []any {
	row := make([]any, n)
	for i := range row {
		row[i] = " "
	}

	return row
}

func (b *Builder) appendEvents(events []NoteworthyEvent, metric string) []NoteworthyEvent {
	e, ok := b.events.For(metric)
	if !ok {
		return events
	}

	return append(events, NoteworthyEvent{
		MetricName:  metric,
		Date:        e.DisplayDate(),
		Description: e.EventDescription,
	})
}

func buildEmbedded(path string, block *config.BlockConfig) (*EmbeddedBlock, error) {
	embedded := &EmbeddedBlock{
		PlotStyle: PlotStyleEmbedded,
		ID:        "iframe_id",
		Source:    block.Source,
		Name:      block.Name,
		Title:     block.Title,
	}

	var err error

	if embedded.Width, err = parsePixels(block.Width); err != nil {
		return nil, wbrerr.New(wbrerr.KindConfig, path+".width", "%s", err)
	}

	if embedded.Height, err = parsePixels(block.Height); err != nil {
		return nil, wbrerr.New(wbrerr.KindConfig, path+".height", "%s", err)
	}

	return embedded, nil
}

// parsePixels converts a "640px" style dimension to its integer value.
func parsePixels(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(s, "px"))
	if err != nil {
		return 0, fmt.Errorf("bad dimension %q, want e.g. 640px", s)
	}

	return n, nil
}
