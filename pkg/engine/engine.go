// Package engine materializes metrics from the merged daily table and
// derives the period rollups the deck builder renders: trailing weeks and
// months for current and prior year, MTD/QTD/YTD pairs, and the generated
// WOW/MOM/YOY growth metrics.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/calendar"
	"github.com/ethpandaops/wbr/pkg/config"
	"github.com/ethpandaops/wbr/pkg/format"
	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// Window sizes. One extra trailing week and month are kept internally so
// WOW and MOM have a predecessor for their oldest visible slot.
const (
	NumWeeks          = 6
	NumMonths         = 12
	internalNumWeeks  = NumWeeks + 1
	internalNumMonths = NumMonths + 1
)

// ErrUnknownMetric is returned when a referenced metric cannot be resolved.
var ErrUnknownMetric = errors.New("unknown metric")

// PeriodPair is a period total for the current and prior year.
type PeriodPair struct {
	CY float64
	PY float64
}

// Ratio is the raw growth of CY over PY: (CY-PY)/PY. NaN when undefined.
func (p PeriodPair) Ratio() float64 {
	return growthRatio(p.CY, p.PY)
}

// Rollup is the full set of derived aggregations for one metric. Weekly and
// monthly slices run oldest to newest.
type Rollup struct {
	Name   string
	Method format.ComparisonMethod

	WeeklyCY  []float64
	WeeklyPY  []float64
	MonthlyCY []float64
	MonthlyPY []float64

	MTD PeriodPair
	QTD PeriodPair
	YTD PeriodPair
}

// metricData is the internal per-metric state: the visible windows plus one
// extra leading week and month.
type metricData struct {
	weeklyCY  []float64
	weeklyPY  []float64
	monthlyCY []float64
	monthlyPY []float64
	mtd       PeriodPair
	qtd       PeriodPair
	ytd       PeriodPair
}

func newMetricData() *metricData {
	d := &metricData{
		weeklyCY:  make([]float64, internalNumWeeks),
		weeklyPY:  make([]float64, internalNumWeeks),
		monthlyCY: make([]float64, internalNumMonths),
		monthlyPY: make([]float64, internalNumMonths),
	}
	d.fill(math.NaN())

	return d
}

func (d *metricData) fill(v float64) {
	for i := range d.weeklyCY {
		d.weeklyCY[i] = v
		d.weeklyPY[i] = v
	}

	for i := range d.monthlyCY {
		d.monthlyCY[i] = v
		d.monthlyPY[i] = v
	}

	d.mtd = PeriodPair{CY: v, PY: v}
	d.qtd = PeriodPair{CY: v, PY: v}
	d.ytd = PeriodPair{CY: v, PY: v}
}

// sanitize replaces infinities with NaN so they never reach the deck.
func (d *metricData) sanitize() {
	clean := func(vs []float64) {
		for i, v := range vs {
			if math.IsInf(v, 0) {
				vs[i] = math.NaN()
			}
		}
	}

	clean(d.weeklyCY)
	clean(d.weeklyPY)
	clean(d.monthlyCY)
	clean(d.monthlyPY)

	pairs := []*PeriodPair{&d.mtd, &d.qtd, &d.ytd}
	for _, p := range pairs {
		if math.IsInf(p.CY, 0) {
			p.CY = math.NaN()
		}

		if math.IsInf(p.PY, 0) {
			p.PY = math.NaN()
		}
	}
}

type dateRange struct {
	start time.Time
	end   time.Time
}

// windows holds every aggregation period for one run.
type windows struct {
	weekEndsCY  []time.Time
	weekEndsPY  []time.Time
	monthEndsCY []time.Time
	monthEndsPY []time.Time

	mtdCY, qtdCY, ytdCY dateRange
	mtdPY, qtdPY, ytdPY dateRange
}

func buildWindows(weekEnding time.Time, fiscalMonth time.Month) windows {
	w := windows{
		weekEndsCY:  calendar.WeekEnds(weekEnding, internalNumWeeks),
		monthEndsCY: calendar.MonthEnds(weekEnding, internalNumMonths),
	}

	pyWeekEnding := calendar.PriorYearWeekEnding(weekEnding)
	w.weekEndsPY = calendar.WeekEnds(pyWeekEnding, internalNumWeeks)

	w.monthEndsPY = make([]time.Time, internalNumMonths)
	for i, m := range w.monthEndsCY {
		w.monthEndsPY[i] = calendar.MonthEnd(calendar.MonthStart(m).AddDate(-1, 0, 0))
	}

	w.mtdCY = dateRange{start: calendar.MonthStart(weekEnding), end: weekEnding}
	w.qtdCY = dateRange{start: calendar.FiscalQuarterStart(weekEnding, fiscalMonth), end: weekEnding}
	w.ytdCY = dateRange{start: calendar.FiscalYearStart(weekEnding, fiscalMonth), end: weekEnding}

	w.mtdPY = dateRange{start: calendar.MonthStart(pyWeekEnding), end: pyWeekEnding}
	w.qtdPY = dateRange{start: calendar.FiscalQuarterStart(pyWeekEnding, fiscalMonth), end: pyWeekEnding}
	w.ytdPY = dateRange{start: calendar.FiscalYearStart(pyWeekEnding, fiscalMonth), end: pyWeekEnding}

	return w
}

// Engine computes rollups for every metric of one run.
type Engine struct {
	log         logrus.FieldLogger
	cfg         *config.Config
	master      *frame.Table
	weekEnding  time.Time
	weekNumber  int
	fiscalMonth time.Month
	win         windows

	data    map[string]*metricData
	rollups map[string]*Rollup
}

// New builds an engine over the merged master table. The config must have
// passed validation.
func New(log logrus.FieldLogger, cfg *config.Config, master *frame.Table) (*Engine, error) {
	weekEnding, err := cfg.Setup.WeekEndingDate()
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConfig, "setup.weekEnding", "%s", err)
	}

	fiscalMonth, err := cfg.Setup.FiscalMonth()
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindConfig, "setup.fiscalYearEndMonth", "%s", err)
	}

	weekNumber := cfg.Setup.WeekNumber
	if weekNumber == 0 {
		weekNumber = calendar.ISOWeek(weekEnding)
	}

	return &Engine{
		log:         log.WithField("component", "engine"),
		cfg:         cfg,
		master:      master,
		weekEnding:  weekEnding,
		weekNumber:  weekNumber,
		fiscalMonth: fiscalMonth,
		win:         buildWindows(weekEnding, fiscalMonth),
		data:        make(map[string]*metricData),
		rollups:     make(map[string]*Rollup),
	}, nil
}

// WeekEnding returns the run's week ending date.
func (e *Engine) WeekEnding() time.Time {
	return e.weekEnding
}

// WeekNumber returns the 1-52 week number of the final week.
func (e *Engine) WeekNumber() int {
	return e.weekNumber
}

// FiscalMonth returns the last month of the fiscal year.
func (e *Engine) FiscalMonth() time.Month {
	return e.fiscalMonth
}

// CYWeekEnds returns the six current-year week ending dates, oldest first.
func (e *Engine) CYWeekEnds() []time.Time {
	return e.win.weekEndsCY[1:]
}

// PYWeekEnds returns the six prior-year week ending dates, oldest first.
func (e *Engine) PYWeekEnds() []time.Time {
	return e.win.weekEndsPY[1:]
}

// Materialize computes every declared metric: basic and filter metrics from
// the master table, then function metrics in dependency order.
func (e *Engine) Materialize() error {
	if err := e.checkDataCoverage(); err != nil {
		return err
	}

	for _, name := range e.cfg.Metrics.Names() {
		cfg, _ := e.cfg.Metrics.Get(name)
		if cfg.Function != nil {
			continue
		}

		series, err := e.buildSeries(name, cfg)
		if err != nil {
			return err
		}

		e.data[name] = e.aggregateSeries(series, cfg.Aggf)
	}

	order, err := e.functionOrder()
	if err != nil {
		return err
	}

	for _, name := range order {
		cfg, _ := e.cfg.Metrics.Get(name)
		if err := e.evaluateFunction(name, cfg.Function); err != nil {
			return err
		}
	}

	for _, name := range e.cfg.Metrics.Names() {
		cfg, _ := e.cfg.Metrics.Get(name)
		d := e.data[name]
		d.sanitize()
		e.rollups[name] = e.publicRollup(name, format.ComparisonMethod(cfg.ComparisonMethod()), d)
	}

	e.log.WithField("metrics", e.cfg.Metrics.Len()).
		WithField("week_ending", e.weekEnding.Format("2006-01-02")).
		Info("Materialized metric rollups")

	return nil
}

// checkDataCoverage rejects runs where the master table has no rows in the
// trailing six-week window.
func (e *Engine) checkDataCoverage() error {
	windowStart := calendar.WeekStart(e.win.weekEndsCY[1])

	for _, d := range e.master.Dates {
		if !d.Before(windowStart) && !d.After(e.weekEnding) {
			return nil
		}
	}

	return wbrerr.New(wbrerr.KindData, "setup.weekEnding",
		"no rows found in the six weeks ending %s", e.weekEnding.Format("2006-01-02"))
}

func (e *Engine) buildSeries(name string, cfg *config.MetricConfig) (*Series, error) {
	table := e.master
	column := cfg.Column

	if cfg.Filter != nil {
		column = cfg.Filter.BaseColumn

		pred, err := frame.CompileQuery(cfg.Filter.Query)
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindConfig, "metrics."+name+".filter.query", "%s", err)
		}

		table, err = pred.Apply(e.master)
		if err != nil {
			return nil, wbrerr.New(wbrerr.KindData, "metrics."+name+".filter.query", "%s", err)
		}
	}

	col, err := table.Column(column)
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindData, "metrics."+name,
			"column %q not found in the merged data", column)
	}

	if !col.IsNumeric() {
		return nil, wbrerr.New(wbrerr.KindData, "metrics."+name,
			"column %q is not numeric", column)
	}

	return collapseDaily(table.Dates, col.Numeric, cfg.Aggf), nil
}

func (e *Engine) aggregateSeries(s *Series, aggf string) *metricData {
	d := newMetricData()

	for i, end := range e.win.weekEndsCY {
		d.weeklyCY[i] = s.Window(aggf, calendar.WeekStart(end), end)
	}

	for i, end := range e.win.weekEndsPY {
		d.weeklyPY[i] = s.Window(aggf, calendar.WeekStart(end), end)
	}

	for i, end := range e.win.monthEndsCY {
		d.monthlyCY[i] = s.Window(aggf, calendar.MonthStart(end), end)
	}

	for i, end := range e.win.monthEndsPY {
		d.monthlyPY[i] = s.Window(aggf, calendar.MonthStart(end), end)
	}

	d.mtd = PeriodPair{
		CY: s.Window(aggf, e.win.mtdCY.start, e.win.mtdCY.end),
		PY: s.Window(aggf, e.win.mtdPY.start, e.win.mtdPY.end),
	}
	d.qtd = PeriodPair{
		CY: s.Window(aggf, e.win.qtdCY.start, e.win.qtdCY.end),
		PY: s.Window(aggf, e.win.qtdPY.start, e.win.qtdPY.end),
	}
	d.ytd = PeriodPair{
		CY: s.Window(aggf, e.win.ytdCY.start, e.win.ytdCY.end),
		PY: s.Window(aggf, e.win.ytdPY.start, e.win.ytdPY.end),
	}

	return d
}

// functionOrder returns declared function metrics in dependency order with
// declaration-order ties.
func (e *Engine) functionOrder() ([]string, error) {
	var order []string

	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(name string) error

	visit = func(name string) error {
		if visited[name] {
			return nil
		}

		if visiting[name] {
			return wbrerr.New(wbrerr.KindConfig, "metrics."+name,
				"circular dependency between function metrics")
		}

		visiting[name] = true

		cfg, ok := e.cfg.Metrics.Get(name)
		if ok && cfg.Function != nil {
			for _, op := range cfg.Function.Operands {
				dep := op.Metric
				if dep == "" {
					continue
				}

				// A growth reference depends on the base it derives from.
				if _, declared := e.cfg.Metrics.Get(dep); !declared {
					base, _, derived := config.GrowthBase(dep)
					if !derived {
						continue
					}

					dep = base
				}

				if depCfg, declared := e.cfg.Metrics.Get(dep); declared && depCfg.Function != nil {
					if err := visit(dep); err != nil {
						return err
					}
				}
			}

			order = append(order, name)
		}

		visiting[name] = false
		visited[name] = true

		return nil
	}

	for _, name := range e.cfg.Metrics.Names() {
		cfg, _ := e.cfg.Metrics.Get(name)
		if cfg.Function == nil {
			continue
		}

		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func (e *Engine) evaluateFunction(name string, spec *config.FunctionSpec) error {
	inputs := make([]*metricData, len(spec.Operands))

	for i, op := range spec.Operands {
		switch {
		case op.Value != nil:
			d := newMetricData()
			d.fill(*op.Value)
			inputs[i] = d
		default:
			d, err := e.resolveData(op.Metric)
			if err != nil {
				return wbrerr.New(wbrerr.KindConfig,
					fmt.Sprintf("metrics.%s.function.%s[%d]", name, spec.Op, i),
					"operand references undefined metric %q", op.Metric)
			}

			inputs[i] = d
		}
	}

	e.data[name] = combine(spec.Op, inputs)

	return nil
}

// resolveData returns the internal windows of a declared metric or a
// growth derivative.
func (e *Engine) resolveData(name string) (*metricData, error) {
	if d, ok := e.data[name]; ok {
		return d, nil
	}

	base, suffix, ok := config.GrowthBase(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}

	baseCfg, declared := e.cfg.Metrics.Get(base)
	if !declared {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}

	baseData, ok := e.data[base]
	if !ok {
		return nil, fmt.Errorf("%w: %q not materialized", ErrUnknownMetric, base)
	}

	d := deriveGrowth(baseData, suffix, format.ComparisonMethod(baseCfg.ComparisonMethod()))
	e.data[name] = d

	return d, nil
}

// combine applies a function-metric operation slot by slot across the
// already-aggregated operand windows.
func combine(op string, inputs []*metricData) *metricData {
	out := newMetricData()

	slot := func(pick func(d *metricData) float64) float64 {
		values := make([]float64, len(inputs))
		for i, d := range inputs {
			values[i] = pick(d)
		}

		return applyOp(op, values)
	}

	for i := range out.weeklyCY {
		i := i
		out.weeklyCY[i] = slot(func(d *metricData) float64 { return d.weeklyCY[i] })
		out.weeklyPY[i] = slot(func(d *metricData) float64 { return d.weeklyPY[i] })
	}

	for i := range out.monthlyCY {
		i := i
		out.monthlyCY[i] = slot(func(d *metricData) float64 { return d.monthlyCY[i] })
		out.monthlyPY[i] = slot(func(d *metricData) float64 { return d.monthlyPY[i] })
	}

	out.mtd = PeriodPair{
		CY: slot(func(d *metricData) float64 { return d.mtd.CY }),
		PY: slot(func(d *metricData) float64 { return d.mtd.PY }),
	}
	out.qtd = PeriodPair{
		CY: slot(func(d *metricData) float64 { return d.qtd.CY }),
		PY: slot(func(d *metricData) float64 { return d.qtd.PY }),
	}
	out.ytd = PeriodPair{
		CY: slot(func(d *metricData) float64 { return d.ytd.CY }),
		PY: slot(func(d *metricData) float64 { return d.ytd.PY }),
	}

	return out
}

func applyOp(op string, values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	switch op {
	case "sum":
		total := 0.0
		for _, v := range values {
			total += v
		}

		return total
	case "difference":
		rest := 0.0
		for _, v := range values[1:] {
			rest += v
		}

		return values[0] - rest
	case "product":
		total := 1.0
		for _, v := range values {
			total *= v
		}

		return total
	case "divide":
		if len(values) != 2 || values[1] == 0 || math.IsNaN(values[1]) {
			return math.NaN()
		}

		return values[0] / values[1]
	}

	return math.NaN()
}

// growthRatio is (cy-py)/py, NaN when py is zero or either side undefined.
func growthRatio(cy, py float64) float64 {
	if math.IsNaN(cy) || math.IsNaN(py) || py == 0 {
		return math.NaN()
	}

	return (cy - py) / py
}

// deriveGrowth synthesizes a WOW, MOM or YOY metric from its base. Values
// are scaled by the base metric's comparison method so they chart directly.
func deriveGrowth(base *metricData, suffix string, method format.ComparisonMethod) *metricData {
	scale := format.ComparisonScale(method)
	out := newMetricData()

	switch suffix {
	case "WOW":
		for i := 1; i < len(base.weeklyCY); i++ {
			out.weeklyCY[i] = growthRatio(base.weeklyCY[i], base.weeklyCY[i-1]) * scale
		}
	case "MOM":
		for i := 1; i < len(base.monthlyCY); i++ {
			out.monthlyCY[i] = growthRatio(base.monthlyCY[i], base.monthlyCY[i-1]) * scale
		}
	case "YOY":
		for i := range base.weeklyCY {
			out.weeklyCY[i] = growthRatio(base.weeklyCY[i], base.weeklyPY[i]) * scale
		}

		for i := range base.monthlyCY {
			out.monthlyCY[i] = growthRatio(base.monthlyCY[i], base.monthlyPY[i]) * scale
		}

		out.mtd = PeriodPair{CY: base.mtd.Ratio() * scale, PY: math.NaN()}
		out.qtd = PeriodPair{CY: base.qtd.Ratio() * scale, PY: math.NaN()}
		out.ytd = PeriodPair{CY: base.ytd.Ratio() * scale, PY: math.NaN()}
	}

	return out
}

func (e *Engine) publicRollup(name string, method format.ComparisonMethod, d *metricData) *Rollup {
	return &Rollup{
		Name:      name,
		Method:    method,
		WeeklyCY:  d.weeklyCY[1:],
		WeeklyPY:  d.weeklyPY[1:],
		MonthlyCY: d.monthlyCY[1:],
		MonthlyPY: d.monthlyPY[1:],
		MTD:       d.mtd,
		QTD:       d.qtd,
		YTD:       d.ytd,
	}
}

// Resolve returns the rollup for a declared metric or an auto-generated
// growth derivative, synthesizing and caching it on first use.
func (e *Engine) Resolve(name string) (*Rollup, error) {
	if r, ok := e.rollups[name]; ok {
		return r, nil
	}

	base, _, ok := config.GrowthBase(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}

	baseCfg, declared := e.cfg.Metrics.Get(base)
	if !declared {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}

	d, err := e.resolveData(name)
	if err != nil {
		return nil, err
	}

	d.sanitize()

	r := e.publicRollup(name, format.ComparisonMethod(baseCfg.ComparisonMethod()), d)
	e.rollups[name] = r

	return r, nil
}

// Resolves reports whether a metric name can be resolved without error.
func (e *Engine) Resolves(name string) bool {
	if _, ok := e.rollups[name]; ok {
		return true
	}

	return e.cfg.Metrics.Resolves(name)
}
