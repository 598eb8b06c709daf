// Package config models the user-authored YAML configuration: run setup,
// data sources, metric definitions and the deck layout.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/wbr/pkg/frame"
)

// Sentinel errors for config decoding.
var (
	ErrBadYAML          = errors.New("could not parse yaml")
	ErrBadFunctionShape = errors.New("function must be a single-operation mapping")
	ErrBadOperandShape  = errors.New("operand must be {metric: {name}} or {value: {n}}")
	ErrBadAnnotations   = errors.New("annotations must be a list of paths or a csvFiles/dataSources mapping")
)

// Growth suffixes reserved for auto-generated derivative metrics.
var GrowthSuffixes = []string{"WOW", "MOM", "YOY"}

// Config is the full run configuration.
type Config struct {
	Setup       Setup       `yaml:"setup"`
	DataSources DataSources `yaml:"dataSources"`
	Annotations Annotations `yaml:"annotations"`
	Metrics     MetricSet   `yaml:"metrics"`
	Deck        []Block     `yaml:"deck"`
}

// Setup holds the run-level settings.
type Setup struct {
	WeekEnding          string `yaml:"weekEnding"`
	WeekNumber          int    `yaml:"weekNumber"`
	Title               string `yaml:"title"`
	FiscalYearEndMonth  string `yaml:"fiscalYearEndMonth" default:"DEC"`
	BlockStartingNumber int    `yaml:"blockStartingNumber" default:"1"`
	Tooltip             bool   `yaml:"tooltip"`
	DBConfigURL         string `yaml:"dbConfigUrl"`
	XAxisMonthlyDisplay string `yaml:"xAxisMonthlyDisplay"`
}

// WeekEndingLayout is the required weekEnding format (DD-MMM-YYYY).
const WeekEndingLayout = "02-Jan-2006"

// WeekEndingDate parses the configured week ending date.
func (s *Setup) WeekEndingDate() (time.Time, error) {
	return frame.ParseDate(s.WeekEnding)
}

// FiscalMonth parses fiscalYearEndMonth into a month.
func (s *Setup) FiscalMonth() (time.Month, error) {
	name := strings.ToUpper(strings.TrimSpace(s.FiscalYearEndMonth))
	if len(name) < 3 {
		return 0, fmt.Errorf("bad fiscal month %q", s.FiscalYearEndMonth)
	}

	for m := time.January; m <= time.December; m++ {
		if strings.ToUpper(m.String()[:3]) == name[:3] {
			return m, nil
		}
	}

	return 0, fmt.Errorf("bad fiscal month %q", s.FiscalYearEndMonth)
}

// QuerySource is one aliased query against a named connection.
type QuerySource struct {
	Alias string
	Query string
}

// ConnectionQueries groups the queries declared under one connection name.
type ConnectionQueries struct {
	Connection string
	Queries    []QuerySource
}

// CSVSource is one aliased CSV file source.
type CSVSource struct {
	Alias     string
	URLOrPath string
}

// DataSources is the declared source set, in declaration order. The special
// key csvFiles holds file sources; every other key names a connection.
type DataSources struct {
	Connections []ConnectionQueries
	CSVFiles    []CSVSource
}

// UnmarshalYAML decodes the dataSources mapping preserving declaration order.
func (d *DataSources) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: dataSources must be a mapping", ErrBadYAML)
	}

	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		if key == "csvFiles" {
			files, err := decodeCSVFiles(val)
			if err != nil {
				return err
			}

			d.CSVFiles = append(d.CSVFiles, files...)

			continue
		}

		queries, err := decodeQueries(val)
		if err != nil {
			return fmt.Errorf("connection %q: %w", key, err)
		}

		d.Connections = append(d.Connections, ConnectionQueries{Connection: key, Queries: queries})
	}

	return nil
}

func decodeCSVFiles(node *yaml.Node) ([]CSVSource, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: csvFiles must be a mapping", ErrBadYAML)
	}

	var files []CSVSource

	for i := 0; i < len(node.Content); i += 2 {
		var body struct {
			URLOrPath string `yaml:"urlOrPath"`
		}

		if err := node.Content[i+1].Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadYAML, err)
		}

		files = append(files, CSVSource{Alias: node.Content[i].Value, URLOrPath: body.URLOrPath})
	}

	return files, nil
}

func decodeQueries(node *yaml.Node) ([]QuerySource, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: queries must be a mapping", ErrBadYAML)
	}

	var queries []QuerySource

	for i := 0; i < len(node.Content); i += 2 {
		var body struct {
			Query string `yaml:"query"`
		}

		if err := node.Content[i+1].Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadYAML, err)
		}

		queries = append(queries, QuerySource{Alias: node.Content[i].Value, Query: body.Query})
	}

	return queries, nil
}

// Annotations declares where noteworthy events come from: either a flat list
// of CSV paths/URLs, or an explicit csvFiles/dataSources mapping.
type Annotations struct {
	CSVFiles    []string
	DataSources []ConnectionQueries
}

// UnmarshalYAML accepts both annotation shapes.
func (a *Annotations) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&a.CSVFiles)
	case yaml.MappingNode:
		var body struct {
			CSVFiles    []string    `yaml:"csvFiles"`
			DataSources DataSources `yaml:"dataSources"`
		}

		if err := node.Decode(&body); err != nil {
			return fmt.Errorf("%w: %s", ErrBadAnnotations, err)
		}

		a.CSVFiles = body.CSVFiles
		a.DataSources = body.DataSources.Connections

		return nil
	default:
		return ErrBadAnnotations
	}
}

// Empty reports whether no annotation sources are declared.
func (a *Annotations) Empty() bool {
	return len(a.CSVFiles) == 0 && len(a.DataSources) == 0
}

// Aggregation functions allowed on basic and filter metrics.
var ValidAggfs = map[string]bool{
	"sum": true, "mean": true, "min": true, "max": true, "last": true,
}

// Operations allowed on function metrics.
var ValidOps = map[string]bool{
	"sum": true, "difference": true, "divide": true, "product": true,
}

// MetricConfig is one metric declaration. Exactly one of Column, Filter or
// Function is set.
type MetricConfig struct {
	Column                 string        `yaml:"column"`
	Aggf                   string        `yaml:"aggf"`
	Filter                 *FilterSpec   `yaml:"filter"`
	Function               *FunctionSpec `yaml:"function"`
	MetricComparisonMethod string        `yaml:"metricComparisonMethod"`
}

// Kind returns "basic", "filter" or "function"; empty when ambiguous.
func (m *MetricConfig) Kind() string {
	set := 0
	kind := ""

	if m.Column != "" {
		set++
		kind = "basic"
	}

	if m.Filter != nil {
		set++
		kind = "filter"
	}

	if m.Function != nil {
		set++
		kind = "function"
	}

	if set != 1 {
		return ""
	}

	return kind
}

// ComparisonMethod returns the declared comparison method, defaulting to "%".
func (m *MetricConfig) ComparisonMethod() string {
	if m.MetricComparisonMethod == "" {
		return "%"
	}

	return m.MetricComparisonMethod
}

// FilterSpec configures a filter metric.
type FilterSpec struct {
	BaseColumn string `yaml:"baseColumn"`
	Query      string `yaml:"query"`
}

// Operand is one input of a function metric: a metric reference or a
// constant.
type Operand struct {
	Metric string
	Value  *float64
}

// UnmarshalYAML decodes {metric: {name}} or {value: {n}}.
func (o *Operand) UnmarshalYAML(node *yaml.Node) error {
	var body struct {
		Metric *struct {
			Name string `yaml:"name"`
		} `yaml:"metric"`
		Value *struct {
			N float64 `yaml:"n"`
		} `yaml:"value"`
	}

	if err := node.Decode(&body); err != nil {
		return fmt.Errorf("%w: %s", ErrBadOperandShape, err)
	}

	switch {
	case body.Metric != nil && body.Value == nil:
		o.Metric = body.Metric.Name
	case body.Value != nil && body.Metric == nil:
		v := body.Value.N
		o.Value = &v
	default:
		return ErrBadOperandShape
	}

	return nil
}

// FunctionSpec configures a function metric: one operation applied to
// ordered operands.
type FunctionSpec struct {
	Op       string
	Operands []Operand
}

// UnmarshalYAML decodes the single-key {op: [operands]} mapping.
func (f *FunctionSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return ErrBadFunctionShape
	}

	f.Op = node.Content[0].Value

	if err := node.Content[1].Decode(&f.Operands); err != nil {
		return fmt.Errorf("%w: %s", ErrBadFunctionShape, err)
	}

	return nil
}

// MetricSet is the declared metrics in declaration order.
type MetricSet struct {
	order  []string
	byName map[string]*MetricConfig
}

// UnmarshalYAML decodes the metrics mapping preserving declaration order.
func (m *MetricSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: metrics must be a mapping", ErrBadYAML)
	}

	m.byName = make(map[string]*MetricConfig, len(node.Content)/2)

	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value

		cfg := &MetricConfig{}
		if err := node.Content[i+1].Decode(cfg); err != nil {
			return fmt.Errorf("metric %q: %w", name, err)
		}

		m.order = append(m.order, name)
		m.byName[name] = cfg
	}

	return nil
}

// Names returns metric names in declaration order.
func (m *MetricSet) Names() []string {
	return m.order
}

// Get returns the named metric declaration.
func (m *MetricSet) Get(name string) (*MetricConfig, bool) {
	cfg, ok := m.byName[name]

	return cfg, ok
}

// Len returns the number of declared metrics.
func (m *MetricSet) Len() int {
	return len(m.order)
}

// GrowthBase splits an auto-generated derivative name into its base metric
// and suffix. ok is false when the name carries no growth suffix.
func GrowthBase(name string) (base, suffix string, ok bool) {
	for _, s := range GrowthSuffixes {
		if strings.HasSuffix(name, s) && len(name) > len(s) {
			return strings.TrimSuffix(name, s), s, true
		}
	}

	return "", "", false
}

// Resolves reports whether a metric reference names a declared metric or a
// derivable growth metric.
func (m *MetricSet) Resolves(name string) bool {
	if _, ok := m.byName[name]; ok {
		return true
	}

	base, _, ok := GrowthBase(name)
	if !ok {
		return false
	}

	_, declared := m.byName[base]

	return declared
}

// UI block types.
const (
	UIType612Graph        = "6_12Graph"
	UIType6WeeksTable     = "6_WeeksTable"
	UIType12MonthsTable   = "12_MonthsTable"
	UITypeSection         = "section"
	UITypeEmbeddedContent = "embedded_content"
)

// Line styles accepted on block metrics.
var ValidLineStyles = map[string]bool{
	"primary": true, "secondary": true, "tertiary": true, "quaternary": true, "target": true,
}

// Block wraps one deck entry.
type Block struct {
	Block BlockConfig `yaml:"block"`
}

// BlockConfig is the per-block configuration; fields beyond UIType are
// type-specific.
type BlockConfig struct {
	UIType              string       `yaml:"uiType"`
	Title               string       `yaml:"title"`
	YScaling            string       `yaml:"yScaling"`
	BoxTotalScaling     string       `yaml:"boxTotalScaling"`
	Metrics             BlockMetrics `yaml:"metrics"`
	Rows                []Row        `yaml:"rows"`
	Axes                int          `yaml:"axes"`
	XAxisMonthlyDisplay string       `yaml:"xAxisMonthlyDisplay"`

	// embedded_content fields
	Source string `yaml:"source"`
	Name   string `yaml:"name"`
	Width  string `yaml:"width"`
	Height string `yaml:"height"`
}

// BlockMetric is the chart configuration of one metric within a 6_12 block.
type BlockMetric struct {
	Name               string
	LineStyle          string `yaml:"lineStyle"`
	GraphPriorYearFlag *bool  `yaml:"graphPriorYearFlag"`
	LegendName         string `yaml:"legendName"`
}

// PriorYear reports whether the prior-year line is drawn (default true).
func (b *BlockMetric) PriorYear() bool {
	return b.GraphPriorYearFlag == nil || *b.GraphPriorYearFlag
}

// Style returns the configured line style, defaulting to primary.
func (b *BlockMetric) Style() string {
	if b.LineStyle == "" {
		return "primary"
	}

	return b.LineStyle
}

// Legend returns the legend text, defaulting to the metric name.
func (b *BlockMetric) Legend() string {
	if b.LegendName == "" {
		return b.Name
	}

	return b.LegendName
}

// BlockMetrics is the ordered metric mapping of a 6_12 block.
type BlockMetrics struct {
	Entries []BlockMetric
}

// UnmarshalYAML decodes the metrics mapping preserving declaration order.
func (b *BlockMetrics) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: block metrics must be a mapping", ErrBadYAML)
	}

	for i := 0; i < len(node.Content); i += 2 {
		entry := BlockMetric{Name: node.Content[i].Value}

		if node.Content[i+1].Kind == yaml.MappingNode {
			if err := node.Content[i+1].Decode(&entry); err != nil {
				return fmt.Errorf("block metric %q: %w", entry.Name, err)
			}
		}

		entry.Name = node.Content[i].Value
		b.Entries = append(b.Entries, entry)
	}

	return nil
}

// Row wraps one table row declaration.
type Row struct {
	Row RowConfig `yaml:"row"`
}

// RowConfig configures one row of a trailing table. An empty Metric yields
// an empty data row.
type RowConfig struct {
	Header   string `yaml:"header"`
	Metric   string `yaml:"metric"`
	Style    string `yaml:"style"`
	YScaling string `yaml:"yScaling"`
}

// Load parses a YAML document into a Config and applies defaults. The
// result is not yet validated; call Validate for the full rule set.
func Load(data []byte) (*Config, error) {
	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadYAML, err)
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	return cfg, nil
}
