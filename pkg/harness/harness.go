// Package harness runs end-to-end scenarios against the full pipeline. Each
// scenario directory holds the raw data (original.csv), the report config
// (config.yaml) and golden expectations (testconfig.yml); the harness builds
// the deck and diffs the blocks named by each test case against the golden
// values.
package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/wbr/pkg/annotations"
	"github.com/ethpandaops/wbr/pkg/config"
	"github.com/ethpandaops/wbr/pkg/deck"
	"github.com/ethpandaops/wbr/pkg/engine"
	"github.com/ethpandaops/wbr/pkg/frame"
)

// Scenario file names.
const (
	csvFile    = "original.csv"
	configFile = "config.yaml"
	goldenFile = "testconfig.yml"
)

// Check outcomes.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Result aggregates every scenario run.
type Result struct {
	Scenarios       []*ScenarioResult `json:"scenarios"`
	ResultStatement string            `json:"resultStatement"`
}

// ScenarioResult is the outcome of one scenario directory.
type ScenarioResult struct {
	Scenario    string      `json:"scenario"`
	WeekEnding  string      `json:"weekEnding"`
	FiscalMonth string      `json:"fiscalMonth"`
	TestCases   []*TestCase `json:"testCases"`
}

// Check is one golden-value comparison.
type Check struct {
	Result         string `json:"result"`
	FailureMessage string `json:"failureMessage,omitempty"`
	Expected       any    `json:"expected,omitempty"`
	Calculated     any    `json:"calculated,omitempty"`
}

// TestCase collects the checks run against one deck block. Chart cases fill
// the axis and summary checks, table cases fill headers and rows.
type TestCase struct {
	TestNumber string `json:"testNumber"`
	BlockType  string `json:"blockType"`

	XAxis          *Check `json:"xAxis,omitempty"`
	CYSixWeeks     *Check `json:"cySixWeeks,omitempty"`
	PYSixWeeks     *Check `json:"pySixWeeks,omitempty"`
	CYTwelveMonths *Check `json:"cyTwelveMonths,omitempty"`
	PYTwelveMonths *Check `json:"pyTwelveMonths,omitempty"`
	Summary        *Check `json:"summary,omitempty"`
	Events         *Check `json:"noteworthyEvents,omitempty"`

	Headers *Check `json:"headers,omitempty"`
	Rows    *Check `json:"rows,omitempty"`
}

// goldenConfig is the schema of a scenario's testconfig.yml.
type goldenConfig struct {
	Tests []struct {
		Test testSpec `yaml:"test"`
	} `yaml:"tests"`
}

type testSpec struct {
	TestCaseNo         string               `yaml:"testCaseNo"`
	MetricName         string               `yaml:"metricName"`
	SeriesName         string               `yaml:"seriesName"`
	GraphPriorYearFlag *bool                `yaml:"graphPriorYearFlag"`
	XAxis              []string             `yaml:"xAxis"`
	CYSixWeeks         []float64            `yaml:"cySixWeeks"`
	PYSixWeeks         []float64            `yaml:"pySixWeeks"`
	CYMonthly          []float64            `yaml:"cyMonthly"`
	PYMonthly          []float64            `yaml:"pyMonthly"`
	BoxTotals          []float64            `yaml:"boxTotals"`
	NoteworthyEvents   map[string]string    `yaml:"noteworthyEvents"`
	Headers            []string             `yaml:"headers"`
	Rows               map[string][]float64 `yaml:"rows"`
}

// Runner executes every scenario under a directory.
type Runner struct {
	log logrus.FieldLogger
	dir string
}

// New builds a runner over the given scenario directory.
func New(log logrus.FieldLogger, dir string) *Runner {
	return &Runner{
		log: log.WithField("component", "harness"),
		dir: dir,
	}
}

// Run executes every scenario*/ directory in sorted order. Scenario setup
// failures abort the run; individual check failures are reported in the
// result instead.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %q: %w", r.dir, err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() && strings.Contains(entry.Name(), "scenario") {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	result := &Result{}
	passed, total := 0, 0

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scenario, err := r.runScenario(name)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}

		for _, tc := range scenario.TestCases {
			for _, check := range tc.Checks() {
				total++

				if check.Result == StatusSuccess {
					passed++
				}
			}
		}

		result.Scenarios = append(result.Scenarios, scenario)
	}

	result.ResultStatement = fmt.Sprintf("%d of %d checks passed across %d scenarios",
		passed, total, len(result.Scenarios))

	r.log.WithField("scenarios", len(result.Scenarios)).Info(result.ResultStatement)

	return result, nil
}

func (r *Runner) runScenario(name string) (*ScenarioResult, error) {
	dir := filepath.Join(r.dir, name)

	csvData, err := os.ReadFile(filepath.Join(dir, csvFile))
	if err != nil {
		return nil, err
	}

	configData, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, err
	}

	goldenData, err := os.ReadFile(filepath.Join(dir, goldenFile))
	if err != nil {
		return nil, err
	}

	var golden goldenConfig

	if err := yaml.Unmarshal(goldenData, &golden); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", goldenFile, err)
	}

	cfg, err := config.Load(configData)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	master, err := frame.FromCSV(bytes.NewReader(csvData))
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(r.log, cfg, master)
	if err != nil {
		return nil, err
	}

	if err := eng.Materialize(); err != nil {
		return nil, err
	}

	events, err := r.loadEvents(dir, cfg, eng)
	if err != nil {
		return nil, err
	}

	doc, err := deck.NewBuilder(r.log, cfg, eng, events).Build()
	if err != nil {
		return nil, err
	}

	scenario := &ScenarioResult{
		Scenario:    name,
		WeekEnding:  eng.WeekEnding().Format("2006-01-02"),
		FiscalMonth: strings.ToUpper(eng.FiscalMonth().String()[:3]),
	}

	for _, test := range golden.Tests {
		scenario.TestCases = append(scenario.TestCases, r.runTest(doc, test.Test))
	}

	return scenario, nil
}

// loadEvents resolves the annotation CSVs a scenario config declares, with
// paths taken relative to the scenario directory.
func (r *Runner) loadEvents(dir string, cfg *config.Config, eng *engine.Engine) (*annotations.Set, error) {
	if len(cfg.Annotations.CSVFiles) == 0 {
		return nil, nil
	}

	var events []annotations.Event

	for _, path := range cfg.Annotations.CSVFiles {
		data, err := os.ReadFile(filepath.Join(dir, path))
		if err != nil {
			return nil, err
		}

		parsed, err := annotations.ParseCSV(bytes.NewReader(data), path)
		if err != nil {
			return nil, err
		}

		events = append(events, parsed...)
	}

	return annotations.Resolve(r.log, events, eng.WeekEnding(), eng.Resolves), nil
}

// runTest locates the block titled by the test's metric name and diffs it.
func (r *Runner) runTest(doc *deck.Document, test testSpec) *TestCase {
	tc := &TestCase{TestNumber: test.TestCaseNo}

	for _, block := range doc.Blocks {
		switch b := block.(type) {
		case *deck.ChartBlock:
			if b.Title == test.MetricName {
				r.checkChart(tc, b, test)

				return tc
			}
		case *deck.TableBlock:
			if b.Title == test.MetricName {
				r.checkTable(tc, b, test)

				return tc
			}
		}
	}

	r.log.WithField("metric", test.MetricName).Warn("No block found for test case")

	return tc
}

// Checks lists the populated checks of a test case.
func (tc *TestCase) Checks() []*Check {
	var out []*Check

	for _, c := range []*Check{
		tc.XAxis, tc.CYSixWeeks, tc.PYSixWeeks, tc.CYTwelveMonths,
		tc.PYTwelveMonths, tc.Summary, tc.Events, tc.Headers, tc.Rows,
	} {
		if c != nil {
			out = append(out, c)
		}
	}

	return out
}
