package config

import (
	"fmt"
	"strings"

	"github.com/heimdalr/dag"

	"github.com/ethpandaops/wbr/pkg/format"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// Monthly display modes.
const (
	DisplayTrailingTwelveMonths = "trailing_twelve_months"
	DisplayFiscalYear           = "fiscal_year"
)

// Validate applies the full rule set, gathering every violation it can into
// one structured error list.
func (c *Config) Validate() error {
	var errs wbrerr.List

	errs = append(errs, c.validateSetup()...)
	errs = append(errs, c.validateMetrics()...)
	errs = append(errs, c.validateDeck()...)

	return errs.OrNil()
}

func (c *Config) validateSetup() wbrerr.List {
	var errs wbrerr.List

	if strings.TrimSpace(c.Setup.WeekEnding) == "" {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, "setup.weekEnding",
			"weekEnding is mandatory (format %s)", WeekEndingLayout))
	} else if _, err := c.Setup.WeekEndingDate(); err != nil {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, "setup.weekEnding",
			"bad date %q, want format %s", c.Setup.WeekEnding, WeekEndingLayout))
	}

	if _, err := c.Setup.FiscalMonth(); err != nil {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, "setup.fiscalYearEndMonth",
			"bad month %q", c.Setup.FiscalYearEndMonth))
	}

	if err := validateMonthlyDisplay(c.Setup.XAxisMonthlyDisplay); err != nil {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, "setup.xAxisMonthlyDisplay", "%s", err))
	}

	return errs
}

func validateMonthlyDisplay(v string) error {
	switch v {
	case "", DisplayTrailingTwelveMonths, DisplayFiscalYear:
		return nil
	}

	return fmt.Errorf("expected %q or %q, got %q", DisplayTrailingTwelveMonths, DisplayFiscalYear, v)
}

func (c *Config) validateMetrics() wbrerr.List {
	var errs wbrerr.List

	for _, name := range c.Metrics.Names() {
		path := "metrics." + name
		cfg, _ := c.Metrics.Get(name)

		if _, _, reserved := GrowthBase(name); reserved {
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path,
				"metric names ending in WOW, MOM or YOY are reserved for generated growth metrics"))
		}

		kind := cfg.Kind()
		if kind == "" {
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path,
				"exactly one of column, filter or function must be set"))

			continue
		}

		if err := format.ValidateComparisonMethod(cfg.ComparisonMethod()); err != nil {
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".metricComparisonMethod", "%s", err))
		}

		switch kind {
		case "basic", "filter":
			if !ValidAggfs[cfg.Aggf] {
				errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".aggf",
					"unknown aggregation %q", cfg.Aggf))
			}

			if kind == "filter" {
				errs = append(errs, c.validateFilter(path, cfg.Filter)...)
			}
		case "function":
			errs = append(errs, c.validateFunction(path, cfg.Function)...)
		}
	}

	errs = append(errs, c.validateFunctionGraph()...)

	return errs
}

func (c *Config) validateFilter(path string, spec *FilterSpec) wbrerr.List {
	var errs wbrerr.List

	if spec.BaseColumn == "" {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".filter.baseColumn", "baseColumn is mandatory"))
	}

	if spec.Query == "" {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".filter.query", "query is mandatory"))
	}

	return errs
}

func (c *Config) validateFunction(path string, spec *FunctionSpec) wbrerr.List {
	var errs wbrerr.List

	if !ValidOps[spec.Op] {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".function",
			"unknown operation %q", spec.Op))
	}

	switch {
	case spec.Op == "divide" && len(spec.Operands) != 2:
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".function",
			"divide takes exactly 2 operands, got %d", len(spec.Operands)))
	case len(spec.Operands) < 2:
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".function",
			"%s takes at least 2 operands, got %d", spec.Op, len(spec.Operands)))
	}

	for i, op := range spec.Operands {
		if op.Metric != "" && !c.Metrics.Resolves(op.Metric) {
			errs = append(errs, wbrerr.New(wbrerr.KindConfig,
				fmt.Sprintf("%s.function.%s[%d]", path, spec.Op, i),
				"operand references undefined metric %q", op.Metric))
		}
	}

	return errs
}

// validateFunctionGraph rejects cycles among function metrics.
func (c *Config) validateFunctionGraph() wbrerr.List {
	var errs wbrerr.List

	graph := dag.NewDAG()

	for _, name := range c.Metrics.Names() {
		if err := graph.AddVertexByID(name, name); err != nil {
			errs = append(errs, wbrerr.New(wbrerr.KindInternal, "metrics",
				"building dependency graph: %s", err))

			return errs
		}
	}

	added := make(map[string]bool)

	for _, name := range c.Metrics.Names() {
		cfg, _ := c.Metrics.Get(name)
		if cfg.Function == nil {
			continue
		}

		for _, op := range cfg.Function.Operands {
			dep := op.Metric
			if dep == "" {
				continue
			}

			// A growth reference depends on the base it derives from.
			if _, declared := c.Metrics.Get(dep); !declared {
				base, _, derived := GrowthBase(dep)
				if !derived {
					continue
				}

				dep = base
			}

			if _, declared := c.Metrics.Get(dep); !declared {
				continue
			}

			if added[dep+"->"+name] {
				continue
			}

			added[dep+"->"+name] = true

			if err := graph.AddEdge(dep, name); err != nil {
				errs = append(errs, wbrerr.New(wbrerr.KindConfig, "metrics."+name,
					"function dependency on %q creates a cycle", dep))
			}
		}
	}

	return errs
}

func (c *Config) validateDeck() wbrerr.List {
	var errs wbrerr.List

	for i := range c.Deck {
		block := &c.Deck[i].Block
		path := fmt.Sprintf("deck[%d]", i)

		switch block.UIType {
		case UIType612Graph:
			errs = append(errs, c.validateGraphBlock(path, block)...)
		case UIType6WeeksTable, UIType12MonthsTable:
			errs = append(errs, c.validateTableBlock(path, block)...)
		case UITypeSection:
		case UITypeEmbeddedContent:
			if block.Source == "" {
				errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".source",
					"embedded_content requires a source"))
			}
		case "":
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".uiType", "uiType is mandatory"))
		default:
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".uiType",
				"unknown uiType %q", block.UIType))
		}

		if err := validateMonthlyDisplay(block.XAxisMonthlyDisplay); err != nil {
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".xAxisMonthlyDisplay", "%s", err))
		}

		if block.YScaling != "" {
			if _, err := format.ParseMask(block.YScaling); err != nil {
				errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".yScaling", "%s", err))
			}
		}
	}

	return errs
}

func (c *Config) validateGraphBlock(path string, block *BlockConfig) wbrerr.List {
	var errs wbrerr.List

	if len(block.Metrics.Entries) == 0 {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".metrics",
			"6_12Graph requires at least one metric"))
	}

	for _, entry := range block.Metrics.Entries {
		if !c.Metrics.Resolves(entry.Name) {
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".metrics."+entry.Name,
				"undefined metric %q", entry.Name))
		}

		if !ValidLineStyles[entry.Style()] {
			errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".metrics."+entry.Name,
				"unknown lineStyle %q", entry.LineStyle))
		}
	}

	if block.Axes < 0 || block.Axes > 2 {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".axes",
			"axes must be 1 or 2, got %d", block.Axes))
	}

	return errs
}

func (c *Config) validateTableBlock(path string, block *BlockConfig) wbrerr.List {
	var errs wbrerr.List

	if len(block.Rows) == 0 {
		errs = append(errs, wbrerr.New(wbrerr.KindConfig, path+".rows",
			"%s requires rows", block.UIType))
	}

	for i := range block.Rows {
		row := &block.Rows[i].Row
		rowPath := fmt.Sprintf("%s.rows[%d]", path, i)

		if row.Metric != "" {
			if !c.Metrics.Resolves(row.Metric) {
				errs = append(errs, wbrerr.New(wbrerr.KindConfig, rowPath+".metric",
					"undefined metric %q", row.Metric))
			}

			if block.UIType == UIType6WeeksTable {
				if _, suffix, ok := GrowthBase(row.Metric); ok && suffix == "MOM" {
					errs = append(errs, wbrerr.New(wbrerr.KindConfig, rowPath+".metric",
						"MOM metrics are not supported in a 6_WeeksTable"))
				}
			}
		}

		if row.YScaling != "" {
			if _, err := format.ParseMask(row.YScaling); err != nil {
				errs = append(errs, wbrerr.New(wbrerr.KindConfig, rowPath+".yScaling", "%s", err))
			}
		}
	}

	return errs
}
