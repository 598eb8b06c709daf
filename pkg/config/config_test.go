package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

const sampleYAML = `
setup:
  weekEnding: 25-SEP-2021
  weekNumber: 38
  title: Marketing Review
  fiscalYearEndMonth: DEC
dataSources:
  warehouse:
    ads:
      query: select * from ads_daily
  csvFiles:
    extra:
      urlOrPath: ./extra.csv
annotations:
  - ./events.csv
metrics:
  Impressions:
    column: ads.impressions
    aggf: sum
  Clicks:
    column: ads.clicks
    aggf: sum
  BrandClicks:
    filter:
      baseColumn: ads.clicks
      query: 'ads.campaign == "Brand"'
    aggf: sum
  CTR:
    function:
      divide:
        - metric:
            name: Clicks
        - metric:
            name: Impressions
    metricComparisonMethod: bps
deck:
  - block:
      uiType: section
      title: Traffic
  - block:
      uiType: 6_12Graph
      title: Impressions 6/12
      yScaling: "##.2MM"
      metrics:
        Impressions:
          lineStyle: primary
          graphPriorYearFlag: true
        CTR:
          lineStyle: secondary
          legendName: Click Thru Rate
  - block:
      uiType: 6_WeeksTable
      title: Weekly detail
      rows:
        - row:
            header: Impressions
            metric: Impressions
            yScaling: "##.1MM"
        - row:
            header: spacer
`

func TestLoad(t *testing.T) {
	cfg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	// Defaults applied to absent keys.
	assert.Equal(t, 1, cfg.Setup.BlockStartingNumber)
	assert.Equal(t, "DEC", cfg.Setup.FiscalYearEndMonth)
	assert.False(t, cfg.Setup.Tooltip)

	we, err := cfg.Setup.WeekEndingDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, time.September, 25, 0, 0, 0, 0, time.UTC), we)

	month, err := cfg.Setup.FiscalMonth()
	require.NoError(t, err)
	assert.Equal(t, time.December, month)

	require.Len(t, cfg.DataSources.Connections, 1)
	assert.Equal(t, "warehouse", cfg.DataSources.Connections[0].Connection)
	require.Len(t, cfg.DataSources.Connections[0].Queries, 1)
	assert.Equal(t, "ads", cfg.DataSources.Connections[0].Queries[0].Alias)
	require.Len(t, cfg.DataSources.CSVFiles, 1)
	assert.Equal(t, "extra", cfg.DataSources.CSVFiles[0].Alias)

	assert.Equal(t, []string{"./events.csv"}, cfg.Annotations.CSVFiles)

	assert.Equal(t, []string{"Impressions", "Clicks", "BrandClicks", "CTR"}, cfg.Metrics.Names())

	ctr, ok := cfg.Metrics.Get("CTR")
	require.True(t, ok)
	assert.Equal(t, "function", ctr.Kind())
	assert.Equal(t, "divide", ctr.Function.Op)
	require.Len(t, ctr.Function.Operands, 2)
	assert.Equal(t, "Clicks", ctr.Function.Operands[0].Metric)
	assert.Equal(t, "bps", ctr.ComparisonMethod())

	brand, ok := cfg.Metrics.Get("BrandClicks")
	require.True(t, ok)
	assert.Equal(t, "filter", brand.Kind())
	assert.Equal(t, "%", brand.ComparisonMethod())

	require.Len(t, cfg.Deck, 3)
	assert.Equal(t, UITypeSection, cfg.Deck[0].Block.UIType)

	graph := cfg.Deck[1].Block
	require.Len(t, graph.Metrics.Entries, 2)
	assert.Equal(t, "Impressions", graph.Metrics.Entries[0].Name)
	assert.True(t, graph.Metrics.Entries[0].PriorYear())
	assert.Equal(t, "Click Thru Rate", graph.Metrics.Entries[1].Legend())

	table := cfg.Deck[2].Block
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Impressions", table.Rows[0].Row.Metric)
	assert.Empty(t, table.Rows[1].Row.Metric)
}

func TestValidateOK(t *testing.T) {
	cfg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestAnnotationsMappingShape(t *testing.T) {
	cfg, err := Load([]byte(`
setup:
  weekEnding: 25-SEP-2021
annotations:
  csvFiles:
    - ./a.csv
  dataSources:
    warehouse:
      events:
        query: select * from events
metrics:
  M:
    column: x
    aggf: sum
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"./a.csv"}, cfg.Annotations.CSVFiles)
	require.Len(t, cfg.Annotations.DataSources, 1)
	assert.Equal(t, "warehouse", cfg.Annotations.DataSources[0].Connection)
}

func TestGrowthBase(t *testing.T) {
	base, suffix, ok := GrowthBase("PageViewsYOY")
	require.True(t, ok)
	assert.Equal(t, "PageViews", base)
	assert.Equal(t, "YOY", suffix)

	_, _, ok = GrowthBase("PageViews")
	assert.False(t, ok)

	// A bare suffix is not a derivative name.
	_, _, ok = GrowthBase("WOW")
	assert.False(t, ok)
}

func TestResolves(t *testing.T) {
	cfg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Metrics.Resolves("Impressions"))
	assert.True(t, cfg.Metrics.Resolves("ImpressionsYOY"))
	assert.True(t, cfg.Metrics.Resolves("CTRWOW"))
	assert.False(t, cfg.Metrics.Resolves("Nothing"))
	assert.False(t, cfg.Metrics.Resolves("NothingYOY"))
}

func validationErrors(t *testing.T, yamlText string) wbrerr.List {
	t.Helper()

	cfg, err := Load([]byte(yamlText))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)

	var list wbrerr.List
	require.ErrorAs(t, err, &list)

	return list
}

func hasErrorAt(list wbrerr.List, path string) bool {
	for _, e := range list {
		if e.Path == path {
			return true
		}
	}

	return false
}

func TestValidateGathersAllErrors(t *testing.T) {
	list := validationErrors(t, `
setup:
  weekEnding: someday
metrics:
  BadAgg:
    column: x
    aggf: total
  BadSuffixYOY:
    column: y
    aggf: sum
  BadFn:
    function:
      modulo:
        - metric:
            name: BadAgg
        - value:
            n: 2
deck:
  - block:
      uiType: 6_12Graph
      yScaling: "##.9ZZ"
      metrics:
        Ghost: {}
`)

	assert.True(t, hasErrorAt(list, "setup.weekEnding"))
	assert.True(t, hasErrorAt(list, "metrics.BadAgg.aggf"))
	assert.True(t, hasErrorAt(list, "metrics.BadSuffixYOY"))
	assert.True(t, hasErrorAt(list, "metrics.BadFn.function"))
	assert.True(t, hasErrorAt(list, "deck[0].yScaling"))
	assert.True(t, hasErrorAt(list, "deck[0].metrics.Ghost"))

	for _, e := range list {
		assert.Equal(t, wbrerr.KindConfig, e.Kind)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	list := validationErrors(t, `
setup:
  weekEnding: 25-SEP-2021
metrics:
  A:
    function:
      sum:
        - metric:
            name: B
        - value:
            n: 1
  B:
    function:
      sum:
        - metric:
            name: A
        - value:
            n: 1
`)

	found := false

	for _, e := range list {
		if e.Kind == wbrerr.KindConfig && e.Path == "metrics.B" {
			found = true
		}
	}

	assert.True(t, found, "expected a cycle error, got %v", list)
}

func TestValidateRejectsCycleThroughGrowthReference(t *testing.T) {
	// The growth derivative resolves to its base, so A -> BYOY -> B -> AYOY
	// still closes a cycle between A and B.
	list := validationErrors(t, `
setup:
  weekEnding: 25-SEP-2021
metrics:
  A:
    function:
      sum:
        - metric:
            name: BYOY
        - value:
            n: 1
  B:
    function:
      sum:
        - metric:
            name: AYOY
        - value:
            n: 1
`)

	found := false

	for _, e := range list {
		if e.Kind == wbrerr.KindConfig && e.Path == "metrics.B" {
			found = true
		}
	}

	assert.True(t, found, "expected a cycle error, got %v", list)
}

func TestValidateAcceptsGrowthOfLaterFunction(t *testing.T) {
	cfg, err := Load([]byte(`
setup:
  weekEnding: 25-SEP-2021
metrics:
  UsesGrowth:
    function:
      sum:
        - metric:
            name: RateYOY
        - value:
            n: 0
  Daily:
    column: ads.value
    aggf: sum
  Rate:
    function:
      divide:
        - metric:
            name: Daily
        - value:
            n: 7
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestValidateRepeatedOperand(t *testing.T) {
	// The same dependency twice is one edge, not a cycle.
	cfg, err := Load([]byte(`
setup:
  weekEnding: 25-SEP-2021
metrics:
  Daily:
    column: ads.value
    aggf: sum
  Doubled:
    function:
      sum:
        - metric:
            name: Daily
        - metric:
            name: Daily
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestValidateUndefinedOperand(t *testing.T) {
	list := validationErrors(t, `
setup:
  weekEnding: 25-SEP-2021
metrics:
  A:
    function:
      divide:
        - metric:
            name: Missing
        - value:
            n: 100
`)

	assert.True(t, hasErrorAt(list, "metrics.A.function.divide[0]"))
}

func TestValidateMOMInWeeklyTable(t *testing.T) {
	list := validationErrors(t, `
setup:
  weekEnding: 25-SEP-2021
metrics:
  A:
    column: x
    aggf: sum
deck:
  - block:
      uiType: 6_WeeksTable
      rows:
        - row:
            metric: AMOM
`)

	assert.True(t, hasErrorAt(list, "deck[0].rows[0].metric"))
}

func TestValidateEmbeddedContentNeedsSource(t *testing.T) {
	list := validationErrors(t, `
setup:
  weekEnding: 25-SEP-2021
metrics:
  A:
    column: x
    aggf: sum
deck:
  - block:
      uiType: embedded_content
      title: Dashboard
`)

	assert.True(t, hasErrorAt(list, "deck[0].source"))
}
