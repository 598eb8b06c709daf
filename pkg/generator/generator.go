// Package generator produces a starter YAML config from a sample of CSV
// data: one sum metric per numeric column plus a chart block per metric,
// with y-axis scaling guessed from the column's magnitude. Columns named
// <metric>__Target or <metric>__target become the target line of the base
// metric's chart instead of a chart of their own.
package generator

import (
	"bytes"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/wbr/pkg/frame"
	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

var targetSuffixes = []string{"__Target", "__target"}

// Generate reads sample CSV data and renders a starter configuration. Only
// the header and a few rows are needed; the scaling guess uses whatever
// values are present.
func Generate(csvData []byte) ([]byte, error) {
	table, err := frame.FromCSV(bytes.NewReader(csvData))
	if err != nil {
		return nil, wbrerr.New(wbrerr.KindData, "generator", "%s", err)
	}

	var metrics []*frame.Column

	for i := range table.Columns {
		if table.Columns[i].IsNumeric() {
			metrics = append(metrics, &table.Columns[i])
		}
	}

	doc := mapping(
		"setup", mapping(
			"weekEnding", scalar("Please enter a week ending date, <dd-MMM-YYYY> eg: 25-SEP-2021"),
			"weekNumber", scalar("Enter the week number of week ending date"),
			"title", scalar("A title for your WBR"),
			"xAxisMonthlyDisplay", scalar("trailing_twelve_months"),
		),
		"metrics", metricsNode(metrics),
		"deck", deckNode(metrics),
	)

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func metricsNode(metrics []*frame.Column) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for _, col := range metrics {
		node.Content = append(node.Content,
			scalar(col.Name),
			mapping(
				"column", scalar(col.Name),
				"aggf", scalar("sum"),
			),
		)
	}

	return node
}

func deckNode(metrics []*frame.Column) *yaml.Node {
	consumed := make(map[string]bool)
	names := make(map[string]bool, len(metrics))

	for _, col := range metrics {
		names[col.Name] = true
	}

	node := &yaml.Node{Kind: yaml.SequenceNode}

	for _, col := range metrics {
		if consumed[col.Name] {
			continue
		}

		target := ""

		for _, suffix := range targetSuffixes {
			if names[col.Name+suffix] {
				target = col.Name + suffix
				consumed[target] = true

				break
			}
		}

		blockFields := []any{
			"uiType", scalar("6_12Graph"),
			"title", scalar(col.Name),
		}

		if mask := guessScaling(col.Numeric); mask != "" {
			blockFields = append(blockFields, "yScaling", scalar(mask))
		}

		blockFields = append(blockFields, "metrics", metricBlock(col.Name, target))

		node.Content = append(node.Content, mapping("block", mapping(blockFields...)))
	}

	return node
}

func metricBlock(metric, target string) *yaml.Node {
	node := mapping(metric, mapping(
		"lineStyle", scalar("primary"),
		"graphPriorYearFlag", boolScalar(true),
	))

	if target != "" {
		node.Content = append(node.Content,
			scalar(target),
			mapping(
				"lineStyle", scalar("target"),
				"graphPriorYearFlag", boolScalar(false),
			),
		)
	}

	return node
}

// guessScaling picks a display mask from the column's magnitude. Columns
// whose values all sit in [0, 1] render as percentages.
func guessScaling(values []float64) string {
	var sum float64

	n := 0
	inUnit := true

	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}

		sum += v
		n++

		if v < 0 || v > 1 {
			inUnit = false
		}
	}

	if n == 0 {
		return ""
	}

	mean := sum / float64(n)

	switch {
	case mean > 1e9:
		return "##BB"
	case mean > 1e6:
		return "##MM"
	case mean > 1e3:
		return "##KK"
	case inUnit:
		return "##%"
	}

	return ""
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

func boolScalar(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}

// mapping builds a mapping node from alternating keys and value nodes. Keys
// are strings; values are *yaml.Node.
func mapping(pairs ...any) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for i := 0; i < len(pairs); i += 2 {
		node.Content = append(node.Content, scalar(pairs[i].(string)), pairs[i+1].(*yaml.Node))
	}

	return node
}
