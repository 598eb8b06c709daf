package engine

import (
	"math"
	"sort"
	"time"
)

// Series is a metric's daily values: unique sorted dates with one value per
// date. Gaps in the calendar are simply absent; NaN marks a present but
// undefined value.
type Series struct {
	Dates  []time.Time
	Values []float64
}

// collapseDaily groups raw (date, value) observations by date using the
// metric's aggregation function, producing a Series with unique dates.
func collapseDaily(dates []time.Time, values []float64, aggf string) *Series {
	type bucket struct {
		date   time.Time
		values []float64
	}

	byDate := make(map[time.Time]*bucket, len(dates))
	order := make([]time.Time, 0, len(dates))

	for i, d := range dates {
		b, ok := byDate[d]
		if !ok {
			b = &bucket{date: d}
			byDate[d] = b
			order = append(order, d)
		}

		b.values = append(b.values, values[i])
	}

	sort.Slice(order, func(a, b int) bool { return order[a].Before(order[b]) })

	s := &Series{
		Dates:  make([]time.Time, len(order)),
		Values: make([]float64, len(order)),
	}

	for i, d := range order {
		s.Dates[i] = d
		s.Values[i] = applyAggf(aggf, byDate[d].values)
	}

	return s
}

// Window aggregates the series over the inclusive date range [start, end]
// with the given aggregation function. An empty window yields NaN. Sum
// propagates NaN; mean, min and max skip it; last takes the value at the
// latest date in the window.
func (s *Series) Window(aggf string, start, end time.Time) float64 {
	lo := sort.Search(len(s.Dates), func(i int) bool { return !s.Dates[i].Before(start) })
	hi := sort.Search(len(s.Dates), func(i int) bool { return s.Dates[i].After(end) })

	if lo >= hi {
		return math.NaN()
	}

	if aggf == "last" {
		return s.Values[hi-1]
	}

	return applyAggf(aggf, s.Values[lo:hi])
}

func applyAggf(aggf string, values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	switch aggf {
	case "sum":
		total := 0.0
		for _, v := range values {
			total += v
		}

		return total
	case "mean":
		total, n := 0.0, 0
		for _, v := range values {
			if !math.IsNaN(v) {
				total += v
				n++
			}
		}

		if n == 0 {
			return math.NaN()
		}

		return total / float64(n)
	case "min":
		best := math.NaN()
		for _, v := range values {
			if !math.IsNaN(v) && (math.IsNaN(best) || v < best) {
				best = v
			}
		}

		return best
	case "max":
		best := math.NaN()
		for _, v := range values {
			if !math.IsNaN(v) && (math.IsNaN(best) || v > best) {
				best = v
			}
		}

		return best
	case "last":
		return values[len(values)-1]
	}

	return math.NaN()
}
