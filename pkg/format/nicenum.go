package format

import "math"

// AxisRange is a chart axis computed from the data extent: snapped min and
// max plus the tick interval between gridlines.
type AxisRange struct {
	Min  float64
	Max  float64
	Tick float64
}

// NiceNum returns a "nice" number close to v: a fraction from {1, 2, 5, 10}
// scaled by the power of ten of v. With round=false the fraction rounds up
// (used for the overall range); with round=true it picks the nearest using
// the 1.5/3/7 thresholds (used for the tick interval).
func NiceNum(v float64, round bool) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	exp := math.Floor(math.Log10(v))
	frac := v / math.Pow(10, exp)

	var nice float64

	if round {
		switch {
		case frac < 1.5:
			nice = 1
		case frac < 3:
			nice = 2
		case frac < 7:
			nice = 5
		default:
			nice = 10
		}
	} else {
		switch {
		case frac <= 1:
			nice = 1
		case frac <= 2:
			nice = 2
		case frac <= 5:
			nice = 5
		default:
			nice = 10
		}
	}

	return nice * math.Pow(10, exp)
}

// NiceAxisRange computes the axis for the given data extent: five intervals
// with snapped edges, expanding an edge by one interval when the data sits
// within 10% of it.
func NiceAxisRange(dataMin, dataMax float64) AxisRange {
	if math.IsNaN(dataMin) || math.IsNaN(dataMax) || dataMax < dataMin {
		return AxisRange{}
	}

	span := dataMax - dataMin
	if span == 0 {
		span = math.Abs(dataMax)
		if span == 0 {
			span = 1
		}
	}

	tick := NiceNum(NiceNum(span, false)/5, true)
	if tick == 0 {
		return AxisRange{}
	}

	axisMin := math.Floor(dataMin/tick) * tick
	axisMax := math.Ceil(dataMax/tick) * tick

	if dataMin-axisMin < 0.1*tick {
		axisMin -= tick
	}

	if axisMax-dataMax < 0.1*tick {
		axisMax += tick
	}

	return AxisRange{Min: axisMin, Max: axisMax, Tick: tick}
}
