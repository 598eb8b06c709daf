// Package format renders metric values under display masks and comparison
// methods, and computes nice axis ranges for charts.
package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NotAvailable is the rendered form of an undefined value.
const NotAvailable = "N/A"

// ErrInvalidMask is returned when a yScaling mask does not match the
// ##(.precision)?(unit)? grammar.
var ErrInvalidMask = errors.New("invalid scaling mask")

// ErrInvalidComparisonMethod is returned for comparison methods other than
// "%" and "bps".
var ErrInvalidComparisonMethod = errors.New("invalid comparison method")

// Unit is the scaling unit of a display mask.
type Unit string

// Mask units.
const (
	UnitNone Unit = ""
	UnitBB   Unit = "BB"
	UnitMM   Unit = "MM"
	UnitKK   Unit = "KK"
	UnitPct  Unit = "%"
	UnitBps  Unit = "bps"
)

// Mask is a parsed display mask such as "##.1MM" or "##%".
type Mask struct {
	Precision int
	Unit      Unit
}

// ParseMask parses a display mask. The grammar is "##", an optional "."
// with a single precision digit 0-3, then an optional unit.
func ParseMask(s string) (Mask, error) {
	if !strings.HasPrefix(s, "##") {
		return Mask{}, fmt.Errorf("%w: %q", ErrInvalidMask, s)
	}

	rest := s[2:]

	mask := Mask{}

	if strings.HasPrefix(rest, ".") {
		if len(rest) < 2 || rest[1] < '0' || rest[1] > '3' {
			return Mask{}, fmt.Errorf("%w: %q has bad precision", ErrInvalidMask, s)
		}

		mask.Precision = int(rest[1] - '0')
		rest = rest[2:]
	}

	switch Unit(rest) {
	case UnitNone, UnitBB, UnitMM, UnitKK, UnitPct, UnitBps:
		mask.Unit = Unit(rest)
	default:
		return Mask{}, fmt.Errorf("%w: %q has unknown unit %q", ErrInvalidMask, s, rest)
	}

	return mask, nil
}

// String reassembles the canonical mask text.
func (m Mask) String() string {
	var b strings.Builder

	b.WriteString("##")

	if m.Precision > 0 {
		b.WriteString(".")
		b.WriteString(strconv.Itoa(m.Precision))
	}

	b.WriteString(string(m.Unit))

	return b.String()
}

func (m Mask) scale(v float64) float64 {
	switch m.Unit {
	case UnitBB:
		return v / 1e9
	case UnitMM:
		return v / 1e6
	case UnitKK:
		return v / 1e3
	case UnitPct:
		return v * 100
	case UnitBps:
		return v * 10000
	case UnitNone:
		return v
	}

	return v
}

func (m Mask) suffix() string {
	switch m.Unit {
	case UnitBB:
		return "B"
	case UnitMM:
		return "M"
	case UnitKK:
		return "K"
	case UnitPct:
		return "%"
	case UnitBps:
		return "bps"
	case UnitNone:
		return ""
	}

	return ""
}

// Format renders v under the mask. NaN and infinities render as "N/A".
func (m Mask) Format(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}

	return strconv.FormatFloat(m.scale(v), 'f', m.Precision, 64) + m.suffix()
}

// FormatString renders a raw cell that may already hold "N/A".
func (m Mask) FormatString(s string) string {
	if s == NotAvailable {
		return s
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}

	return m.Format(v)
}

// ComparisonMethod is how a growth value is expressed.
type ComparisonMethod string

// Supported comparison methods.
const (
	ComparisonPct ComparisonMethod = "%"
	ComparisonBps ComparisonMethod = "bps"
)

// ValidateComparisonMethod checks a declared comparison method.
func ValidateComparisonMethod(s string) error {
	switch ComparisonMethod(s) {
	case ComparisonPct, ComparisonBps:
		return nil
	}

	return fmt.Errorf("%w: %q", ErrInvalidComparisonMethod, s)
}

// FormatComparison renders a raw growth ratio under the method: percent with
// two decimals, or basis points as an integer. Undefined ratios render "N/A".
func FormatComparison(method ComparisonMethod, ratio float64) string {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return NotAvailable
	}

	if method == ComparisonBps {
		return strconv.FormatFloat(math.Round(ratio*10000), 'f', 0, 64) + "bps"
	}

	return strconv.FormatFloat(ratio*100, 'f', 2, 64) + "%"
}

// ComparisonScale returns the display multiplier for a method.
func ComparisonScale(method ComparisonMethod) float64 {
	if method == ComparisonBps {
		return 10000
	}

	return 100
}
