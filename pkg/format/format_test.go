package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMask(t *testing.T) {
	tests := []struct {
		name        string
		mask        string
		expected    Mask
		expectError bool
	}{
		{
			name:     "bare",
			mask:     "##",
			expected: Mask{Precision: 0, Unit: UnitNone},
		},
		{
			name:     "millions with precision",
			mask:     "##.2MM",
			expected: Mask{Precision: 2, Unit: UnitMM},
		},
		{
			name:     "billions",
			mask:     "##BB",
			expected: Mask{Precision: 0, Unit: UnitBB},
		},
		{
			name:     "thousands with precision",
			mask:     "##.1KK",
			expected: Mask{Precision: 1, Unit: UnitKK},
		},
		{
			name:     "percent",
			mask:     "##%",
			expected: Mask{Precision: 0, Unit: UnitPct},
		},
		{
			name:     "basis points",
			mask:     "##.0bps",
			expected: Mask{Precision: 0, Unit: UnitBps},
		},
		{
			name:        "missing prefix",
			mask:        "MM",
			expectError: true,
		},
		{
			name:        "precision out of range",
			mask:        "##.4MM",
			expectError: true,
		},
		{
			name:        "unknown unit",
			mask:        "##GG",
			expectError: true,
		},
		{
			name:        "dangling dot",
			mask:        "##.",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMask(tt.mask)
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidMask)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMaskFormat(t *testing.T) {
	tests := []struct {
		name     string
		mask     string
		value    float64
		expected string
	}{
		{name: "plain", mask: "##", value: 42, expected: "42"},
		{name: "millions", mask: "##.2MM", value: 1234567, expected: "1.23M"},
		{name: "billions", mask: "##.1BB", value: 2500000000, expected: "2.5B"},
		{name: "thousands", mask: "##KK", value: 8400, expected: "8K"},
		{name: "percent", mask: "##.1%", value: 0.1234, expected: "12.3%"},
		{name: "basis points", mask: "##bps", value: 1.0, expected: "10000bps"},
		{name: "nan", mask: "##.2MM", value: math.NaN(), expected: "N/A"},
		{name: "inf", mask: "##", value: math.Inf(1), expected: "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask, err := ParseMask(tt.mask)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mask.Format(tt.value))
		})
	}
}

func TestMaskFormatString(t *testing.T) {
	mask, err := ParseMask("##.1KK")
	require.NoError(t, err)

	assert.Equal(t, "N/A", mask.FormatString("N/A"))
	assert.Equal(t, "1.5K", mask.FormatString("1500"))
}

func TestMaskString(t *testing.T) {
	for _, raw := range []string{"##", "##.2MM", "##%", "##.1bps"} {
		mask, err := ParseMask(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, mask.String())

		// Parsing the canonical form is idempotent.
		again, err := ParseMask(mask.String())
		require.NoError(t, err)
		assert.Equal(t, mask, again)
	}
}

func TestFormatComparison(t *testing.T) {
	tests := []struct {
		name     string
		method   ComparisonMethod
		ratio    float64
		expected string
	}{
		{name: "percent growth", method: ComparisonPct, ratio: 0.1234, expected: "12.34%"},
		{name: "percent negative", method: ComparisonPct, ratio: -0.05, expected: "-5.00%"},
		{name: "bps integer", method: ComparisonBps, ratio: 0.0051, expected: "51bps"},
		{name: "bps rounding", method: ComparisonBps, ratio: 0.00514, expected: "51bps"},
		{name: "nan", method: ComparisonPct, ratio: math.NaN(), expected: "N/A"},
		{name: "inf", method: ComparisonBps, ratio: math.Inf(-1), expected: "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatComparison(tt.method, tt.ratio))
		})
	}
}

func TestValidateComparisonMethod(t *testing.T) {
	assert.NoError(t, ValidateComparisonMethod("%"))
	assert.NoError(t, ValidateComparisonMethod("bps"))
	assert.ErrorIs(t, ValidateComparisonMethod("pct"), ErrInvalidComparisonMethod)
}

func TestNiceNum(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		round    bool
		expected float64
	}{
		{name: "round up to ten", v: 7.3, round: false, expected: 10},
		{name: "round up exact five", v: 5, round: false, expected: 5},
		{name: "round up to two hundred", v: 130, round: false, expected: 200},
		{name: "nearest below threshold", v: 1.4, round: true, expected: 1},
		{name: "nearest two", v: 2.9, round: true, expected: 2},
		{name: "nearest five", v: 6.9, round: true, expected: 5},
		{name: "nearest ten", v: 7.1, round: true, expected: 10},
		{name: "zero", v: 0, round: true, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, NiceNum(tt.v, tt.round), 1e-9)
		})
	}
}

func TestNiceAxisRange(t *testing.T) {
	r := NiceAxisRange(105, 543)
	assert.InDelta(t, 100, r.Tick, 1e-9)
	// 105 is within 10% of one interval from the snapped edge 100, so the
	// lower edge expands by one interval.
	assert.InDelta(t, 0, r.Min, 1e-9)
	assert.InDelta(t, 600, r.Max, 1e-9)
}

func TestNiceAxisRangeDegenerate(t *testing.T) {
	r := NiceAxisRange(50, 50)
	assert.Greater(t, r.Tick, 0.0)
	assert.Less(t, r.Min, 50.0)
	assert.Greater(t, r.Max, 50.0)

	r = NiceAxisRange(math.NaN(), 10)
	assert.Zero(t, r.Tick)
}
