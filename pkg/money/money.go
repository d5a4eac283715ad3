// Package money converts between decimal currency amounts and integer minor
// units (cents). All comparisons and sums happen on cents; decimals appear only
// where amounts are shown to callers or stored as NUMERIC.
package money

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are rendered as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

var hundred = decimal.NewFromInt(100)

// ToCents rounds a currency amount half away from zero to whole cents.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents returns the currency amount for the given cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FromFloat is used at input boundaries that only offer float64.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

// MulUnits returns cents × units.
func MulUnits(cents int64, units int) int64 {
	return cents * int64(units)
}

// ScalePercent returns cents × pct / 100 rounded to whole cents.
func ScalePercent(cents int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(pct).Div(hundred).Round(0).IntPart()
}

// Percent returns num / den × 100 rounded to two decimals. A zero denominator
// yields zero.
func Percent(num, den int64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(num).Mul(hundred).Div(decimal.NewFromInt(den)).Round(2)
}

// Allocate splits total across weights proportionally. The parts always sum to
// total exactly: leftover cents go to the largest fractional remainders, ties
// broken by lower index.
func Allocate(total int64, weights []int64) []int64 {
	parts := make([]int64, len(weights))
	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 || len(weights) == 0 {
		return parts
	}

	rems := make([]int64, len(weights))
	var assigned int64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		num := total * w
		parts[i] = num / sum
		rems[i] = num % sum
		assigned += parts[i]
	}

	left := total - assigned
	for left > 0 {
		best := -1
		for i, w := range weights {
			if w <= 0 {
				continue
			}
			if best == -1 || rems[i] > rems[best] {
				best = i
			}
		}
		if best == -1 {
			break
		}
		parts[best]++
		rems[best] = -1
		left--
	}
	return parts
}
