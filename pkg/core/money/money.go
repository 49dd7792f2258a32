// Package money pins the engine's decimal precision policy. Two scales
// exist: Q7 (seven fractional digits) for every intermediate value and Q2
// (two fractional digits) for customer-facing output. Rounding is
// half-away-from-zero everywhere, which is what shopspring's Round does.
package money

import "github.com/shopspring/decimal"

const (
	// ScaleQ7 is the intermediate precision.
	ScaleQ7 int32 = 7
	// ScaleQ2 is the customer-facing precision.
	ScaleQ2 int32 = 2
)

// Q7 rounds to seven fractional digits, half away from zero.
func Q7(d decimal.Decimal) decimal.Decimal {
	return d.Round(ScaleQ7)
}

// Q2 rounds to two fractional digits, half away from zero.
func Q2(d decimal.Decimal) decimal.Decimal {
	return d.Round(ScaleQ2)
}

// MulQ7 multiplies and rounds the product to Q7 in one step. Every
// intermediate product in the pipeline goes through this so that identical
// inputs accumulate identically.
func MulQ7(a, b decimal.Decimal) decimal.Decimal {
	return Q7(a.Mul(b))
}

// Percent interprets value as a percentage (e.g. "-15" means -15%) applied
// to base, rounded to Q7.
func Percent(base, value decimal.Decimal) decimal.Decimal {
	return Q7(base.Mul(value).Div(decimal.NewFromInt(100)))
}

// StringQ2 renders a value fixed at two fractional digits, the customer
// presentation form ("220.00", not "220").
func StringQ2(d decimal.Decimal) string {
	return Q2(d).StringFixed(2)
}

// StringQ7 renders a value fixed at seven fractional digits.
func StringQ7(d decimal.Decimal) string {
	return Q7(d).StringFixed(7)
}

// ParseDecimal parses a decimal string, expanding exponential forms and
// normalising negative zero. It is the single entry point for numerics
// arriving from the wire or the database; floats never round-trip.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsZero() {
		// -0 and 0e-3 both collapse to plain zero.
		return decimal.Zero, nil
	}
	return d, nil
}

// Ulp7 is one unit in the last place at Q7, the ceiling on fixed-allocation
// residuals.
func Ulp7() decimal.Decimal {
	return decimal.New(1, -ScaleQ7)
}
