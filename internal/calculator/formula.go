// Package calculator answers investment growth questions analytically.
package calculator

import (
	"github.com/shopspring/decimal"
)

// DefaultCompounding is monthly compounding.
const DefaultCompounding = 12

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// FutureValue of an annuity: PMT * ((1+r)^n - 1) / r with r the periodic rate
// and n the number of periods. A zero rate degenerates to PMT * n.
func FutureValue(payment, annualRatePct decimal.Decimal, years, perYear int) decimal.Decimal {
	if perYear <= 0 {
		perYear = DefaultCompounding
	}
	n := int64(years * perYear)
	r := annualRatePct.Div(hundred).Div(decimal.NewFromInt(int64(perYear)))
	if r.IsZero() {
		return payment.Mul(decimal.NewFromInt(n))
	}
	growth := one.Add(r).Pow(decimal.NewFromInt(n))
	return payment.Mul(growth.Sub(one).Div(r))
}

// CompoundInterest of a lump sum: P * (1 + r/m)^(m*t).
func CompoundInterest(principal, annualRatePct decimal.Decimal, years, perYear int) decimal.Decimal {
	if perYear <= 0 {
		perYear = DefaultCompounding
	}
	r := annualRatePct.Div(hundred).Div(decimal.NewFromInt(int64(perYear)))
	return principal.Mul(one.Add(r).Pow(decimal.NewFromInt(int64(years * perYear))))
}
