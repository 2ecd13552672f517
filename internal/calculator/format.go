package calculator

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Money renders d as dollars with thousands separators, e.g. $1,490,359.45.
// Rounding to cents happens in decimal before the value is formatted.
func Money(d decimal.Decimal) string {
	f := d.Round(2).InexactFloat64()
	if f < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -f)
	}
	return "$" + humanize.FormatFloat("#,###.##", f)
}
