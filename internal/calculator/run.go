package calculator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Result of answering one calculation question.
type Result struct {
	Success       bool            `json:"success"`
	Value         decimal.Decimal `json:"value"`
	Explanation   string          `json:"explanation"`
	Params        *Params         `json:"params,omitempty"`
	NeedsLiveRate bool            `json:"needs_live_rate,omitempty"`
}

const usage = "I couldn't parse that query. Please try a format like:\n" +
	"• Monthly: 'If I invest $500 a month at 7% for 20 years, how much?'\n" +
	"• Lump sum: 'If I invest $1000 at 7% for 5 years, how much?'\n" +
	"• '$200/month at 5% return for 10 years'"

// Run parses query and evaluates the matching formula. Value is rounded to
// cents.
func Run(query string) Result {
	p, ok := Parse(query)
	if !ok {
		return Result{Explanation: usage}
	}
	if !p.RateKnown {
		return Result{
			Explanation: "I need a live interest rate to calculate this. " +
				"Please specify a rate, for example 'at 5%'.",
			Params:        &p,
			NeedsLiveRate: true,
		}
	}
	return Evaluate(p)
}

// Evaluate computes the future value for fully known parameters.
func Evaluate(p Params) Result {
	if p.Years <= 0 {
		return Result{Explanation: "The investment period must be at least one year.", Params: &p}
	}
	switch p.Kind {
	case KindLumpSum:
		fv := CompoundInterest(p.Amount, p.AnnualRate, p.Years, DefaultCompounding)
		return Result{Success: true, Value: fv.Round(2), Explanation: explainLumpSum(p, fv), Params: &p}
	default:
		fv := FutureValue(p.Amount, p.AnnualRate, p.Years, DefaultCompounding)
		return Result{Success: true, Value: fv.Round(2), Explanation: explainMonthly(p, fv), Params: &p}
	}
}

// WithRate fills in a rate obtained elsewhere, typically from a live search,
// and evaluates the result.
func WithRate(p Params, annualRate decimal.Decimal) Result {
	p.AnnualRate = annualRate
	p.RateKnown = true
	return Evaluate(p)
}

func explainMonthly(p Params, fv decimal.Decimal) string {
	contributed := p.Amount.Mul(decimal.NewFromInt(int64(p.Years * DefaultCompounding)))
	var b strings.Builder
	fmt.Fprintf(&b, "Investing %s/month at %s%% annual return for %d years:\n", Money(p.Amount), p.AnnualRate.String(), p.Years)
	fmt.Fprintf(&b, "• Total contributions: %s\n", Money(contributed))
	fmt.Fprintf(&b, "• Interest earned: %s\n", Money(fv.Sub(contributed)))
	fmt.Fprintf(&b, "• Final value: %s\n", Money(fv))
	if contributed.IsPositive() {
		fmt.Fprintf(&b, "Your money will grow %sx through compound interest!", fv.Div(contributed).StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}

func explainLumpSum(p Params, fv decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Investing %s at %s%% annual return for %d years (compounded %dx/year):\n",
		Money(p.Amount), p.AnnualRate.String(), p.Years, DefaultCompounding)
	fmt.Fprintf(&b, "• Initial investment: %s\n", Money(p.Amount))
	fmt.Fprintf(&b, "• Interest earned: %s\n", Money(fv.Sub(p.Amount)))
	fmt.Fprintf(&b, "• Final value: %s\n", Money(fv))
	if p.Amount.IsPositive() {
		fmt.Fprintf(&b, "Your money will grow %sx!", fv.Div(p.Amount).StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}

var calculationKeywords = []string{
	"invest", "investing", "monthly", "per month",
	"compound", "annuity", "save", "saving",
	"how much will i have", "future value", "per year",
}

// IsCalculation is a keyword intent check. A true result only means the
// calculator should be tried first.
func IsCalculation(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range calculationKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
