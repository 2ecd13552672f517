package calculator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindMonthly Kind = "monthly"
	KindLumpSum Kind = "lump_sum"
)

// Params are the values extracted from a question. RateKnown is false when
// the question asks for today's rates without naming one.
type Params struct {
	Kind       Kind            `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	AnnualRate decimal.Decimal `json:"annual_rate"`
	Years      int             `json:"years"`
	RateKnown  bool            `json:"rate_known"`
}

const amount = `\$?(\d{1,10}(?:,\d{3})*(?:\.\d{2})?)`

var (
	monthlyPatterns = compile(
		amount+`\s*(?:per month|a month|monthly|/month|month)`,
		`invest\s+`+amount,
		amount+`\s*each month`,
	)
	principalPatterns = compile(
		`invest\s+`+amount,
		`\$(\d{1,10}(?:,\d{3})*(?:\.\d{2})?)\s+at`,
		`principal\s+(?:of\s+)?`+amount,
	)
	ratePatterns = compile(
		`(?:at|@|with|earning|return(?:ing)?)\s+(\d+(?:\.\d+)?)\s*%`,
		`(\d+(?:\.\d+)?)\s*%\s*(?:annual|yearly|per year)?`,
		`(\d+(?:\.\d+)?)\s*percent`,
	)
	yearPatterns = compile(
		`(?:for|over|in)\s+(\d+)\s*years?`,
		`(\d+)\s*years?`,
	)
	monthlyIndicators = []string{"per month", "monthly", "/month", "a month", "each month"}
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// firstMatch returns the first capture of the first pattern that matches.
func firstMatch(patterns []*regexp.Regexp, s string) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	return d, err == nil
}

func parseRate(q string) (decimal.Decimal, bool) {
	raw, ok := firstMatch(ratePatterns, q)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	return d, err == nil
}

var quotedRate = regexp.MustCompile(`\b(\d{1,2}(?:\.\d{1,3})?)\s*%`)

// ExtractRate returns the first plausible annual percentage quoted in text,
// such as a search snippet reading "rates are around 4.35% APY".
func ExtractRate(text string) (decimal.Decimal, bool) {
	for _, m := range quotedRate.FindAllStringSubmatch(text, -1) {
		d, err := decimal.NewFromString(m[1])
		if err == nil && d.IsPositive() && d.LessThanOrEqual(decimal.NewFromInt(30)) {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

func parseYears(q string) (int, bool) {
	raw, ok := firstMatch(yearPatterns, q)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// ParseLumpSum extracts a one-time investment. Questions that mention a
// monthly contribution are never lump sums.
func ParseLumpSum(query string) (Params, bool) {
	q := strings.ToLower(query)
	for _, ind := range monthlyIndicators {
		if strings.Contains(q, ind) {
			return Params{}, false
		}
	}
	raw, ok := firstMatch(principalPatterns, q)
	if !ok {
		return Params{}, false
	}
	principal, ok := parseAmount(raw)
	if !ok {
		return Params{}, false
	}
	years, ok := parseYears(q)
	if !ok {
		return Params{}, false
	}
	p := Params{Kind: KindLumpSum, Amount: principal, Years: years}
	p.AnnualRate, p.RateKnown = parseRate(q)
	if !p.RateKnown && !strings.Contains(q, "current") && !strings.Contains(q, "today") {
		return Params{}, false
	}
	return p, true
}

// ParseMonthly extracts a recurring monthly contribution.
func ParseMonthly(query string) (Params, bool) {
	q := strings.ToLower(query)
	raw, ok := firstMatch(monthlyPatterns, q)
	if !ok {
		return Params{}, false
	}
	payment, ok := parseAmount(raw)
	if !ok {
		return Params{}, false
	}
	rate, ok := parseRate(q)
	if !ok {
		return Params{}, false
	}
	years, ok := parseYears(q)
	if !ok {
		return Params{}, false
	}
	return Params{Kind: KindMonthly, Amount: payment, AnnualRate: rate, Years: years, RateKnown: true}, true
}

// Parse tries the lump sum form first, then the monthly one.
func Parse(query string) (Params, bool) {
	if p, ok := ParseLumpSum(query); ok {
		return p, true
	}
	return ParseMonthly(query)
}
