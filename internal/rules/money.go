package rules

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	dollarAmount = regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d+)?)`)
	myAmountBack = regexp.MustCompile(`(?i)\bmy\s+\$\s*\d+(?:,\d{3})*(?:\.\d+)?\s+back\b`)
)

// DollarAmounts returns every "$N" amount in text, in order of appearance.
func DollarAmounts(text string) []float64 {
	var out []float64
	for _, m := range dollarAmount.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// AnyAmountOver reports whether text mentions a dollar amount above limit.
func AnyAmountOver(text string, limit float64) bool {
	for _, v := range DollarAmounts(text) {
		if v > limit {
			return true
		}
	}
	return false
}

// AsksForMoneyBack matches "money back" and phrasings like "I want my $250 back".
func AsksForMoneyBack(text string) bool {
	return strings.Contains(strings.ToLower(text), "money back") || myAmountBack.MatchString(text)
}
