package rules

import (
	"strings"
	"unicode"
)

// ContainsAny reports whether any phrase occurs in text as a plain substring.
// Both sides are compared lower-cased.
func ContainsAny(text string, phrases []string) bool {
	return len(MatchedSubstrings(text, phrases)) > 0
}

func MatchedSubstrings(text string, phrases []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			out = append(out, p)
		}
	}
	return out
}

// ContainsWord reports whether any phrase occurs bounded by non-word runes on
// both sides, so "sue" does not match "issue".
func ContainsWord(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if indexBounded(lower, strings.ToLower(p), true) >= 0 {
			return true
		}
	}
	return false
}

// ContainsWordPrefix only requires a boundary before the phrase, so "refund"
// also matches "refunded".
func ContainsWordPrefix(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if indexBounded(lower, strings.ToLower(p), false) >= 0 {
			return true
		}
	}
	return false
}

// MatchedWordPrefixes returns the phrases that ContainsWordPrefix would
// accept, in list order.
func MatchedWordPrefixes(text string, phrases []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, p := range phrases {
		if indexBounded(lower, strings.ToLower(p), false) >= 0 {
			out = append(out, p)
		}
	}
	return out
}

func indexBounded(text, phrase string, requireEnd bool) int {
	if phrase == "" {
		return -1
	}
	from := 0
	for from <= len(text)-len(phrase) {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && (!requireEnd || boundaryAfter(text, end)) {
			return start
		}
		from = start + 1
	}
	return -1
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r := []rune(text[i:])[0]
	return !isWordRune(r)
}

func lastRune(s string) rune {
	rs := []rune(s)
	return rs[len(rs)-1]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
