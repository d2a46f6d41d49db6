package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstMatchHonorsOrder(t *testing.T) {
	list := List[string, string]{
		{Name: "short", Match: func(s string) bool { return len(s) < 4 }, Outcome: Const[string]("short")},
		{Name: "has-a", Match: func(s string) bool { return strings.Contains(s, "a") }, Outcome: Const[string]("a")},
		{Name: "any", Match: func(string) bool { return true }, Outcome: Const[string]("fallthrough")},
	}

	out, name, ok := list.FirstMatch("cat")
	require.True(t, ok)
	assert.Equal(t, "short", out)
	assert.Equal(t, "short", name)

	out, name, ok = list.FirstMatch("banana")
	require.True(t, ok)
	assert.Equal(t, "a", out)
	assert.Equal(t, "has-a", name)

	out, _, _ = list.FirstMatch("lemons")
	assert.Equal(t, "fallthrough", out)
}

func TestFirstMatchNoRule(t *testing.T) {
	list := List[int, string]{
		{Name: "neg", Match: func(i int) bool { return i < 0 }, Outcome: Const[int]("neg")},
	}
	out, name, ok := list.FirstMatch(5)
	assert.False(t, ok)
	assert.Empty(t, out)
	assert.Empty(t, name)
	assert.Equal(t, []string{"neg"}, list.Names())
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I will sue you", true},
		{"there is an issue with my order", false},
		{"SUE!", true},
		{"pursue", false},
	}
	for _, tt := range tests {
		if got := ContainsWord(tt.text, []string{"sue"}); got != tt.want {
			t.Errorf("ContainsWord(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestContainsWordPrefix(t *testing.T) {
	assert.True(t, ContainsWordPrefix("I was refunded twice", []string{"refund"}))
	assert.False(t, ContainsWordPrefix("nonrefundable", []string{"refund"}))
	assert.True(t, ContainsWordPrefix("Let me talk to a manager.", []string{"manager"}))
	assert.Equal(t, []string{"thank", "thanks"}, MatchedWordPrefixes("Thanks so much!", []string{"thank", "thanks", "hate"}))
	assert.Empty(t, MatchedWordPrefixes("whatever", []string{"hate"}))
}

func TestMatchedSubstrings(t *testing.T) {
	got := MatchedSubstrings("Thanks, this is GREAT", []string{"thank", "great", "awful"})
	assert.Equal(t, []string{"thank", "great"}, got)
	assert.True(t, ContainsAny("where is my ORDER", []string{"order"}))
}

func TestDollarAmounts(t *testing.T) {
	assert.Equal(t, []float64{250, 1200.5, 3}, DollarAmounts("I want my $250 back, not $1,200.50 or $ 3"))
	assert.Empty(t, DollarAmounts("no money here"))
	assert.True(t, AnyAmountOver("it cost $100.01", 100))
	assert.False(t, AnyAmountOver("it cost $100", 100))
}

func TestAsksForMoneyBack(t *testing.T) {
	assert.True(t, AsksForMoneyBack("This is garbage, I want my $250 back now"))
	assert.True(t, AsksForMoneyBack("I just want my MONEY BACK"))
	assert.False(t, AsksForMoneyBack("I paid $250 and I'm back home"))
}
