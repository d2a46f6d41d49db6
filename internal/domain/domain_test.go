package domain

import (
	"sort"
	"testing"
)

func TestParsePriority(t *testing.T) {
	for _, s := range []string{"high", "medium", "low"} {
		p, ok := ParsePriority(s)
		if !ok || string(p) != s {
			t.Fatalf("ParsePriority(%q) = %q, %v", s, p, ok)
		}
	}
	if _, ok := ParsePriority("High"); ok {
		t.Fatal("priorities are case sensitive")
	}
	if _, ok := ParsePriority("urgent"); ok {
		t.Fatal("unknown priority accepted")
	}
}

func TestPriorityRankSortsHighFirst(t *testing.T) {
	ps := []Priority{PriorityLow, PriorityHigh, "", PriorityMedium}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Rank() < ps[j].Rank() })
	want := []Priority{PriorityHigh, PriorityMedium, PriorityLow, ""}
	for i := range want {
		if ps[i] != want[i] {
			t.Fatalf("unexpected order: %v", ps)
		}
	}
}

func TestParseActionType(t *testing.T) {
	for _, a := range ActionTypes {
		got, ok := ParseActionType(string(a))
		if !ok || got != a {
			t.Fatalf("ParseActionType(%q) = %q, %v", a, got, ok)
		}
	}
	if _, ok := ParseActionType("gift_card"); ok {
		t.Fatal("unknown action type accepted")
	}
}

func TestLatestOrder(t *testing.T) {
	var nilCtx *CustomerContext
	if _, ok := nilCtx.LatestOrder(); ok {
		t.Fatal("nil context has no orders")
	}
	if _, ok := (&CustomerContext{}).LatestOrder(); ok {
		t.Fatal("empty context has no orders")
	}
	c := &CustomerContext{RecentOrders: []Order{{ID: "#2"}, {ID: "#1"}}}
	o, ok := c.LatestOrder()
	if !ok || o.ID != "#2" {
		t.Fatalf("unexpected latest order: %+v %v", o, ok)
	}
}

func TestEnumValidity(t *testing.T) {
	if !SentimentAngry.Valid() || SentimentLevel("furious").Valid() {
		t.Fatal("sentiment level validity")
	}
	if !TrendDeclining.Valid() || Trend("").Valid() {
		t.Fatal("trend validity")
	}
	if !RiskMedium.Valid() || Risk("severe").Valid() {
		t.Fatal("risk validity")
	}
}
