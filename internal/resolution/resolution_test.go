package resolution

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/domain"
)

func action(t domain.ActionType, label string, auto bool) domain.QuickAction {
	return domain.QuickAction{ID: string(t), Type: t, Label: label, Eligible: true, AutoApproved: auto}
}

func TestSuggestNilWithoutActions(t *testing.T) {
	assert.Nil(t, Suggest(nil, domain.SentimentAnalysis{}))
}

func TestSuggestAutoApprovedFirst(t *testing.T) {
	actions := []domain.QuickAction{
		action(domain.ActionRefund, "Process Refund", false),
		action(domain.ActionReplacement, "Send Replacement", true),
	}
	got := Suggest(actions, domain.SentimentAnalysis{Level: domain.SentimentNeutral})
	require.NotNil(t, got)
	assert.Equal(t, domain.ActionReplacement, got.PrimaryAction.Type)
	require.Len(t, got.AlternativeActions, 1)
	assert.Equal(t, domain.ActionRefund, got.AlternativeActions[0].Type)
	assert.Equal(t, 0.75, got.Confidence)
	assert.Equal(t, "Based on the customer's message, send replacement is recommended.", got.Reasoning)
	assert.Equal(t, domain.ActionRefund, actions[0].Type, "input is not reordered")
}

func TestSuggestCallbackLeadsForAngry(t *testing.T) {
	actions := []domain.QuickAction{
		action(domain.ActionDiscount, "Offer Discount Code", true),
		action(domain.ActionManualReview, "Flag for Review", false),
		action(domain.ActionCallback, "Schedule Callback", true),
	}
	got := Suggest(actions, domain.SentimentAnalysis{Level: domain.SentimentAngry, EmpathyNeeded: true})
	require.NotNil(t, got)
	assert.Equal(t, domain.ActionCallback, got.PrimaryAction.Type)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, "Based on the customer's message and their angry sentiment, schedule callback is recommended.", got.Reasoning)
	assert.Equal(t, domain.ActionDiscount, got.AlternativeActions[0].Type)
	assert.Equal(t, domain.ActionManualReview, got.AlternativeActions[1].Type)
}

func TestProactiveAlerts(t *testing.T) {
	now := time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC)
	customer := &domain.CustomerContext{RecentOrders: []domain.Order{
		{ID: "#13001", Status: domain.OrderInTransit},
		{ID: "#13045", Status: domain.OrderProcessing, CreatedAt: now.Add(-72 * time.Hour)},
		{ID: "#13046", Status: domain.OrderProcessing, CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "#12890", Status: domain.OrderDelivered},
	}}

	want := []domain.ProactiveAlert{
		{
			ID: "alert-#13001", Type: "delivery_delay", Priority: domain.PriorityMedium,
			Title:           "Delivery Update Available",
			Message:         "Order #13001 is currently in transit. Would you like tracking details?",
			SuggestedAction: "Share tracking information proactively", RelatedOrderID: "#13001",
		},
		{
			ID: "alert-delay-#13045", Type: "delivery_delay", Priority: domain.PriorityHigh,
			Title:           "Order Processing Longer Than Expected",
			Message:         "Order #13045 has been processing for 3 days. Consider proactive outreach.",
			SuggestedAction: "Offer expedited shipping or discount", RelatedOrderID: "#13045",
		},
	}
	if diff := cmp.Diff(want, ProactiveAlerts(customer, now)); diff != "" {
		t.Fatalf("alerts mismatch (-want +got):\n%s", diff)
	}
}

func TestProactiveAlertsEmpty(t *testing.T) {
	got := ProactiveAlerts(nil, time.Now())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
