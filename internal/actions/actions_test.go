package actions

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/integrations/llm/llmtest"
)

func customerWithOrder(amount float64) *domain.CustomerContext {
	return &domain.CustomerContext{
		Customer:     domain.Customer{ID: "cust-1", Name: "Pat"},
		RecentOrders: []domain.Order{{ID: "#13102", Status: domain.OrderDelivered, Amount: amount}},
	}
}

func types(as []domain.QuickAction) []domain.ActionType {
	out := make([]domain.ActionType, len(as))
	for i, a := range as {
		out[i] = a.Type
	}
	return out
}

func TestBuildRefundBoundary(t *testing.T) {
	order := domain.Order{ID: "#1", Amount: 100}
	a, err := Build(domain.ActionRefund, BuildInput{Order: &order})
	require.NoError(t, err)
	assert.True(t, a.Eligible)
	assert.True(t, a.AutoApproved)
	assert.Empty(t, a.Reason)
	require.NotNil(t, a.EstimatedValue)
	assert.Equal(t, 100.0, *a.EstimatedValue)
	assert.Equal(t, "Refund $100.00 for order #1", a.Description)

	order.Amount = 100.01
	a, err = Build(domain.ActionRefund, BuildInput{Order: &order})
	require.NoError(t, err)
	assert.False(t, a.Eligible)
	assert.False(t, a.AutoApproved)
	assert.Equal(t, "Amount exceeds $100 auto-approval limit", a.Reason)
}

func TestBuildDiscountPercent(t *testing.T) {
	a, err := Build(domain.ActionDiscount, BuildInput{Sentiment: domain.SentimentAngry})
	require.NoError(t, err)
	assert.Equal(t, 20.0, *a.EstimatedValue)
	assert.Equal(t, "Generate a 20% discount code for next purchase", a.Description)

	a, err = Build(domain.ActionDiscount, BuildInput{Sentiment: domain.SentimentFrustrated})
	require.NoError(t, err)
	assert.Equal(t, 15.0, *a.EstimatedValue)
	assert.True(t, a.AutoApproved)
}

func TestBuildApprovalRules(t *testing.T) {
	for _, tt := range []struct {
		typ  domain.ActionType
		auto bool
	}{
		{domain.ActionReplacement, true},
		{domain.ActionExpediteShipping, true},
		{domain.ActionCallback, true},
		{domain.ActionManualReview, false},
	} {
		a, err := Build(tt.typ, BuildInput{Reason: "because"})
		require.NoError(t, err)
		assert.True(t, a.Eligible, tt.typ)
		assert.Equal(t, tt.auto, a.AutoApproved, tt.typ)
		assert.Equal(t, "because", a.Description)
		assert.True(t, strings.HasPrefix(a.ID, "action-"+string(tt.typ)+"-"), a.ID)
	}

	_, err := Build("teleport", BuildInput{})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestFallbackGarbageScenario(t *testing.T) {
	got := Fallback("This is garbage, I want my $250 back now", customerWithOrder(250), domain.SentimentAnalysis{Level: domain.SentimentNeutral})
	require.Equal(t, []domain.ActionType{domain.ActionRefund, domain.ActionReplacement}, types(got))
	assert.False(t, got[0].AutoApproved)
	assert.Equal(t, 250.0, *got[0].EstimatedValue)
}

func TestFallbackAngryCapsAtThree(t *testing.T) {
	got := Fallback("my item arrived broken and I want a refund, it was late", customerWithOrder(20), domain.SentimentAnalysis{Level: domain.SentimentAngry})
	assert.Equal(t, []domain.ActionType{domain.ActionRefund, domain.ActionDiscount, domain.ActionReplacement}, types(got))
}

func TestFallbackNoTriggers(t *testing.T) {
	assert.Empty(t, Fallback("what are your opening hours?", nil, domain.SentimentAnalysis{}))
	assert.Empty(t, Fallback("I love chocolate", nil, domain.SentimentAnalysis{}))
}

func TestRecommendModelPath(t *testing.T) {
	gw := llmtest.Static(`[
		{"type":"callback","confidence":0.7,"reason":"wants to talk","priority":3},
		{"type":"refund","confidence":0.9,"reason":"money back","priority":1},
		{"type":"discount","confidence":0.4,"reason":"low","priority":2},
		{"type":"replacement","confidence":0.5,"reason":"quality","priority":2},
		{"type":"manual_review","confidence":0.8,"reason":"extra","priority":4}
	]`)
	r := NewRecommender(nil)
	got := r.Recommend(context.Background(), llm.Bind(gw, "gpt-4o-mini"), "I want my money returned", nil, customerWithOrder(40), domain.SentimentAnalysis{Level: domain.SentimentConcerned})

	require.Equal(t, []domain.ActionType{domain.ActionRefund, domain.ActionReplacement, domain.ActionCallback}, types(got))
	assert.Equal(t, "Refund $40.00 for order #13102", got[0].Description)
	assert.True(t, got[0].AutoApproved)
	assert.Equal(t, "quality", got[1].Description)
}

func TestRecommendEmptyArrayMeansNoActions(t *testing.T) {
	got := NewRecommender(nil).Recommend(context.Background(), llm.Bind(llmtest.Static("[]"), "m"), "refund please", nil, nil, domain.SentimentAnalysis{})
	assert.Empty(t, got)
}

func TestRecommendFallbackEquivalence(t *testing.T) {
	msg := "The package arrived damaged and I want a refund"
	customer := customerWithOrder(120)
	sentiment := domain.SentimentAnalysis{Level: domain.SentimentFrustrated}
	want := types(Fallback(msg, customer, sentiment))

	for name, gw := range map[string]*llmtest.Gateway{
		"gateway error": llmtest.Failing(nil),
		"prose":         llmtest.Static("You should refund them."),
		"unknown type":  llmtest.Static(`[{"type":"teleport","confidence":0.9,"reason":"x","priority":1}]`),
	} {
		t.Run(name, func(t *testing.T) {
			got := NewRecommender(nil).Recommend(context.Background(), llm.Bind(gw, "m"), msg, nil, customer, sentiment)
			assert.Equal(t, want, types(got))
			assert.False(t, got[0].Eligible)
		})
	}
}

func TestPromptIncludesOrdersAndSentiment(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleCustomer, Content: "one"},
		{Role: domain.RoleAI, Content: "two"},
		{Role: domain.RoleCustomer, Content: "three"},
		{Role: domain.RoleAI, Content: "four"},
		{Role: domain.RoleCustomer, Content: "five"},
	}
	p := buildPrompt("five", history, customerWithOrder(12.5), domain.SentimentAnalysis{Level: domain.SentimentAngry, PrimaryEmotion: "furious"})
	assert.NotContains(t, p, "CUSTOMER: one")
	assert.Contains(t, p, "AI: two")
	assert.Contains(t, p, "- Order #13102: delivered, $12.50")
	assert.Contains(t, p, "CUSTOMER SENTIMENT: angry (furious)")

	p = buildPrompt("hi", nil, nil, domain.SentimentAnalysis{})
	assert.Contains(t, p, "No order history available.")
	assert.Contains(t, p, "CUSTOMER SENTIMENT: unknown (not analyzed)")
}
