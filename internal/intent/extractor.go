// Package intent extracts commercial intent and zero-party data from
// conversations in the background.
package intent

import (
	"context"
	"fmt"
	"strings"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
)

const historyTurns = 6

type Signal struct {
	Category   string   `json:"category"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Urgency    string   `json:"urgency,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

type ZeroPartyData struct {
	Preferences    map[string]string `json:"preferences,omitempty"`
	Demographics   map[string]string `json:"demographics,omitempty"`
	PurchaseIntent map[string]string `json:"purchaseIntent,omitempty"`
}

func (z ZeroPartyData) Empty() bool {
	return len(z.Preferences) == 0 && len(z.Demographics) == 0 && len(z.PurchaseIntent) == 0
}

type Result struct {
	IntentSignals       []Signal      `json:"intentSignals"`
	ZeroPartyData       ZeroPartyData `json:"zeroPartyData"`
	ConversationOutcome string        `json:"conversationOutcome,omitempty"`
}

var outcomes = map[string]bool{
	"purchase_likely": true,
	"browsing":        true,
	"support_only":    true,
	"churn_risk":      true,
}

func validateResult(r Result) error {
	if r.ConversationOutcome != "" && !outcomes[r.ConversationOutcome] {
		return fmt.Errorf("unknown conversation outcome %q", r.ConversationOutcome)
	}
	for _, s := range r.IntentSignals {
		if s.Confidence < 0 || s.Confidence > 1 {
			return fmt.Errorf("signal %q confidence %v out of range", s.Intent, s.Confidence)
		}
	}
	return nil
}

// Extract asks the model for intent signals. Callers treat any error as
// "nothing learned".
func Extract(ctx context.Context, client llm.Client, message string, history []domain.Message) (Result, error) {
	if client == nil {
		return Result{}, fmt.Errorf("no llm client")
	}
	text, err := client.Generate(ctx, buildPrompt(message, history))
	if err != nil {
		return Result{}, fmt.Errorf("generate intent signals: %w", err)
	}
	r, err := llm.DecodeJSON(text, validateResult)
	if err != nil {
		return Result{}, err
	}
	if r.IntentSignals == nil {
		r.IntentSignals = []Signal{}
	}
	return r, nil
}

func buildPrompt(message string, history []domain.Message) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+m.Content)
	}

	var b strings.Builder
	b.WriteString("You are an intent signal extraction engine. Analyze this customer support conversation to extract commercial intent signals and zero-party data.\n\n")
	fmt.Fprintf(&b, "CONVERSATION:\n%s\n\nLATEST MESSAGE: %q\n\n", strings.Join(lines, "\n"), message)
	b.WriteString(`Extract and respond with ONLY a JSON object (no markdown):
{
    "intentSignals": [
        {
            "category": "product_interest" | "purchase_intent" | "comparison" | "price_sensitivity" | "support_issue",
            "intent": "<specific intent, e.g. running_shoes>",
            "confidence": <0.0-1.0>,
            "urgency": "high" | "medium" | "low",
            "keywords": ["<relevant keywords>"]
        }
    ],
    "zeroPartyData": {
        "preferences": {"size": "", "color": "", "style": "", "priceRange": "", "brand": "", "category": ""},
        "demographics": {"location": "", "activity": ""},
        "purchaseIntent": {"urgency": "", "timeline": "", "budget": ""}
    },
    "conversationOutcome": "purchase_likely" | "browsing" | "support_only" | "churn_risk"
}

EXTRACTION GUIDELINES:
- Extract explicit preferences ("I need size 10" gives size "10")
- Infer implicit preferences ("for my morning runs" gives activity "running")
- Detect price sensitivity (asking about discounts, comparing prices)
- Identify purchase timeline urgency
- Only include fields with actual data`)
	return b.String()
}
