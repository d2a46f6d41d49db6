// Package actions recommends remediation actions for a customer message and
// applies the business rules that decide whether each one may run unattended.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/rules"
)

// AutoApprovalLimit is the largest refund that runs without a human.
const AutoApprovalLimit = 100.0

const (
	maxActions    = 3
	minConfidence = 0.5
	historyTurns  = 4
)

var ErrUnknownAction = errors.New("unknown action type")

// BuildInput is what the validator knows about the situation.
type BuildInput struct {
	Order     *domain.Order
	Reason    string
	Sentiment domain.SentimentLevel
}

// Build turns an action type into a validated QuickAction.
func Build(t domain.ActionType, in BuildInput) (domain.QuickAction, error) {
	a := domain.QuickAction{
		ID:           fmt.Sprintf("action-%s-%s", t, uuid.NewString()[:8]),
		Type:         t,
		Eligible:     true,
		AutoApproved: true,
	}
	switch t {
	case domain.ActionRefund:
		var amount float64
		if in.Order != nil {
			amount = in.Order.Amount
		}
		a.Label = "Process Refund"
		switch {
		case in.Order != nil:
			a.Description = fmt.Sprintf("Refund $%.2f for order %s", amount, in.Order.ID)
		default:
			a.Description = orDefault(in.Reason, "Process a full refund for this order")
		}
		a.EstimatedValue = &amount
		if amount > AutoApprovalLimit {
			a.Eligible = false
			a.AutoApproved = false
			a.Reason = fmt.Sprintf("Amount exceeds $%.0f auto-approval limit", AutoApprovalLimit)
		}
	case domain.ActionDiscount:
		percent := 15.0
		if in.Sentiment == domain.SentimentAngry {
			percent = 20
		}
		a.Label = "Offer Discount Code"
		a.Description = orDefault(in.Reason, fmt.Sprintf("Generate a %.0f%% discount code for next purchase", percent))
		a.EstimatedValue = &percent
	case domain.ActionReplacement:
		a.Label = "Send Replacement"
		a.Description = orDefault(in.Reason, "Ship a replacement item with expedited delivery")
	case domain.ActionExpediteShipping:
		a.Label = "Expedite Shipping"
		a.Description = orDefault(in.Reason, "Upgrade to express shipping at no extra cost")
	case domain.ActionCallback:
		a.Label = "Schedule Callback"
		a.Description = orDefault(in.Reason, "Have a support specialist call within 30 minutes")
	case domain.ActionManualReview:
		a.Label = "Flag for Review"
		a.Description = orDefault(in.Reason, "Escalate to supervisor for policy review")
		a.AutoApproved = false
	default:
		return domain.QuickAction{}, fmt.Errorf("%w: %q", ErrUnknownAction, t)
	}
	return a, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

type Recommender struct {
	logger *zap.Logger
}

func NewRecommender(logger *zap.Logger) *Recommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recommender{logger: logger}
}

type candidate struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Priority   int     `json:"priority"`
}

func validateCandidates(cs []candidate) error {
	for _, c := range cs {
		if _, ok := domain.ParseActionType(c.Type); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAction, c.Type)
		}
	}
	return nil
}

// Recommend asks the model which actions fit and validates its picks. Any
// gateway or decode failure falls back to keyword triggers.
func (r *Recommender) Recommend(ctx context.Context, client llm.Client, message string, history []domain.Message, customer *domain.CustomerContext, sentiment domain.SentimentAnalysis) []domain.QuickAction {
	if client == nil {
		return Fallback(message, customer, sentiment)
	}
	text, err := client.Generate(ctx, buildPrompt(message, history, customer, sentiment))
	if err != nil {
		r.logger.Warn("quick actions llm failed, using keywords", zap.String("model", client.Model()), zap.Error(err))
		return Fallback(message, customer, sentiment)
	}
	picks, err := llm.DecodeJSON(text, validateCandidates)
	if err != nil {
		r.logger.Warn("quick actions parse failed, using keywords", zap.String("model", client.Model()), zap.Error(err))
		return Fallback(message, customer, sentiment)
	}

	kept := picks[:0]
	for _, c := range picks {
		if c.Confidence >= minConfidence {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Priority < kept[j].Priority })

	order := latestOrder(customer)
	out := make([]domain.QuickAction, 0, maxActions)
	seen := make(map[domain.ActionType]bool)
	for _, c := range kept {
		t, _ := domain.ParseActionType(c.Type)
		if seen[t] {
			continue
		}
		a, err := Build(t, BuildInput{Order: order, Reason: c.Reason, Sentiment: sentiment.Level})
		if err != nil {
			continue
		}
		seen[t] = true
		out = append(out, a)
		if len(out) == maxActions {
			break
		}
	}
	return out
}

type trigger struct {
	action domain.ActionType
	match  func(message string, s domain.SentimentLevel) bool
}

// Trigger order is also the output order of the fallback.
var triggers = []trigger{
	{domain.ActionRefund, func(m string, _ domain.SentimentLevel) bool {
		return rules.ContainsWordPrefix(m, []string{"refund", "return"}) || rules.AsksForMoneyBack(m)
	}},
	{domain.ActionDiscount, func(m string, s domain.SentimentLevel) bool {
		return s == domain.SentimentFrustrated || s == domain.SentimentAngry ||
			rules.ContainsWordPrefix(m, []string{"disappointed", "unhappy"})
	}},
	{domain.ActionReplacement, func(m string, _ domain.SentimentLevel) bool {
		return rules.ContainsWordPrefix(m, []string{"damaged", "broken", "wrong item", "defective", "garbage", "junk"})
	}},
	{domain.ActionExpediteShipping, func(m string, _ domain.SentimentLevel) bool {
		return rules.ContainsWord(m, []string{"late"}) ||
			rules.ContainsWordPrefix(m, []string{"delay", "where is my order", "taking too long"})
	}},
	{domain.ActionCallback, func(m string, s domain.SentimentLevel) bool {
		return s == domain.SentimentAngry || rules.ContainsWordPrefix(m, []string{"speak to", "call me"})
	}},
}

// Fallback picks actions from keyword triggers and runs them through the
// same validator as the model path.
func Fallback(message string, customer *domain.CustomerContext, sentiment domain.SentimentAnalysis) []domain.QuickAction {
	order := latestOrder(customer)
	out := make([]domain.QuickAction, 0, maxActions)
	for _, t := range triggers {
		if !t.match(message, sentiment.Level) {
			continue
		}
		in := BuildInput{Sentiment: sentiment.Level}
		if t.action == domain.ActionRefund {
			in.Order = order
		}
		a, err := Build(t.action, in)
		if err != nil {
			continue
		}
		out = append(out, a)
		if len(out) == maxActions {
			break
		}
	}
	return out
}

func latestOrder(customer *domain.CustomerContext) *domain.Order {
	o, ok := customer.LatestOrder()
	if !ok {
		return nil
	}
	return &o
}

func buildPrompt(message string, history []domain.Message, customer *domain.CustomerContext, sentiment domain.SentimentAnalysis) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+m.Content)
	}

	orders := "\nNo order history available."
	if customer != nil && len(customer.RecentOrders) > 0 {
		ol := make([]string, 0, len(customer.RecentOrders))
		for _, o := range customer.RecentOrders {
			ol = append(ol, fmt.Sprintf("- Order %s: %s, $%.2f", o.ID, o.Status, o.Amount))
		}
		orders = "\nCUSTOMER ORDERS:\n" + strings.Join(ol, "\n")
	}

	level := string(sentiment.Level)
	if level == "" {
		level = "unknown"
	}
	emotion := orDefault(sentiment.PrimaryEmotion, "not analyzed")

	var b strings.Builder
	b.WriteString("You are a smart action recommendation engine for customer support.\n\n")
	b.WriteString("Analyze the conversation and recommend appropriate resolution actions.\n\n")
	fmt.Fprintf(&b, "CONVERSATION:\n%s\n\nLATEST MESSAGE: %q\n%s\n\n", strings.Join(lines, "\n"), message, orders)
	fmt.Fprintf(&b, "CUSTOMER SENTIMENT: %s (%s)\n\n", level, emotion)
	b.WriteString(`AVAILABLE ACTIONS:
1. refund - Process a refund (customer wants money back, return, reimbursement)
2. discount - Offer discount code (retention, apology, frustrated customers)
3. replacement - Send replacement item (damaged, defective, wrong items, quality issues)
4. expedite_shipping - Upgrade shipping speed (delays, slow delivery, waiting too long)
5. callback - Schedule phone callback (complex issues, angry customers, wants to talk)
6. manual_review - Flag for human review (edge cases, policy exceptions, high-value issues)

Respond with ONLY a JSON array (no markdown, no explanation):
[
    {
        "type": "refund" | "discount" | "replacement" | "expedite_shipping" | "callback" | "manual_review",
        "confidence": <0.0 to 1.0>,
        "reason": "<why this action is recommended>",
        "priority": <1 = highest priority>
    }
]

GUIDELINES:
- Only recommend actions that are RELEVANT to the conversation
- Consider semantic meaning, not just keywords
- "I want my money returned" means refund
- "This is garbage/junk/terrible quality" means replacement
- "I've been waiting forever" means expedite_shipping
- For angry customers, always include callback
- For frustrated customers, include discount
- Return an empty array [] if no actions are appropriate
- Maximum 3 actions, ordered by priority`)
	return b.String()
}
