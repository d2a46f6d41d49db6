// Package resolution ranks recommended actions into a single suggestion and
// raises proactive alerts from the customer's order history.
package resolution

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"supportbot/internal/domain"
)

// ProcessingAlertAfter is how long an order may sit in processing before
// support is prompted to reach out.
const ProcessingAlertAfter = 48 * time.Hour

const (
	confidenceEmpathy = 0.9
	confidenceDefault = 0.75
)

// Suggest picks a primary action and keeps the rest as alternatives.
// Auto-approved actions come first; for angry customers a callback leads.
func Suggest(actions []domain.QuickAction, sentiment domain.SentimentAnalysis) *domain.ResolutionSuggestion {
	if len(actions) == 0 {
		return nil
	}
	ranked := append([]domain.QuickAction(nil), actions...)
	angry := sentiment.Level == domain.SentimentAngry
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.AutoApproved != b.AutoApproved {
			return a.AutoApproved
		}
		if angry && (a.Type == domain.ActionCallback) != (b.Type == domain.ActionCallback) {
			return a.Type == domain.ActionCallback
		}
		return false
	})

	primary := ranked[0]
	reasoning := "Based on the customer's message"
	confidence := confidenceDefault
	if sentiment.EmpathyNeeded {
		reasoning += fmt.Sprintf(" and their %s sentiment", sentiment.Level)
		confidence = confidenceEmpathy
	}
	reasoning += fmt.Sprintf(", %s is recommended.", strings.ToLower(primary.Label))

	return &domain.ResolutionSuggestion{
		PrimaryAction:      primary,
		AlternativeActions: ranked[1:],
		Confidence:         confidence,
		Reasoning:          reasoning,
	}
}

// ProactiveAlerts flags orders the customer is likely to ask about.
func ProactiveAlerts(customer *domain.CustomerContext, now time.Time) []domain.ProactiveAlert {
	alerts := []domain.ProactiveAlert{}
	if customer == nil {
		return alerts
	}
	for _, o := range customer.RecentOrders {
		switch o.Status {
		case domain.OrderInTransit:
			alerts = append(alerts, domain.ProactiveAlert{
				ID:              "alert-" + o.ID,
				Type:            "delivery_delay",
				Priority:        domain.PriorityMedium,
				Title:           "Delivery Update Available",
				Message:         fmt.Sprintf("Order %s is currently in transit. Would you like tracking details?", o.ID),
				SuggestedAction: "Share tracking information proactively",
				RelatedOrderID:  o.ID,
			})
		case domain.OrderProcessing:
			if o.CreatedAt.IsZero() {
				continue
			}
			age := now.Sub(o.CreatedAt)
			if age <= ProcessingAlertAfter {
				continue
			}
			days := int(age / (24 * time.Hour))
			alerts = append(alerts, domain.ProactiveAlert{
				ID:              "alert-delay-" + o.ID,
				Type:            "delivery_delay",
				Priority:        domain.PriorityHigh,
				Title:           "Order Processing Longer Than Expected",
				Message:         fmt.Sprintf("Order %s has been processing for %d days. Consider proactive outreach.", o.ID, days),
				SuggestedAction: "Offer expedited shipping or discount",
				RelatedOrderID:  o.ID,
			})
		}
	}
	return alerts
}
