// Package escalation decides when a conversation needs a human and how the
// resulting ticket is filed.
package escalation

import (
	"supportbot/internal/domain"
	"supportbot/internal/rules"
)

// LowConfidence is the reply confidence below which a human takes over.
const LowConfidence = 0.5

const largeAmount = 100.0

const (
	ReasonCustomerRequest = "Customer requested to speak with a human agent"
	ReasonFrustration     = "Customer expressing frustration or negative sentiment"
	ReasonHighValue       = "High-value issue requiring human review"
	ReasonSensitive       = "Sensitive issue that may require human intervention"
	ReasonLowConfidence   = "AI confidence is low for this query"
	ReasonAIHandoff       = "AI indicated need for human assistance"
	ReasonProactive       = "Customer sentiment is angry and declining - proactive escalation"
)

var (
	humanRequestPhrases = []string{
		"speak to human", "talk to human", "human agent", "real person",
		"speak to someone", "talk to someone", "manager", "supervisor",
		"representative", "speak to agent", "connect me with",
	}
	frustrationPhrases = []string{
		"ridiculous", "unacceptable", "terrible", "worst", "awful",
		"angry", "frustrated", "furious", "lawyer", "legal",
		"scam", "fraud", "stealing", "never again", "disgusted",
	}
	// Matched as whole words only: "sue" is inside "issue" and "suede".
	frustrationWords = []string{"sue", "sued", "suing"}
	sensitivePhrases = []string{
		"refund", "chargeback", "dispute", "compensation",
		"lost package", "never received", "damaged", "broken",
		"not what i ordered", "wrong item",
	}
	replyHandoffPhrases = []string{
		"connect you with", "human agent", "specialist", "escalate",
		"not sure", "cannot help with", "beyond my capabilities",
	}
)

// Input is everything the rules look at for one turn.
type Input struct {
	Message    string
	Reply      string
	Confidence float64
	Sentiment  domain.SentimentAnalysis
}

func trigger(t domain.TriggerType, reason string, p domain.Priority) func(Input) domain.EscalationTrigger {
	return rules.Const[Input](domain.EscalationTrigger{Type: t, Reason: reason, Priority: p})
}

func frustrated(in Input) bool {
	return rules.ContainsWordPrefix(in.Message, frustrationPhrases) || rules.ContainsWord(in.Message, frustrationWords)
}

func sensitive(in Input) bool {
	return rules.ContainsWordPrefix(in.Message, sensitivePhrases) || rules.AsksForMoneyBack(in.Message)
}

// DefaultRules are evaluated in order; the first match decides.
var DefaultRules = rules.List[Input, domain.EscalationTrigger]{
	{
		Name:    "human_request",
		Match:   func(in Input) bool { return rules.ContainsWordPrefix(in.Message, humanRequestPhrases) },
		Outcome: trigger(domain.TriggerCustomerRequest, ReasonCustomerRequest, domain.PriorityHigh),
	},
	{
		Name:    "frustration",
		Match:   frustrated,
		Outcome: trigger(domain.TriggerNegativeSentiment, ReasonFrustration, domain.PriorityHigh),
	},
	{
		Name:    "sensitive_high_value",
		Match:   func(in Input) bool { return sensitive(in) && rules.AnyAmountOver(in.Message, largeAmount) },
		Outcome: trigger(domain.TriggerSensitiveTopic, ReasonHighValue, domain.PriorityHigh),
	},
	{
		Name:    "sensitive",
		Match:   sensitive,
		Outcome: trigger(domain.TriggerSensitiveTopic, ReasonSensitive, domain.PriorityMedium),
	},
	{
		Name:    "low_confidence",
		Match:   func(in Input) bool { return in.Confidence < LowConfidence },
		Outcome: trigger(domain.TriggerLowConfidence, ReasonLowConfidence, domain.PriorityMedium),
	},
	{
		Name:    "reply_handoff",
		Match:   func(in Input) bool { return rules.ContainsAny(in.Reply, replyHandoffPhrases) },
		Outcome: trigger(domain.TriggerLowConfidence, ReasonAIHandoff, domain.PriorityMedium),
	},
}

// Decide returns the escalation verdict for one turn, or nil when the AI can
// keep handling the conversation. An angry customer whose mood is getting
// worse is escalated even when no rule fires.
func Decide(in Input) *domain.EscalationTrigger {
	if t, _, ok := DefaultRules.FirstMatch(in); ok {
		return &t
	}
	return ProactiveOverride(in.Sentiment)
}

// ProactiveOverride escalates angry customers whose trend is declining.
func ProactiveOverride(s domain.SentimentAnalysis) *domain.EscalationTrigger {
	if s.Level != domain.SentimentAngry || s.Trend != domain.TrendDeclining {
		return nil
	}
	return &domain.EscalationTrigger{
		Type:     domain.TriggerNegativeSentiment,
		Reason:   ReasonProactive,
		Priority: domain.PriorityHigh,
	}
}

const DefaultCategory = "General"

// CategoryRules file tickets by the message that triggered them.
var CategoryRules = rules.List[string, string]{
	categoryRule("Returns", "return", "refund"),
	categoryRule("Billing", "payment", "billing", "charge"),
	categoryRule("Orders", "order", "track"),
	categoryRule("Shipping", "shipping", "delivery", "package"),
	categoryRule("Account", "account", "password", "login"),
	categoryRule("Product", "product", "item", "quality"),
}

func categoryRule(category string, words ...string) rules.Rule[string, string] {
	return rules.Rule[string, string]{
		Name:    category,
		Match:   func(msg string) bool { return rules.ContainsAny(msg, words) },
		Outcome: rules.Const[string](category),
	}
}

func Categorize(message string) string {
	if c, _, ok := CategoryRules.FirstMatch(message); ok {
		return c
	}
	return DefaultCategory
}
