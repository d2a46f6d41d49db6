package domain

import "time"

// Analytics event types. The log is append-only and keyed by conversation id
// when one applies.
const (
	EventConversationStarted  = "conversation_started"
	EventMessageProcessed     = "message_processed"
	EventEscalationCreated    = "escalation_created"
	EventConversationResolved = "conversation_resolved"
	EventTicketAssigned       = "ticket_assigned"
	EventTicketResolved       = "ticket_resolved"
	EventArticleCreated       = "article_created"
	EventTrainingTriggered    = "ai_training_triggered"
	EventQuickActionRequested = "quick_action_requested"
	EventIntentSignal         = "intent_signal"
)

type AnalyticsEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"eventType"`
	ConversationID string         `json:"conversationId,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	CustomerID     string `json:"customerId,omitempty"`
	CustomerName   string `json:"customerName,omitempty"`
	CustomerEmail  string `json:"customerEmail,omitempty"`
	// Model overrides the active model for this request only.
	Model string `json:"model,omitempty"`
}

type ChatResponse struct {
	ConversationID       string                `json:"conversationId"`
	Message              Message               `json:"message"`
	SuggestedResponses   []string              `json:"suggestedResponses"`
	ShouldEscalate       bool                  `json:"shouldEscalate"`
	EscalationReason     string                `json:"escalationReason,omitempty"`
	Escalation           *EscalationTrigger    `json:"escalation,omitempty"`
	TicketID             string                `json:"ticketId,omitempty"`
	CustomerContext      *CustomerContext      `json:"customerContext,omitempty"`
	Sentiment            SentimentAnalysis     `json:"sentiment"`
	QuickActions         []QuickAction         `json:"quickActions"`
	ResolutionSuggestion *ResolutionSuggestion `json:"resolutionSuggestion,omitempty"`
	ProactiveAlerts      []ProactiveAlert      `json:"proactiveAlerts"`
	SourceCitations      []SourceCitation      `json:"sourceCitations"`
	Model                string                `json:"model"`
}
