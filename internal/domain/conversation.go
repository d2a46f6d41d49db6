package domain

import "time"

type ConversationStatus string

const (
	ConversationOpen      ConversationStatus = "open"
	ConversationEscalated ConversationStatus = "escalated"
	ConversationResolved  ConversationStatus = "resolved"
)

type Conversation struct {
	ID            string             `json:"id"`
	CustomerID    string             `json:"customerId"`
	CustomerName  string             `json:"customerName"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	Status        ConversationStatus `json:"status"`
	Category      string             `json:"category,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAI       Role = "ai"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
)

// Message is immutable once stored. ConfidenceScore is only set on ai messages.
type Message struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversationId"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	ConfidenceScore *float64  `json:"confidenceScore,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for queues: high sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	default:
		return "", false
	}
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
)

type Ticket struct {
	ID               string       `json:"id"`
	TicketID         string       `json:"ticketId"` // human readable, e.g. TKT-4821
	ConversationID   string       `json:"conversationId"`
	Customer         string       `json:"customer"`
	Category         string       `json:"category"`
	Priority         Priority     `json:"priority"`
	EscalationReason string       `json:"escalationReason"`
	AssignedAgent    string       `json:"assignedAgent,omitempty"`
	Status           TicketStatus `json:"status"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

type TriggerType string

const (
	TriggerLowConfidence     TriggerType = "low_confidence"
	TriggerCustomerRequest   TriggerType = "customer_request"
	TriggerSensitiveTopic    TriggerType = "sensitive_topic"
	TriggerRepeatedQuestion  TriggerType = "repeated_question"
	TriggerNegativeSentiment TriggerType = "negative_sentiment"
	TriggerPolicyException   TriggerType = "policy_exception"
)

type EscalationTrigger struct {
	Type     TriggerType `json:"type"`
	Reason   string      `json:"reason"`
	Priority Priority    `json:"priority"`
}
