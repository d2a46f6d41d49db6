// Package storage defines the record store shared by the sqlite and gorm
// backends.
package storage

import (
	"context"
	"errors"
	"time"

	"supportbot/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a duplicate key or a write that lost against the
	// current state of the row.
	ErrConflict = errors.New("conflict")
)

type TicketFilter struct {
	Priority domain.Priority
	Category string
	Status   domain.TicketStatus
}

type EventFilter struct {
	Type           string
	ConversationID string
	Since          time.Time
}

type Store interface {
	CreateConversation(ctx context.Context, c domain.Conversation) error
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	// ListConversations returns the most recently updated first. limit <= 0
	// lists all.
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, status domain.ConversationStatus) error

	AppendMessage(ctx context.Context, m domain.Message) error
	// ListMessages returns messages in insertion order.
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// CreateTicket stores the ticket, moves the open conversation to
	// escalated with the ticket category, and appends note, in one
	// transaction.
	CreateTicket(ctx context.Context, t domain.Ticket, note domain.Message) error
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	TicketForConversation(ctx context.Context, conversationID string) (domain.Ticket, error)
	// ListTickets orders by priority, high first, then oldest first.
	ListTickets(ctx context.Context, f TicketFilter) ([]domain.Ticket, error)
	AssignTicket(ctx context.Context, ticketID, agent string) (domain.Ticket, error)
	// UpdateTicketStatus resolves the owning conversation in the same
	// transaction when status is resolved.
	UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (domain.Ticket, error)
	UpdateTicketPriority(ctx context.Context, ticketID string, p domain.Priority) (domain.Ticket, error)

	RecordAnalyticsEvent(ctx context.Context, e domain.AnalyticsEvent) error
	ListAnalyticsEvents(ctx context.Context, f EventFilter) ([]domain.AnalyticsEvent, error)

	ListArticles(ctx context.Context, category string) ([]domain.Article, error)
	GetArticle(ctx context.Context, id string) (domain.Article, error)
	CreateArticle(ctx context.Context, a domain.Article) error
	UpdateArticle(ctx context.Context, a domain.Article) error
	DeleteArticle(ctx context.Context, id string) error

	Close() error
}
