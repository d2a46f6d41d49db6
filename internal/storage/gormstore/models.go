package gormstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"supportbot/internal/domain"
)

type conversationRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	CustomerID    string    `gorm:"size:64;not null"`
	CustomerName  string    `gorm:"size:191;not null"`
	CustomerEmail string    `gorm:"size:191"`
	Status        string    `gorm:"size:32;not null"`
	Category      string    `gorm:"size:64"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null;index"`
}

func (conversationRow) TableName() string { return "conversations" }

func conversationRowFrom(c domain.Conversation) conversationRow {
	return conversationRow{
		ID:            c.ID,
		CustomerID:    c.CustomerID,
		CustomerName:  c.CustomerName,
		CustomerEmail: c.CustomerEmail,
		Status:        string(c.Status),
		Category:      c.Category,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func (r conversationRow) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		Status:        domain.ConversationStatus(r.Status),
		Category:      r.Category,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// messageRow keeps an autoincrement sequence so listing follows insertion
// order even when timestamps collide.
type messageRow struct {
	Seq             int64     `gorm:"primaryKey;autoIncrement"`
	ID              string    `gorm:"size:64;uniqueIndex;not null"`
	ConversationID  string    `gorm:"size:64;index;not null"`
	Role            string    `gorm:"size:16;not null"`
	Content         string    `gorm:"type:text;not null"`
	ConfidenceScore *float64
	CreatedAt       time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "messages" }

func messageRowFrom(m domain.Message) messageRow {
	return messageRow{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		Role:            string(m.Role),
		Content:         m.Content,
		ConfidenceScore: m.ConfidenceScore,
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:              r.ID,
		ConversationID:  r.ConversationID,
		Role:            domain.Role(r.Role),
		Content:         r.Content,
		ConfidenceScore: r.ConfidenceScore,
		CreatedAt:       r.CreatedAt,
	}
}

type ticketRow struct {
	ID               string    `gorm:"primaryKey;size:64"`
	TicketID         string    `gorm:"size:32;uniqueIndex;not null"`
	ConversationID   string    `gorm:"size:64;index;not null"`
	Customer         string    `gorm:"size:191;not null"`
	Category         string    `gorm:"size:64;not null"`
	Priority         string    `gorm:"size:16;not null"`
	EscalationReason string    `gorm:"type:text;not null"`
	AssignedAgent    string    `gorm:"size:191"`
	Status           string    `gorm:"size:32;not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (ticketRow) TableName() string { return "tickets" }

func ticketRowFrom(t domain.Ticket) ticketRow {
	return ticketRow{
		ID:               t.ID,
		TicketID:         t.TicketID,
		ConversationID:   t.ConversationID,
		Customer:         t.Customer,
		Category:         t.Category,
		Priority:         string(t.Priority),
		EscalationReason: t.EscalationReason,
		AssignedAgent:    t.AssignedAgent,
		Status:           string(t.Status),
		CreatedAt:        t.CreatedAt.UTC(),
		UpdatedAt:        t.UpdatedAt.UTC(),
	}
}

func (r ticketRow) toDomain() domain.Ticket {
	return domain.Ticket{
		ID:               r.ID,
		TicketID:         r.TicketID,
		ConversationID:   r.ConversationID,
		Customer:         r.Customer,
		Category:         r.Category,
		Priority:         domain.Priority(r.Priority),
		EscalationReason: r.EscalationReason,
		AssignedAgent:    r.AssignedAgent,
		Status:           domain.TicketStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type eventRow struct {
	Seq            int64          `gorm:"primaryKey;autoIncrement"`
	ID             string         `gorm:"size:64;uniqueIndex;not null"`
	EventType      string         `gorm:"size:64;index:idx_events_type_date,priority:1;not null"`
	ConversationID string         `gorm:"size:64;index"`
	Data           datatypes.JSON
	CreatedAt      time.Time      `gorm:"index:idx_events_type_date,priority:2;not null"`
}

func (eventRow) TableName() string { return "analytics_events" }

func eventRowFrom(e domain.AnalyticsEvent) (eventRow, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return eventRow{}, err
	}
	return eventRow{
		ID:             e.ID,
		EventType:      e.Type,
		ConversationID: e.ConversationID,
		Data:           datatypes.JSON(data),
		CreatedAt:      e.CreatedAt.UTC(),
	}, nil
}

func (r eventRow) toDomain() (domain.AnalyticsEvent, error) {
	e := domain.AnalyticsEvent{
		ID:             r.ID,
		Type:           r.EventType,
		ConversationID: r.ConversationID,
		CreatedAt:      r.CreatedAt,
	}
	if len(r.Data) > 0 && string(r.Data) != "null" {
		if err := json.Unmarshal(r.Data, &e.Data); err != nil {
			return domain.AnalyticsEvent{}, err
		}
	}
	return e, nil
}

type articleRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Category  string    `gorm:"size:64;index;not null"`
	Title     string    `gorm:"size:255;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (articleRow) TableName() string { return "articles" }

func articleRowFrom(a domain.Article) articleRow {
	return articleRow{
		ID:        a.ID,
		Category:  a.Category,
		Title:     a.Title,
		Content:   a.Content,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (r articleRow) toDomain() domain.Article {
	return domain.Article{
		ID:        r.ID,
		Category:  r.Category,
		Title:     r.Title,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
