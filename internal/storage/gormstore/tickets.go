package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

const priorityOrder = "CASE priority WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END"

func (s *Store) CreateTicket(ctx context.Context, t domain.Ticket, note domain.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dup int64
		if err := tx.Model(&ticketRow{}).Where("ticket_id = ? OR id = ?", t.TicketID, t.ID).Count(&dup).Error; err != nil {
			return fmt.Errorf("check ticket id: %w", err)
		}
		if dup > 0 {
			return fmt.Errorf("ticket %s: %w", t.TicketID, storage.ErrConflict)
		}

		res := tx.Model(&conversationRow{}).
			Where("id = ? AND status = ?", t.ConversationID, string(domain.ConversationOpen)).
			Updates(map[string]any{
				"status":     string(domain.ConversationEscalated),
				"category":   t.Category,
				"updated_at": s.now(),
			})
		if res.Error != nil {
			return fmt.Errorf("escalate conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&conversationRow{}).Where("id = ?", t.ConversationID).Count(&exists).Error; err != nil {
				return fmt.Errorf("check conversation: %w", err)
			}
			if exists == 0 {
				return storage.ErrNotFound
			}
			return fmt.Errorf("conversation %s is not open: %w", t.ConversationID, storage.ErrConflict)
		}

		row := ticketRowFrom(t)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		return insertMessage(tx, note)
	})
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return takeTicket(s.db.WithContext(ctx).Where("ticket_id = ?", ticketID))
}

func (s *Store) TicketForConversation(ctx context.Context, conversationID string) (domain.Ticket, error) {
	return takeTicket(s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at DESC"))
}

func takeTicket(query *gorm.DB) (domain.Ticket, error) {
	var row ticketRow
	err := query.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Ticket{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTickets(ctx context.Context, f storage.TicketFilter) ([]domain.Ticket, error) {
	query := s.db.WithContext(ctx).Model(&ticketRow{})
	if f.Priority != "" {
		query = query.Where("priority = ?", string(f.Priority))
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	var rows []ticketRow
	if err := query.Order(priorityOrder).Order("created_at ASC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	out := make([]domain.Ticket, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) AssignTicket(ctx context.Context, ticketID, agent string) (domain.Ticket, error) {
	return s.updateTicket(ctx, ticketID, func(tx *gorm.DB, t ticketRow) error {
		res := tx.Model(&ticketRow{}).
			Where("id = ? AND status <> ?", t.ID, string(domain.TicketResolved)).
			Updates(map[string]any{
				"assigned_agent": agent,
				"status":         string(domain.TicketInProgress),
				"updated_at":     s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("ticket is resolved: %w", storage.ErrConflict)
		}
		return nil
	})
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (domain.Ticket, error) {
	return s.updateTicket(ctx, ticketID, func(tx *gorm.DB, t ticketRow) error {
		now := s.now()
		if err := tx.Model(&ticketRow{}).Where("id = ?", t.ID).Updates(map[string]any{
			"status":     string(status),
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		if status != domain.TicketResolved {
			return nil
		}
		return tx.Model(&conversationRow{}).
			Where("id = ? AND status <> ?", t.ConversationID, string(domain.ConversationResolved)).
			Updates(map[string]any{
				"status":     string(domain.ConversationResolved),
				"updated_at": now,
			}).Error
	})
}

func (s *Store) UpdateTicketPriority(ctx context.Context, ticketID string, p domain.Priority) (domain.Ticket, error) {
	return s.updateTicket(ctx, ticketID, func(tx *gorm.DB, t ticketRow) error {
		return tx.Model(&ticketRow{}).Where("id = ?", t.ID).Updates(map[string]any{
			"priority":   string(p),
			"updated_at": s.now(),
		}).Error
	})
}

func (s *Store) updateTicket(ctx context.Context, ticketID string, apply func(*gorm.DB, ticketRow) error) (domain.Ticket, error) {
	var out domain.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ticketRow
		err := tx.Where("ticket_id = ?", ticketID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get ticket: %w", err)
		}
		if err := apply(tx, row); err != nil {
			return fmt.Errorf("update ticket %s: %w", ticketID, err)
		}
		if err := tx.Where("id = ?", row.ID).Take(&row).Error; err != nil {
			return fmt.Errorf("reload ticket: %w", err)
		}
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return out, nil
}
