package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

const ticketColumns = `id, ticket_id, conversation_id, customer, category, priority, escalation_reason, assigned_agent, status, created_at, updated_at`

const priorityOrder = `CASE priority WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END`

func scanTicket(r rowScanner) (domain.Ticket, error) {
	var t domain.Ticket
	err := r.Scan(&t.ID, &t.TicketID, &t.ConversationID, &t.Customer, &t.Category, &t.Priority,
		&t.EscalationReason, &t.AssignedAgent, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) CreateTicket(ctx context.Context, t domain.Ticket, note domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var dup int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE ticket_id = ? OR id = ?`, t.TicketID, t.ID).Scan(&dup); err != nil {
		return fmt.Errorf("check ticket id: %w", err)
	}
	if dup > 0 {
		return fmt.Errorf("ticket %s: %w", t.TicketID, storage.ErrConflict)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET status = ?, category = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.ConversationEscalated, t.Category, s.now(), t.ConversationID, domain.ConversationOpen)
	if err != nil {
		return fmt.Errorf("escalate conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalate conversation: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM conversations WHERE id = ?`, t.ConversationID).Scan(&exists); err != nil {
			return fmt.Errorf("check conversation: %w", err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return fmt.Errorf("conversation %s is not open: %w", t.ConversationID, storage.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TicketID, t.ConversationID, t.Customer, t.Category, t.Priority,
		t.EscalationReason, t.AssignedAgent, t.Status, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticket %s: %w", t.TicketID, storage.ErrConflict)
		}
		return fmt.Errorf("insert ticket: %w", err)
	}

	if err := insertMessage(ctx, tx, note); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return s.getTicket(ctx, s.db, `ticket_id = ?`, ticketID)
}

func (s *Store) TicketForConversation(ctx context.Context, conversationID string) (domain.Ticket, error) {
	return s.getTicket(ctx, s.db, `conversation_id = ? ORDER BY created_at DESC LIMIT 1`, conversationID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getTicket(ctx context.Context, q querier, where string, arg any) (domain.Ticket, error) {
	t, err := scanTicket(q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (s *Store) ListTickets(ctx context.Context, f storage.TicketFilter) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1 = 1`
	var args []any
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, f.Priority)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY ` + priorityOrder + `, created_at ASC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) AssignTicket(ctx context.Context, ticketID, agent string) (domain.Ticket, error) {
	return s.updateTicket(ctx, ticketID, func(tx *sql.Tx, t domain.Ticket) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET assigned_agent = ?, status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
			agent, domain.TicketInProgress, s.now(), t.ID, domain.TicketResolved)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("ticket is resolved: %w", storage.ErrConflict)
		}
		return nil
	})
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (domain.Ticket, error) {
	return s.updateTicket(ctx, ticketID, func(tx *sql.Tx, t domain.Ticket) error {
		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`, status, now, t.ID); err != nil {
			return err
		}
		if status != domain.TicketResolved {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
			domain.ConversationResolved, now, t.ConversationID, domain.ConversationResolved)
		return err
	})
}

func (s *Store) UpdateTicketPriority(ctx context.Context, ticketID string, p domain.Priority) (domain.Ticket, error) {
	return s.updateTicket(ctx, ticketID, func(tx *sql.Tx, t domain.Ticket) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE tickets SET priority = ?, updated_at = ? WHERE id = ?`, p, s.now(), t.ID)
		return err
	})
}

func (s *Store) updateTicket(ctx context.Context, ticketID string, apply func(*sql.Tx, domain.Ticket) error) (domain.Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()

	t, err := s.getTicket(ctx, tx, `ticket_id = ?`, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := apply(tx, t); err != nil {
		return domain.Ticket{}, fmt.Errorf("update ticket %s: %w", ticketID, err)
	}
	updated, err := s.getTicket(ctx, tx, `id = ?`, t.ID)
	if err != nil {
		return domain.Ticket{}, err
	}
	return updated, tx.Commit()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
