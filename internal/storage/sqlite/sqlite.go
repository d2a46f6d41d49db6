// Package sqlite is the default Store, backed by database/sql and go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id             TEXT PRIMARY KEY,
		customer_id    TEXT NOT NULL,
		customer_name  TEXT NOT NULL,
		customer_email TEXT DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'open',
		created_at     DATETIME NOT NULL,
		updated_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL UNIQUE,
		conversation_id  TEXT NOT NULL,
		role             TEXT NOT NULL,
		content          TEXT NOT NULL,
		confidence_score REAL,
		created_at       DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS tickets (
		id                TEXT PRIMARY KEY,
		ticket_id         TEXT NOT NULL UNIQUE,
		conversation_id   TEXT NOT NULL,
		customer          TEXT NOT NULL,
		category          TEXT NOT NULL,
		priority          TEXT NOT NULL,
		escalation_reason TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'open',
		created_at        DATETIME NOT NULL,
		updated_at        DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_conversation ON tickets(conversation_id);

	CREATE TABLE IF NOT EXISTS analytics_events (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		event_type      TEXT NOT NULL,
		conversation_id TEXT DEFAULT '',
		data            TEXT DEFAULT '{}',
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_type_date ON analytics_events(event_type, created_at);

	CREATE TABLE IF NOT EXISTS articles (
		id         TEXT PRIMARY KEY,
		category   TEXT NOT NULL,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Migrations for columns added after the first release.
	for _, m := range []struct{ table, column, ddl string }{
		{"conversations", "category", `ALTER TABLE conversations ADD COLUMN category TEXT DEFAULT ''`},
		{"tickets", "assigned_agent", `ALTER TABLE tickets ADD COLUMN assigned_agent TEXT DEFAULT ''`},
	} {
		var colCount int
		_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&colCount)
		if colCount == 0 {
			if _, err := db.Exec(m.ddl); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate %s.%s: %w", m.table, m.column, err)
			}
		}
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const conversationColumns = `id, customer_id, customer_name, customer_email, status, category, created_at, updated_at`

func scanConversation(r rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	err := r.Scan(&c.ID, &c.CustomerID, &c.CustomerName, &c.CustomerEmail, &c.Status, &c.Category, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateConversation(ctx context.Context, c domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CustomerID, c.CustomerName, c.CustomerEmail, c.Status, c.Category, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create conversation %s: %w", c.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations ORDER BY updated_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateConversationStatus(ctx context.Context, id string, status domain.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`, status, s.now(), id)
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) AppendMessage(ctx context.Context, m domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertMessage(ctx, tx, m); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.now(), m.ConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	var confidence sql.NullFloat64
	if m.ConfidenceScore != nil {
		confidence = sql.NullFloat64{Float64: *m.ConfidenceScore, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, confidence_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, confidence, m.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert message %s: %w", m.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, confidence_score, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var confidence sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &confidence, &m.CreatedAt); err != nil {
			return nil, err
		}
		if confidence.Valid {
			v := confidence.Float64
			m.ConfidenceScore = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) RecordAnalyticsEvent(ctx context.Context, e domain.AnalyticsEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, event_type, conversation_id, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.ConversationID, string(data), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record analytics event: %w", err)
	}
	return nil
}

func (s *Store) ListAnalyticsEvents(ctx context.Context, f storage.EventFilter) ([]domain.AnalyticsEvent, error) {
	query := `SELECT id, event_type, conversation_id, data, created_at FROM analytics_events WHERE 1 = 1`
	var args []any
	if f.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, f.Type)
	}
	if f.ConversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, f.ConversationID)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	defer rows.Close()

	var out []domain.AnalyticsEvent
	for rows.Next() {
		var e domain.AnalyticsEvent
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &e.ConversationID, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return nil, fmt.Errorf("decode event %s data: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
