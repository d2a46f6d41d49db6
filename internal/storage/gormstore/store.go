package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New(driver, dsn string) (*Store, error) {
	gormDB, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}
	store := &Store{db: gormDB, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&conversationRow{}, &messageRow{}, &ticketRow{}, &eventRow{}, &articleRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func (s *Store) CreateConversation(ctx context.Context, c domain.Conversation) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&conversationRow{}).Where("id = ?", c.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("create conversation %s: %w", c.ID, storage.ErrConflict)
	}
	row := conversationRowFrom(c)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Conversation{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	query := s.db.WithContext(ctx).Model(&conversationRow{}).Order("updated_at DESC").Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []conversationRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]domain.Conversation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateConversationStatus(ctx context.Context, id string, status domain.ConversationStatus) error {
	res := s.db.WithContext(ctx).Model(&conversationRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"updated_at": s.now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update conversation status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, m domain.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertMessage(tx, m); err != nil {
			return err
		}
		res := tx.Model(&conversationRow{}).Where("id = ?", m.ConversationID).Update("updated_at", s.now())
		if res.Error != nil {
			return fmt.Errorf("touch conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func insertMessage(tx *gorm.DB, m domain.Message) error {
	var count int64
	if err := tx.Model(&messageRow{}).Where("id = ?", m.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("insert message %s: %w", m.ID, storage.ErrConflict)
	}
	row := messageRowFrom(m)
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) RecordAnalyticsEvent(ctx context.Context, e domain.AnalyticsEvent) error {
	row, err := eventRowFrom(e)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record analytics event: %w", err)
	}
	return nil
}

func (s *Store) ListAnalyticsEvents(ctx context.Context, f storage.EventFilter) ([]domain.AnalyticsEvent, error) {
	query := s.db.WithContext(ctx).Model(&eventRow{})
	if f.Type != "" {
		query = query.Where("event_type = ?", f.Type)
	}
	if f.ConversationID != "" {
		query = query.Where("conversation_id = ?", f.ConversationID)
	}
	if !f.Since.IsZero() {
		query = query.Where("created_at >= ?", f.Since.UTC())
	}
	var rows []eventRow
	if err := query.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	out := make([]domain.AnalyticsEvent, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode event %s data: %w", row.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
