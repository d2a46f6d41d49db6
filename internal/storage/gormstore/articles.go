package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

func (s *Store) ListArticles(ctx context.Context, category string) ([]domain.Article, error) {
	query := s.db.WithContext(ctx).Model(&articleRow{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var rows []articleRow
	if err := query.Order("category").Order("title").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	out := make([]domain.Article, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	var row articleRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Article{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("get article: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateArticle(ctx context.Context, a domain.Article) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&articleRow{}).Where("id = ?", a.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("article %s: %w", a.ID, storage.ErrConflict)
		}
		row := articleRowFrom(a)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateArticle(ctx context.Context, a domain.Article) error {
	res := s.db.WithContext(ctx).Model(&articleRow{}).Where("id = ?", a.ID).Updates(map[string]any{
		"category":   a.Category,
		"title":      a.Title,
		"content":    a.Content,
		"updated_at": a.UpdatedAt.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("update article: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteArticle(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&articleRow{})
	if res.Error != nil {
		return fmt.Errorf("delete article: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
