package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

const articleColumns = `id, category, title, content, created_at, updated_at`

func scanArticle(r rowScanner) (domain.Article, error) {
	var a domain.Article
	err := r.Scan(&a.ID, &a.Category, &a.Title, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) ListArticles(ctx context.Context, category string) ([]domain.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category, title, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	a, err := scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

func (s *Store) CreateArticle(ctx context.Context, a domain.Article) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Category, a.Title, a.Content, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("article %s: %w", a.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	return nil
}

func (s *Store) UpdateArticle(ctx context.Context, a domain.Article) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET category = ?, title = ?, content = ?, updated_at = ? WHERE id = ?`,
		a.Category, a.Title, a.Content, a.UpdatedAt.UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) DeleteArticle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return requireAffected(res)
}
