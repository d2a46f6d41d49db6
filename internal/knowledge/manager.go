package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

var ErrInvalidArticle = errors.New("category, title, and content are required")

// Store is the article persistence the manager needs.
type Store interface {
	ArticleSource
	GetArticle(ctx context.Context, id string) (domain.Article, error)
	CreateArticle(ctx context.Context, a domain.Article) error
	UpdateArticle(ctx context.Context, a domain.Article) error
	DeleteArticle(ctx context.Context, id string) error
}

type EventRecorder interface {
	Record(ctx context.Context, eventType, conversationID string, data map[string]any) error
}

type Category struct {
	Category     string    `json:"category"`
	ArticleCount int       `json:"articleCount"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

type ArticleInput struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// ArticlePatch updates only the fields that are set.
type ArticlePatch struct {
	Category *string `json:"category"`
	Title    *string `json:"title"`
	Content  *string `json:"content"`
}

type TrainingResult struct {
	Status            string    `json:"status"`
	ArticlesProcessed int       `json:"articlesProcessed"`
	Timestamp         time.Time `json:"timestamp"`
}

// Manager owns article CRUD and keeps the search index in step with the store.
type Manager struct {
	store  Store
	base   *Base
	events EventRecorder
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, base *Base, events EventRecorder, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, base: base, events: events, logger: logger, now: time.Now}
}

func (m *Manager) Base() *Base {
	return m.base
}

func (m *Manager) Categories(ctx context.Context) ([]Category, error) {
	articles, err := m.store.ListArticles(ctx, "")
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Category)
	for _, a := range articles {
		c, ok := byName[a.Category]
		if !ok {
			c = &Category{Category: a.Category}
			byName[a.Category] = c
		}
		c.ArticleCount++
		if a.UpdatedAt.After(c.LastUpdated) {
			c.LastUpdated = a.UpdatedAt
		}
	}
	out := make([]Category, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *Manager) Articles(ctx context.Context, category string) ([]domain.Article, error) {
	return m.store.ListArticles(ctx, strings.TrimSpace(category))
}

// Search runs the retrieval used by the chat pipeline with a wider limit.
func (m *Manager) Search(query string, limit int) []Match {
	return m.base.Search(query, limit)
}

func (m *Manager) Article(ctx context.Context, id string) (domain.Article, bool, error) {
	a, err := m.store.GetArticle(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, err
	}
	return a, true, nil
}

func (m *Manager) Create(ctx context.Context, in ArticleInput) (domain.Article, error) {
	in.Category = strings.TrimSpace(in.Category)
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if in.Category == "" || in.Title == "" || in.Content == "" {
		return domain.Article{}, ErrInvalidArticle
	}
	now := m.now().UTC()
	a := domain.Article{
		ID:        "art-" + uuid.NewString()[:8],
		Category:  in.Category,
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateArticle(ctx, a); err != nil {
		return domain.Article{}, fmt.Errorf("create article: %w", err)
	}
	if err := m.events.Record(ctx, domain.EventArticleCreated, "", map[string]any{
		"articleId": a.ID,
		"category":  a.Category,
		"title":     a.Title,
	}); err != nil {
		return domain.Article{}, err
	}
	m.reload(ctx)
	return a, nil
}

func (m *Manager) Update(ctx context.Context, id string, patch ArticlePatch) (domain.Article, bool, error) {
	a, ok, err := m.Article(ctx, id)
	if err != nil || !ok {
		return domain.Article{}, ok, err
	}
	if patch.Category != nil && strings.TrimSpace(*patch.Category) != "" {
		a.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
		a.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil && strings.TrimSpace(*patch.Content) != "" {
		a.Content = strings.TrimSpace(*patch.Content)
	}
	a.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateArticle(ctx, a); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Article{}, false, nil
		}
		return domain.Article{}, false, fmt.Errorf("update article: %w", err)
	}
	m.reload(ctx)
	return a, true, nil
}

func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	err := m.store.DeleteArticle(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete article: %w", err)
	}
	m.reload(ctx)
	return true, nil
}

// Train rebuilds the retrieval index from the store.
func (m *Manager) Train(ctx context.Context) (TrainingResult, error) {
	n, err := m.base.Reload(ctx, m.store)
	if err != nil {
		return TrainingResult{}, err
	}
	if err := m.events.Record(ctx, domain.EventTrainingTriggered, "", map[string]any{"articlesCount": n}); err != nil {
		return TrainingResult{}, err
	}
	return TrainingResult{Status: "Training initiated", ArticlesProcessed: n, Timestamp: m.now().UTC()}, nil
}

// Seed stores articles that are not present yet and reloads the index.
func (m *Manager) Seed(ctx context.Context, articles []domain.Article) (int, error) {
	created := 0
	for _, a := range articles {
		_, err := m.store.GetArticle(ctx, a.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return created, err
		}
		now := m.now().UTC()
		a.CreatedAt, a.UpdatedAt = now, now
		if err := m.store.CreateArticle(ctx, a); err != nil {
			return created, fmt.Errorf("seed article %s: %w", a.ID, err)
		}
		created++
	}
	if _, err := m.base.Reload(ctx, m.store); err != nil {
		return created, err
	}
	return created, nil
}

func (m *Manager) reload(ctx context.Context) {
	if _, err := m.base.Reload(ctx, m.store); err != nil {
		m.logger.Warn("knowledge index reload failed", zap.Error(err))
	}
}
