// Package knowledge holds the help-center articles and the keyword
// retrieval used to ground replies.
package knowledge

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"supportbot/internal/domain"
)

const (
	minKeywordLen  = 4
	minRelevance   = 0.1
	excerptChars   = 150
	DefaultResults = 3
)

// Match is one ranked search hit.
type Match struct {
	Article   domain.Article `json:"article"`
	Relevance float64        `json:"relevance"`
	Excerpt   string         `json:"excerpt"`
}

// ArticleSource lists stored articles. An empty category lists all of them.
type ArticleSource interface {
	ListArticles(ctx context.Context, category string) ([]domain.Article, error)
}

// Base is the in-memory search index over the article corpus. It is safe for
// concurrent use; Reload swaps the corpus atomically.
type Base struct {
	mu       sync.RWMutex
	articles []domain.Article
	lowered  []articleText
	index    *tfidfIndex
	logger   *zap.Logger
}

type articleText struct {
	title   string
	content string
}

func NewBase(logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Base{logger: logger}
	b.Load(nil)
	return b
}

// Load replaces the corpus.
func (b *Base) Load(articles []domain.Article) {
	corpus := append([]domain.Article(nil), articles...)
	texts := make([]string, len(corpus))
	lowered := make([]articleText, len(corpus))
	for i, a := range corpus {
		texts[i] = a.Title + " " + a.Content
		lowered[i] = articleText{title: strings.ToLower(a.Title), content: strings.ToLower(a.Content)}
	}
	index := buildTFIDFIndex(texts)

	b.mu.Lock()
	b.articles = corpus
	b.lowered = lowered
	b.index = index
	b.mu.Unlock()
}

// Reload rebuilds the corpus from src and returns the article count.
func (b *Base) Reload(ctx context.Context, src ArticleSource) (int, error) {
	articles, err := src.ListArticles(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("reload knowledge base: %w", err)
	}
	b.Load(articles)
	b.logger.Info("knowledge base reloaded", zap.Int("articles", len(articles)))
	return len(articles), nil
}

func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.articles)
}

// Search returns up to limit articles whose title or content contains one of
// the query keywords, best match first.
func (b *Base) Search(query string, limit int) []Match {
	if limit <= 0 {
		return nil
	}
	keywords := Keywords(query)
	if len(keywords) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	scores := b.index.scores(query)
	var results []scored
	for i, text := range b.lowered {
		titleHit := containsAny(text.title, keywords)
		if !titleHit && !containsAny(text.content, keywords) {
			continue
		}
		results = append(results, scored{index: i, score: scores[i], titleHit: titleHit})
	}
	sortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]Match, len(results))
	for i, r := range results {
		a := b.articles[r.index]
		out[i] = Match{
			Article:   a,
			Relevance: relevance(r.score),
			Excerpt:   Excerpt(a.Content),
		}
	}
	return out
}

// Keywords returns the lower-cased query tokens long enough to search on.
func Keywords(query string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range tokenize(query) {
		if utf8.RuneCountInString(tok) < minKeywordLen || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// Excerpt returns the first 150 characters of content, marked when cut.
func Excerpt(content string) string {
	if utf8.RuneCountInString(content) <= excerptChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:excerptChars]) + "..."
}

// Citations converts search hits to the citations attached to a reply.
func Citations(matches []Match) []domain.SourceCitation {
	out := make([]domain.SourceCitation, 0, len(matches))
	for _, m := range matches {
		out = append(out, domain.SourceCitation{
			ArticleID:      m.Article.ID,
			ArticleTitle:   m.Article.Title,
			RelevanceScore: m.Relevance,
			Excerpt:        m.Excerpt,
		})
	}
	return out
}

func relevance(score float64) float64 {
	r := math.Round(score*100) / 100
	if r < minRelevance {
		return minRelevance
	}
	return r
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
