package knowledge

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"supportbot/internal/domain"
)

type seedFile struct {
	Articles []domain.Article `yaml:"articles"`
}

// LoadSeedFile reads the article seed YAML. Articles without an id get one
// derived from their position so reseeding stays idempotent.
func LoadSeedFile(path string) ([]domain.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge base yaml: %w", err)
	}
	out := make([]domain.Article, 0, len(f.Articles))
	for i, a := range f.Articles {
		a.Category = strings.TrimSpace(a.Category)
		a.Title = strings.TrimSpace(a.Title)
		a.Content = strings.TrimSpace(a.Content)
		if a.Title == "" || a.Content == "" || a.Category == "" {
			return nil, fmt.Errorf("article %d: category, title and content are required", i+1)
		}
		if a.ID == "" {
			a.ID = fmt.Sprintf("art-%03d", i+1)
		}
		out = append(out, a)
	}
	return out, nil
}
