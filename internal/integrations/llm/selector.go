package llm

import (
	"fmt"
	"strings"
	"sync"
)

// ModelSelector holds the active model id for requests that do not name one.
// It is owned by the application and passed to whoever needs it.
type ModelSelector struct {
	mu      sync.RWMutex
	current string
	allowed []string
}

// NewModelSelector returns a selector starting at current. An empty allowed
// list permits only current.
func NewModelSelector(current string, allowed []string) (*ModelSelector, error) {
	current = strings.TrimSpace(current)
	if current == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrUnknownModel)
	}
	list := make([]string, 0, len(allowed)+1)
	seen := make(map[string]bool)
	for _, m := range append([]string{current}, allowed...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		list = append(list, m)
	}
	return &ModelSelector{current: current, allowed: list}, nil
}

func (s *ModelSelector) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *ModelSelector) Allowed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.allowed...)
}

func (s *ModelSelector) IsAllowed(model string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.allowed {
		if m == model {
			return true
		}
	}
	return false
}

func (s *ModelSelector) Set(model string) error {
	model = strings.TrimSpace(model)
	if !s.IsAllowed(model) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	s.mu.Lock()
	s.current = model
	s.mu.Unlock()
	return nil
}

// Resolve returns the model for one request: the override when given and
// allowed, otherwise the active model.
func (s *ModelSelector) Resolve(override string) (string, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		return s.Current(), nil
	}
	if !s.IsAllowed(override) {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, override)
	}
	return override, nil
}
