package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultCallTimeout = 30 * time.Second

// Router is the Gateway used by the service. It picks a provider from the
// model id prefix, enforces a per-call timeout and tracks token usage per model.
type Router struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
	timeout         time.Duration
	usage           map[string]Usage
	logger          *zap.Logger
}

func NewRouter(defaultProvider string, timeout time.Duration, logger *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		providers:       make(map[string]Provider),
		defaultProvider: normalizeProviderName(defaultProvider),
		timeout:         timeout,
		usage:           make(map[string]Usage),
		logger:          logger,
	}
}

func (r *Router) Register(provider Provider) {
	if provider == nil {
		return
	}
	key := normalizeProviderName(provider.Name())
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = provider
}

func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// ProviderFor resolves the provider for a model id, falling back to the
// default provider for ids without a known prefix.
func (r *Router) ProviderFor(model string) (Provider, error) {
	name := ProviderNameForModel(model)
	if name == "" {
		name = r.defaultProvider
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: no provider %q registered for model %q", ErrUnknownModel, name, model)
	}
	return p, nil
}

func (r *Router) Generate(ctx context.Context, prompt, model string) (string, error) {
	provider, err := r.ProviderFor(model)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	text, usage, err := provider.Complete(callCtx, model, prompt)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("llm generate failed",
			zap.String("provider", provider.Name()),
			zap.String("model", model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", err
	}

	r.mu.Lock()
	total := r.usage[model]
	total.Add(usage)
	r.usage[model] = total
	r.mu.Unlock()

	r.logger.Info("llm generate",
		zap.String("provider", provider.Name()),
		zap.String("model", model),
		zap.Duration("elapsed", elapsed),
		zap.Int64("tokens", usage.TotalTokens()),
	)
	return text, nil
}

// Usage returns a snapshot of accumulated usage keyed by model id.
func (r *Router) Usage() map[string]Usage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Usage, len(r.usage))
	for k, v := range r.usage {
		out[k] = v
	}
	return out
}

func ProviderNameForModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "openai"
	case strings.HasPrefix(m, "gemini"):
		return "gemini"
	default:
		return ""
	}
}

func normalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
