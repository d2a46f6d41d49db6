package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	client *genai.Client
	logger *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{client: client, logger: logger}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	result, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		p.logger.Warn("llm gemini error", zap.String("model", model), zap.Error(err))
		return "", Usage{}, fmt.Errorf("gemini generate failed: %w", err)
	}

	usage := Usage{Calls: 1}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", usage, fmt.Errorf("no text content in gemini response")
	}
	p.logger.Debug("llm gemini response",
		zap.Int("size", len(text)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens),
	)
	return text, usage, nil
}
