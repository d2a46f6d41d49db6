package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

type AnthropicProvider struct {
	client    anthropic.Client
	maxTokens int64
	logger    *zap.Logger
}

func NewAnthropicProvider(apiKey string, logger *zap.Logger) *AnthropicProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: 2048,
		logger:    logger,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	if model == "" {
		model = defaultAnthropicModel
	}
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		p.logger.Warn("llm anthropic error", zap.String("model", model), zap.Error(err))
		return "", Usage{}, fmt.Errorf("anthropic api error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
		Calls:                    1,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			p.logger.Debug("llm anthropic response",
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens),
			)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in anthropic response")
}
