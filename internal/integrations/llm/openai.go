package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"supportbot/internal/httpx"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type OpenAIProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewOpenAIProvider(apiKey string, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		apiKey:   apiKey,
		endpoint: defaultOpenAIEndpoint,
		client:   httpx.ExternalHTTPClient(),
		logger:   logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	if model == "" {
		model = defaultOpenAIModel
	}
	bodyBytes, err := json.Marshal(openAIRequest{
		Model:    model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("llm openai error", zap.String("model", model), zap.Error(err))
		return "", Usage{}, fmt.Errorf("openai api error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("parsing openai response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		p.logger.Warn("llm openai api error", zap.String("model", model), zap.String("message", parsed.Error.Message))
		return "", Usage{}, fmt.Errorf("openai api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in openai response")
	}

	usage := Usage{Calls: 1}
	if parsed.Usage != nil {
		usage.InputTokens = parsed.Usage.PromptTokens
		usage.OutputTokens = parsed.Usage.CompletionTokens
	}
	content := parsed.Choices[0].Message.Content
	p.logger.Debug("llm openai response",
		zap.Int("size", len(content)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens),
	)
	return content, usage, nil
}
