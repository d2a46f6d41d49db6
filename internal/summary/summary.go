// Package summary condenses long conversations for agents picking them up.
package summary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
)

// MinMessages is the shortest conversation worth summarizing.
const MinMessages = 5

type Summary struct {
	Summary             string            `json:"summary"`
	KeyTopics           []string          `json:"keyTopics"`
	UnresolvedIssues    []string          `json:"unresolvedIssues"`
	CustomerPreferences map[string]string `json:"customerPreferences,omitempty"`
}

func empty() Summary {
	return Summary{KeyTopics: []string{}, UnresolvedIssues: []string{}}
}

type Summarizer struct {
	logger *zap.Logger
}

func NewSummarizer(logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{logger: logger}
}

// Summarize never fails: short conversations and model failures both yield
// an empty summary.
func (s *Summarizer) Summarize(ctx context.Context, client llm.Client, history []domain.Message) Summary {
	if len(history) < MinMessages || client == nil {
		return empty()
	}
	text, err := client.Generate(ctx, buildPrompt(history))
	if err != nil {
		s.logger.Warn("conversation summary failed", zap.String("model", client.Model()), zap.Error(err))
		return empty()
	}
	out, err := llm.DecodeJSON[Summary](text, nil)
	if err != nil {
		s.logger.Warn("conversation summary parse failed", zap.Error(err))
		return empty()
	}
	if out.KeyTopics == nil {
		out.KeyTopics = []string{}
	}
	if out.UnresolvedIssues == nil {
		out.UnresolvedIssues = []string{}
	}
	return out
}

func buildPrompt(history []domain.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+m.Content)
	}
	var b strings.Builder
	b.WriteString("Summarize this customer support conversation concisely for context retention.\n\n")
	fmt.Fprintf(&b, "CONVERSATION:\n%s\n\n", strings.Join(lines, "\n"))
	b.WriteString(`Respond with ONLY a JSON object:
{
    "summary": "<2-3 sentence summary of the conversation>",
    "keyTopics": ["<main topics discussed>"],
    "unresolvedIssues": ["<any issues not yet resolved>"],
    "customerPreferences": {"<key>": "<value extracted>"}
}`)
	return b.String()
}
