package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Level string  `json:"level"`
	Score float64 `json:"score"`
}

func validVerdict(v verdict) error {
	if v.Level == "" {
		return errors.New("level is required")
	}
	return nil
}

func TestDecodeJSONFindsEmbeddedObject(t *testing.T) {
	text := "Sure! Here is the analysis:\n{\"level\": \"angry\", \"score\": -0.8, \"note\": \"uses } in text\"}\nHope it helps."
	got, err := DecodeJSON(text, validVerdict)
	require.NoError(t, err)
	assert.Equal(t, verdict{Level: "angry", Score: -0.8}, got)
}

func TestDecodeJSONStripsFences(t *testing.T) {
	text := "```json\n[{\"level\":\"neutral\",\"score\":0}]\n```"
	got, err := DecodeJSON[[]verdict](text, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "neutral", got[0].Level)
}

func TestDecodeJSONSkipsBlocksThatFailValidation(t *testing.T) {
	text := `[draft] {"score": 1} then {"level": "positive", "score": 0.6}`
	got, err := DecodeJSON(text, validVerdict)
	require.NoError(t, err)
	assert.Equal(t, "positive", got.Level)
}

func TestDecodeJSONParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"empty", "   ", "empty response"},
		{"prose only", "I cannot help with that.", "no json block found"},
		{"unbalanced", `{"level": "angry"`, "no json block found"},
		{"wrong shape", `{"level": 5}`, "schema mismatch"},
		{"fails validation", `{"score": 0.2}`, "schema mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON(tt.text, validVerdict)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.reason, perr.Reason)
		})
	}
}

func TestParseErrorTruncatesSnippet(t *testing.T) {
	_, err := DecodeJSON[verdict](strings.Repeat("x", 2000), nil)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Snippet, "total_length=2000")
	assert.Less(t, len(perr.Snippet), 600)
}

type fakeProvider struct {
	name  string
	delay time.Duration
	mu    sync.Mutex
	seen  []string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, model, prompt string) (string, Usage, error) {
	p.mu.Lock()
	p.seen = append(p.seen, model)
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", Usage{}, ctx.Err()
		}
	}
	return p.name + ":" + prompt, Usage{InputTokens: 3, OutputTokens: 4, Calls: 1}, nil
}

func TestRouterRoutesByModelPrefix(t *testing.T) {
	router := NewRouter("anthropic", time.Second, nil)
	router.Register(&fakeProvider{name: "anthropic"})
	router.Register(&fakeProvider{name: "gemini"})
	router.Register(&fakeProvider{name: "openai"})

	tests := []struct {
		model string
		want  string
	}{
		{"claude-sonnet-4-5", "anthropic:hi"},
		{"gemini-2.5-flash", "gemini:hi"},
		{"gpt-4o-mini", "openai:hi"},
		{"house-model", "anthropic:hi"},
	}
	for _, tt := range tests {
		got, err := router.Generate(context.Background(), "hi", tt.model)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.model)
	}

	usage := router.Usage()
	assert.Equal(t, int64(7), usage["gemini-2.5-flash"].TotalTokens())
	assert.Equal(t, int64(1), usage["gemini-2.5-flash"].Calls)
}

func TestRouterUnknownProvider(t *testing.T) {
	router := NewRouter("anthropic", time.Second, nil)
	_, err := router.Generate(context.Background(), "hi", "gemini-2.5-pro")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRouterTimeoutIsAnError(t *testing.T) {
	router := NewRouter("gemini", 20*time.Millisecond, nil)
	router.Register(&fakeProvider{name: "gemini", delay: time.Second})
	_, err := router.Generate(context.Background(), "hi", "gemini-2.5-pro")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBindFixesModelPerClient(t *testing.T) {
	provider := &fakeProvider{name: "gemini"}
	router := NewRouter("gemini", time.Second, nil)
	router.Register(provider)

	pro := Bind(router, "gemini-2.5-pro")
	flash := Bind(router, "gemini-2.5-flash")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = pro.Generate(context.Background(), "p") }()
		go func() { defer wg.Done(); _, _ = flash.Generate(context.Background(), "f") }()
	}
	wg.Wait()

	assert.Equal(t, "gemini-2.5-pro", pro.Model())
	usage := router.Usage()
	assert.Equal(t, int64(10), usage["gemini-2.5-pro"].Calls)
	assert.Equal(t, int64(10), usage["gemini-2.5-flash"].Calls)
}

func TestModelSelector(t *testing.T) {
	sel, err := NewModelSelector("gemini-2.5-flash", []string{"gemini-2.5-pro", "gemini-2.5-flash", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.5-pro"}, sel.Allowed())

	require.NoError(t, sel.Set("gemini-2.5-pro"))
	assert.Equal(t, "gemini-2.5-pro", sel.Current())
	assert.ErrorIs(t, sel.Set("gpt-5"), ErrUnknownModel)
	assert.Equal(t, "gemini-2.5-pro", sel.Current())

	model, err := sel.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", model)
	model, err = sel.Resolve("gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", model)
	_, err = sel.Resolve("claude-opus")
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewModelSelector("", nil)
	assert.ErrorIs(t, err, ErrUnknownModel)
}
