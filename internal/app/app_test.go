package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"supportbot/internal/config"
	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/intent"
	"supportbot/internal/storage"
)

const seedYAML = `articles:
  - id: art-001
    category: Shipping
    title: Shipping Times
    content: Standard shipping takes 5-7 business days.
  - id: art-002
    category: Returns
    title: Return Policy
    content: Items can be returned within 30 days of delivery.
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		HTTPAddr:                   ":0",
		DBDriver:                   "sqlite",
		DBPath:                     filepath.Join(dir, "supportbot.db"),
		LLMProvider:                "anthropic",
		LLMModel:                   "claude-sonnet-4-5-20250929",
		LLMTimeoutSeconds:          5,
		AnthropicAPIKey:            "sk-test",
		ExternalHTTPTimeoutSeconds: 10,
		KnowledgeBasePath:          filepath.Join(dir, "knowledge_base.yaml"),
		CustomersPath:              filepath.Join(dir, "customers.yaml"),
		IntentQueueSize:            4,
		IntentWorkers:              1,
		Timezone:                   "UTC",
		Location:                   time.UTC,
	}
}

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		logger, err := NewLogger(in)
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", in, err)
		}
		if !logger.Core().Enabled(want) {
			t.Fatalf("NewLogger(%q) should enable %s", in, want)
		}
		if want > zapcore.DebugLevel && logger.Core().Enabled(want-1) {
			t.Fatalf("NewLogger(%q) should not enable %s", in, want-1)
		}
	}
}

func TestBuildAndSeed(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.KnowledgeBasePath, []byte(seedYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if a.Slack != nil {
		t.Fatal("slack notifier should be nil without a bot token")
	}
	if got := a.Chat.Model(); got != cfg.LLMModel {
		t.Fatalf("unexpected model: %q", got)
	}

	created, err := a.SeedKnowledge(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != 2 || a.Knowledge.Base().Len() != 2 {
		t.Fatalf("expected 2 seeded articles, got created=%d len=%d", created, a.Knowledge.Base().Len())
	}

	again, err := a.SeedKnowledge(context.Background())
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if again != 0 {
		t.Fatalf("reseeding should not create articles, got %d", again)
	}
}

// offlineProvider fails every completion so the pipeline takes its
// fallback paths without touching the network.
type offlineProvider struct{}

func (offlineProvider) Name() string { return "anthropic" }

func (offlineProvider) Complete(context.Context, string, string) (string, llm.Usage, error) {
	return "", llm.Usage{}, errors.New("offline")
}

func TestProcessOnceDrainsIntentQueue(t *testing.T) {
	cfg := testConfig(t)
	a, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	a.Gateway.Register(offlineProvider{})

	var extracted atomic.Int32
	a.Intents.WithExtractor(func(ctx context.Context, _ llm.Client, message string, _ []domain.Message) (intent.Result, error) {
		time.Sleep(20 * time.Millisecond)
		extracted.Add(1)
		return intent.Result{ConversationOutcome: "resolved"}, nil
	})

	resp, err := a.ProcessOnce(context.Background(), domain.ChatRequest{Message: "Where is my order?"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := extracted.Load(); got != 1 {
		t.Fatalf("expected the intent job to run before returning, ran %d", got)
	}
	if a.Intents.Len() != 0 {
		t.Fatalf("intent queue still holds %d jobs", a.Intents.Len())
	}

	events, err := a.Store.ListAnalyticsEvents(context.Background(), storage.EventFilter{ConversationID: resp.ConversationID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	for _, e := range events {
		if e.Type == domain.EventIntentSignal {
			return
		}
	}
	t.Fatalf("no %s event recorded", domain.EventIntentSignal)
}

func TestSeedKnowledgeMissingFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	created, err := a.SeedKnowledge(context.Background())
	if err != nil || created != 0 {
		t.Fatalf("missing seed file should be skipped, got %d %v", created, err)
	}
}

func TestBuildRejectsEmptyDefaultModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMModel = ""
	if _, err := Build(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected an error for an empty default model")
	}
}

func TestLoadCustomersMissingFile(t *testing.T) {
	dir, err := loadCustomers(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := dir.Lookup("cust-001"); ok {
		t.Fatal("directory should be empty")
	}
}

func TestLoadCustomersBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.yaml")
	if err := os.WriteFile(path, []byte("customers: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCustomers(path, zap.NewNop()); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"serve", "chat", "seed"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("missing subcommand %q: %v", name, err)
		}
	}
	chat, _, _ := root.Find([]string{"chat"})
	for _, flag := range []string{"conversation", "customer", "name", "model"} {
		if chat.Flags().Lookup(flag) == nil {
			t.Fatalf("chat is missing --%s", flag)
		}
	}
}

func TestSeedCommand(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.KnowledgeBasePath, []byte(seedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_PATH", cfg.DBPath)
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("KNOWLEDGE_BASE_PATH", cfg.KnowledgeBasePath)
	t.Setenv("CUSTOMERS_PATH", cfg.CustomersPath)
	t.Setenv("TIMEZONE", "UTC")

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"seed"})
	if err := root.Execute(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "seeded 2 new articles (2 total)" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRootCommandReportsConfigErrors(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LLM_PROVIDER", "nope")

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"seed"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config error, got %v", err)
	}
}
