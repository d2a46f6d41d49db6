package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/analytics"
	"supportbot/internal/config"
	"supportbot/internal/customers"
	"supportbot/internal/httpx"
	"supportbot/internal/integrations/kafka"
	"supportbot/internal/integrations/llm"
	slackbot "supportbot/internal/integrations/slack"
	"supportbot/internal/intent"
	"supportbot/internal/knowledge"
	"supportbot/internal/orchestrator"
	"supportbot/internal/storage"
	"supportbot/internal/storage/gormstore"
	"supportbot/internal/storage/sqlite"
)

// App holds every long-lived component. Close releases them in reverse
// order of construction.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     storage.Store
	Gateway   *llm.Router
	Models    *llm.ModelSelector
	Events    *analytics.Recorder
	Stats     *analytics.Service
	Knowledge *knowledge.Manager
	Customers *customers.Directory
	Intents   *intent.Queue
	Slack     *slackbot.Notifier
	Chat      *orchestrator.Orchestrator

	closers []func() error
}

func openStore(cfg config.Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return gormstore.New("postgres", cfg.DBDSN)
	default:
		return sqlite.Open(cfg.DBPath)
	}
}

func newGateway(ctx context.Context, cfg config.Config, logger *zap.Logger) (*llm.Router, error) {
	router := llm.NewRouter(cfg.LLMProvider, time.Duration(cfg.LLMTimeoutSeconds)*time.Second, logger)
	if cfg.AnthropicAPIKey != "" {
		router.Register(llm.NewAnthropicProvider(cfg.AnthropicAPIKey, logger))
	}
	if cfg.OpenAIAPIKey != "" {
		router.Register(llm.NewOpenAIProvider(cfg.OpenAIAPIKey, logger))
	}
	if cfg.GeminiAPIKey != "" {
		p, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, logger)
		if err != nil {
			return nil, err
		}
		router.Register(p)
	}
	return router, nil
}

// Build wires the application from cfg. The knowledge index is loaded from
// the store before Build returns.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	timeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Info("config loaded",
		zap.String("db_driver", cfg.DBDriver),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Strings("models", cfg.Models()),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("external_http_timeout", timeout),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.Bool("kafka", cfg.KafkaConfigured()),
	)

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if a.Gateway, err = newGateway(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("llm gateway: %w", err)
	}
	if a.Models, err = llm.NewModelSelector(cfg.LLMModel, cfg.Models()); err != nil {
		return nil, fmt.Errorf("model selector: %w", err)
	}

	var sink analytics.Sink
	if cfg.KafkaConfigured() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaAnalyticsTopic, logger)
		sink = producer
		a.closers = append(a.closers, producer.Close)
	}
	a.Events = analytics.NewRecorder(store, sink, logger)
	a.Stats = analytics.NewService(store, cfg.Location)

	a.Knowledge = knowledge.NewManager(store, knowledge.NewBase(logger), a.Events, logger)
	n, err := a.Knowledge.Base().Reload(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	logger.Info("knowledge base loaded", zap.Int("articles", n))

	if a.Customers, err = loadCustomers(cfg.CustomersPath, logger); err != nil {
		return nil, err
	}

	a.Intents = intent.NewQueue(cfg.IntentQueueSize, cfg.IntentWorkers, a.Events, logger)

	deps := orchestrator.Deps{
		Store:     store,
		Gateway:   a.Gateway,
		Models:    a.Models,
		Knowledge: a.Knowledge,
		Customers: a.Customers,
		Events:    a.Events,
		Intents:   a.Intents,
		Logger:    logger,
	}
	if cfg.SlackConfigured() {
		a.Slack = slackbot.NewNotifier(cfg.SlackBotToken, cfg.SlackEscalationChannel, logger)
		deps.Notifier = a.Slack
	}
	if a.Chat, err = orchestrator.New(deps); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// loadCustomers reads the customer directory. A missing file leaves the
// directory empty.
func loadCustomers(path string, logger *zap.Logger) (*customers.Directory, error) {
	dir, err := customers.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("customer directory not found, starting empty", zap.String("path", path))
		return customers.NewDirectory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	return dir, nil
}

// SeedKnowledge stores the articles from the seed file that are not in the
// store yet.
func (a *App) SeedKnowledge(ctx context.Context) (int, error) {
	path := a.Config.KnowledgeBasePath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		a.Logger.Warn("knowledge seed file not found", zap.String("path", path))
		return 0, nil
	}
	articles, err := knowledge.LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	created, err := a.Knowledge.Seed(ctx, articles)
	if err != nil {
		return created, err
	}
	a.Logger.Info("knowledge base seeded", zap.String("path", path), zap.Int("created", created), zap.Int("in_file", len(articles)))
	return created, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
