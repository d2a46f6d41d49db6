package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	HTTPAddr   string `yaml:"http_addr"`
	CORSOrigin string `yaml:"cors_origin"`
	LogLevel   string `yaml:"log_level"`

	DBDriver string `yaml:"db_driver"`
	DBPath   string `yaml:"db_path"`
	DBDSN    string `yaml:"db_dsn"`

	LLMProvider       string   `yaml:"llm_provider"`
	LLMModel          string   `yaml:"llm_model"`
	LLMModels         []string `yaml:"llm_models"`
	LLMTimeoutSeconds int      `yaml:"llm_timeout_seconds"`
	AnthropicAPIKey   string   `yaml:"anthropic_api_key"`
	OpenAIAPIKey      string   `yaml:"openai_api_key"`
	GeminiAPIKey      string   `yaml:"gemini_api_key"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	KnowledgeBasePath string `yaml:"knowledge_base_path"`
	CustomersPath     string `yaml:"customers_path"`

	IntentQueueSize int `yaml:"intent_queue_size"`
	IntentWorkers   int `yaml:"intent_workers"`

	SlackBotToken          string `yaml:"slack_bot_token"`
	SlackEscalationChannel string `yaml:"slack_escalation_channel"`
	DigestSchedule         string `yaml:"digest_schedule"`
	DigestChannel          string `yaml:"digest_channel"`
	NudgeSchedule          string `yaml:"nudge_schedule"`
	NudgeAfterMinutes      int    `yaml:"nudge_after_minutes"`
	Timezone               string `yaml:"timezone"`

	KafkaBrokers        []string `yaml:"kafka_brokers"`
	KafkaAnalyticsTopic string   `yaml:"kafka_analytics_topic"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads config.yaml (or CONFIG_PATH), applies env overrides and
// defaults, and validates the result.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", configPath, err)
	}

	var errs []error
	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverride(&cfg.CORSOrigin, "CORS_ORIGIN")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.DBDriver, "DB_DRIVER")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.DBDSN, "DB_DSN")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideList(&cfg.LLMModels, "LLM_MODELS")
	errs = append(errs, envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS"))
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.KnowledgeBasePath, "KNOWLEDGE_BASE_PATH")
	envOverride(&cfg.CustomersPath, "CUSTOMERS_PATH")
	errs = append(errs, envOverrideInt(&cfg.IntentQueueSize, "INTENT_QUEUE_SIZE"))
	errs = append(errs, envOverrideInt(&cfg.IntentWorkers, "INTENT_WORKERS"))
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackEscalationChannel, "SLACK_ESCALATION_CHANNEL")
	envOverrideAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.DigestChannel, "DIGEST_CHANNEL")
	envOverrideAllowEmpty(&cfg.NudgeSchedule, "NUDGE_SCHEDULE")
	errs = append(errs, envOverrideInt(&cfg.NudgeAfterMinutes, "NUDGE_AFTER_MINUTES"))
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverrideList(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	envOverride(&cfg.KafkaAnalyticsTopic, "KAFKA_ANALYTICS_TOPIC")
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":3001"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "http://localhost:5173"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "sqlite"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./supportbot.db"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "gemini"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultModel(cfg.LLMProvider)
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 30
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.KnowledgeBasePath == "" {
		cfg.KnowledgeBasePath = "./data/knowledge_base.yaml"
	}
	if cfg.CustomersPath == "" {
		cfg.CustomersPath = "./data/customers.yaml"
	}
	if cfg.IntentQueueSize == 0 {
		cfg.IntentQueueSize = 64
	}
	if cfg.IntentWorkers == 0 {
		cfg.IntentWorkers = 2
	}
	if cfg.NudgeAfterMinutes == 0 {
		cfg.NudgeAfterMinutes = 60
	}
	if cfg.KafkaAnalyticsTopic == "" {
		cfg.KafkaAnalyticsTopic = "supportbot.analytics"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DBDSN == "" {
			return fmt.Errorf("db_dsn is required when db_driver=postgres")
		}
	default:
		return fmt.Errorf("db_driver must be 'sqlite' or 'postgres', got '%s'", c.DBDriver)
	}

	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required when llm_provider=gemini")
		}
	default:
		return fmt.Errorf("llm_provider must be 'anthropic', 'openai' or 'gemini', got '%s'", c.LLMProvider)
	}

	if c.LLMTimeoutSeconds < 1 {
		return fmt.Errorf("invalid llm_timeout_seconds '%d': must be >= 1", c.LLMTimeoutSeconds)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.IntentQueueSize < 1 {
		return fmt.Errorf("invalid intent_queue_size '%d': must be >= 1", c.IntentQueueSize)
	}
	if c.IntentWorkers < 1 {
		return fmt.Errorf("invalid intent_workers '%d': must be >= 1", c.IntentWorkers)
	}
	if c.DigestSchedule != "" && c.DigestChannel == "" {
		return fmt.Errorf("digest_channel is required when digest_schedule is set")
	}
	if c.DigestSchedule != "" && c.SlackBotToken == "" {
		return fmt.Errorf("slack_bot_token is required when digest_schedule is set")
	}
	if c.NudgeSchedule != "" && (c.SlackBotToken == "" || c.SlackEscalationChannel == "") {
		return fmt.Errorf("slack_bot_token and slack_escalation_channel are required when nudge_schedule is set")
	}
	if c.NudgeAfterMinutes < 1 {
		return fmt.Errorf("invalid nudge_after_minutes '%d': must be >= 1", c.NudgeAfterMinutes)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

// Models returns the models that may be selected at runtime, the default
// model first.
func (c Config) Models() []string {
	out := []string{c.LLMModel}
	for _, m := range c.LLMModels {
		if m != c.LLMModel {
			out = append(out, m)
		}
	}
	return out
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != ""
}

func (c Config) KafkaConfigured() bool {
	return len(c.KafkaBrokers) > 0
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-5-20250929"
	case "openai":
		return "gpt-4o-mini"
	default:
		return "gemini-2.5-flash"
	}
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			*field = append(*field, item)
		}
	}
}
