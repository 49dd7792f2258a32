// Package config loads engine settings from the environment with an
// optional YAML overlay. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/webhook"
)

// Config is the full engine configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`
	NATSURL     string `yaml:"nats_url"`
	RedisURL    string `yaml:"redis_url"`

	PrepareCacheTTL  time.Duration `yaml:"prepare_cache_ttl"`
	PrepareCacheSize int           `yaml:"prepare_cache_size"`
	RuleCacheTTL     time.Duration `yaml:"rule_cache_ttl"`
	ResultCacheTTL   time.Duration `yaml:"result_cache_ttl"`

	CalcBudget       time.Duration `yaml:"calc_budget"`
	OutboxInterval   time.Duration `yaml:"outbox_interval"`
	OutboxMaxRetries int           `yaml:"outbox_max_retries"`
	OutboxBatchSize  int           `yaml:"outbox_batch_size"`

	Webhooks []WebhookConfig `yaml:"webhooks"`

	LogLevel string `yaml:"log_level"`
}

// WebhookConfig is one notification endpoint.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// Load reads .env, the optional YAML file named by CALC_CONFIG_FILE, and
// the environment, in increasing precedence.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		ListenAddr:       ":8080",
		PrepareCacheTTL:  time.Hour,
		PrepareCacheSize: 1024,
		RuleCacheTTL:     time.Hour,
		ResultCacheTTL:   time.Hour,
		CalcBudget:       5 * time.Second,
		OutboxInterval:   5 * time.Second,
		OutboxMaxRetries: 10,
		OutboxBatchSize:  100,
		LogLevel:         "info",
	}

	if path := os.Getenv("CALC_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	overlayEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	overlayDuration("PREPARE_CACHE_TTL", &cfg.PrepareCacheTTL)
	overlayDuration("RULE_CACHE_TTL", &cfg.RuleCacheTTL)
	overlayDuration("RESULT_CACHE_TTL", &cfg.ResultCacheTTL)
	overlayDuration("CALC_BUDGET", &cfg.CalcBudget)
	overlayDuration("OUTBOX_INTERVAL", &cfg.OutboxInterval)
	overlayInt("PREPARE_CACHE_SIZE", &cfg.PrepareCacheSize)
	overlayInt("OUTBOX_MAX_RETRIES", &cfg.OutboxMaxRetries)
	overlayInt("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
}

func overlayInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overlayDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.ListenAddr == "" {
		problems = append(problems, "listen_addr is empty")
	}
	if c.CalcBudget <= 0 {
		problems = append(problems, "calc_budget must be positive")
	}
	if c.OutboxInterval <= 0 {
		problems = append(problems, "outbox_interval must be positive")
	}
	if c.OutboxMaxRetries <= 0 {
		problems = append(problems, "outbox_max_retries must be positive")
	}
	if c.OutboxBatchSize <= 0 {
		problems = append(problems, "outbox_batch_size must be positive")
	}
	if c.PrepareCacheSize <= 0 {
		problems = append(problems, "prepare_cache_size must be positive")
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			problems = append(problems, fmt.Sprintf("webhook %d has no url", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WebhookEndpoints converts the configured webhooks for the notifier.
func (c *Config) WebhookEndpoints() []webhook.Endpoint {
	out := make([]webhook.Endpoint, len(c.Webhooks))
	for i, w := range c.Webhooks {
		out[i] = webhook.Endpoint{URL: w.URL, Secret: w.Secret}
	}
	return out
}
