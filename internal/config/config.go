package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Reasoning ReasoningConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Slack     SlackConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	UploadLimit  int64 // max upload body size in bytes
}

// ReasoningConfig holds the upstream LLM endpoint settings.
type ReasoningConfig struct {
	BaseURL string
	APIKey  string //nolint:gosec // G117: API credential config
	Model   string
	Timeout time.Duration
}

// DatabaseConfig holds the query-executor engine settings. An empty DSN
// disables the executor; insight runs then degrade per the loop contract.
type DatabaseConfig struct {
	DSN      string //nolint:gosec // G117: DB connection config
	MaxConns int
}

// RedisConfig holds Redis connection settings for progress pub/sub.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// SlackConfig holds the optional completion-notification settings.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Load reads configuration from environment variables. Defaults are safe
// for local development only.
func Load() (*Config, error) {
	readTimeout, err := getEnvDuration("DOCSIGHT_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("DOCSIGHT_SERVER_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reasoningTimeout, err := getEnvDuration("DOCSIGHT_REASONING_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("DOCSIGHT_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("DOCSIGHT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	uploadLimit, err := getEnvInt("DOCSIGHT_UPLOAD_LIMIT_BYTES", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:         getEnv("DOCSIGHT_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("DOCSIGHT_CORS_ORIGINS", []string{"http://localhost:5173"}),
			UploadLimit:  int64(uploadLimit),
		},
		Reasoning: ReasoningConfig{
			BaseURL: getEnv("DOCSIGHT_REASONING_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:  getEnv("DOCSIGHT_REASONING_API_KEY", ""),
			Model:   getEnv("DOCSIGHT_REASONING_MODEL", "openai/gpt-oss-120b:free"),
			Timeout: reasoningTimeout,
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DOCSIGHT_DB_DSN", ""),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("DOCSIGHT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("DOCSIGHT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Slack: SlackConfig{
			BotToken: getEnv("DOCSIGHT_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("DOCSIGHT_SLACK_CHANNEL", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Reasoning.APIKey == "" {
		return errors.New("DOCSIGHT_REASONING_API_KEY is required")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("DOCSIGHT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("DOCSIGHT_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Reasoning.Timeout <= 0 {
		return fmt.Errorf("DOCSIGHT_REASONING_TIMEOUT must be positive, got %s", c.Reasoning.Timeout)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DOCSIGHT_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.UploadLimit < 1 {
		return fmt.Errorf("DOCSIGHT_UPLOAD_LIMIT_BYTES must be >= 1, got %d", c.Server.UploadLimit)
	}
	if c.Slack.BotToken != "" && c.Slack.Channel == "" {
		return errors.New("DOCSIGHT_SLACK_CHANNEL is required when DOCSIGHT_SLACK_BOT_TOKEN is set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
