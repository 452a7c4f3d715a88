package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	App      AppConfig
	DB       DatabaseConfig
	Relay    RelayConfig
	Insight  InsightConfig
	Dispatch DispatchConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// AppConfig carries the namespace that scopes the alert collection, so
// several deployments can share one store without seeing each other's feed.
type AppConfig struct {
	Namespace string
}

type DatabaseConfig struct {
	Path string
}

// RelayConfig holds the external message-relay channel settings. The relay
// is optional: an incomplete block disables escalation instead of failing
// startup.
type RelayConfig struct {
	URL        string
	AccountSID string
	AuthToken  string
	From       string
	To         string
	Timeout    time.Duration
}

// Complete reports whether every relay setting is present.
func (r RelayConfig) Complete() bool {
	return r.URL != "" && r.AccountSID != "" && r.AuthToken != "" && r.From != "" && r.To != ""
}

// Missing names the absent relay settings, for the configuration warning.
func (r RelayConfig) Missing() []string {
	var missing []string
	if r.URL == "" {
		missing = append(missing, "RELAY_URL")
	}
	if r.AccountSID == "" {
		missing = append(missing, "RELAY_ACCOUNT_SID")
	}
	if r.AuthToken == "" {
		missing = append(missing, "RELAY_AUTH_TOKEN")
	}
	if r.From == "" {
		missing = append(missing, "RELAY_FROM")
	}
	if r.To == "" {
		missing = append(missing, "RELAY_TO")
	}
	return missing
}

// InsightConfig holds the text-generation service settings. Like the relay,
// an empty key degrades the insight endpoints rather than crashing.
type InsightConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

func (i InsightConfig) Enabled() bool {
	return i.APIKey != ""
}

type DispatchConfig struct {
	Workers    int
	BufferSize int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		App: AppConfig{
			Namespace: getEnv("APP_NAMESPACE", "default-app-id"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/alerthub.db"),
		},
		Relay: RelayConfig{
			URL:        os.Getenv("RELAY_URL"),
			AccountSID: os.Getenv("RELAY_ACCOUNT_SID"),
			AuthToken:  os.Getenv("RELAY_AUTH_TOKEN"),
			From:       os.Getenv("RELAY_FROM"),
			To:         os.Getenv("RELAY_TO"),
			Timeout:    getEnvDuration("RELAY_TIMEOUT", 10*time.Second),
		},
		Insight: InsightConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout: getEnvDuration("GEMINI_TIMEOUT", 30*time.Second),
		},
		Dispatch: DispatchConfig{
			Workers:    getEnvInt("DISPATCH_WORKERS", 2),
			BufferSize: getEnvInt("DISPATCH_BUFFER_SIZE", 64),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.App.Namespace == "" {
		missing = append(missing, "APP_NAMESPACE")
	}
	if c.DB.Path == "" {
		missing = append(missing, "DB_PATH")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch workers must be at least 1, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.BufferSize < 1 {
		return fmt.Errorf("dispatch buffer size must be at least 1, got %d", c.Dispatch.BufferSize)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
