package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	OIDC       OIDCConfig
	Agent      AgentConfig
	Monitoring MonitoringConfig
	Webhook    WebhookConfig
	GitHub     GitHubConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8120"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/stackplane.db"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	BootstrapAPIKey string `env:"BOOTSTRAP_API_KEY"`
	// TransparentMode gives every user Read on every resource.
	TransparentMode bool `env:"TRANSPARENT_MODE" envDefault:"false"`
}

// OIDCConfig holds OIDC bearer token configuration.
type OIDCConfig struct {
	Enabled        bool   `env:"OIDC_ENABLED" envDefault:"false"`
	IssuerURL      string `env:"OIDC_ISSUER_URL"`
	ClientID       string `env:"OIDC_CLIENT_ID"`
	AllowedDomains string `env:"OIDC_ALLOWED_DOMAINS"`
}

// GetAllowedDomains returns the allowed domains as a slice.
func (c *OIDCConfig) GetAllowedDomains() []string {
	return splitList(c.AllowedDomains)
}

// AgentConfig holds remote agent configuration.
type AgentConfig struct {
	Passkey string        `env:"AGENT_PASSKEY"`
	Timeout time.Duration `env:"AGENT_TIMEOUT" envDefault:"60s"`
	// FileShim is a path to a JSON file simulating agents (disables real calls).
	FileShim string `env:"AGENT_FILE_SHIM"`
}

// MonitoringConfig holds background status refresh configuration.
type MonitoringConfig struct {
	Interval    time.Duration `env:"MONITORING_INTERVAL" envDefault:"15s"`
	Concurrency int           `env:"MONITORING_CONCURRENCY" envDefault:"8"`
}

// WebhookConfig holds the public addresses webhook listeners are served under.
type WebhookConfig struct {
	Host    string `env:"HOST" envDefault:"http://localhost:8120"`
	BaseURL string `env:"WEBHOOK_BASE_URL"`
}

// ListenerHost returns WEBHOOK_BASE_URL when set, HOST otherwise.
func (c *WebhookConfig) ListenerHost() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return c.Host
}

// GitHubConfig holds the token used to inspect repository webhooks.
type GitHubConfig struct {
	Token  string `env:"GITHUB_TOKEN"`
	Owners string `env:"GITHUB_OWNERS"`
	APIURL string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
}

// GetOwners returns the managed owners as a slice.
func (c *GitHubConfig) GetOwners() []string {
	return splitList(c.Owners)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// SlogLevel returns the configured level.
func (c *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// Load loads configuration from environment variables. When envFile
// exists it is loaded first; variables already set take precedence.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.OIDC); err != nil {
		return nil, fmt.Errorf("parsing oidc config: %w", err)
	}
	if err := env.Parse(&cfg.Agent); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}
	if err := env.Parse(&cfg.Monitoring); err != nil {
		return nil, fmt.Errorf("parsing monitoring config: %w", err)
	}
	if err := env.Parse(&cfg.Webhook); err != nil {
		return nil, fmt.Errorf("parsing webhook config: %w", err)
	}
	if err := env.Parse(&cfg.GitHub); err != nil {
		return nil, fmt.Errorf("parsing github config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.Database.Driver)
	}

	// Validate OIDC config when enabled
	if c.OIDC.Enabled {
		if c.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC is enabled")
		}
	}

	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be positive")
	}
	if c.Monitoring.Interval <= 0 {
		return fmt.Errorf("MONITORING_INTERVAL must be positive")
	}
	if c.Monitoring.Concurrency <= 0 {
		return fmt.Errorf("MONITORING_CONCURRENCY must be positive")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// UseFileShim returns true if the file shim should be used instead of real agents.
func (c *Config) UseFileShim() bool {
	return c.Agent.FileShim != ""
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	items := strings.Split(s, ",")
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
