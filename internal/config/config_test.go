package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8120" {
		t.Errorf("Expected default addr 0.0.0.0:8120, got %s", cfg.Server.Addr())
	}
	if cfg.Monitoring.Interval != 15*time.Second {
		t.Errorf("Expected 15s monitoring interval, got %v", cfg.Monitoring.Interval)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "MONITORING_CONCURRENCY=3\nGITHUB_OWNERS=acme, widgets\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv sets process variables; clear them when the test ends.
	t.Setenv("MONITORING_CONCURRENCY", "")
	os.Unsetenv("MONITORING_CONCURRENCY")
	t.Setenv("GITHUB_OWNERS", "")
	os.Unsetenv("GITHUB_OWNERS")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Monitoring.Concurrency != 3 {
		t.Errorf("Expected concurrency 3, got %d", cfg.Monitoring.Concurrency)
	}
	owners := cfg.GitHub.GetOwners()
	if len(owners) != 2 || owners[0] != "acme" || owners[1] != "widgets" {
		t.Errorf("Unexpected owners: %v", owners)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:   DatabaseConfig{Driver: "sqlite3"},
			Agent:      AgentConfig{Timeout: time.Second},
			Monitoring: MonitoringConfig{Interval: time.Second, Concurrency: 1},
			Log:        LogConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"oidc without issuer", func(c *Config) { c.OIDC.Enabled = true; c.OIDC.ClientID = "x" }, true},
		{"oidc complete", func(c *Config) {
			c.OIDC = OIDCConfig{Enabled: true, IssuerURL: "https://id.example.com", ClientID: "x"}
		}, false},
		{"zero interval", func(c *Config) { c.Monitoring.Interval = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Monitoring.Concurrency = 0 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListenerHost(t *testing.T) {
	c := WebhookConfig{Host: "https://stackplane.example.com"}
	if c.ListenerHost() != "https://stackplane.example.com" {
		t.Errorf("Expected HOST, got %s", c.ListenerHost())
	}
	c.BaseURL = "https://hooks.example.com"
	if c.ListenerHost() != "https://hooks.example.com" {
		t.Errorf("Expected WEBHOOK_BASE_URL, got %s", c.ListenerHost())
	}
}
