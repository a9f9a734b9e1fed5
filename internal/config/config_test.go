package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
app:
  name: courtbook
  port: 8080
database:
  driver: sqlite
  filename: data/test.db
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Providers.DefaultTimeout != 10*time.Second {
		t.Fatalf("provider timeout: %v", cfg.Providers.DefaultTimeout)
	}
	if cfg.Providers.ConfigCacheTTL != 5*time.Minute {
		t.Fatalf("config cache ttl: %v", cfg.Providers.ConfigCacheTTL)
	}
	if cfg.Payments.ApplicationFeePercent != 5 {
		t.Fatalf("fee percent: %v", cfg.Payments.ApplicationFeePercent)
	}
	if cfg.Scheduler.ReminderCron != "0 * * * *" {
		t.Fatalf("reminder cron: %q", cfg.Scheduler.ReminderCron)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerSecond != 10 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("rate limit: %+v", cfg.RateLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseDurations(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig + `
providers:
  default_timeout: 3s
  config_cache_ttl: 90s
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Providers.DefaultTimeout != 3*time.Second {
		t.Fatalf("provider timeout: %v", cfg.Providers.DefaultTimeout)
	}
	if cfg.Providers.ConfigCacheTTL != 90*time.Second {
		t.Fatalf("config cache ttl: %v", cfg.Providers.ConfigCacheTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unsupported driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "DATABASE_DSN"},
		{"bad cron", func(c *Config) { c.Scheduler.ReminderCron = "every hour" }, "reminder_cron"},
		{"fee out of range", func(c *Config) { c.Payments.ApplicationFeePercent = 150 }, "application fee"},
		{"payments without key", func(c *Config) { c.Payments.Enabled = true }, "STRIPE_SECRET_KEY"},
		{"missing name", func(c *Config) { c.App.Name = "" }, "app name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalConfig))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadReadsSecretsFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(minimalConfig+"payments:\n  enabled: true\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Payments.SecretKey != "sk_test_123" {
		t.Fatalf("secret key not loaded: %q", cfg.Payments.SecretKey)
	}
}
