// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProviderTimeout       = 10 * time.Second
	DefaultProviderConfigTTL     = 5 * time.Minute
	DefaultApplicationFeePercent = 5.0
	DefaultSweepCron             = "0 * * * *"
	DefaultReminderLeadHours     = 24
	DefaultJitterBuffer          = 5 * time.Minute
)

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Filename     string `yaml:"filename"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	DSN          string `yaml:"-"` // Loaded from environment
}

type ProvidersConfig struct {
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
	ConfigCacheTTL    time.Duration `yaml:"config_cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	SlotCache         struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		TTL      time.Duration `yaml:"ttl"`
		Password string        `yaml:"-"` // Loaded from environment
	} `yaml:"slot_cache"`
}

type PaymentsConfig struct {
	Enabled               bool    `yaml:"enabled"`
	ApplicationFeePercent float64 `yaml:"application_fee_percent"`
	ConnectedAccount      string  `yaml:"connected_account"`
	SecretKey             string  `yaml:"-"` // Loaded from environment
	WebhookSecret         string  `yaml:"-"` // Loaded from environment
}

type NotificationsConfig struct {
	SES struct {
		Enabled         bool   `yaml:"enabled"`
		Region          string `yaml:"region"`
		Sender          string `yaml:"sender"`
		AccessKeyID     string `yaml:"-"`
		SecretAccessKey string `yaml:"-"`
	} `yaml:"ses"`
	AMQP struct {
		Enabled  bool   `yaml:"enabled"`
		Exchange string `yaml:"exchange"`
		URL      string `yaml:"-"`
	} `yaml:"amqp"`
}

type SchedulerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	ReminderCron       string        `yaml:"reminder_cron"`
	FeedbackCron       string        `yaml:"feedback_cron"`
	ReminderLeadHours  int           `yaml:"reminder_lead_hours"`
	FeedbackDelayHours int           `yaml:"feedback_delay_hours"`
	JitterBuffer       time.Duration `yaml:"jitter_buffer"`
}

type AvailabilityConfig struct {
	MaxGroupedOptions int `yaml:"max_grouped_options"`
	MaxSlots          int `yaml:"max_slots"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// TrustProxy keys anonymous callers on X-Forwarded-For instead of the socket address.
	TrustProxy bool `yaml:"trust_proxy"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		BaseURL         string        `yaml:"base_url"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SecretKey       string        `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database      DatabaseConfig      `yaml:"database"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Payments      PaymentsConfig      `yaml:"payments"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Availability  AvailabilityConfig  `yaml:"availability"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`

	Features struct {
		EnableMetrics bool `yaml:"enable_metrics"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// secrets are never read from the YAML file.
type secrets struct {
	AppSecretKey        string `envconfig:"APP_SECRET_KEY"`
	DatabaseDSN         string `envconfig:"DATABASE_DSN"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	AWSAccessKeyID      string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	AMQPURL             string `envconfig:"AMQP_URL"`
	RedisPassword       string `envconfig:"REDIS_PASSWORD"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var env secrets
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	cfg.applySecrets(env)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applySecrets(env secrets) {
	c.App.SecretKey = env.AppSecretKey
	c.Database.DSN = env.DatabaseDSN
	c.Payments.SecretKey = env.StripeSecretKey
	c.Payments.WebhookSecret = env.StripeWebhookSecret
	c.Notifications.SES.AccessKeyID = env.AWSAccessKeyID
	c.Notifications.SES.SecretAccessKey = env.AWSSecretAccessKey
	c.Notifications.AMQP.URL = env.AMQPURL
	c.Providers.SlotCache.Password = env.RedisPassword
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}
	if c.Providers.DefaultTimeout <= 0 {
		c.Providers.DefaultTimeout = DefaultProviderTimeout
	}
	if c.Providers.ConfigCacheTTL <= 0 {
		c.Providers.ConfigCacheTTL = DefaultProviderConfigTTL
	}
	if c.Providers.SlotCache.TTL <= 0 {
		c.Providers.SlotCache.TTL = time.Minute
	}
	if c.Payments.ApplicationFeePercent == 0 {
		c.Payments.ApplicationFeePercent = DefaultApplicationFeePercent
	}
	if c.Notifications.AMQP.Exchange == "" {
		c.Notifications.AMQP.Exchange = "bookings"
	}
	if c.Scheduler.ReminderCron == "" {
		c.Scheduler.ReminderCron = DefaultSweepCron
	}
	if c.Scheduler.FeedbackCron == "" {
		c.Scheduler.FeedbackCron = DefaultSweepCron
	}
	if c.Scheduler.ReminderLeadHours <= 0 {
		c.Scheduler.ReminderLeadHours = DefaultReminderLeadHours
	}
	if c.Scheduler.FeedbackDelayHours <= 0 {
		c.Scheduler.FeedbackDelayHours = 1
	}
	if c.Scheduler.JitterBuffer <= 0 {
		c.Scheduler.JitterBuffer = DefaultJitterBuffer
	}
	if c.Availability.MaxGroupedOptions <= 0 {
		c.Availability.MaxGroupedOptions = 5
	}
	if c.Availability.MaxSlots <= 0 {
		c.Availability.MaxSlots = 50
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	// Validate based on database driver
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Payments.ApplicationFeePercent < 0 || c.Payments.ApplicationFeePercent > 100 {
		return fmt.Errorf("application fee percent must be between 0 and 100")
	}
	if c.Payments.Enabled && c.Payments.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required when payments are enabled")
	}
	if c.Notifications.SES.Enabled && (c.Notifications.SES.Region == "" || c.Notifications.SES.Sender == "") {
		return fmt.Errorf("ses region and sender are required when ses is enabled")
	}
	if c.Notifications.AMQP.Enabled && c.Notifications.AMQP.URL == "" {
		return fmt.Errorf("AMQP_URL is required when amqp is enabled")
	}
	if c.Providers.SlotCache.Enabled && c.Providers.SlotCache.Addr == "" {
		return fmt.Errorf("slot cache addr is required when the slot cache is enabled")
	}

	for name, expr := range map[string]string{
		"reminder_cron": c.Scheduler.ReminderCron,
		"feedback_cron": c.Scheduler.FeedbackCron,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("scheduler %s %q: %w", name, expr, err)
		}
	}

	return nil
}
