// Package config loads the nudge configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds the daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Policy    PolicyConfig    `yaml:"policy"`
	Notify    NotifyConfig    `yaml:"notify"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Listen is the host:port the API binds to.
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// SchedulerConfig configures the polling loop.
type SchedulerConfig struct {
	Tick          Duration `yaml:"tick"`
	NotifyTimeout Duration `yaml:"notify_timeout"`
	// RecoveryAt is the local wall-clock start of the daily quarantine recovery.
	RecoveryAt         string   `yaml:"recovery_at" validate:"datetime=15:04"`
	RecoveryWindow     Duration `yaml:"recovery_window"`
	RecoveryMinSpacing Duration `yaml:"recovery_min_spacing"`
}

// PolicyConfig holds the reminder policy constants.
type PolicyConfig struct {
	MaxAttempts   int      `yaml:"max_attempts" validate:"min=1,max=100"`
	RetryInterval Duration `yaml:"retry_interval"`
	// AckWindow limits bare acknowledgements to recent reminders; 0 disables the limit.
	AckWindow Duration `yaml:"ack_window"`
	PageSize  int      `yaml:"page_size" validate:"min=1,max=1000"`
	// Timezone is an IANA zone name; empty or "Local" uses the host zone.
	Timezone string `yaml:"timezone"`
}

// NotifyConfig selects and configures the notifier.
type NotifyConfig struct {
	Driver  string        `yaml:"driver" validate:"oneof=log webhook command"`
	Webhook WebhookConfig `yaml:"webhook"`
	Command CommandConfig `yaml:"command"`
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string            `yaml:"url" validate:"omitempty,url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout"`
}

// CommandConfig configures the local command notifier.
type CommandConfig struct {
	Program string   `yaml:"program"`
	Args    []string `yaml:"args,omitempty"`
	// Allow extends the built-in program allowlist.
	Allow []string `yaml:"allow,omitempty"`
}

// AuthConfig configures bearer-token owner authentication.
type AuthConfig struct {
	// JWTSecret signs owner tokens. Empty disables authentication.
	JWTSecret string   `yaml:"jwt_secret" validate:"omitempty,min=32"`
	TokenTTL  Duration `yaml:"token_ttl"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Listen: "127.0.0.1:7477"},
		Database: DatabaseConfig{Path: filepath.Join(dataDir(), "nudge.db")},
		Log:      LogConfig{Level: "info", Format: "json"},
		Scheduler: SchedulerConfig{
			Tick:               Duration{60 * time.Second},
			NotifyTimeout:      Duration{15 * time.Second},
			RecoveryAt:         "00:00",
			RecoveryWindow:     Duration{5 * time.Minute},
			RecoveryMinSpacing: Duration{time.Hour},
		},
		Policy: PolicyConfig{
			MaxAttempts:   3,
			RetryInterval: Duration{10 * time.Minute},
			AckWindow:     Duration{5 * time.Minute},
			PageSize:      50,
			Timezone:      "Local",
		},
		Notify: NotifyConfig{
			Driver:  "log",
			Webhook: WebhookConfig{Timeout: Duration{10 * time.Second}},
		},
		Auth: AuthConfig{TokenTTL: Duration{30 * 24 * time.Hour}},
	}
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nudge"
	}
	return filepath.Join(home, ".nudge")
}

// DefaultPath returns ~/.nudge/config.yaml.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

// Validate checks field tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	positive := map[string]Duration{
		"scheduler.tick":                 c.Scheduler.Tick,
		"scheduler.notify_timeout":       c.Scheduler.NotifyTimeout,
		"scheduler.recovery_window":      c.Scheduler.RecoveryWindow,
		"scheduler.recovery_min_spacing": c.Scheduler.RecoveryMinSpacing,
		"policy.retry_interval":          c.Policy.RetryInterval,
	}
	for name, d := range positive {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	sched := c.Scheduler
	if sched.Tick.Duration > sched.RecoveryWindow.Duration {
		errs = append(errs, errors.New("scheduler.tick must not exceed scheduler.recovery_window"))
	}
	if sched.RecoveryWindow.Duration > sched.RecoveryMinSpacing.Duration {
		errs = append(errs, errors.New("scheduler.recovery_window must not exceed scheduler.recovery_min_spacing"))
	}
	// The recovery pass is keyed by local date.
	if c.RecoveryOffset()+sched.RecoveryWindow.Duration > 24*time.Hour {
		errs = append(errs, errors.New("scheduler.recovery_at plus scheduler.recovery_window must not cross midnight"))
	}
	if c.Policy.AckWindow.Duration < 0 {
		errs = append(errs, errors.New("policy.ack_window must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch c.Notify.Driver {
	case "webhook":
		if c.Notify.Webhook.URL == "" {
			errs = append(errs, errors.New("notify.webhook.url is required for the webhook driver"))
		}
	case "command":
		if c.Notify.Command.Program == "" {
			errs = append(errs, errors.New("notify.command.program is required for the command driver"))
		}
	}
	return errors.Join(errs...)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Policy.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("policy.timezone: %w", err)
	}
	return loc, nil
}

// RecoveryOffset returns scheduler.recovery_at as an offset from midnight.
func (c *Config) RecoveryOffset() time.Duration {
	t, err := time.Parse("15:04", c.Scheduler.RecoveryAt)
	if err != nil {
		return 0
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// ApplyEnv overrides fields from NUDGE_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set("NUDGE_LISTEN", &c.Server.Listen)
	set("NUDGE_DB", &c.Database.Path)
	set("NUDGE_LOG_LEVEL", &c.Log.Level)
	set("NUDGE_LOG_FORMAT", &c.Log.Format)
	set("NUDGE_TIMEZONE", &c.Policy.Timezone)
	set("NUDGE_JWT_SECRET", &c.Auth.JWTSecret)
	set("NUDGE_NOTIFY_DRIVER", &c.Notify.Driver)
	set("NUDGE_WEBHOOK_URL", &c.Notify.Webhook.URL)
}

// LoadConfig loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.nudge/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	return LoadConfig(DefaultPath())
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// The file may hold the JWT secret.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
