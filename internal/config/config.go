// Package config loads crew-bus daemon configuration from a YAML file with
// CREWBUS_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/helmcode/crew-bus/internal/protocol"
)

// EnvPrefix prefixes every environment override, e.g. CREWBUS_DATABASE_PATH.
// Keys derive from field names via split_words. An envconfig tag would also
// match the unprefixed name (PATH, URL).
const EnvPrefix = "CREWBUS"

// Config holds the full daemon configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	NATS     NATSConfig     `yaml:"nats"`
	Sessions SessionsConfig `yaml:"sessions"`
	Mailbox  MailboxConfig  `yaml:"mailbox"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" split_words:"true"`

	// JWTSecret enables bearer-token auth on /api when set.
	JWTSecret         string        `yaml:"jwt_secret" split_words:"true"`
	AdminPasswordHash string        `yaml:"admin_password_hash" split_words:"true"`
	TokenTTL          time.Duration `yaml:"token_ttl" split_words:"true"`

	// RatePerMinute of 0 disables the per-client limiter.
	RatePerMinute int `yaml:"rate_per_minute" split_words:"true"`
	Burst         int `yaml:"burst" split_words:"true"`
}

// NATSConfig configures event publication and the request bridge.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled" split_words:"true"`
	URL           string        `yaml:"url" split_words:"true"`
	Token         string        `yaml:"token" split_words:"true"`
	SubjectPrefix string        `yaml:"subject_prefix" split_words:"true"`
	Stream        string        `yaml:"stream" split_words:"true"`
	StreamMaxAge  time.Duration `yaml:"stream_max_age" split_words:"true"`
}

// SessionsConfig holds private session defaults.
type SessionsConfig struct {
	DefaultTimeoutMinutes int    `yaml:"default_timeout_minutes" split_words:"true"`
	DefaultChannel        string `yaml:"default_channel" split_words:"true"`
	SweepSchedule         string `yaml:"sweep_schedule" split_words:"true"`
}

// MailboxConfig holds the team mailbox quota.
type MailboxConfig struct {
	RateLimit int           `yaml:"rate_limit" split_words:"true"`
	Window    time.Duration `yaml:"window" split_words:"true"`
}

// DeliveryConfig schedules the pass that releases queued messages to the
// human once the timing gate allows it. An empty schedule disables it.
type DeliveryConfig struct {
	Schedule string `yaml:"schedule" split_words:"true"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
	Output string `yaml:"output" split_words:"true"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "crewbus.db"},
		Server: ServerConfig{
			ListenAddr:    ":8080",
			TokenTTL:      12 * time.Hour,
			RatePerMinute: 600,
			Burst:         50,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "crewbus",
			Stream:        "CREWBUS_EVENTS",
			StreamMaxAge:  7 * 24 * time.Hour,
		},
		Sessions: SessionsConfig{
			DefaultTimeoutMinutes: 30,
			DefaultChannel:        "web",
			SweepSchedule:         "@every 1m",
		},
		Mailbox:  MailboxConfig{RateLimit: 3, Window: 24 * time.Hour},
		Delivery: DeliveryConfig{Schedule: "@every 5m"},
		Log:      LogConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	sections := []struct {
		name   string
		target interface{}
	}{
		{"DATABASE", &c.Database},
		{"SERVER", &c.Server},
		{"NATS", &c.NATS},
		{"SESSIONS", &c.Sessions},
		{"MAILBOX", &c.Mailbox},
		{"DELIVERY", &c.Delivery},
		{"LOG", &c.Log},
	}
	for _, s := range sections {
		if err := envconfig.Process(EnvPrefix+"_"+s.name, s.target); err != nil {
			return fmt.Errorf("reading %s_%s_* environment: %w", EnvPrefix, s.name, err)
		}
	}
	// Short forms kept for container setups.
	if v := os.Getenv("DATABASE_PATH"); v != "" && os.Getenv(EnvPrefix+"_DATABASE_PATH") == "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" && os.Getenv(EnvPrefix+"_SERVER_LISTEN_ADDR") == "" {
		c.Server.ListenAddr = v
	}
	return nil
}

// Validate rejects malformed values.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		add("database.path is required")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		add("server.listen_addr is required")
	}
	if c.Server.RatePerMinute < 0 {
		add("server.rate_per_minute must be >= 0")
	}
	if c.Server.RatePerMinute > 0 && c.Server.Burst <= 0 {
		add("server.burst must be > 0 when rate limiting is enabled")
	}
	if c.Server.JWTSecret != "" && c.Server.TokenTTL <= 0 {
		add("server.token_ttl must be positive")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			add("nats.url is required when nats is enabled")
		}
		if err := protocol.ValidateSubjectToken(c.NATS.SubjectPrefix); err != nil {
			add("nats.subject_prefix: %v", err)
		}
		if c.NATS.Stream != "" {
			if err := protocol.ValidateSubjectToken(c.NATS.Stream); err != nil {
				add("nats.stream: %v", err)
			}
		}
	}
	if c.Sessions.DefaultTimeoutMinutes < 0 {
		add("sessions.default_timeout_minutes must be >= 0")
	}
	if strings.TrimSpace(c.Sessions.SweepSchedule) == "" {
		add("sessions.sweep_schedule is required")
	}
	if strings.TrimSpace(c.Sessions.DefaultChannel) == "" {
		add("sessions.default_channel is required")
	}
	if c.Mailbox.RateLimit <= 0 {
		add("mailbox.rate_limit must be > 0")
	}
	if c.Mailbox.Window <= 0 {
		add("mailbox.window must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		add("log.format %q is not one of json, text", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
