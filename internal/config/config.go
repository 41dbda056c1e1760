// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8000"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9000"`
	AppName     string `env:"APP_NAME" envDefault:"safechat"`
	AppVersion  string `env:"APP_VERSION" envDefault:"0.1.0"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	FrontendURL string `env:"FRONTEND_URL"`

	Risk    RiskConfig
	Session SessionConfig
	Lexicon LexiconConfig
	Store   StoreConfig
	LLM     LLMConfig
	Limit   RateLimitConfig
}

// RiskConfig holds the risk level thresholds and triage policy.
type RiskConfig struct {
	High         int `env:"RISK_THRESHOLD_HIGH" envDefault:"60"`
	Critical     int `env:"RISK_THRESHOLD_CRITICAL" envDefault:"80"`
	CheckinAfter int `env:"SESSION_MAX_MESSAGES_BEFORE_CHECKIN" envDefault:"15"`
}

// SessionConfig controls session lifetime and message limits.
type SessionConfig struct {
	MaxDurationMinutes int           `env:"MAX_SESSION_DURATION_MINUTES" envDefault:"60"`
	SweepInterval      time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	MaxMessageLength   int           `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`
}

// MaxAge returns the session lifetime.
func (s SessionConfig) MaxAge() time.Duration {
	return time.Duration(s.MaxDurationMinutes) * time.Minute
}

// LexiconConfig points at lexicon files. Empty paths use the embedded defaults.
type LexiconConfig struct {
	KeywordsPath  string `env:"RISK_KEYWORDS_PATH"`
	ResourcesPath string `env:"CRISIS_RESOURCES_PATH"`
	Watch         bool   `env:"LEXICON_WATCH" envDefault:"false"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"memory"`
	DBPath string `env:"DB_PATH" envDefault:"./data/sessions.db"`
}

// LLMConfig configures the reply generator.
type LLMConfig struct {
	Provider    string        `env:"LLM_PROVIDER" envDefault:"mock"`
	APIKey      string        `env:"LLM_API_KEY"`
	BaseURL     string        `env:"LLM_BASE_URL"`
	Model       string        `env:"LLM_MODEL"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"300"`
	Temperature *float64      `env:"LLM_TEMPERATURE"`
	Timeout     time.Duration `env:"REPLY_TIMEOUT" envDefault:"20s"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"2"`
	Burst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all configuration fields are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.Risk.High <= 0 || c.Risk.High >= c.Risk.Critical || c.Risk.Critical > 100 {
		errs = append(errs, fmt.Errorf("risk thresholds must satisfy 0 < high < critical <= 100, got high=%d critical=%d",
			c.Risk.High, c.Risk.Critical))
	}
	if c.Risk.CheckinAfter <= 0 {
		errs = append(errs, errors.New("SESSION_MAX_MESSAGES_BEFORE_CHECKIN must be > 0"))
	}
	if c.Session.MaxDurationMinutes <= 0 {
		errs = append(errs, errors.New("MAX_SESSION_DURATION_MINUTES must be > 0"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("SESSION_SWEEP_INTERVAL must be > 0"))
	}
	if c.Session.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be > 0"))
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH cannot be empty with the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	switch c.LLM.Provider {
	case "mock":
	case "openai":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("LLM_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("LLM_MAX_TOKENS must be > 0"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("REPLY_TIMEOUT must be > 0"))
	}
	if c.Limit.RPS <= 0 || c.Limit.Burst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LOG_LEVEL.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" ||
		c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}
