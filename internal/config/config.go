// Package config loads service settings from an optional YAML file and the
// environment. Environment values win over the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SmartInclusion/SmartInclusion/internal/util"
)

const (
	// DefaultStateDir is the default directory for service state.
	DefaultStateDir = "/var/lib/smartinclusion"
	// DefaultDBFileName is the SQLite database file created in the state directory.
	DefaultDBFileName = "smartinclusion.db"
	// DefaultAPIAddr is the default HTTP listen address.
	DefaultAPIAddr = ":8080"
	// DefaultOutboxPollInterval is how often queued broadcast messages are drained.
	DefaultOutboxPollInterval = 5 * time.Second
)

// Config is the resolved service configuration.
type Config struct {
	StateDir           string
	DatabaseURL        string
	APIAddr            string
	LogLevel           string
	OutboxPollInterval time.Duration
	Twilio             TwilioConfig
	RateLimit          RateLimitConfig
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Enabled reports whether every credential needed for SMS delivery is set.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}

// RateLimitConfig limits requests per client IP on the admin endpoints.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir:           DefaultStateDir,
		APIAddr:            DefaultAPIAddr,
		LogLevel:           "info",
		OutboxPollInterval: DefaultOutboxPollInterval,
		RateLimit:          RateLimitConfig{RPS: 5, Burst: 20},
	}
}

// DSN returns DatabaseURL, or a SQLite file in the state directory when unset.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FileConfig is the YAML layout. Pointer and zero fields leave defaults alone.
type FileConfig struct {
	StateDir           string        `yaml:"stateDir"`
	DatabaseURL        string        `yaml:"databaseURL"`
	APIAddr            string        `yaml:"apiAddr"`
	LogLevel           string        `yaml:"logLevel"`
	OutboxPollInterval time.Duration `yaml:"outboxPollInterval"`
	Twilio             struct {
		AccountSID string `yaml:"accountSID"`
		AuthToken  string `yaml:"authToken"`
		FromNumber string `yaml:"fromNumber"`
	} `yaml:"twilio"`
	RateLimit struct {
		Enabled *bool   `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"rateLimit"`
}

// Load resolves the configuration. An explicit path must exist and parse;
// without one the default candidates are tried and silently skipped when absent.
func Load(path string) (Config, error) {
	cfg := Default()

	candidates := []string{path}
	if path == "" {
		candidates = []string{"smartinclusion.yaml", "configs/smartinclusion.yaml"}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if path != "" {
				return cfg, fmt.Errorf("failed to read config file %s: %w", candidate, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", candidate, err)
		}
		Merge(&cfg, parsed)
		slog.Debug("config.Load: applied config file", "path", candidate)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// Merge copies every set field of src into dst.
func Merge(dst *Config, src FileConfig) {
	if src.StateDir != "" {
		dst.StateDir = src.StateDir
	}
	if src.DatabaseURL != "" {
		dst.DatabaseURL = src.DatabaseURL
	}
	if src.APIAddr != "" {
		dst.APIAddr = src.APIAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.OutboxPollInterval > 0 {
		dst.OutboxPollInterval = src.OutboxPollInterval
	}
	if src.Twilio.AccountSID != "" {
		dst.Twilio.AccountSID = src.Twilio.AccountSID
	}
	if src.Twilio.AuthToken != "" {
		dst.Twilio.AuthToken = src.Twilio.AuthToken
	}
	if src.Twilio.FromNumber != "" {
		dst.Twilio.FromNumber = src.Twilio.FromNumber
	}
	if src.RateLimit.Enabled != nil {
		dst.RateLimit.Enabled = *src.RateLimit.Enabled
	}
	if src.RateLimit.RPS > 0 {
		dst.RateLimit.RPS = src.RateLimit.RPS
	}
	if src.RateLimit.Burst > 0 {
		dst.RateLimit.Burst = src.RateLimit.Burst
	}
}

// ApplyEnvOverrides applies environment variables on top of cfg. Malformed
// numeric values are logged and ignored.
func ApplyEnvOverrides(cfg *Config) {
	cfg.StateDir = util.GetenvDefault("SMARTINCLUSION_STATE_DIR", cfg.StateDir)
	cfg.DatabaseURL = util.GetenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.APIAddr = util.GetenvDefault("API_ADDR", cfg.APIAddr)
	cfg.LogLevel = util.GetenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.Twilio.AccountSID = util.GetenvDefault("TWILIO_ACCOUNT_SID", cfg.Twilio.AccountSID)
	cfg.Twilio.AuthToken = util.GetenvDefault("TWILIO_AUTH_TOKEN", cfg.Twilio.AuthToken)
	cfg.Twilio.FromNumber = util.GetenvDefault("TWILIO_FROM_NUMBER", cfg.Twilio.FromNumber)
	cfg.RateLimit.Enabled = util.ParseBoolEnv("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)

	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			cfg.RateLimit.RPS = v
		} else {
			slog.Warn("config.ApplyEnvOverrides: ignoring RATE_LIMIT_RPS", "value", raw)
		}
	}
	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.RateLimit.Burst = v
		} else {
			slog.Warn("config.ApplyEnvOverrides: ignoring RATE_LIMIT_BURST", "value", raw)
		}
	}
	if raw := strings.TrimSpace(os.Getenv("OUTBOX_POLL_INTERVAL")); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			cfg.OutboxPollInterval = v
		} else {
			slog.Warn("config.ApplyEnvOverrides: ignoring OUTBOX_POLL_INTERVAL", "value", raw)
		}
	}
}
