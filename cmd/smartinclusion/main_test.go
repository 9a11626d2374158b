package main

import (
	"flag"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/config"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("smartinclusion", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlags_OnlyExplicitFlagsOverride(t *testing.T) {
	f, err := parseFlags(newFlagSet(), []string{"--api-addr", ":9000", "--rate-limit"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	cfg := config.Default()
	cfg.StateDir = "/from/env"
	f.apply(&cfg)

	if cfg.APIAddr != ":9000" {
		t.Errorf("APIAddr = %q, want :9000", cfg.APIAddr)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("rate limit flag should enable limiting")
	}
	if cfg.StateDir != "/from/env" {
		t.Errorf("unset flag overrode StateDir: %q", cfg.StateDir)
	}
}

func TestParseFlags_ConfigPathFromEnv(t *testing.T) {
	t.Setenv("SMARTINCLUSION_CONFIG", "/etc/smartinclusion.yaml")
	f, err := parseFlags(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if f.configPath != "/etc/smartinclusion.yaml" {
		t.Errorf("configPath = %q", f.configPath)
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	if _, err := parseFlags(newFlagSet(), []string{"--qr-output", "x"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestBuildStoreOptions(t *testing.T) {
	if opts := buildStoreOptions(""); len(opts) != 0 {
		t.Errorf("expected no options for empty DSN, got %d", len(opts))
	}
	if opts := buildStoreOptions("postgres://localhost/si"); len(opts) != 1 {
		t.Errorf("expected one option for Postgres DSN, got %d", len(opts))
	}
	if opts := buildStoreOptions(filepath.Join(t.TempDir(), "si.db")); len(opts) != 1 {
		t.Errorf("expected one option for SQLite DSN, got %d", len(opts))
	}
}

func TestBuildSMSOptions(t *testing.T) {
	cfg := config.Default()
	if opts := buildSMSOptions(cfg); opts != nil {
		t.Errorf("expected no SMS options without credentials, got %d", len(opts))
	}
	cfg.Twilio = config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok"}
	if opts := buildSMSOptions(cfg); opts != nil {
		t.Error("partial credentials must not enable SMS")
	}
	cfg.Twilio.FromNumber = "+15005550006"
	if opts := buildSMSOptions(cfg); len(opts) != 3 {
		t.Errorf("expected 3 SMS options, got %d", len(opts))
	}
}

func TestBuildAPIOptions(t *testing.T) {
	cfg := config.Default()
	cfg.OutboxPollInterval = time.Second
	if opts := buildAPIOptions(cfg); len(opts) != 2 {
		t.Errorf("expected poll interval and addr options, got %d", len(opts))
	}
	cfg.RateLimit.Enabled = true
	if opts := buildAPIOptions(cfg); len(opts) != 3 {
		t.Errorf("expected rate limit option too, got %d", len(opts))
	}
}
