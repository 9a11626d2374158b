package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/SmartInclusion/SmartInclusion/internal/api"
	"github.com/SmartInclusion/SmartInclusion/internal/config"
	"github.com/SmartInclusion/SmartInclusion/internal/lockfile"
	"github.com/SmartInclusion/SmartInclusion/internal/store"
	"github.com/SmartInclusion/SmartInclusion/internal/twiliosms"
)

func main() {
	initializeLogger(slog.LevelInfo)
	if err := run(os.Args[1:]); err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			fmt.Fprintln(os.Stderr, lockErr.Error())
		}
		slog.Error("Smart Inclusion failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Smart Inclusion exited successfully")
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	flags, err := parseFlags(flag.CommandLine, args)
	if err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	flags.apply(&cfg)
	initializeLogger(cfg.SlogLevel())

	dsn := cfg.DSN()
	if store.DetectDSNType(dsn) == "sqlite3" {
		lock, err := lockfile.AcquireLock(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("failed to lock state directory %s: %w", cfg.StateDir, err)
		}
		defer lock.Release()
	}

	storeOpts := buildStoreOptions(dsn)
	smsOpts := buildSMSOptions(cfg)
	apiOpts := buildAPIOptions(cfg)

	slog.Info("Bootstrapping Smart Inclusion with configured modules")
	slog.Debug("Final configuration",
		"state_dir", cfg.StateDir,
		"dsn_type", store.DetectDSNType(dsn),
		"api_addr", cfg.APIAddr,
		"sms_enabled", len(smsOpts) > 0,
		"rate_limit", cfg.RateLimit.Enabled)
	return api.Run(storeOpts, smsOpts, apiOpts)
}

// initializeLogger sets up structured logging on stdout.
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// Flags holds command line values. Only flags given on the command line
// override the file and environment configuration.
type Flags struct {
	configPath string
	stateDir   string
	dbDSN      string
	apiAddr    string
	logLevel   string
	rateLimit  bool
	set        map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*Flags, error) {
	f := &Flags{set: make(map[string]bool)}
	fs.StringVar(&f.configPath, "config", os.Getenv("SMARTINCLUSION_CONFIG"), "path to YAML config file (overrides $SMARTINCLUSION_CONFIG)")
	fs.StringVar(&f.stateDir, "state-dir", "", "state directory for the SQLite database and lock file (overrides $SMARTINCLUSION_STATE_DIR)")
	fs.StringVar(&f.dbDSN, "db-dsn", "", "database DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&f.apiAddr, "api-addr", "", "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	fs.BoolVar(&f.rateLimit, "rate-limit", false, "rate limit admin endpoints per client IP (overrides $RATE_LIMIT_ENABLED)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	slog.Debug("flags parsed", "config", f.configPath, "explicit", len(f.set))
	return f, nil
}

func (f *Flags) apply(cfg *config.Config) {
	if f.set["state-dir"] {
		cfg.StateDir = f.stateDir
	}
	if f.set["db-dsn"] {
		cfg.DatabaseURL = f.dbDSN
	}
	if f.set["api-addr"] {
		cfg.APIAddr = f.apiAddr
	}
	if f.set["log-level"] {
		cfg.LogLevel = f.logLevel
	}
	if f.set["rate-limit"] {
		cfg.RateLimit.Enabled = f.rateLimit
	}
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(dsn string) []store.Option {
	if dsn == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildSMSOptions returns Twilio options only when every credential is present.
func buildSMSOptions(cfg config.Config) []twiliosms.Option {
	if !cfg.Twilio.Enabled() {
		return nil
	}
	return []twiliosms.Option{
		twiliosms.WithAccountSID(cfg.Twilio.AccountSID),
		twiliosms.WithAuthToken(cfg.Twilio.AuthToken),
		twiliosms.WithFrom(cfg.Twilio.FromNumber),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(cfg config.Config) []api.Option {
	apiOpts := []api.Option{api.WithOutboxPollInterval(cfg.OutboxPollInterval)}
	if cfg.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(cfg.APIAddr))
	}
	if cfg.RateLimit.Enabled {
		apiOpts = append(apiOpts, api.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	return apiOpts
}
