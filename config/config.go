/*
Package config loads ccbdesk settings from the environment.

VARIABLES (all optional):
  CCBDESK_ADDR                    Listen address (default :8080)
  CCBDESK_LEDGER_DRIVER           sqlite | postgres | memory (default sqlite)
  CCBDESK_SQLITE_PATH             SQLite file (default ./ccbdesk.db)
  CCBDESK_DATABASE_URL            PostgreSQL connection string
  CCBDESK_SHEET                   Sheet name (default BASE_CONTROLE)
  CCBDESK_WEBHOOK_URL             Chat webhook for notifications
  CCBDESK_NOTIFY_TIMEOUT          Per-notification timeout (default 5s)
  CCBDESK_TIMEZONE                Zone for createdAt (default America/Sao_Paulo)
  CCBDESK_REQUIRE_CASE_DETAILS    Demand amount and partner on create (default true)
  CCBDESK_REASSIGN_ON_FINALIZE    Record the finalizing analyst as owner (default false)
  CCBDESK_DEFAULT_EXTERNAL_STATUS externalStatus for new cases
  CCBDESK_CACHE_TTL               Report snapshot cache lifetime (default 30s, 0 disables)
  CCBDESK_ALLOWED_ORIGINS         CORS origins, comma separated
  CCBDESK_LOG_LEVEL               debug | info | warn | error (default info)
*/
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/warp/ccbdesk/ccb"
)

// Ledger drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr                  string        `env:"CCBDESK_ADDR"                    envDefault:":8080"`
	LedgerDriver          string        `env:"CCBDESK_LEDGER_DRIVER"           envDefault:"sqlite"`
	SQLitePath            string        `env:"CCBDESK_SQLITE_PATH"             envDefault:"./ccbdesk.db"`
	DatabaseURL           string        `env:"CCBDESK_DATABASE_URL"`
	Sheet                 string        `env:"CCBDESK_SHEET"                   envDefault:"BASE_CONTROLE"`
	WebhookURL            string        `env:"CCBDESK_WEBHOOK_URL"`
	NotifyTimeout         time.Duration `env:"CCBDESK_NOTIFY_TIMEOUT"          envDefault:"5s"`
	Timezone              string        `env:"CCBDESK_TIMEZONE"                envDefault:"America/Sao_Paulo"`
	RequireCaseDetails    bool          `env:"CCBDESK_REQUIRE_CASE_DETAILS"    envDefault:"true"`
	ReassignOnFinalize    bool          `env:"CCBDESK_REASSIGN_ON_FINALIZE"    envDefault:"false"`
	DefaultExternalStatus string        `env:"CCBDESK_DEFAULT_EXTERNAL_STATUS" envDefault:"Assinatura Reprovada"`
	CacheTTL              time.Duration `env:"CCBDESK_CACHE_TTL"               envDefault:"30s"`
	AllowedOrigins        []string      `env:"CCBDESK_ALLOWED_ORIGINS"         envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	LogLevel              string        `env:"CCBDESK_LOG_LEVEL"               envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads the environment without validating, for callers that
// override fields first.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.LedgerDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: CCBDESK_SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: CCBDESK_DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown ledger driver %q", c.LedgerDriver)
	}
	if strings.TrimSpace(c.Sheet) == "" {
		return fmt.Errorf("config: CCBDESK_SHEET must not be empty")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("config: CCBDESK_CACHE_TTL must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. An empty value means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// EngineOptions maps the policy settings onto ccb.Options. Notifier and
// Logger are left for the caller to wire.
func (c Config) EngineOptions() (ccb.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return ccb.Options{}, err
	}
	opts := ccb.DefaultOptions()
	opts.RequireCaseDetails = c.RequireCaseDetails
	opts.ReassignOnFinalize = c.ReassignOnFinalize
	opts.DefaultExternalStatus = c.DefaultExternalStatus
	opts.Location = loc
	opts.NotifyTimeout = c.NotifyTimeout
	return opts, nil
}
