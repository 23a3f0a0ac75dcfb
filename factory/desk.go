/*
Package factory assembles a working desk from configuration.

PURPOSE:
  Turns a config.Config into the live object graph: a ledger for the chosen
  driver, the notification sinks, and a ccb.Engine over a Repository. The
  HTTP server and every CLI command go through here so they all see the
  same wiring.

DRIVERS:
  sqlite    store/sqlite on CCBDESK_SQLITE_PATH
  postgres  store/postgres on CCBDESK_DATABASE_URL
  memory    ledger.Memory seeded with the header row (dev and demos)

NOTIFIERS:
  Always a structured-log sink; plus a chat webhook when
  CCBDESK_WEBHOOK_URL is set. Both are fanned out with notify.Multi.

USAGE:
  desk, err := factory.Open(ctx, cfg, logger)
  if err != nil {
      return err
  }
  defer desk.Close()

  res, err := desk.Engine.Claim(ctx, ccb.NewSession("ana"), req)

SEE ALSO:
  - config/config.go: Settings and defaults
  - ccb/lifecycle.go: The engine being built
*/
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/warp/ccbdesk/ccb"
	"github.com/warp/ccbdesk/config"
	"github.com/warp/ccbdesk/ledger"
	"github.com/warp/ccbdesk/notify"
	"github.com/warp/ccbdesk/store/postgres"
	"github.com/warp/ccbdesk/store/sqlite"
)

// Desk is the assembled object graph.
type Desk struct {
	Config config.Config
	Ledger ledger.Ledger
	Engine *ccb.Engine
	Logger *slog.Logger

	closers []func() error
}

// Open builds a desk for cfg. Close releases it.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Desk, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l, closeLedger, err := OpenLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		_ = closeLedger()
		return nil, err
	}
	opts.Logger = logger
	opts.Notifier = Notifier(cfg, logger)

	repo := ccb.NewRepository(l, opts.Location)
	logger.Info("desk ready",
		"driver", cfg.LedgerDriver,
		"sheet", cfg.Sheet,
		"timezone", opts.Location.String(),
		"webhook", cfg.WebhookURL != "",
	)

	return &Desk{
		Config:  cfg,
		Ledger:  l,
		Engine:  ccb.NewEngine(repo, opts),
		Logger:  logger,
		closers: []func() error{closeLedger},
	}, nil
}

// Close waits for in-flight notifications, then releases the ledger.
func (d *Desk) Close() error {
	d.Engine.Wait()
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OpenLedger opens the ledger for the configured driver.
func OpenLedger(ctx context.Context, cfg config.Config) (ledger.Ledger, func() error, error) {
	switch cfg.LedgerDriver {
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return store.Sheet(cfg.Sheet), store.Close, nil

	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return store.Sheet(cfg.Sheet), func() error { store.Close(); return nil }, nil

	case config.DriverMemory:
		return ledger.NewMemory(ccb.Header.Clone()), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown ledger driver %q", cfg.LedgerDriver)
	}
}

// Notifier builds the sink set for cfg.
func Notifier(cfg config.Config, logger *slog.Logger) ccb.Notifier {
	sinks := notify.Multi{notify.Log{Logger: logger.With("component", "notify")}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, cfg.NotifyTimeout))
	}
	return sinks
}
