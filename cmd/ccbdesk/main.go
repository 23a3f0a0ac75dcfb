/*
main.go - ccbdesk entry point

PURPOSE:
  One binary for the review desk: the HTTP server and the analyst
  commands that work straight against the ledger.

COMMANDS:
  serve                         HTTP API with graceful shutdown
  claim    <id>                 Create or resume a case
  finalize <id> <result>        Record pending/approved/rejected
  show     <id>                 Print one case
  report   status|analysts|months|month|period

CONFIGURATION:
  Environment first (see config/config.go), then these flags on top:
    --driver, --sqlite, --database-url, --sheet, --timezone, --log-level

EXAMPLES:
  ccbdesk serve --addr :8080
  ccbdesk claim 1001 --analyst ana --amount "5.000,00" --partner Acme
  ccbdesk finalize 1001 pending --analyst ana --notes "faltou RG"
  ccbdesk report months --json

SEE ALSO:
  - factory/desk.go: How the desk is assembled
  - api/server.go: Routes served by `serve`
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/warp/ccbdesk/config"
	"github.com/warp/ccbdesk/factory"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs after flags are parsed.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	driver      string
	sqlitePath  string
	databaseURL string
	sheet       string
	timezone    string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "ccbdesk",
		Short:         "Credit-note (CCB) review desk",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.driver, "driver", "", "ledger driver: sqlite, postgres or memory")
	pf.StringVar(&a.sqlitePath, "sqlite", "", "SQLite database path")
	pf.StringVar(&a.databaseURL, "database-url", "", "PostgreSQL connection string")
	pf.StringVar(&a.sheet, "sheet", "", "sheet name")
	pf.StringVar(&a.timezone, "timezone", "", "time zone for createdAt")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(claimCmd(a))
	rootCmd.AddCommand(finalizeCmd(a))
	rootCmd.AddCommand(showCmd(a))
	rootCmd.AddCommand(reportCmd(a))

	return rootCmd
}

// load reads the environment and applies the flags that were set.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.LedgerDriver = a.driver
	}
	if flags.Changed("sqlite") {
		cfg.SQLitePath = a.sqlitePath
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = a.databaseURL
	}
	if flags.Changed("sheet") {
		cfg.Sheet = a.sheet
	}
	if flags.Changed("timezone") {
		cfg.Timezone = a.timezone
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.SlogLevel()
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *app) openDesk(ctx context.Context) (*factory.Desk, error) {
	return factory.Open(ctx, a.cfg, a.logger)
}
