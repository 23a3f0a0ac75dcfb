package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/ccbdesk/api"
)

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the review desk HTTP API.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, drains pending notifications and closes the ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			desk, err := a.openDesk(ctx)
			if err != nil {
				return err
			}
			defer desk.Close()

			loc, _ := a.cfg.Location()
			handler := api.NewHandler(desk.Engine, api.Options{
				Location: loc,
				CacheTTL: a.cfg.CacheTTL,
				Logger:   a.logger,
			})

			server := &http.Server{
				Addr:         a.cfg.Addr,
				Handler:      api.NewRouter(handler, a.cfg.AllowedOrigins),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting", "addr", a.cfg.Addr, "driver", a.cfg.LedgerDriver)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			a.logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}

			a.logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
