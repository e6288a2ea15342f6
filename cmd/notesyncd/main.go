// Command notesyncd runs the reference sync backend: a single-binary HTTP
// server exposing the record store, token issuing, and the websocket change
// feed that offline-first clients synchronize against.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dstepanov-dev/localnotes/internal/logging"
	"github.com/dstepanov-dev/localnotes/internal/server/api"
	"github.com/dstepanov-dev/localnotes/internal/server/auth"
	"github.com/dstepanov-dev/localnotes/internal/server/config"
	"github.com/dstepanov-dev/localnotes/internal/server/records"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:           "notesyncd",
		Short:         "Sync backend for offline-first note clients",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("address", "", "HTTP listen address")
	flags.String("database", "", "path to the SQLite database file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	bind := func(key, flag string) {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	bind("http.address", "address")
	bind("database.path", "database")
	bind("log.level", "log-level")

	return cmd
}

func run(ctx context.Context, cfg config.AppConfig) error {
	logger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := records.OpenSQLite(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	tokens, err := auth.NewTokenManager(
		[]byte(cfg.SigningSecret),
		time.Duration(cfg.TokenTTLMinutes)*time.Minute,
		nil,
	)
	if err != nil {
		return err
	}

	handler, err := api.NewHTTPHandler(api.Dependencies{
		TokenManager:   tokens,
		RecordsService: records.NewService(db, nil),
		Dispatcher:     api.NewDispatcher(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", cfg.HTTPAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
