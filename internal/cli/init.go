// Package cli holds the startup steps shared by cmd/ledger, cmd/ledgerctl,
// cmd/ledger-worker and cmd/rollover-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

// ConfigEnv names a TOML config file when no --config flag is given.
const ConfigEnv = "LEDGER_CONFIG"

// SetupLogger builds the process logger from level and format strings and
// makes it the slog default. An unknown level falls back to info.
func SetupLogger(component, level, format string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	cfg.Format = format
	if lvl, err := applog.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads path, or $LEDGER_CONFIG, or only the environment, and
// validates the result.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadConfig is LoadConfig for daemons: it exits on failure.
func MustLoadConfig(logger *applog.Logger, path string) *config.Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenLedger builds the configured backend and the ledger service over it.
// Closing the ledger releases the backend.
func OpenLedger(ctx context.Context, logger *applog.Logger, cfg *config.Config) (*services.Ledger, *backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}
	return services.NewLedger(res.Store, res.LedgerOptions(cfg.AgencyName, cfg.InvoiceDir)), res, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM and
// carrying logger. cleanup runs with a timeout-bound context before done
// closes.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(applog.WithLogger(context.Background(), logger))
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(applog.WithLogger(context.Background(), logger), timeout)
		defer shutdownCancel()
		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until shutdown has finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
