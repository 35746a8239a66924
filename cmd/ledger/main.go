package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/backend"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/services"
	"ledger/internal/session"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(applog.ComponentApp, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.MustLoadConfig(boot, "")
	logger := cli.SetupLogger(applog.ComponentApp, cfg.LogLevel, cfg.LogFormat)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Loads are cached per browser session; writes invalidate every session.
	sessions := session.New(res.Store, cfg.SessionTTL)
	ledger := services.NewLedger(sessions, res.LedgerOptions(cfg.AgencyName, cfg.InvoiceDir))

	srv := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		Logger: logger,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		SessionTTL:   cfg.SessionTTL,
		SecureCookie: os.Getenv("COOKIE_SECURE") == "true",
		Sessions:     sessions,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger", applog.FieldError, err)
		}
	})
	srv.StartBackground(ctx, time.Minute)

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.Notifier != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
