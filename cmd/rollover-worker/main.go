package main

import (
	"context"
	"os"
	"time"

	"ledger/internal/cli"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(applog.ComponentRollover, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.MustLoadConfig(boot, "")
	logger := cli.SetupLogger(applog.ComponentRollover, cfg.LogLevel, cfg.LogFormat)

	logger.Info("Starting rollover-worker")

	ledger, res, err := cli.OpenLedger(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to open ledger", applog.FieldError, err)
		os.Exit(1)
	}

	processor := services.NewRolloverProcessor(ledger, res.Rollover, services.MonthlySchedule{Day: cfg.RolloverDay})
	logger.Info("Monthly rollover configured",
		"day", cfg.RolloverDay,
		"interval", cfg.RolloverInterval,
		"backend", cfg.DataBackend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger", applog.FieldError, err)
		}
	})

	run := func(now time.Time) {
		report, ran, err := processor.ProcessDue(ctx, now)
		switch {
		case err != nil && !ran:
			logger.Error("Rollover check failed", applog.FieldError, err)
		case !ran:
			logger.Debug("Rollover not due")
		default:
			logger.Info("Rollover complete",
				"archived", report.Count(services.OutcomeArchived),
				"skipped", report.Count(services.OutcomeSkippedEmpty),
				"failed", report.Count(services.OutcomeFailed),
				"next_check", now.Add(cfg.RolloverInterval).Format(time.RFC3339))
			if err != nil {
				logger.Warn("Rollover finished with failures", applog.FieldError, err)
			}
		}
	}

	run(time.Now())

	ticker := time.NewTicker(cfg.RolloverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Rollover-worker stopped")
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
