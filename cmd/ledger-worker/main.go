package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/cli"
	applog "ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(applog.ComponentWorker, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.MustLoadConfig(boot, "")
	logger := cli.SetupLogger(applog.ComponentWorker, cfg.LogLevel, cfg.LogFormat)

	logger.Info("Starting ledger-worker")

	if err := cfg.ValidateMirror(); err != nil {
		logger.Error("Mirror configuration invalid", applog.FieldError, err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger)
	primaryCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	// The worker only reads the primary store; it never publishes.
	primaryCfg.AMQPURL = ""
	primary, err := factory.CreateBackend(context.Background(), primaryCfg)
	if err != nil {
		logger.Error("Failed to initialize primary backend", applog.FieldError, err)
		os.Exit(1)
	}
	defer primary.Close()

	mirror, err := factory.CreateBackend(context.Background(), backend.MirrorConfig(cfg))
	if err != nil {
		logger.Error("Failed to initialize Google Sheets mirror", applog.FieldError, err)
		os.Exit(1)
	}
	defer mirror.Close()

	mirrorWorker := worker.NewMirrorWorker(primary.Store, mirror.Store)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(context.Background(), cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - mirroring on the periodic sweep only", "interval", cfg.SyncInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup mirror")
	if err := mirrorWorker.MirrorAll(ctx); err != nil {
		logger.Error("Startup mirror failed", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeTableChanged(gctx, mirrorWorker.HandleTableChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := mirrorWorker.MirrorAll(gctx); err != nil {
					logger.Error("Periodic mirror failed", applog.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
