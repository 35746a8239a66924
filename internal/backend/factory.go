package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"ledger/internal/amqp"
	"ledger/internal/blob"
	"ledger/internal/invoice"
	applog "ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/sheets/csvfile"
	gsheet "ledger/internal/sheets/google"
	"ledger/internal/sheets/memory"
	"ledger/internal/storage"
)

const rolloverStateFile = "rollover_state.json"

type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateBackend opens the primary store and, when configured, the AMQP
// notifier and the S3 mirror. Optional parts that fail to start are
// logged and left out.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case CSVBackend:
		res, err = f.createCSVBackend(config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case SheetsBackend:
		res, err = f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachNotifier(ctx, config, res)
	f.attachBlob(ctx, config, res)
	return res, nil
}

func (f *DefaultFactory) createCSVBackend(config Config) (*Result, error) {
	store, err := csvfile.New(config.DataDir, config.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize csv store: %w", err)
	}
	f.logger.Info("Initialized csv backend",
		"data_directory", store.DataDir(),
		"archive_directory", store.ArchiveDir())
	return &Result{
		Store:    store,
		Rollover: services.NewFileRolloverState(filepath.Join(store.DataDir(), rolloverStateFile)),
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	res := &Result{Store: memory.New()}
	if config.DataDir != "" {
		res.Store = memory.NewFromFiles(config.DataDir)
		res.Rollover = services.NewFileRolloverState(filepath.Join(config.DataDir, rolloverStateFile))
	} else {
		res.Rollover = services.NewFileRolloverState(rolloverStateFile)
	}
	f.logger.Info("Initialized memory backend", "seed_directory", config.DataDir)
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{Store: repo, Rollover: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	cli, err := gsheet.Open(ctx, config.Google)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets backend")

	stateDir := config.DataDir
	if stateDir == "" {
		stateDir = "."
	}
	return &Result{
		Store:    cli,
		Rollover: services.NewFileRolloverState(filepath.Join(stateDir, rolloverStateFile)),
	}, nil
}

func (f *DefaultFactory) attachNotifier(ctx context.Context, config Config, res *Result) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	res.Notifier = client
	res.Cleanup = chain(res.Cleanup, client.Close)
}

func (f *DefaultFactory) attachBlob(ctx context.Context, config Config, res *Result) {
	res.Blob = blob.Nop{}
	if config.S3.Bucket == "" {
		return
	}
	store, err := blob.NewS3(ctx, config.S3)
	if err != nil {
		f.logger.Warn("Failed to initialize S3 mirror, continuing without it", "error", err)
		return
	}
	f.logger.Info("Initialized S3 mirror", "bucket", config.S3.Bucket, "prefix", config.S3.Prefix)
	res.Blob = store
}

func chain(fns ...CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// LedgerOptions builds the service options for res.
func (res *Result) LedgerOptions(agency, invoiceDir string) services.Options {
	return services.Options{
		Notifier:   res.Notifier,
		Blob:       res.Blob,
		Renderer:   invoice.NewRenderer(agency),
		InvoiceDir: invoiceDir,
	}
}

// Close runs Cleanup when set.
func (res *Result) Close() error {
	if res.Cleanup == nil {
		return nil
	}
	return res.Cleanup()
}
