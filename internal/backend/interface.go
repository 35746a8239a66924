package backend

import (
	"context"

	"ledger/internal/blob"
	"ledger/internal/services"
	ports "ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
)

// CleanupFunc releases whatever a backend opened.
type CleanupFunc func() error

// Result holds the primary store and the optional collaborators built
// alongside it. Notifier is nil when AMQP is not configured.
type Result struct {
	Store    ports.Store
	Rollover services.RolloverState
	Notifier services.Notifier
	Blob     blob.Store
	Cleanup  CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	// csv and memory
	DataDir    string
	ArchiveDir string

	// sqlite
	SQLiteDBPath string

	// sheets
	Google gsheet.Credentials

	// Optional for every backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	S3           blob.Config
}

type BackendType string

const (
	CSVBackend    BackendType = "csv"
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case CSVBackend, MemoryBackend, SQLiteBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
