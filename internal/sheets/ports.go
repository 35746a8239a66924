package sheets

import (
	"context"
	"errors"
	"time"

	"ledger/internal/core"
)

// AnyVersion skips the optimistic concurrency check on writes.
const AnyVersion = "*"

var (
	ErrVersionConflict = errors.New("table was modified by another writer")
	ErrVersionRequired = errors.New("expected version is required")
	ErrRowIndex        = errors.New("row index out of range")
	ErrEmptyTable      = errors.New("table is empty")
	ErrArchiveNotFound = errors.New("archive not found")
)

// Ports for outbound adapters.
type (
	// TableStore persists the live tables. Every write returns the new
	// snapshot; Replace and UpdateRow fail with ErrVersionConflict when
	// expectedVersion does not match the stored version.
	TableStore interface {
		Load(ctx context.Context, table core.TableName) (core.Table, error)
		Append(ctx context.Context, table core.TableName, row core.Row) (core.Table, error)
		Replace(ctx context.Context, table core.TableName, rows []core.Row, expectedVersion string) (core.Table, error)
		UpdateRow(ctx context.Context, table core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error)
	}

	// Archiver snapshots a table for a period and resets it.
	Archiver interface {
		// Archive copies the live table to a dated snapshot and resets it
		// to header only. An empty table returns ErrEmptyTable.
		Archive(ctx context.Context, table core.TableName, at time.Time) (ArchiveInfo, error)
		// ListArchives returns the table's snapshots newest first.
		ListArchives(ctx context.Context, table core.TableName) ([]ArchiveInfo, error)
		ReadArchive(ctx context.Context, table core.TableName, id string) (core.Table, error)
	}

	Store interface {
		TableStore
		Archiver
	}
)

// ArchiveInfo describes one snapshot.
type ArchiveInfo struct {
	ID        string         `json:"id"`
	Table     core.TableName `json:"table"`
	Year      int            `json:"year,omitempty"`
	Month     time.Month     `json:"month,omitempty"`
	Seq       int            `json:"seq,omitempty"`
	Rows      int            `json:"rows"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// CheckVersion applies the optimistic concurrency rule.
func CheckVersion(current, expected string) error {
	switch expected {
	case "":
		return ErrVersionRequired
	case AnyVersion, current:
		return nil
	}
	return ErrVersionConflict
}

// ValidTable returns core.ErrUnknownTable for names outside the schema.
func ValidTable(t core.TableName) error {
	if !t.Valid() {
		return core.ErrUnknownTable
	}
	return nil
}
