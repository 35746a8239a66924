// Package csvfile stores each table as {dataDir}/{table}.csv and archive
// snapshots as {archiveDir}/{table}_{Month}_{Year}[_n].csv.
//
// Version checks and archive naming are serialized by a mutex inside one
// Store. Two processes sharing a data directory (the server plus
// ledgerctl or a worker) can still interleave a read-check-write; run
// multi-process deployments on the sqlite or sheets backend.
package csvfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

const ext = ".csv"

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu         sync.Mutex
	dataDir    string
	archiveDir string
}

// New creates both directories if needed.
func New(dataDir, archiveDir string) (*Store, error) {
	for _, dir := range []string{dataDir, archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Store{dataDir: dataDir, archiveDir: archiveDir}, nil
}

func (s *Store) DataDir() string    { return s.dataDir }
func (s *Store) ArchiveDir() string { return s.archiveDir }

func (s *Store) tablePath(t core.TableName) string {
	return filepath.Join(s.dataDir, string(t)+ext)
}

func (s *Store) archivePath(id string) string {
	return filepath.Join(s.archiveDir, id+ext)
}

// Load reads the table, creating it with the canonical header when absent.
func (s *Store) Load(_ context.Context, t core.TableName) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, tbl, err := s.readLocked(t)
	return tbl, err
}

func (s *Store) Append(_ context.Context, t core.TableName, row core.Row) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, tbl, err := s.readLocked(t)
	if err != nil {
		return core.Table{}, err
	}
	rows := append(tbl.Rows, core.NormalizeRow(t, row))
	return s.writeLocked(t, rows)
}

func (s *Store) Replace(_ context.Context, t core.TableName, rows []core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, tbl, err := s.readLocked(t)
	if err != nil {
		return core.Table{}, err
	}
	if err := ports.CheckVersion(tbl.Version, expectedVersion); err != nil {
		return core.Table{}, err
	}
	return s.writeLocked(t, core.NormalizeRows(t, rows))
}

func (s *Store) UpdateRow(_ context.Context, t core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, tbl, err := s.readLocked(t)
	if err != nil {
		return core.Table{}, err
	}
	if err := ports.CheckVersion(tbl.Version, expectedVersion); err != nil {
		return core.Table{}, err
	}
	if index < 0 || index >= len(tbl.Rows) {
		return core.Table{}, fmt.Errorf("%w: %d", ports.ErrRowIndex, index)
	}
	tbl.Rows[index] = core.NormalizeRow(t, row)
	return s.writeLocked(t, tbl.Rows)
}

// Archive copies the live file verbatim and then resets it. The reset is
// skipped, and the copy removed, when the live file changed in between.
func (s *Store) Archive(_ context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return ports.ArchiveInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, tbl, err := s.readLocked(t)
	if err != nil {
		return ports.ArchiveInfo{}, err
	}
	if tbl.Len() == 0 {
		return ports.ArchiveInfo{}, fmt.Errorf("%s: %w", t, ports.ErrEmptyTable)
	}

	id := ports.NextArchiveName(t, at, func(id string) bool {
		_, err := os.Stat(s.archivePath(id))
		return err == nil
	})
	if err := writeFileAtomic(s.archivePath(id), data); err != nil {
		return ports.ArchiveInfo{}, fmt.Errorf("write archive %s: %w", id, err)
	}

	current, err := os.ReadFile(s.tablePath(t))
	if err != nil || ports.ContentVersion(current) != tbl.Version {
		_ = os.Remove(s.archivePath(id))
		if err != nil {
			return ports.ArchiveInfo{}, fmt.Errorf("re-read %s: %w", t, err)
		}
		return ports.ArchiveInfo{}, ports.ErrVersionConflict
	}
	if _, err := s.writeLocked(t, nil); err != nil {
		return ports.ArchiveInfo{}, fmt.Errorf("reset %s: %w", t, err)
	}

	info := ports.NewArchiveInfo(t, id)
	info.Rows = tbl.Len()
	info.CreatedAt = at
	return info, nil
}

func (s *Store) ListArchives(_ context.Context, t core.TableName) ([]ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive directory: %w", err)
	}

	var out []ports.ArchiveInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		if !ports.IsArchiveOf(t, id) {
			continue
		}
		info := ports.NewArchiveInfo(t, id)
		if fi, err := e.Info(); err == nil {
			info.CreatedAt = fi.ModTime()
		}
		out = append(out, info)
	}
	ports.SortArchives(out)
	return out, nil
}

func (s *Store) ReadArchive(_ context.Context, t core.TableName, id string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	if err := ports.ValidArchiveID(t, id); err != nil {
		return core.Table{}, err
	}
	data, err := os.ReadFile(s.archivePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.Table{}, fmt.Errorf("%w: %s", ports.ErrArchiveNotFound, id)
		}
		return core.Table{}, fmt.Errorf("read archive %s: %w", id, err)
	}
	tbl, err := ports.DecodeTable(t, data)
	if err != nil {
		return core.Table{}, fmt.Errorf("decode archive %s: %w", id, err)
	}
	tbl.Version = ports.ContentVersion(data)
	return tbl, nil
}

// readLocked returns the raw bytes and the decoded table.
func (s *Store) readLocked(t core.TableName) ([]byte, core.Table, error) {
	path := s.tablePath(t)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = ports.EncodeTable(t, nil)
		if err != nil {
			return nil, core.Table{}, err
		}
		if err := writeFileAtomic(path, data); err != nil {
			return nil, core.Table{}, fmt.Errorf("create %s: %w", path, err)
		}
		slog.Info("Created table file", "table", t, "path", path)
	} else if err != nil {
		return nil, core.Table{}, fmt.Errorf("read %s: %w", path, err)
	}

	tbl, err := ports.DecodeTable(t, data)
	if err != nil {
		return nil, core.Table{}, fmt.Errorf("decode %s: %w", path, err)
	}
	tbl.Version = ports.ContentVersion(data)
	return data, tbl, nil
}

func (s *Store) writeLocked(t core.TableName, rows []core.Row) (core.Table, error) {
	data, err := ports.EncodeTable(t, rows)
	if err != nil {
		return core.Table{}, err
	}
	if err := writeFileAtomic(s.tablePath(t), data); err != nil {
		return core.Table{}, fmt.Errorf("write %s: %w", t, err)
	}
	tbl := core.NewTable(t)
	if rows != nil {
		tbl.Rows = rows
	}
	tbl.Version = ports.ContentVersion(data)
	return tbl, nil
}

// writeFileAtomic replaces path via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
