package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

var _ ports.Store = (*Store)(nil)

type table struct {
	rows    []core.Row
	version int64
}

type archive struct {
	info ports.ArchiveInfo
	data []byte
}

// Store keeps every table in process memory. Versions are per-table
// counters.
type Store struct {
	mu       sync.Mutex
	tables   map[core.TableName]*table
	archives map[core.TableName][]archive
}

func New() *Store {
	s := &Store{
		tables:   make(map[core.TableName]*table),
		archives: make(map[core.TableName][]archive),
	}
	for _, t := range core.AllTables {
		s.tables[t] = &table{}
	}
	return s
}

// NewFromFiles seeds the store from {base}/{table}.csv files when present.
func NewFromFiles(base string) *Store {
	s := New()
	for _, t := range core.AllTables {
		data, err := os.ReadFile(filepath.Join(base, string(t)+".csv"))
		if err != nil {
			continue
		}
		tbl, err := ports.DecodeTable(t, data)
		if err != nil {
			slog.Warn("Ignoring unreadable seed file", "table", t, "error", err)
			continue
		}
		s.tables[t].rows = tbl.Rows
	}
	return s
}

func (s *Store) snapshotLocked(t core.TableName) core.Table {
	tb := s.tables[t]
	out := core.NewTable(t)
	for _, r := range tb.rows {
		out.Rows = append(out.Rows, r.Clone())
	}
	out.Version = strconv.FormatInt(tb.version, 10)
	return out
}

func (s *Store) Load(_ context.Context, t core.TableName) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(t), nil
}

func (s *Store) Append(_ context.Context, t core.TableName, row core.Row) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tb := s.tables[t]
	tb.rows = append(tb.rows, core.NormalizeRow(t, row))
	tb.version++
	return s.snapshotLocked(t), nil
}

func (s *Store) Replace(_ context.Context, t core.TableName, rows []core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tb := s.tables[t]
	if err := ports.CheckVersion(strconv.FormatInt(tb.version, 10), expectedVersion); err != nil {
		return core.Table{}, err
	}
	tb.rows = core.NormalizeRows(t, rows)
	tb.version++
	return s.snapshotLocked(t), nil
}

func (s *Store) UpdateRow(_ context.Context, t core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tb := s.tables[t]
	if err := ports.CheckVersion(strconv.FormatInt(tb.version, 10), expectedVersion); err != nil {
		return core.Table{}, err
	}
	if index < 0 || index >= len(tb.rows) {
		return core.Table{}, fmt.Errorf("%w: %d", ports.ErrRowIndex, index)
	}
	tb.rows[index] = core.NormalizeRow(t, row)
	tb.version++
	return s.snapshotLocked(t), nil
}

func (s *Store) Archive(_ context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return ports.ArchiveInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tb := s.tables[t]
	if len(tb.rows) == 0 {
		return ports.ArchiveInfo{}, fmt.Errorf("%s: %w", t, ports.ErrEmptyTable)
	}
	data, err := ports.EncodeTable(t, tb.rows)
	if err != nil {
		return ports.ArchiveInfo{}, err
	}

	id := ports.NextArchiveName(t, at, func(id string) bool {
		for _, a := range s.archives[t] {
			if a.info.ID == id {
				return true
			}
		}
		return false
	})
	info := ports.NewArchiveInfo(t, id)
	info.Rows = len(tb.rows)
	info.CreatedAt = at
	s.archives[t] = append(s.archives[t], archive{info: info, data: data})

	tb.rows = nil
	tb.version++
	return info, nil
}

func (s *Store) ListArchives(_ context.Context, t core.TableName) ([]ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.ArchiveInfo, 0, len(s.archives[t]))
	for _, a := range s.archives[t] {
		out = append(out, a.info)
	}
	ports.SortArchives(out)
	return out, nil
}

func (s *Store) ReadArchive(_ context.Context, t core.TableName, id string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.archives[t] {
		if a.info.ID == id {
			tbl, err := ports.DecodeTable(t, a.data)
			if err != nil {
				return core.Table{}, err
			}
			tbl.Version = ports.ContentVersion(a.data)
			return tbl, nil
		}
	}
	return core.Table{}, fmt.Errorf("%w: %s", ports.ErrArchiveNotFound, id)
}
