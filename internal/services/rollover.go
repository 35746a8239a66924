package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "ledger/internal/log"
)

// RolloverState remembers when the last rollover ran.
// *storage.SQLiteRepository implements it.
type RolloverState interface {
	LastRollover(ctx context.Context) (time.Time, bool, error)
	RecordRollover(ctx context.Context, at time.Time) error
}

// Archiver runs a full archive pass. *Ledger implements it.
type Archiver interface {
	ArchiveAll(ctx context.Context, at time.Time) ArchiveReport
}

// RolloverProcessor archives every table once per period.
type RolloverProcessor struct {
	archiver Archiver
	state    RolloverState
	schedule RolloverSchedule
}

func NewRolloverProcessor(archiver Archiver, state RolloverState, schedule RolloverSchedule) *RolloverProcessor {
	return &RolloverProcessor{archiver: archiver, state: state, schedule: schedule}
}

// ProcessDue runs the rollover if the schedule says so. ran is false when
// nothing was due. The run is recorded even when some tables failed, so
// failures are retried by hand rather than re-archiving the others.
func (p *RolloverProcessor) ProcessDue(ctx context.Context, now time.Time) (report ArchiveReport, ran bool, err error) {
	if p.archiver == nil || p.state == nil || p.schedule == nil {
		return ArchiveReport{}, false, errors.New("rollover processor not properly initialized")
	}

	last, _, err := p.state.LastRollover(ctx)
	if err != nil {
		return ArchiveReport{}, false, fmt.Errorf("read rollover state: %w", err)
	}
	if !p.schedule.IsDue(last, now) {
		rolloverLogger(ctx).DebugContext(ctx, "Rollover not due", "last_run", last, "now", now.Format(time.RFC3339))
		return ArchiveReport{}, false, nil
	}

	period := ArchivePeriod(now)
	rolloverLogger(ctx).InfoContext(ctx, "Starting period rollover",
		"period", period.Format("January 2006"),
		"last_run", last)

	report = p.archiver.ArchiveAll(ctx, period)
	if err := p.state.RecordRollover(ctx, now); err != nil {
		return report, true, fmt.Errorf("record rollover: %w", err)
	}
	return report, true, report.Err()
}

func rolloverLogger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentRollover)
}

// FileRolloverState keeps the last run time in a small JSON file.
type FileRolloverState struct {
	mu   sync.Mutex
	path string
}

func NewFileRolloverState(path string) *FileRolloverState {
	return &FileRolloverState{path: path}
}

type rolloverFile struct {
	LastRun time.Time `json:"last_run"`
}

func (s *FileRolloverState) LastRollover(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var f rolloverFile
	if err := json.Unmarshal(data, &f); err != nil {
		return time.Time{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return f.LastRun, !f.LastRun.IsZero(), nil
}

func (s *FileRolloverState) RecordRollover(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(rolloverFile{LastRun: at.UTC()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
