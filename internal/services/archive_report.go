package services

import (
	"errors"
	"fmt"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

type Outcome string

const (
	OutcomeArchived     Outcome = "archived"
	OutcomeSkippedEmpty Outcome = "skipped_empty"
	OutcomeFailed       Outcome = "failed"
)

type TableResult struct {
	Table   core.TableName    `json:"table"`
	Outcome Outcome           `json:"outcome"`
	Archive ports.ArchiveInfo `json:"archive,omitempty"`
	Err     error             `json:"-"`
	Error   string            `json:"error,omitempty"`
}

// ArchiveReport records the outcome of every table in an ArchiveAll run.
type ArchiveReport struct {
	At      time.Time     `json:"at"`
	Results []TableResult `json:"results"`
}

func (r ArchiveReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Err joins the failures, or returns nil when no table failed.
func (r ArchiveReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			errs = append(errs, fmt.Errorf("%s: %w", res.Table, res.Err))
		}
	}
	return errors.Join(errs...)
}

// WithErrorText fills Error from Err for JSON encoding.
func (r ArchiveReport) WithErrorText() ArchiveReport {
	out := ArchiveReport{At: r.At, Results: make([]TableResult, len(r.Results))}
	for i, res := range r.Results {
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
		out.Results[i] = res
	}
	return out
}
