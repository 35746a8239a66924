package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

func TestMemoryStoreAppendReplaceAndVersions(t *testing.T) {
	ctx := context.Background()
	s := New()

	tbl, err := s.Append(ctx, core.Clients, core.Row{"Acme", "", "10"})
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Version != "1" || len(tbl.Rows[0]) != 4 {
		t.Fatalf("unexpected append result: %+v", tbl)
	}

	if _, err := s.Replace(ctx, core.Clients, nil, "0"); !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	tbl, err = s.Replace(ctx, core.Clients, []core.Row{{"Beta"}}, tbl.Version)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 1 || tbl.Rows[0][0] != "Beta" {
		t.Fatalf("unexpected rows: %v", tbl.Rows)
	}

	// Returned snapshots do not alias the store.
	tbl.Rows[0][0] = "mutated"
	again, _ := s.Load(ctx, core.Clients)
	if again.Rows[0][0] != "Beta" {
		t.Fatal("snapshot aliases store state")
	}
}

func TestMemoryArchive(t *testing.T) {
	ctx := context.Background()
	s := New()
	at := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)

	if _, err := s.Archive(ctx, core.Projects, at); !errors.Is(err, ports.ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}

	p := core.NewProject("Acme", "Site", "Bo", core.Dollars(1000))
	_, _ = s.Append(ctx, core.Projects, p.Row())
	info, err := s.Archive(ctx, core.Projects, at)
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "projects_June_2025" {
		t.Fatalf("unexpected id %q", info.ID)
	}
	live, _ := s.Load(ctx, core.Projects)
	if live.Len() != 0 {
		t.Fatal("live table not reset")
	}
	snap, err := s.ReadArchive(ctx, core.Projects, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 1 || snap.Rows[0][4] != "200.00" {
		t.Fatalf("unexpected snapshot: %v", snap.Rows)
	}
	if _, err := s.ReadArchive(ctx, core.Projects, "projects_July_2025"); !errors.Is(err, ports.ErrArchiveNotFound) {
		t.Fatalf("expected ErrArchiveNotFound, got %v", err)
	}
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	// No files -> empty tables
	s := NewFromFiles(dir)
	tbl, _ := s.Load(context.Background(), core.Expenses)
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table when files missing")
	}

	content := "Category,Amount,Date,Notes\nRent,1200,01/02/2025,\n"
	if err := os.WriteFile(filepath.Join(dir, "expenses.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s = NewFromFiles(dir)
	tbl, _ = s.Load(context.Background(), core.Expenses)
	if tbl.Len() != 1 || tbl.Rows[0][2] != "2025-02-01" {
		t.Fatalf("unexpected seeded rows: %v", tbl.Rows)
	}
}
