package csvfile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data"), filepath.Join(dir, "archive"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestLoadCreatesHeaderOnlyFile(t *testing.T) {
	s := newStore(t)
	tbl, err := s.Load(context.Background(), core.Projects)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 0 || tbl.Version == "" {
		t.Fatalf("unexpected table: %+v", tbl)
	}
	data, err := os.ReadFile(filepath.Join(s.DataDir(), "projects.csv"))
	if err != nil {
		t.Fatal(err)
	}
	want := "Client,Project,Employee,Budget,Payment 20%,Payment 40%,Payment 40% (2),Paid Status\n"
	if string(data) != want {
		t.Fatalf("file = %q, want %q", data, want)
	}
}

func TestUnknownTable(t *testing.T) {
	s := newStore(t)
	if _, err := s.Load(context.Background(), core.TableName("invoices")); !errors.Is(err, core.ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

func TestReplaceThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tbl, _ := s.Load(ctx, core.Expenses)

	rows := []core.Row{
		{"Rent", "1200.00", "2025-03-01", "office"},
		{"Software", "20", "", "note, with comma"},
	}
	written, err := s.Replace(ctx, core.Expenses, rows, tbl.Version)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := s.Load(ctx, core.Expenses)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded.Rows, rows) {
		t.Fatalf("rows = %v, want %v", loaded.Rows, rows)
	}
	if loaded.Version != written.Version {
		t.Fatalf("version changed between write and load")
	}
}

func TestReplaceRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tbl, _ := s.Load(ctx, core.Clients)
	if _, err := s.Append(ctx, core.Clients, core.Row{"Acme", "", "1", "0"}); err != nil {
		t.Fatal(err)
	}

	_, err := s.Replace(ctx, core.Clients, nil, tbl.Version)
	if !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	_, err = s.Replace(ctx, core.Clients, nil, "")
	if !errors.Is(err, ports.ErrVersionRequired) {
		t.Fatalf("expected version required, got %v", err)
	}
	after, _ := s.Load(ctx, core.Clients)
	if after.Len() != 1 {
		t.Fatalf("rejected write changed the table: %v", after.Rows)
	}
}

func TestUpdateRow(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tbl, _ := s.Append(ctx, core.Salaries, core.Row{"Ana", "Designer", "900", "No", "31/01/2025"})
	if got := tbl.Rows[0][4]; got != "2025-01-31" {
		t.Fatalf("date not normalized on append: %q", got)
	}

	tbl, err := s.UpdateRow(ctx, core.Salaries, 0, core.Row{"Ana", "Designer", "900", "Yes", "2025-01-31"}, tbl.Version)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Rows[0][3] != "Yes" {
		t.Fatalf("row not updated: %v", tbl.Rows[0])
	}
	if _, err := s.UpdateRow(ctx, core.Salaries, 5, core.Row{}, tbl.Version); !errors.Is(err, ports.ErrRowIndex) {
		t.Fatalf("expected ErrRowIndex, got %v", err)
	}
}

func TestArchiveSnapshotsAndResets(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	at := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

	_, _ = s.Append(ctx, core.Clients, core.Row{"Acme", "ceo@acme", "100", "50"})
	_, _ = s.Append(ctx, core.Clients, core.Row{"Beta", "", "200", "0"})
	before, err := os.ReadFile(filepath.Join(s.DataDir(), "clients.csv"))
	if err != nil {
		t.Fatal(err)
	}
	live, _ := s.Load(ctx, core.Clients)

	info, err := s.Archive(ctx, core.Clients, at)
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "clients_March_2025" || info.Rows != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}

	snap, err := os.ReadFile(filepath.Join(s.ArchiveDir(), "clients_March_2025.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(snap, before) {
		t.Fatalf("snapshot differs from live file:\n%q\n%q", snap, before)
	}

	after, _ := s.Load(ctx, core.Clients)
	if after.Len() != 0 || len(after.Columns) != 4 {
		t.Fatalf("live table not reset: %+v", after)
	}

	archived, err := s.ReadArchive(ctx, core.Clients, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(archived.Rows, live.Rows) {
		t.Fatalf("archive rows = %v, want %v", archived.Rows, live.Rows)
	}
}

func TestArchiveEmptyTableIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Archive(ctx, core.Expenses, time.Now())
	if !errors.Is(err, ports.ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}
	list, _ := s.ListArchives(ctx, core.Expenses)
	if len(list) != 0 {
		t.Fatalf("empty archive written: %v", list)
	}
}

func TestArchiveSameMonthGetsSuffixAndSortsFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	at := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := s.Append(ctx, core.Expenses, core.Row{"Misc", "1", "", ""}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Archive(ctx, core.Expenses, at); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = s.Append(ctx, core.Expenses, core.Row{"Misc", "1", "", ""})
	_, _ = s.Archive(ctx, core.Expenses, at.AddDate(0, -1, 0))

	list, err := s.ListArchives(ctx, core.Expenses)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	want := []string{"expenses_April_2025_2", "expenses_April_2025", "expenses_March_2025"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("archives = %v, want %v", ids, want)
	}

	other, _ := s.ListArchives(ctx, core.Clients)
	if len(other) != 0 {
		t.Fatalf("archives leaked across tables: %v", other)
	}
}

func TestReadArchiveNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.ReadArchive(context.Background(), core.Clients, "clients_May_1999")
	if !errors.Is(err, ports.ErrArchiveNotFound) {
		t.Fatalf("expected ErrArchiveNotFound, got %v", err)
	}
}

func TestLoadConformsForeignHeader(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(s.DataDir(), "clients.csv")
	if err := os.WriteFile(path, []byte("Client,Total Paid,Extra\nAcme,10,zz\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := s.Load(context.Background(), core.Clients)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Row{{"Acme", "", "10", ""}}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("rows = %v, want %v", tbl.Rows, want)
	}
}
