package sheets

import (
	"errors"
	"testing"
	"time"

	"ledger/internal/core"
)

func TestNextArchiveName(t *testing.T) {
	at := time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)
	taken := map[string]bool{}
	exists := func(id string) bool { return taken[id] }

	want := []string{"clients_March_2025", "clients_March_2025_2", "clients_March_2025_3"}
	for _, w := range want {
		got := NextArchiveName(core.Clients, at, exists)
		if got != w {
			t.Fatalf("NextArchiveName = %q, want %q", got, w)
		}
		taken[got] = true
	}
}

func TestParseArchiveName(t *testing.T) {
	cases := []struct {
		id    string
		year  int
		month time.Month
		seq   int
		ok    bool
	}{
		{"projects_January_2024", 2024, time.January, 1, true},
		{"projects_December_2023_4", 2023, time.December, 4, true},
		{"projects_Smarch_2023", 0, 0, 0, false},
		{"projects_March_20x3", 0, 0, 0, false},
		{"projects_March_2023_1", 0, 0, 0, false},
		{"clients_March_2023", 0, 0, 0, false},
		{"projects_backup", 0, 0, 0, false},
	}
	for _, tc := range cases {
		y, m, seq, ok := ParseArchiveName(core.Projects, tc.id)
		if ok != tc.ok || y != tc.year || m != tc.month || seq != tc.seq {
			t.Errorf("ParseArchiveName(%q) = %d %v %d %v", tc.id, y, m, seq, ok)
		}
	}
}

func TestSortArchivesNewestFirst(t *testing.T) {
	ids := []string{
		"expenses_March_2024",
		"expenses_backup_a",
		"expenses_January_2025",
		"expenses_March_2024_2",
		"expenses_December_2024",
		"expenses_backup_b",
	}
	infos := make([]ArchiveInfo, len(ids))
	for i, id := range ids {
		infos[i] = NewArchiveInfo(core.Expenses, id)
	}
	SortArchives(infos)

	want := []string{
		"expenses_January_2025",
		"expenses_December_2024",
		"expenses_March_2024_2",
		"expenses_March_2024",
		"expenses_backup_b",
		"expenses_backup_a",
	}
	for i, w := range want {
		if infos[i].ID != w {
			t.Fatalf("position %d = %q, want %q (all: %v)", i, infos[i].ID, w, infos)
		}
	}
}

func TestCheckVersion(t *testing.T) {
	if err := CheckVersion("v1", "v1"); err != nil {
		t.Fatalf("matching version: %v", err)
	}
	if err := CheckVersion("v1", AnyVersion); err != nil {
		t.Fatalf("any version: %v", err)
	}
	if err := CheckVersion("v2", "v1"); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := CheckVersion("v1", ""); !errors.Is(err, ErrVersionRequired) {
		t.Fatalf("expected version required, got %v", err)
	}
}

func TestValidArchiveID(t *testing.T) {
	for _, id := range []string{"", "../clients_March_2025", "clients/../x", "projects_March_2025"} {
		if err := ValidArchiveID(core.Clients, id); !errors.Is(err, ErrArchiveNotFound) {
			t.Errorf("ValidArchiveID(%q) = %v", id, err)
		}
	}
	if err := ValidArchiveID(core.Clients, "clients_March_2025_2"); err != nil {
		t.Fatal(err)
	}
}
