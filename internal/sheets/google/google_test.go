package google

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// fakeAPI keeps tabs in memory. Ranges are "'title'!A:Z", "'title'!A<n>:Z"
// or "title!A1". Update overwrites rows from the top and leaves the rest,
// like the real API.
type fakeAPI struct {
	tabs   map[string][][]any
	ids    map[string]int64
	nextID int64
	// onUpdate runs after every Update, used to simulate concurrent edits.
	onUpdate func(title string)
	// updateErr, when set, fails Update for the tabs it returns an error for.
	updateErr func(title string) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{tabs: map[string][][]any{}, ids: map[string]int64{}, nextID: 1}
}

func titleOf(rng string) string {
	title := rng
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		title = rng[:i]
	}
	if strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'") {
		title = strings.ReplaceAll(title[1:len(title)-1], "''", "'")
	}
	return title
}

// firstRow returns the 1-based start row of "A<n>:Z", or 1 for "A:Z".
func firstRow(rng string) int {
	i := strings.LastIndex(rng, "!")
	cells := strings.TrimPrefix(rng[i+1:], "A")
	n, err := strconv.Atoi(strings.TrimSuffix(cells, ":Z"))
	if err != nil {
		return 1
	}
	return n
}

func (f *fakeAPI) Values(_ context.Context, rng string) ([][]any, error) {
	v, ok := f.tabs[titleOf(rng)]
	if !ok {
		return nil, errors.New("unable to parse range")
	}
	return v, nil
}

func (f *fakeAPI) Update(_ context.Context, rng string, values [][]any) error {
	title := titleOf(rng)
	if _, ok := f.tabs[title]; !ok {
		return errors.New("unable to parse range")
	}
	if f.updateErr != nil {
		if err := f.updateErr(title); err != nil {
			return err
		}
	}
	tab := f.tabs[title]
	for len(tab) < len(values) {
		tab = append(tab, nil)
	}
	copy(tab, values)
	f.tabs[title] = tab
	if f.onUpdate != nil {
		f.onUpdate(title)
	}
	return nil
}

func (f *fakeAPI) Clear(_ context.Context, rng string) error {
	title := titleOf(rng)
	tab, ok := f.tabs[title]
	if !ok {
		return errors.New("unable to parse range")
	}
	if from := firstRow(rng) - 1; from < len(tab) {
		f.tabs[title] = tab[:from]
	}
	return nil
}

func (f *fakeAPI) Sheets(context.Context) ([]sheetRef, error) {
	var out []sheetRef
	for title, id := range f.ids {
		out = append(out, sheetRef{ID: id, Title: title})
	}
	return out, nil
}

func (f *fakeAPI) AddSheet(_ context.Context, title string) error {
	if _, ok := f.ids[title]; ok {
		return errors.New("sheet already exists")
	}
	f.ids[title] = f.nextID
	f.nextID++
	f.tabs[title] = nil
	return nil
}

func (f *fakeAPI) DeleteSheet(_ context.Context, id int64) error {
	for title, v := range f.ids {
		if v == id {
			delete(f.ids, title)
			delete(f.tabs, title)
			return nil
		}
	}
	return errors.New("no such sheet")
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	_, err := NewFromEnv(context.Background())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+string(os.PathSeparator)+"missing.json")
	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCreatesTab(t *testing.T) {
	api := newFakeAPI()
	c := New(api, "id")
	tbl, err := c.Load(context.Background(), core.Salaries)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 0 || tbl.Version == "" {
		t.Fatalf("unexpected table: %+v", tbl)
	}
	header := api.tabs["salaries"]
	if len(header) != 1 || header[0][0] != core.ColEmployee {
		t.Fatalf("header not written: %v", header)
	}
}

func TestWritesAndVersionChecks(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := New(api, "id")

	first, err := c.Append(ctx, core.Clients, core.Row{"Acme", "", "100", "0"})
	if err != nil {
		t.Fatal(err)
	}
	loaded, _ := c.Load(ctx, core.Clients)
	if loaded.Version != first.Version {
		t.Fatalf("version drifted: %s vs %s", loaded.Version, first.Version)
	}

	// An edit made directly in the spreadsheet changes the version.
	api.tabs["clients"] = append(api.tabs["clients"], []any{"Beta", "", "5", "0"})
	if _, err := c.Replace(ctx, core.Clients, nil, first.Version); !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	current, _ := c.Load(ctx, core.Clients)
	updated, err := c.UpdateRow(ctx, core.Clients, 1, core.Row{"Beta", "b@x", "5", "0"}, current.Version)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Rows[1][1] != "b@x" {
		t.Fatalf("row not updated: %v", updated.Rows)
	}
	if _, err := c.UpdateRow(ctx, core.Clients, 9, core.Row{}, ports.AnyVersion); !errors.Is(err, ports.ErrRowIndex) {
		t.Fatalf("expected ErrRowIndex, got %v", err)
	}
}

func TestArchiveTabs(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := New(api, "id")
	at := time.Date(2025, time.August, 31, 0, 0, 0, 0, time.UTC)

	if _, err := c.Archive(ctx, core.Expenses, at); !errors.Is(err, ports.ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Append(ctx, core.Expenses, core.Row{"Misc", "3", "", ""}); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Archive(ctx, core.Expenses, at); err != nil {
			t.Fatal(err)
		}
	}
	list, err := c.ListArchives(ctx, core.Expenses)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "expenses_August_2025_2" || list[1].ID != "expenses_August_2025" {
		t.Fatalf("unexpected archives: %+v", list)
	}
	live, _ := c.Load(ctx, core.Expenses)
	if live.Len() != 0 {
		t.Fatalf("live tab not reset: %v", live.Rows)
	}
	snap, err := c.ReadArchive(ctx, core.Expenses, "expenses_August_2025")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 1 || snap.Rows[0][0] != "Misc" {
		t.Fatalf("unexpected snapshot: %v", snap.Rows)
	}
	if _, err := c.ReadArchive(ctx, core.Expenses, "expenses_May_2020"); !errors.Is(err, ports.ErrArchiveNotFound) {
		t.Fatalf("expected ErrArchiveNotFound, got %v", err)
	}
}

func TestArchiveConflictDropsSnapshot(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := New(api, "id")
	if _, err := c.Append(ctx, core.Clients, core.Row{"Acme", "", "1", "0"}); err != nil {
		t.Fatal(err)
	}

	api.onUpdate = func(title string) {
		if strings.HasPrefix(title, "clients_") {
			api.tabs["clients"] = append(api.tabs["clients"], []any{"Late", "", "2", "0"})
		}
	}
	_, err := c.Archive(ctx, core.Clients, time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	api.onUpdate = nil

	if _, ok := api.tabs["clients_January_2025"]; ok {
		t.Fatal("stale snapshot tab left behind")
	}
	live, _ := c.Load(ctx, core.Clients)
	if live.Len() != 2 {
		t.Fatalf("live tab should keep both rows, got %v", live.Rows)
	}
}

func TestFailedWriteKeepsTab(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := New(api, "id")
	if _, err := c.Append(ctx, core.Clients, core.Row{"Acme", "", "100", "0"}); err != nil {
		t.Fatal(err)
	}
	before, _ := c.Load(ctx, core.Clients)

	quota := errors.New("quota exceeded")
	api.updateErr = func(title string) error {
		if title == "clients" {
			return quota
		}
		return nil
	}
	if _, err := c.Replace(ctx, core.Clients, []core.Row{{"Beta", "", "1", "0"}}, before.Version); !errors.Is(err, quota) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if _, err := c.UpdateRow(ctx, core.Clients, 0, core.Row{"Gamma", "", "2", "0"}, ports.AnyVersion); !errors.Is(err, quota) {
		t.Fatalf("expected quota error, got %v", err)
	}
	api.updateErr = nil

	after, err := c.Load(ctx, core.Clients)
	if err != nil {
		t.Fatal(err)
	}
	if after.Len() != 1 || after.Rows[0][0] != "Acme" || after.Version != before.Version {
		t.Fatalf("table changed by failed writes: %v", after.Rows)
	}
}

func TestShorterWriteClearsTrailingRows(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := New(api, "id")
	for _, name := range []string{"Acme", "Beta", "Gamma"} {
		if _, err := c.Append(ctx, core.Clients, core.Row{name, "", "1", "0"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Replace(ctx, core.Clients, []core.Row{{"Solo", "", "1", "0"}}, ports.AnyVersion); err != nil {
		t.Fatal(err)
	}
	if got := len(api.tabs["clients"]); got != 2 {
		t.Fatalf("tab rows = %d, want header plus one", got)
	}
	live, _ := c.Load(ctx, core.Clients)
	if live.Len() != 1 || live.Rows[0][0] != "Solo" {
		t.Fatalf("unexpected rows: %v", live.Rows)
	}
}

func TestFailedSnapshotWriteDropsTab(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := New(api, "id")
	at := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	if _, err := c.Append(ctx, core.Clients, core.Row{"Acme", "", "1", "0"}); err != nil {
		t.Fatal(err)
	}

	api.updateErr = func(title string) error {
		if strings.HasPrefix(title, "clients_") {
			return errors.New("quota exceeded")
		}
		return nil
	}
	if _, err := c.Archive(ctx, core.Clients, at); err == nil {
		t.Fatal("expected archive to fail")
	}
	api.updateErr = nil

	list, err := c.ListArchives(ctx, core.Clients)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("failed archive left tabs behind: %+v", list)
	}
	info, err := c.Archive(ctx, core.Clients, at)
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "clients_March_2025" {
		t.Fatalf("retry archive id = %q", info.ID)
	}
}

func TestAppendVersionMatchesLoad(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeAPI(), "id")

	tests := []struct {
		name string
		row  core.Row
	}{
		{"blank row", core.Row{"", "", "", ""}},
		{"padded cells", core.Row{" Acme ", "a@x ", "10", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appended, err := c.Append(ctx, core.Clients, tt.row)
			if err != nil {
				t.Fatal(err)
			}
			loaded, err := c.Load(ctx, core.Clients)
			if err != nil {
				t.Fatal(err)
			}
			if appended.Version != loaded.Version || appended.Len() != loaded.Len() {
				t.Fatalf("append gave %s (%d rows), load gives %s (%d rows)",
					appended.Version, appended.Len(), loaded.Version, loaded.Len())
			}
			if _, err := c.Replace(ctx, core.Clients, loaded.Rows, appended.Version); err != nil {
				t.Fatalf("replace with appended version: %v", err)
			}
		})
	}
}

func TestResetReturnsEmptyRows(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeAPI(), "id")
	if _, err := c.Append(ctx, core.Expenses, core.Row{"Misc", "3", "", ""}); err != nil {
		t.Fatal(err)
	}
	tbl, err := c.Replace(ctx, core.Expenses, nil, ports.AnyVersion)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Rows == nil {
		t.Fatal("Rows should be an empty slice, not nil")
	}
}
