package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ledger/internal/blob"
	"ledger/internal/core"
	"ledger/internal/invoice"
	applog "ledger/internal/log"
	ports "ledger/internal/sheets"
	"ledger/internal/sheets/memory"
)

var errArchiveBoom = errors.New("archive boom")

type failingArchiveStore struct {
	*memory.Store
	fail core.TableName
}

func (s *failingArchiveStore) Archive(ctx context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error) {
	if t == s.fail {
		return ports.ArchiveInfo{}, errArchiveBoom
	}
	return s.Store.Archive(ctx, t, at)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *fakeNotifier) PublishTableChanged(_ context.Context, table, version string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, table+"@"+version)
	return n.err
}

type fakeBlob struct {
	keys []string
	err  error
}

func (b *fakeBlob) Put(_ context.Context, key string, _ []byte, _ string) error {
	b.keys = append(b.keys, key)
	return b.err
}

var fixedNow = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

func newTestLedger(opts Options) (*Ledger, *memory.Store) {
	store := memory.New()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewLedger(store, opts), store
}

func TestAddProjectSplitsBudget(t *testing.T) {
	l, _ := newTestLedger(Options{})
	tbl, err := l.AddProject(context.Background(), "Acme", "Site", "Bo", core.Dollars(1000))
	if err != nil {
		t.Fatal(err)
	}
	want := core.Row{"Acme", "Site", "Bo", "1000.00", "200.00", "400.00", "400.00", core.StatusNotPaid}
	if got := tbl.Rows[0]; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("row = %v, want %v", got, want)
	}

	if _, err := l.AddProject(context.Background(), "", "Site", "Bo", core.Dollars(1)); !errors.Is(err, core.ErrEmptyField) {
		t.Fatalf("expected ErrEmptyField, got %v", err)
	}
}

func TestWritesNotifyAfterPersisting(t *testing.T) {
	n := &fakeNotifier{err: errors.New("broker down")}
	l, store := newTestLedger(Options{Notifier: n})
	ctx := context.Background()

	tbl, err := l.AddClient(ctx, core.Client{Name: "Acme", TotalPaid: core.Dollars(10)})
	if err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
	live, _ := store.Load(ctx, core.Clients)
	if live.Len() != 1 {
		t.Fatal("row not persisted")
	}
	if len(n.events) != 1 || n.events[0] != "clients@"+tbl.Version {
		t.Fatalf("events = %v", n.events)
	}

	if _, err := l.ReplaceTable(ctx, core.Clients, nil, "stale"); !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(n.events) != 1 {
		t.Fatal("failed write must not notify")
	}
}

func TestMarkMilestonePaid(t *testing.T) {
	l, _ := newTestLedger(Options{})
	ctx := context.Background()
	_, _ = l.AddProject(ctx, "Acme", "Site", "Bo", core.Dollars(500))

	tbl, err := l.MarkMilestonePaid(ctx, 0, core.Milestone20, "")
	if err != nil {
		t.Fatal(err)
	}
	p := core.ProjectFromRow(tbl.Rows[0])
	if !p.Milestones[0].IsZero() || p.PaidStatus() != core.StatusNotPaid {
		t.Fatalf("unexpected project %+v", p)
	}
	for _, s := range []core.MilestoneSlot{core.Milestone40, core.Milestone40b} {
		tbl, err = l.MarkMilestonePaid(ctx, 0, s, tbl.Version)
		if err != nil {
			t.Fatal(err)
		}
	}
	if got := tbl.Get(0, core.ColPaidStatus); got != core.StatusPaid {
		t.Fatalf("Paid Status = %q", got)
	}

	if _, err := l.MarkMilestonePaid(ctx, 3, core.Milestone20, ""); !errors.Is(err, ports.ErrRowIndex) {
		t.Fatalf("expected ErrRowIndex, got %v", err)
	}
	if _, err := l.MarkMilestonePaid(ctx, 0, core.Milestone20, "old"); !errors.Is(err, ports.ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	l, _ := newTestLedger(Options{})
	ctx := context.Background()
	_, _ = l.AddClient(ctx, core.Client{Name: "A", TotalPaid: core.Dollars(300), TotalDue: core.Dollars(50)})
	_, _ = l.AddSalary(ctx, core.Salary{Employee: "Ana", Amount: core.Dollars(80), Paid: core.FlagYes})
	_, _ = l.AddSalary(ctx, core.Salary{Employee: "Ben", Amount: core.Dollars(100), Paid: core.FlagNo})
	_, _ = l.AddExpense(ctx, core.Expense{Category: "Rent", Amount: core.Dollars(200)})

	s, err := l.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Income != core.Dollars(300) || s.TotalExpenses != core.Dollars(280) || s.MoneyLeft != core.Dollars(20) {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestArchiveAllContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingArchiveStore{Store: memory.New(), fail: core.Projects}
	b := &fakeBlob{}
	l := NewLedger(store, Options{Blob: b})

	_, _ = l.AddClient(ctx, core.Client{Name: "Acme"})
	_, _ = l.AddProject(ctx, "Acme", "Site", "Bo", core.Dollars(10))
	_, _ = l.AddExpense(ctx, core.Expense{Category: "Rent", Amount: core.Dollars(1)})

	report := l.ArchiveAll(ctx, fixedNow)
	got := map[core.TableName]Outcome{}
	for _, r := range report.Results {
		got[r.Table] = r.Outcome
	}
	want := map[core.TableName]Outcome{
		core.Clients:  OutcomeArchived,
		core.Projects: OutcomeFailed,
		core.Salaries: OutcomeSkippedEmpty,
		core.Expenses: OutcomeArchived,
		core.Monthly:  OutcomeSkippedEmpty,
	}
	for tn, o := range want {
		if got[tn] != o {
			t.Errorf("%s: outcome %q, want %q", tn, got[tn], o)
		}
	}
	if len(report.Results) != len(core.AllTables) || report.Results[0].Table != core.Clients {
		t.Fatalf("results not in fixed order: %+v", report.Results)
	}
	if err := report.Err(); !errors.Is(err, errArchiveBoom) {
		t.Fatalf("Err() = %v", err)
	}
	if text := report.WithErrorText().Results[1].Error; !strings.Contains(text, "archive boom") {
		t.Fatalf("error text = %q", text)
	}

	wantKeys := []string{
		blob.ArchiveKey("clients", "clients_March_2025"),
		blob.ArchiveKey("expenses", "expenses_March_2025"),
	}
	if strings.Join(b.keys, ",") != strings.Join(wantKeys, ",") {
		t.Fatalf("mirrored %v, want %v", b.keys, wantKeys)
	}
}

func captureLogs(ctx context.Context) (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Format: "json", Output: &buf})
	return applog.WithLogger(ctx, logger), &buf
}

func TestArchiveAllWarnsOncePerEmptyTable(t *testing.T) {
	ctx, logs := captureLogs(context.Background())
	l, _ := newTestLedger(Options{})
	_, _ = l.AddClient(ctx, core.Client{Name: "Acme"})
	logs.Reset()

	report := l.ArchiveAll(ctx, fixedNow)
	if n := report.Count(OutcomeSkippedEmpty); n != 4 {
		t.Fatalf("skipped %d tables, want 4", n)
	}
	out := logs.String()
	if got := strings.Count(out, "Skipping archive of empty table"); got != 4 {
		t.Fatalf("got %d skip warnings, want 4:\n%s", got, out)
	}
	for _, tn := range []core.TableName{core.Projects, core.Salaries, core.Expenses, core.Monthly} {
		if !strings.Contains(out, `"table":"`+string(tn)+`"`) {
			t.Errorf("no warning names %s", tn)
		}
	}
	if !strings.Contains(out, `"component":"ledger"`) {
		t.Errorf("warnings not tagged with the ledger component:\n%s", out)
	}
}

func TestWritesAreLogged(t *testing.T) {
	ctx, logs := captureLogs(context.Background())
	l, _ := newTestLedger(Options{})

	tbl, err := l.AppendRow(ctx, core.Expenses, core.Row{"Rent", "1200"})
	if err != nil {
		t.Fatal(err)
	}
	out := logs.String()
	for _, want := range []string{`"msg":"Table written"`, `"operation":"append"`, `"table":"expenses"`, `"version":"` + tbl.Version + `"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}

	logs.Reset()
	store := &failingArchiveStore{Store: memory.New(), fail: core.Clients}
	failing := NewLedger(store, Options{Now: func() time.Time { return fixedNow }})
	_, _ = failing.AddClient(ctx, core.Client{Name: "Acme"})
	failing.ArchiveAll(ctx, fixedNow)
	if out := logs.String(); !strings.Contains(out, `"msg":"Archive failed"`) || !strings.Contains(out, "archive boom") {
		t.Errorf("archive failure not logged:\n%s", out)
	}
}

func TestAppendRowValidates(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(Options{})
	tests := []struct {
		name  string
		table core.TableName
		row   core.Row
		want  error
	}{
		{"client without name", core.Clients, core.Row{"", "x"}, core.ErrEmptyField},
		{"unparsable money", core.Clients, core.Row{"Acme", "", "lots"}, core.ErrInvalidAmount},
		{"negative salary", core.Salaries, core.Row{"Ada", "Dev", "-5"}, core.ErrInvalidAmount},
		{"negative milestone", core.Projects, core.Row{"Acme", "Site", "Bo", "10", "-1", "5", "6"}, core.ErrInvalidAmount},
		{"unknown table", core.TableName("invoices"), core.Row{"x"}, core.ErrUnknownTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.AppendRow(ctx, tt.table, tt.row); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	for _, tn := range core.AllTables {
		if tbl, _ := store.Load(ctx, tn); tbl.Len() != 0 {
			t.Errorf("%s holds rejected rows: %v", tn, tbl.Rows)
		}
	}
}

func TestGenerateInvoices(t *testing.T) {
	dir := t.TempDir()
	b := &fakeBlob{}
	r := invoice.NewRenderer("Studio")
	l, _ := newTestLedger(Options{Blob: b, Renderer: r, InvoiceDir: dir})
	ctx := context.Background()

	_, _ = l.AddClient(ctx, core.Client{Name: "Acme", Contact: "ceo@acme"})
	_, _ = l.AddProject(ctx, "acme", "Site", "Bo", core.Dollars(1000))
	_, _ = l.AddMonthlyPlan(ctx, core.MonthlyPlan{Client: "Acme", Amount: core.Dollars(50), Paid: core.FlagNo, Month: "March 2025"})
	_, _ = l.AddMonthlyPlan(ctx, core.MonthlyPlan{Client: "Acme", Amount: core.Dollars(50), Paid: core.FlagYes, Month: "April 2025"})

	inv, err := l.GenerateProjectInvoice(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Filename != "Invoice_acme_20250314.pdf" || inv.AmountDue != core.Dollars(200) {
		t.Fatalf("unexpected invoice %s %v", inv.Filename, inv.AmountDue)
	}
	data, err := os.ReadFile(filepath.Join(dir, inv.Filename))
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("invoice not saved: %v", err)
	}

	monthly, err := l.GenerateMonthlyInvoice(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if monthly.Filename != "MonthlyInvoice_Acme_March_2025.pdf" {
		t.Fatalf("monthly filename = %q", monthly.Filename)
	}
	if _, err := l.GenerateMonthlyInvoice(ctx, 1); !errors.Is(err, invoice.ErrNothingDue) {
		t.Fatalf("expected ErrNothingDue, got %v", err)
	}
	if _, err := l.GenerateProjectInvoice(ctx, 7); !errors.Is(err, ports.ErrRowIndex) {
		t.Fatalf("expected ErrRowIndex, got %v", err)
	}
	if len(b.keys) != 2 || b.keys[0] != blob.InvoiceKey(inv.Filename) {
		t.Fatalf("mirrored %v", b.keys)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestLedger(Options{})
	_, _ = src.AddExpense(ctx, core.Expense{Category: "Rent", Amount: core.Dollars(1200), Date: core.NewDate(2025, 3, 1)})
	_, _ = src.AddClient(ctx, core.Client{Name: "Acme", TotalPaid: core.Dollars(5)})

	data, err := src.ExportWorkbook(ctx)
	if err != nil {
		t.Fatal(err)
	}

	dst, store := newTestLedger(Options{})
	replaced, err := dst.ImportWorkbook(ctx, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(replaced) != len(core.AllTables) {
		t.Fatalf("replaced %v", replaced)
	}
	exp, _ := store.Load(ctx, core.Expenses)
	if exp.Len() != 1 || exp.Rows[0][1] != "1200.00" || exp.Rows[0][2] != "2025-03-01" {
		t.Fatalf("imported expenses = %v", exp.Rows)
	}
}

func TestClose(t *testing.T) {
	l, _ := newTestLedger(Options{})
	if err := l.Close(); err != nil {
		t.Fatalf("Close with nothing to release: %v", err)
	}
}
