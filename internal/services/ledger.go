// Package services orchestrates the ledger operations over a table store.
//
// Writes follow the same order everywhere: persist first, then notify
// subscribers and mirror artifacts. Notification and mirroring failures are
// logged and never fail the operation.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ledger/internal/blob"
	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/invoice"
	applog "ledger/internal/log"
	ports "ledger/internal/sheets"

	"golang.org/x/sync/errgroup"
)

// Notifier announces table writes. *amqp.Client implements it.
type Notifier interface {
	PublishTableChanged(ctx context.Context, table, version string) error
}

// Options configures a Ledger. Zero values disable the optional parts.
type Options struct {
	Notifier   Notifier
	Blob       blob.Store
	Renderer   *invoice.Renderer
	InvoiceDir string
	Now        func() time.Time
}

type Ledger struct {
	store      ports.Store
	notifier   Notifier
	blob       blob.Store
	renderer   *invoice.Renderer
	invoiceDir string
	now        func() time.Time
}

func NewLedger(store ports.Store, opts Options) *Ledger {
	l := &Ledger{
		store:      store,
		notifier:   opts.Notifier,
		blob:       opts.Blob,
		renderer:   opts.Renderer,
		invoiceDir: opts.InvoiceDir,
		now:        opts.Now,
	}
	if l.blob == nil {
		l.blob = blob.Nop{}
	}
	if l.renderer == nil {
		l.renderer = invoice.NewRenderer("")
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Store exposes the underlying store, e.g. for readiness checks.
func (l *Ledger) Store() ports.Store { return l.store }

func (l *Ledger) Load(ctx context.Context, t core.TableName) (core.Table, error) {
	return l.store.Load(ctx, t)
}

// LoadAll loads every table concurrently.
func (l *Ledger) LoadAll(ctx context.Context) (map[core.TableName]core.Table, error) {
	results := make([]core.Table, len(core.AllTables))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range core.AllTables {
		g.Go(func() error {
			tbl, err := l.store.Load(gctx, t)
			if err != nil {
				return fmt.Errorf("load %s: %w", t, err)
			}
			results[i] = tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[core.TableName]core.Table, len(results))
	for i, t := range core.AllTables {
		out[t] = results[i]
	}
	return out, nil
}

func (l *Ledger) AddClient(ctx context.Context, c core.Client) (core.Table, error) {
	if err := c.Validate(); err != nil {
		return core.Table{}, err
	}
	return l.append(ctx, core.Clients, c.Row())
}

// AddProject splits budget into the three milestones before appending.
func (l *Ledger) AddProject(ctx context.Context, client, name, employee string, budget core.Money) (core.Table, error) {
	p := core.NewProject(client, name, employee, budget)
	if err := p.Validate(); err != nil {
		return core.Table{}, err
	}
	return l.append(ctx, core.Projects, p.Row())
}

func (l *Ledger) AddSalary(ctx context.Context, s core.Salary) (core.Table, error) {
	if err := s.Validate(); err != nil {
		return core.Table{}, err
	}
	return l.append(ctx, core.Salaries, s.Row())
}

func (l *Ledger) AddExpense(ctx context.Context, e core.Expense) (core.Table, error) {
	if err := e.Validate(); err != nil {
		return core.Table{}, err
	}
	return l.append(ctx, core.Expenses, e.Row())
}

func (l *Ledger) AddMonthlyPlan(ctx context.Context, m core.MonthlyPlan) (core.Table, error) {
	if err := m.Validate(); err != nil {
		return core.Table{}, err
	}
	return l.append(ctx, core.Monthly, m.Row())
}

// AppendRow appends an untyped row after checking it with the rules of the
// table's record type. A project row whose three milestone cells are all
// blank gets its budget split like AddProject.
func (l *Ledger) AppendRow(ctx context.Context, t core.TableName, row core.Row) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	if t == core.Projects {
		row = splitIfBlank(row)
	}
	if err := core.ValidateRow(t, row); err != nil {
		return core.Table{}, fmt.Errorf("append to %s: %w", t, err)
	}
	return l.append(ctx, t, row)
}

func (l *Ledger) append(ctx context.Context, t core.TableName, row core.Row) (core.Table, error) {
	tbl, err := l.store.Append(ctx, t, row)
	if err != nil {
		return core.Table{}, fmt.Errorf("append to %s: %w", t, err)
	}
	l.written(ctx, applog.OpAppend, tbl)
	return tbl, nil
}

// ReplaceTable overwrites t. Cells are normalized and Paid Status is
// recomputed before writing.
func (l *Ledger) ReplaceTable(ctx context.Context, t core.TableName, rows []core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	tbl, err := l.store.Replace(ctx, t, core.NormalizeRows(t, rows), expectedVersion)
	if err != nil {
		return core.Table{}, fmt.Errorf("replace %s: %w", t, err)
	}
	l.written(ctx, applog.OpReplace, tbl)
	return tbl, nil
}

func (l *Ledger) UpdateRow(ctx context.Context, t core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	tbl, err := l.store.UpdateRow(ctx, t, index, core.NormalizeRow(t, row), expectedVersion)
	if err != nil {
		return core.Table{}, fmt.Errorf("update %s row %d: %w", t, index, err)
	}
	l.written(ctx, applog.OpUpdate, tbl)
	return tbl, nil
}

// MarkMilestonePaid zeroes one milestone of the project at index. An empty
// expectedVersion means the version read by this call.
func (l *Ledger) MarkMilestonePaid(ctx context.Context, index int, slot core.MilestoneSlot, expectedVersion string) (core.Table, error) {
	tbl, err := l.store.Load(ctx, core.Projects)
	if err != nil {
		return core.Table{}, err
	}
	if index < 0 || index >= tbl.Len() {
		return core.Table{}, fmt.Errorf("%w: %d", ports.ErrRowIndex, index)
	}
	if expectedVersion == "" {
		expectedVersion = tbl.Version
	}
	p := core.ProjectFromRow(tbl.Rows[index])
	if err := p.MarkPaid(slot); err != nil {
		return core.Table{}, err
	}
	return l.UpdateRow(ctx, core.Projects, index, p.Row(), expectedVersion)
}

func (l *Ledger) Summary(ctx context.Context) (core.Summary, error) {
	tables, err := l.LoadAll(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(core.SnapshotOf(tables)), nil
}

// Archive snapshots one table and resets it.
func (l *Ledger) Archive(ctx context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error) {
	info, err := l.store.Archive(ctx, t, at)
	if err != nil {
		return ports.ArchiveInfo{}, err
	}
	if live, err := l.store.Load(ctx, t); err == nil {
		l.written(ctx, applog.OpArchive, live)
	}
	l.mirrorArchive(ctx, t, info.ID)
	return info, nil
}

// ArchiveAll archives every table in fixed order. One table failing never
// stops the others; check the report's Err.
func (l *Ledger) ArchiveAll(ctx context.Context, at time.Time) ArchiveReport {
	report := ArchiveReport{At: at}
	sl := applog.NewStructuredLogger(logger(ctx))
	for _, t := range core.AllTables {
		res := TableResult{Table: t}
		info, err := l.Archive(ctx, t, at)
		switch {
		case err == nil:
			res.Outcome = OutcomeArchived
			res.Archive = info
		case errors.Is(err, ports.ErrEmptyTable):
			res.Outcome = OutcomeSkippedEmpty
			logger(ctx).WarnContext(ctx, "Skipping archive of empty table",
				applog.FieldOperation, applog.OpArchive,
				applog.FieldTable, t)
		default:
			res.Outcome = OutcomeFailed
			res.Err = err
			sl.LogError(ctx, "Archive failed", err, applog.OpArchive, applog.NewFields().WithTable(string(t), "", 0))
		}
		report.Results = append(report.Results, res)
	}
	logger(ctx).InfoContext(ctx, "Archive run complete",
		"archived", report.Count(OutcomeArchived),
		"skipped_empty", report.Count(OutcomeSkippedEmpty),
		"failed", report.Count(OutcomeFailed))
	return report
}

func (l *Ledger) ListArchives(ctx context.Context, t core.TableName) ([]ports.ArchiveInfo, error) {
	return l.store.ListArchives(ctx, t)
}

func (l *Ledger) ReadArchive(ctx context.Context, t core.TableName, id string) (core.Table, error) {
	return l.store.ReadArchive(ctx, t, id)
}

// GenerateProjectInvoice invoices the first unpaid milestone of the
// project at index. The PDF is saved under the invoice directory when set.
func (l *Ledger) GenerateProjectInvoice(ctx context.Context, index int) (invoice.Invoice, error) {
	projects, err := l.store.Load(ctx, core.Projects)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if index < 0 || index >= projects.Len() {
		return invoice.Invoice{}, fmt.Errorf("%w: %d", ports.ErrRowIndex, index)
	}
	p := core.ProjectFromRow(projects.Rows[index])

	clients, err := l.store.Load(ctx, core.Clients)
	if err != nil {
		return invoice.Invoice{}, err
	}
	var client core.Client
	for _, r := range clients.Rows {
		if c := core.ClientFromRow(r); strings.EqualFold(c.Name, p.Client) {
			client = c
			break
		}
	}

	inv, err := l.renderer.RenderProject(p, client, l.now())
	if err != nil {
		return invoice.Invoice{}, err
	}
	l.storeInvoice(ctx, inv)
	return inv, nil
}

func (l *Ledger) GenerateMonthlyInvoice(ctx context.Context, index int) (invoice.Invoice, error) {
	plans, err := l.store.Load(ctx, core.Monthly)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if index < 0 || index >= plans.Len() {
		return invoice.Invoice{}, fmt.Errorf("%w: %d", ports.ErrRowIndex, index)
	}
	inv, err := l.renderer.RenderMonthly(core.MonthlyPlanFromRow(plans.Rows[index]), l.now())
	if err != nil {
		return invoice.Invoice{}, err
	}
	l.storeInvoice(ctx, inv)
	return inv, nil
}

func (l *Ledger) ExportWorkbook(ctx context.Context) ([]byte, error) {
	tables, err := l.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return export.Workbook(tables)
}

// ImportWorkbook replaces every table present in the workbook.
func (l *Ledger) ImportWorkbook(ctx context.Context, r io.Reader) ([]core.TableName, error) {
	tables, err := export.ImportWorkbook(r)
	if err != nil {
		return nil, err
	}
	var replaced []core.TableName
	var errs []error
	for _, t := range core.AllTables {
		rows, ok := tables[t]
		if !ok {
			continue
		}
		if _, err := l.ReplaceTable(ctx, t, rows, ports.AnyVersion); err != nil {
			errs = append(errs, err)
			continue
		}
		replaced = append(replaced, t)
	}
	return replaced, errors.Join(errs...)
}

// Close releases the store and notifier when they hold resources.
func (l *Ledger) Close() error {
	var errs []error
	if c, ok := l.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := l.notifier.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notifier: %w", err))
		}
	}
	return errors.Join(errs...)
}

func splitIfBlank(row core.Row) core.Row {
	row = core.ConformRow(core.Projects, row)
	for _, slot := range core.MilestoneOrder {
		if strings.TrimSpace(row[core.Projects.ColumnIndex(slot.Column())]) != "" {
			return row
		}
	}
	p := core.ProjectFromRow(row)
	return core.NewProject(p.Client, p.Name, p.Employee, p.Budget).Row()
}

func logger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentLedger)
}

// written logs a successful write and announces it.
func (l *Ledger) written(ctx context.Context, op string, tbl core.Table) {
	applog.NewStructuredLogger(logger(ctx)).LogTableWrite(ctx, op, string(tbl.Name), tbl.Version, tbl.Len())
	if l.notifier == nil {
		return
	}
	if err := l.notifier.PublishTableChanged(ctx, string(tbl.Name), tbl.Version); err != nil {
		logger(ctx).WarnContext(ctx, "Failed to publish table change",
			applog.FieldTable, tbl.Name,
			applog.FieldVersion, tbl.Version,
			applog.FieldError, err)
	}
}

func (l *Ledger) mirrorArchive(ctx context.Context, t core.TableName, id string) {
	if _, ok := l.blob.(blob.Nop); ok {
		return
	}
	snap, err := l.store.ReadArchive(ctx, t, id)
	if err != nil {
		logger(ctx).WarnContext(ctx, "Could not read archive for mirroring", applog.FieldArchive, id, applog.FieldError, err)
		return
	}
	data, err := ports.EncodeTable(t, snap.Rows)
	if err != nil {
		logger(ctx).WarnContext(ctx, "Could not encode archive for mirroring", applog.FieldArchive, id, applog.FieldError, err)
		return
	}
	if err := l.blob.Put(ctx, blob.ArchiveKey(string(t), id), data, blob.ContentTypeCSV); err != nil {
		logger(ctx).WarnContext(ctx, "Archive mirror failed", applog.FieldOperation, applog.OpMirror, applog.FieldArchive, id, applog.FieldError, err)
	}
}

func (l *Ledger) storeInvoice(ctx context.Context, inv invoice.Invoice) {
	if l.invoiceDir != "" {
		path, err := invoice.Save(l.invoiceDir, inv)
		if err != nil {
			logger(ctx).WarnContext(ctx, "Could not save invoice", applog.FieldFile, inv.Filename, applog.FieldError, err)
		} else {
			logger(ctx).InfoContext(ctx, "Invoice saved", applog.FieldPath, path, "amount", inv.AmountDue.String())
		}
	}
	if err := l.blob.Put(ctx, blob.InvoiceKey(inv.Filename), inv.Data, blob.ContentTypePDF); err != nil {
		logger(ctx).WarnContext(ctx, "Invoice mirror failed", applog.FieldOperation, applog.OpMirror, applog.FieldFile, inv.Filename, applog.FieldError, err)
	}
}
