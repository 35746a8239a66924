package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// sheetRef identifies one tab of the spreadsheet.
type sheetRef struct {
	ID    int64
	Title string
}

// sheetsAPI is the subset of the Sheets API the store relies on.
type sheetsAPI interface {
	Values(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, values [][]any) error
	Clear(ctx context.Context, rng string) error
	Sheets(ctx context.Context) ([]sheetRef, error)
	AddSheet(ctx context.Context, title string) error
	DeleteSheet(ctx context.Context, id int64) error
}

// Client stores each table in a tab named after the table. Archives are
// extra tabs named like the archive files. Versions are content hashes, so
// edits made directly in the spreadsheet are detected as conflicts too.
type Client struct {
	api           sheetsAPI
	spreadsheetID string
	mu            sync.Mutex
}

var _ ports.Store = (*Client)(nil)

// Credentials selects the spreadsheet and the service account used to
// reach it. Inline JSON wins over the file.
type Credentials struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// NewFromEnv creates a Sheets client using a service account.
// Required: GOOGLE_SPREADSHEET_ID.
func NewFromEnv(ctx context.Context) (*Client, error) {
	creds := Credentials{
		SpreadsheetID:      os.Getenv("GOOGLE_SPREADSHEET_ID"),
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}
	if strings.TrimSpace(creds.ServiceAccountJSON) == "" && strings.TrimSpace(creds.ServiceAccountFile) == "" {
		creds.ServiceAccountFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	return Open(ctx, creds)
}

// Open creates a Sheets client from explicit credentials.
func Open(ctx context.Context, creds Credentials) (*Client, error) {
	spreadsheetID := strings.TrimSpace(creds.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(&serviceAPI{svc: svc, spreadsheetID: spreadsheetID}, spreadsheetID), nil
}

func New(api sheetsAPI, spreadsheetID string) *Client {
	return &Client{api: api, spreadsheetID: spreadsheetID}
}

func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(creds.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(creds.ServiceAccountFile)

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", serviceAccountFile, "size", len(b))
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

func (c *Client) Load(ctx context.Context, t core.TableName) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx, t)
}

func (c *Client) Append(ctx context.Context, t core.TableName, row core.Row) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.loadLocked(ctx, t)
	if err != nil {
		return core.Table{}, err
	}
	rows := append(current.Rows, core.NormalizeRow(t, row))
	return c.writeLocked(ctx, t, string(t), rows)
}

func (c *Client) Replace(ctx context.Context, t core.TableName, rows []core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.loadLocked(ctx, t)
	if err != nil {
		return core.Table{}, err
	}
	if err := ports.CheckVersion(current.Version, expectedVersion); err != nil {
		return core.Table{}, err
	}
	return c.writeLocked(ctx, t, string(t), core.NormalizeRows(t, rows))
}

func (c *Client) UpdateRow(ctx context.Context, t core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.loadLocked(ctx, t)
	if err != nil {
		return core.Table{}, err
	}
	if err := ports.CheckVersion(current.Version, expectedVersion); err != nil {
		return core.Table{}, err
	}
	if index < 0 || index >= current.Len() {
		return core.Table{}, fmt.Errorf("%w: %d", ports.ErrRowIndex, index)
	}
	current.Rows[index] = core.NormalizeRow(t, row)
	return c.writeLocked(ctx, t, string(t), current.Rows)
}

// Archive copies the live tab to a new archive tab, then resets the live
// tab. If the live tab changed while the copy was written, the copy is
// deleted and ErrVersionConflict is returned.
func (c *Client) Archive(ctx context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return ports.ArchiveInfo{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.loadLocked(ctx, t)
	if err != nil {
		return ports.ArchiveInfo{}, err
	}
	if current.Len() == 0 {
		return ports.ArchiveInfo{}, fmt.Errorf("%s: %w", t, ports.ErrEmptyTable)
	}

	refs, err := c.api.Sheets(ctx)
	if err != nil {
		return ports.ArchiveInfo{}, fmt.Errorf("list sheets: %w", err)
	}
	id := ports.NextArchiveName(t, at, func(id string) bool {
		_, ok := findSheet(refs, id)
		return ok
	})
	if err := c.api.AddSheet(ctx, id); err != nil {
		return ports.ArchiveInfo{}, fmt.Errorf("add archive sheet %s: %w", id, err)
	}
	if _, err := c.writeLocked(ctx, t, id, current.Rows); err != nil {
		c.dropSheet(ctx, id)
		return ports.ArchiveInfo{}, err
	}

	latest, err := c.loadLocked(ctx, t)
	if err != nil {
		return ports.ArchiveInfo{}, err
	}
	if latest.Version != current.Version {
		c.dropSheet(ctx, id)
		return ports.ArchiveInfo{}, fmt.Errorf("archive %s: %w", t, ports.ErrVersionConflict)
	}
	if _, err := c.writeLocked(ctx, t, string(t), nil); err != nil {
		return ports.ArchiveInfo{}, fmt.Errorf("reset %s: %w", t, err)
	}

	info := ports.NewArchiveInfo(t, id)
	info.Rows = current.Len()
	info.CreatedAt = at
	slog.InfoContext(ctx, "Sheet archived", "table", t, "archive", id, "rows", info.Rows)
	return info, nil
}

func (c *Client) ListArchives(ctx context.Context, t core.TableName) ([]ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return nil, err
	}
	refs, err := c.api.Sheets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	var out []ports.ArchiveInfo
	for _, ref := range refs {
		if ports.IsArchiveOf(t, ref.Title) {
			out = append(out, ports.NewArchiveInfo(t, ref.Title))
		}
	}
	ports.SortArchives(out)
	return out, nil
}

func (c *Client) ReadArchive(ctx context.Context, t core.TableName, id string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	if err := ports.ValidArchiveID(t, id); err != nil {
		return core.Table{}, err
	}
	refs, err := c.api.Sheets(ctx)
	if err != nil {
		return core.Table{}, fmt.Errorf("list sheets: %w", err)
	}
	if _, ok := findSheet(refs, id); !ok {
		return core.Table{}, fmt.Errorf("%w: %s", ports.ErrArchiveNotFound, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(ctx, t, id)
}

func (c *Client) loadLocked(ctx context.Context, t core.TableName) (core.Table, error) {
	refs, err := c.api.Sheets(ctx)
	if err != nil {
		return core.Table{}, fmt.Errorf("list sheets: %w", err)
	}
	if _, ok := findSheet(refs, string(t)); !ok {
		if err := c.api.AddSheet(ctx, string(t)); err != nil {
			return core.Table{}, fmt.Errorf("add sheet %s: %w", t, err)
		}
		return c.writeLocked(ctx, t, string(t), nil)
	}
	return c.readLocked(ctx, t, string(t))
}

func (c *Client) readLocked(ctx context.Context, t core.TableName, title string) (core.Table, error) {
	values, err := c.api.Values(ctx, sheetRange(title))
	if err != nil {
		return core.Table{}, fmt.Errorf("read %s: %w", title, err)
	}
	tbl := core.NewTable(t)
	tbl.Rows = rowsFromValues(t, values)
	tbl.Version, err = tableVersion(t, tbl.Rows)
	if err != nil {
		return core.Table{}, err
	}
	return tbl, nil
}

// writeLocked overwrites the tab with header plus rows. The new values are
// written over the old ones first and only the rows past the end are
// cleared afterwards, so a failed write leaves the previous content in
// place. Cells are trimmed and all-blank rows dropped, the same way reads
// do, so the returned version matches the next Load.
func (c *Client) writeLocked(ctx context.Context, t core.TableName, title string, rows []core.Row) (core.Table, error) {
	rows = cleanRows(rows)
	values := valuesFromRows(t, rows)
	if err := c.api.Update(ctx, title+"!A1", values); err != nil {
		return core.Table{}, fmt.Errorf("write %s: %w", title, err)
	}
	if err := c.api.Clear(ctx, tailRange(title, len(values)+1)); err != nil {
		return core.Table{}, fmt.Errorf("clear trailing rows of %s: %w", title, err)
	}
	tbl := core.NewTable(t)
	tbl.Rows = rows
	version, err := tableVersion(t, rows)
	if err != nil {
		return core.Table{}, err
	}
	tbl.Version = version
	return tbl, nil
}

func (c *Client) dropSheet(ctx context.Context, title string) {
	refs, err := c.api.Sheets(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Could not list sheets to drop archive", "archive", title, "error", err)
		return
	}
	if ref, ok := findSheet(refs, title); ok {
		if err := c.api.DeleteSheet(ctx, ref.ID); err != nil {
			slog.WarnContext(ctx, "Could not drop stale archive sheet", "archive", title, "error", err)
		}
	}
}

func tableVersion(t core.TableName, rows []core.Row) (string, error) {
	data, err := ports.EncodeTable(t, rows)
	if err != nil {
		return "", err
	}
	return ports.ContentVersion(data), nil
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func sheetRange(title string) string {
	return quoteTitle(title) + "!A:Z"
}

// tailRange covers every row from the 1-based row number down.
func tailRange(title string, from int) string {
	return fmt.Sprintf("%s!A%d:Z", quoteTitle(title), from)
}

func findSheet(refs []sheetRef, title string) (sheetRef, bool) {
	for _, r := range refs {
		if r.Title == title {
			return r, true
		}
	}
	return sheetRef{}, false
}

// serviceAPI adapts the generated Sheets client.
type serviceAPI struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceAPI) Values(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceAPI) Update(ctx context.Context, rng string, values [][]any) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *serviceAPI) Clear(ctx context.Context, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *serviceAPI) Sheets(ctx context.Context) ([]sheetRef, error) {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([]sheetRef, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		out = append(out, sheetRef{ID: sh.Properties.SheetId, Title: sh.Properties.Title})
	}
	return out, nil
}

func (s *serviceAPI) AddSheet(ctx context.Context, title string) error {
	return s.batch(ctx, &gsheet.Request{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	})
}

func (s *serviceAPI) DeleteSheet(ctx context.Context, id int64) error {
	return s.batch(ctx, &gsheet.Request{
		DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: id},
	})
}

func (s *serviceAPI) batch(ctx context.Context, reqs ...*gsheet.Request) error {
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	return err
}
