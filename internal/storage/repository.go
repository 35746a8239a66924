package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	_ "modernc.org/sqlite"
)

var _ ports.Store = (*SQLiteRepository)(nil)

// SQLiteRepository keeps every table and its archives in one database.
// Table versions are counters bumped inside the write transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.ensureTables(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ensureTables(ctx context.Context) error {
	for _, t := range core.AllTables {
		if _, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO ledger_tables (name, version) VALUES (?, 0)`, string(t)); err != nil {
			return fmt.Errorf("register table %s: %w", t, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context, t core.TableName) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	return r.loadTx(ctx, r.db, t)
}

func (r *SQLiteRepository) Append(ctx context.Context, t core.TableName, row core.Row) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	return r.withTx(ctx, t, func(tx *sql.Tx, current core.Table) error {
		return insertRow(ctx, tx, t, current.Len(), core.NormalizeRow(t, row))
	})
}

func (r *SQLiteRepository) Replace(ctx context.Context, t core.TableName, rows []core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	return r.withTx(ctx, t, func(tx *sql.Tx, current core.Table) error {
		if err := ports.CheckVersion(current.Version, expectedVersion); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows WHERE table_name = ?`, string(t)); err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		for i, row := range core.NormalizeRows(t, rows) {
			if err := insertRow(ctx, tx, t, i, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateRow(ctx context.Context, t core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	return r.withTx(ctx, t, func(tx *sql.Tx, current core.Table) error {
		if err := ports.CheckVersion(current.Version, expectedVersion); err != nil {
			return err
		}
		if index < 0 || index >= current.Len() {
			return fmt.Errorf("%w: %d", ports.ErrRowIndex, index)
		}
		cells, err := json.Marshal([]string(core.NormalizeRow(t, row)))
		if err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE ledger_rows SET cells = ? WHERE table_name = ? AND position = ?`,
			string(cells), string(t), index)
		if err != nil {
			return fmt.Errorf("update row %d: %w", index, err)
		}
		return nil
	})
}

// Archive stores the snapshot and clears the live rows in one transaction.
func (r *SQLiteRepository) Archive(ctx context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return ports.ArchiveInfo{}, err
	}
	var info ports.ArchiveInfo
	_, err := r.withTx(ctx, t, func(tx *sql.Tx, current core.Table) error {
		if current.Len() == 0 {
			return fmt.Errorf("%s: %w", t, ports.ErrEmptyTable)
		}
		content, err := ports.EncodeTable(t, current.Rows)
		if err != nil {
			return err
		}

		var lookupErr error
		id := ports.NextArchiveName(t, at, func(id string) bool {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_archives WHERE id = ?`, id).Scan(&n); err != nil {
				lookupErr = err
				return false
			}
			return n > 0
		})
		if lookupErr != nil {
			return fmt.Errorf("check archive name: %w", lookupErr)
		}

		info = ports.NewArchiveInfo(t, id)
		info.Rows = current.Len()
		info.CreatedAt = at.UTC()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_archives (id, table_name, period_year, period_month, seq, row_count, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, string(t), info.Year, int(info.Month), info.Seq, info.Rows, content, info.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert archive: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows WHERE table_name = ?`, string(t)); err != nil {
			return fmt.Errorf("reset rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return ports.ArchiveInfo{}, err
	}
	slog.InfoContext(ctx, "Table archived to SQLite", "table", t, "archive", info.ID, "rows", info.Rows)
	return info, nil
}

func (r *SQLiteRepository) ListArchives(ctx context.Context, t core.TableName) ([]ports.ArchiveInfo, error) {
	if err := ports.ValidTable(t); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, row_count, created_at FROM ledger_archives WHERE table_name = ?`, string(t))
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []ports.ArchiveInfo
	for rows.Next() {
		var (
			id      string
			count   int
			created string
		)
		if err := rows.Scan(&id, &count, &created); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		info := ports.NewArchiveInfo(t, id)
		info.Rows = count
		info.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archives: %w", err)
	}
	ports.SortArchives(out)
	return out, nil
}

func (r *SQLiteRepository) ReadArchive(ctx context.Context, t core.TableName, id string) (core.Table, error) {
	if err := ports.ValidTable(t); err != nil {
		return core.Table{}, err
	}
	var content []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT content FROM ledger_archives WHERE table_name = ? AND id = ?`, string(t), id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Table{}, fmt.Errorf("%w: %s", ports.ErrArchiveNotFound, id)
	}
	if err != nil {
		return core.Table{}, fmt.Errorf("read archive %s: %w", id, err)
	}
	tbl, err := ports.DecodeTable(t, content)
	if err != nil {
		return core.Table{}, fmt.Errorf("decode archive %s: %w", id, err)
	}
	tbl.Version = ports.ContentVersion(content)
	return tbl, nil
}

// LastRollover returns when the rollover last ran; ok is false if never.
func (r *SQLiteRepository) LastRollover(ctx context.Context) (time.Time, bool, error) {
	var last string
	err := r.db.QueryRowContext(ctx, `SELECT last_run FROM rollover_state WHERE id = 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read rollover state: %w", err)
	}
	at, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse rollover state: %w", err)
	}
	return at, true, nil
}

func (r *SQLiteRepository) RecordRollover(ctx context.Context, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rollover_state (id, last_run) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_run = excluded.last_run`,
		at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record rollover: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) loadTx(ctx context.Context, q queryer, t core.TableName) (core.Table, error) {
	var version int64
	if err := q.QueryRowContext(ctx, `SELECT version FROM ledger_tables WHERE name = ?`, string(t)).Scan(&version); err != nil {
		return core.Table{}, fmt.Errorf("read version of %s: %w", t, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT cells FROM ledger_rows WHERE table_name = ? ORDER BY position`, string(t))
	if err != nil {
		return core.Table{}, fmt.Errorf("query rows of %s: %w", t, err)
	}
	defer rows.Close()

	tbl := core.NewTable(t)
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return core.Table{}, fmt.Errorf("scan row: %w", err)
		}
		var row []string
		if err := json.Unmarshal([]byte(cells), &row); err != nil {
			return core.Table{}, fmt.Errorf("decode row: %w", err)
		}
		tbl.Rows = append(tbl.Rows, core.NormalizeRow(t, row))
	}
	if err := rows.Err(); err != nil {
		return core.Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	tbl.Version = strconv.FormatInt(version, 10)
	return tbl, nil
}

// withTx runs fn against the current snapshot, bumps the version and
// returns the table as committed.
func (r *SQLiteRepository) withTx(ctx context.Context, t core.TableName, fn func(tx *sql.Tx, current core.Table) error) (core.Table, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Table{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := r.loadTx(ctx, tx, t)
	if err != nil {
		return core.Table{}, err
	}
	if err := fn(tx, current); err != nil {
		return core.Table{}, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE ledger_tables SET version = version + 1, updated_at = ? WHERE name = ?`,
		time.Now().UTC().Format(time.RFC3339), string(t))
	if err != nil {
		return core.Table{}, fmt.Errorf("bump version: %w", err)
	}
	out, err := r.loadTx(ctx, tx, t)
	if err != nil {
		return core.Table{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Table{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func insertRow(ctx context.Context, tx *sql.Tx, t core.TableName, position int, row core.Row) error {
	cells, err := json.Marshal([]string(row))
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_rows (table_name, position, cells) VALUES (?, ?, ?)`,
		string(t), position, string(cells))
	if err != nil {
		return fmt.Errorf("insert row %d: %w", position, err)
	}
	return nil
}
