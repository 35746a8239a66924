package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ledger/internal/blob"
	"ledger/internal/config"
	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/sheets/csvfile"
	"ledger/internal/sheets/memory"
	"ledger/internal/storage"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"csv ok", Config{Type: CSVBackend, DataDir: "data"}, ""},
		{"csv without dir", Config{Type: CSVBackend}, "data directory"},
		{"memory ok", Config{Type: MemoryBackend}, ""},
		{"sqlite without path", Config{Type: SQLiteBackend}, "SQLite database path"},
		{"sheets without id", Config{Type: SheetsBackend}, "Spreadsheet ID"},
		{"unknown", Config{Type: "excel"}, "invalid backend type"},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "x"}, "exchange and queue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		DataBackend:         "sqlite",
		DataDir:             "d",
		ArchiveDir:          "d/archives",
		SQLiteDBPath:        "d/ledger.db",
		GoogleSpreadsheetID: "sheet",
		S3Bucket:            "bucket",
		S3PathStyle:         true,
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "d/ledger.db" || cfg.Google.SpreadsheetID != "sheet" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.S3.Bucket != "bucket" || !cfg.S3.UsePathStyle {
		t.Fatalf("unexpected s3 config: %+v", cfg.S3)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "excel"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed")
	if err := os.MkdirAll(seed, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(seed, "clients.csv"), []byte("Client,Contact,Total Paid,Total Due\nAcme,,10,0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		config Config
		check  func(t *testing.T, res *Result)
	}{
		{
			name:   "csv",
			config: Config{Type: CSVBackend, DataDir: filepath.Join(dir, "csv"), ArchiveDir: filepath.Join(dir, "csv", "archives")},
			check: func(t *testing.T, res *Result) {
				if _, ok := res.Store.(*csvfile.Store); !ok {
					t.Fatalf("store is %T", res.Store)
				}
				if _, ok := res.Rollover.(*services.FileRolloverState); !ok {
					t.Fatalf("rollover state is %T", res.Rollover)
				}
			},
		},
		{
			name:   "memory seeded",
			config: Config{Type: MemoryBackend, DataDir: seed},
			check: func(t *testing.T, res *Result) {
				if _, ok := res.Store.(*memory.Store); !ok {
					t.Fatalf("store is %T", res.Store)
				}
				tbl, err := res.Store.Load(ctx, core.Clients)
				if err != nil || tbl.Len() != 1 {
					t.Fatalf("seed not loaded: %+v %v", tbl, err)
				}
			},
		},
		{
			name:   "sqlite",
			config: Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "db", "ledger.db")},
			check: func(t *testing.T, res *Result) {
				repo, ok := res.Store.(*storage.SQLiteRepository)
				if !ok {
					t.Fatalf("store is %T", res.Store)
				}
				if res.Rollover != services.RolloverState(repo) {
					t.Fatal("sqlite should keep rollover state itself")
				}
				if res.Cleanup == nil {
					t.Fatal("sqlite cleanup missing")
				}
			},
		},
	}

	f := NewFactory(quietLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.config)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			t.Cleanup(func() { _ = res.Close() })
			if res.Notifier != nil {
				t.Fatal("notifier should be nil without AMQP_URL")
			}
			if _, ok := res.Blob.(blob.Nop); !ok {
				t.Fatalf("blob is %T, want Nop", res.Blob)
			}
			tt.check(t, res)
		})
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	if _, err := NewFactory(quietLogger()).CreateBackend(context.Background(), Config{Type: SheetsBackend}); err == nil {
		t.Fatal("expected validation error")
	}
}
