package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ledger/internal/core"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.toml")
	body := "data_backend = \"memory\"\nagency_name = \"Studio\"\nport = \"9090\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DataBackend != "memory" || cfg.AgencyName != "Studio" || cfg.Port != "9090" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.toml")
	if err := os.WriteFile(path, []byte("data_backend = \"paper\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigEnv, path)

	_, err := LoadConfig("")
	if err == nil || !strings.Contains(err.Error(), "invalid data backend") {
		t.Fatalf("expected backend validation error, got %v", err)
	}
}

func TestOpenLedgerMemory(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("DATA_DIR", t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	logger := SetupLogger("test", "error", "text")

	ledger, res, err := OpenLedger(context.Background(), logger, cfg)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer ledger.Close()
	if res.Rollover == nil {
		t.Fatal("rollover state missing")
	}
	tbl, err := ledger.Load(context.Background(), core.Clients)
	if err != nil || tbl.Len() != 0 {
		t.Fatalf("unexpected load: %+v %v", tbl, err)
	}
}
