package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

var (
	flagConfig  string
	flagBackend string
	flagDataDir string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Agency ledger tables, archives and invoices",
	Long:          "Inspect and edit the agency ledger: clients, projects, salaries, expenses and monthly plans.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSummary,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Failure(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "TOML config file (default $"+cli.ConfigEnv+")")
	rootCmd.PersistentFlags().StringVarP(&flagBackend, "backend", "b", "", "Data backend: csv, memory, sqlite or sheets")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Directory of the csv tables")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log backend activity to stderr")
}

// openLedger applies the global flags over the config and opens the ledger.
// Flags are written to the environment so they win over the config file.
// The returned context carries the command logger.
func openLedger(ctx context.Context) (context.Context, *services.Ledger, error) {
	if flagBackend != "" {
		os.Setenv("DATA_BACKEND", flagBackend)
	}
	if flagDataDir != "" {
		os.Setenv("DATA_DIR", flagDataDir)
	}
	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	logger := applog.New(applog.Config{
		Level:     mustLevel(level),
		Format:    "text",
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})

	ctx = applog.WithLogger(ctx, logger)

	cfg, err := cli.LoadConfig(flagConfig)
	if err != nil {
		return ctx, nil, err
	}
	ledger, _, err := cli.OpenLedger(ctx, logger, cfg)
	return ctx, ledger, err
}

func mustLevel(s string) slog.Level {
	lvl, _ := applog.ParseLevel(s)
	return lvl
}

// withLedger opens the ledger for one command and closes it afterwards.
func withLedger(run func(ctx context.Context, l *services.Ledger, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer l.Close()
		return run(ctx, l, args)
	}
}
