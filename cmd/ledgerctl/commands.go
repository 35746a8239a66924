package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/invoice"
	"ledger/internal/services"
)

var (
	flagArchiveAll bool
	flagVersion    string
	flagOutDir     string
)

func init() {
	tableCmd := &cobra.Command{Use: "table", Short: "Work with live tables"}
	tableCmd.AddCommand(&cobra.Command{
		Use:   "show <table>",
		Short: "Print a table with its row indexes and version",
		Args:  cobra.ExactArgs(1),
		RunE:  withLedger(showTable),
	})

	archiveCmd := &cobra.Command{
		Use:   "archive [table]",
		Short: "Snapshot a table (or every table with --all) and reset it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withLedger(archive),
	}
	archiveCmd.Flags().BoolVar(&flagArchiveAll, "all", false, "Archive every table")

	archivesCmd := &cobra.Command{
		Use:   "archives <table>",
		Short: "List the archived snapshots of a table, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  withLedger(listArchives),
	}

	payCmd := &cobra.Command{
		Use:   "pay <index> <slot>",
		Short: "Mark a project milestone (20, 40 or 40-2) as paid",
		Args:  cobra.ExactArgs(2),
		RunE:  withLedger(payMilestone),
	}
	payCmd.Flags().StringVar(&flagVersion, "version", "", "Expected projects table version")
	milestoneCmd := &cobra.Command{Use: "milestone", Short: "Project milestones"}
	milestoneCmd.AddCommand(payCmd)

	invoiceCmd := &cobra.Command{Use: "invoice", Short: "Generate PDF invoices"}
	invoiceCmd.PersistentFlags().StringVarP(&flagOutDir, "out", "o", "", "Also write the PDF to this directory")
	invoiceCmd.AddCommand(
		&cobra.Command{
			Use:   "project <index>",
			Short: "Invoice the next unpaid milestone of a project",
			Args:  cobra.ExactArgs(1),
			RunE:  withLedger(invoiceFor((*services.Ledger).GenerateProjectInvoice)),
		},
		&cobra.Command{
			Use:   "monthly <index>",
			Short: "Invoice an unpaid monthly plan",
			Args:  cobra.ExactArgs(1),
			RunE:  withLedger(invoiceFor((*services.Ledger).GenerateMonthlyInvoice)),
		},
	)

	exportCmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Write every table to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  withLedger(exportWorkbook),
	}
	importCmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Replace tables from an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  withLedger(importWorkbook),
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show income, expenses and money left",
		RunE:  runSummary,
	}

	rootCmd.AddCommand(summaryCmd, tableCmd, archiveCmd, archivesCmd, milestoneCmd, invoiceCmd, exportCmd, importCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	return withLedger(printSummary)(cmd, args)
}

func printSummary(ctx context.Context, l *services.Ledger, _ []string) error {
	s, err := l.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Println(cli.RenderTitle("LEDGER SUMMARY"))
	fmt.Print(cli.RenderPairs([][2]string{
		{"Income", s.Income.USD()},
		{"Outstanding", s.Outstanding.USD()},
		{"Paid salaries", s.PaidSalaries.USD()},
		{"Unpaid salaries", s.UnpaidSalaries.USD()},
		{"Expenses", s.Expenses.USD()},
		{"Total expenses", s.TotalExpenses.USD()},
		{"Money left", s.MoneyLeft.USD()},
		{"Projects paid", strconv.Itoa(s.ProjectsPaid)},
		{"Projects not paid", strconv.Itoa(s.ProjectsNotPaid)},
		{"Monthly planned", s.MonthlyPlanned.USD()},
		{"Monthly paid", s.MonthlyPaid.USD()},
		{"Monthly unpaid", s.MonthlyUnpaid.USD()},
	}))

	rows := make([][]string, 0, len(s.ByCategory))
	for _, c := range s.ByCategory {
		rows = append(rows, []string{c.Name, c.Amount.USD()})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:      "Expenses by category",
		Headers:    []string{"Category", "Amount"},
		Rows:       rows,
		RightAlign: []int{1},
	}))
	return nil
}

func showTable(ctx context.Context, l *services.Ledger, args []string) error {
	t, err := core.ParseTableName(args[0])
	if err != nil {
		return err
	}
	tbl, err := l.Load(ctx, t)
	if err != nil {
		return err
	}
	fmt.Print(renderTable(tbl, fmt.Sprintf("%s (version %s)", t, tbl.Version)))
	return nil
}

func renderTable(tbl core.Table, title string) string {
	headers := append([]string{"#"}, tbl.Columns...)
	rows := make([][]string, len(tbl.Rows))
	for i, r := range tbl.Rows {
		rows[i] = append([]string{strconv.Itoa(i)}, r...)
	}
	money := []int{}
	for _, col := range tbl.Name.MoneyColumns() {
		money = append(money, tbl.Name.ColumnIndex(col)+1)
	}
	return cli.RenderTable(cli.Table{Title: title, Headers: headers, Rows: rows, RightAlign: money})
}

func archive(ctx context.Context, l *services.Ledger, args []string) error {
	now := time.Now()
	if flagArchiveAll {
		if len(args) > 0 {
			return errors.New("--all takes no table argument")
		}
		report := l.ArchiveAll(ctx, now)
		for _, res := range report.Results {
			switch res.Outcome {
			case services.OutcomeArchived:
				fmt.Println(cli.Success(fmt.Sprintf("%s archived as %s (%d rows)", res.Table, res.Archive.ID, res.Archive.Rows)))
			case services.OutcomeSkippedEmpty:
				fmt.Printf("  %s skipped (empty)\n", res.Table)
			default:
				fmt.Println(cli.Failure(fmt.Sprintf("%s: %v", res.Table, res.Err)))
			}
		}
		return report.Err()
	}
	if len(args) != 1 {
		return errors.New("name a table or pass --all")
	}
	t, err := core.ParseTableName(args[0])
	if err != nil {
		return err
	}
	info, err := l.Archive(ctx, t, now)
	if err != nil {
		return err
	}
	fmt.Println(cli.Success(fmt.Sprintf("%s archived as %s (%d rows)", t, info.ID, info.Rows)))
	return nil
}

func listArchives(ctx context.Context, l *services.Ledger, args []string) error {
	t, err := core.ParseTableName(args[0])
	if err != nil {
		return err
	}
	list, err := l.ListArchives(ctx, t)
	if err != nil {
		return err
	}
	rows := make([][]string, len(list))
	for i, a := range list {
		created := ""
		if !a.CreatedAt.IsZero() {
			created = a.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		rows[i] = []string{a.ID, strconv.Itoa(a.Rows), created}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:      "Archives of " + string(t),
		Headers:    []string{"ID", "Rows", "Created"},
		Rows:       rows,
		RightAlign: []int{1},
	}))
	return nil
}

func payMilestone(ctx context.Context, l *services.Ledger, args []string) error {
	index, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	slot, err := core.ParseMilestoneSlot(args[1])
	if err != nil {
		return err
	}
	tbl, err := l.MarkMilestonePaid(ctx, index, slot, flagVersion)
	if err != nil {
		return err
	}
	p := core.ProjectFromRow(tbl.Rows[index])
	fmt.Println(cli.Success(fmt.Sprintf("%s / %s: %s paid, status %s (version %s)",
		p.Client, p.Name, slot.Label(), p.PaidStatus(), tbl.Version)))
	return nil
}

func invoiceFor(generate func(*services.Ledger, context.Context, int) (invoice.Invoice, error)) func(context.Context, *services.Ledger, []string) error {
	return func(ctx context.Context, l *services.Ledger, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		inv, err := generate(l, ctx, index)
		if err != nil {
			return err
		}
		path := inv.Filename
		if flagOutDir != "" {
			if err := os.MkdirAll(flagOutDir, 0o755); err != nil {
				return err
			}
			path = filepath.Join(flagOutDir, inv.Filename)
			if err := os.WriteFile(path, inv.Data, 0o644); err != nil {
				return err
			}
		}
		fmt.Println(cli.Success(fmt.Sprintf("%s, amount due %s", path, inv.AmountDue.USD())))
		return nil
	}
}

func exportWorkbook(ctx context.Context, l *services.Ledger, args []string) error {
	data, err := l.ExportWorkbook(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return err
	}
	fmt.Println(cli.Success("exported " + args[0]))
	return nil
}

func importWorkbook(ctx context.Context, l *services.Ledger, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	replaced, err := l.ImportWorkbook(ctx, f)
	for _, t := range replaced {
		fmt.Println(cli.Success("replaced " + string(t)))
	}
	return err
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid row index %q", s)
	}
	return i, nil
}
