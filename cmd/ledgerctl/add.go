package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/services"
)

// addFlags holds the field flags of every add subcommand; each one reads
// only the fields its record has.
type addFlags struct {
	client, contact, project, employee, role string
	category, notes, method, month           string
	amount, paidTotal, dueTotal              string
	date, paid, social                       string
}

var flagAdd addFlags

func init() {
	addCmd := &cobra.Command{Use: "add", Short: "Append a validated row to a table"}

	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Add a client",
		Args:  cobra.NoArgs,
		RunE:  withLedger(addClient),
	}
	clientCmd.Flags().StringVar(&flagAdd.client, "name", "", "Client name")
	clientCmd.Flags().StringVar(&flagAdd.contact, "contact", "", "Contact person or address")
	clientCmd.Flags().StringVar(&flagAdd.paidTotal, "total-paid", "", "Amount paid so far")
	clientCmd.Flags().StringVar(&flagAdd.dueTotal, "total-due", "", "Amount still due")

	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Add a project; the budget is split 20/40/40 across milestones",
		Args:  cobra.NoArgs,
		RunE:  withLedger(addProject),
	}
	projectCmd.Flags().StringVar(&flagAdd.client, "client", "", "Client name")
	projectCmd.Flags().StringVar(&flagAdd.project, "name", "", "Project name")
	projectCmd.Flags().StringVar(&flagAdd.employee, "employee", "", "Assigned employee")
	projectCmd.Flags().StringVar(&flagAdd.amount, "budget", "", "Project budget")

	salaryCmd := &cobra.Command{
		Use:   "salary",
		Short: "Add a salary payment",
		Args:  cobra.NoArgs,
		RunE:  withLedger(addSalary),
	}
	salaryCmd.Flags().StringVar(&flagAdd.employee, "employee", "", "Employee name")
	salaryCmd.Flags().StringVar(&flagAdd.role, "role", "", "Role")
	salaryCmd.Flags().StringVar(&flagAdd.amount, "amount", "", "Salary amount")
	salaryCmd.Flags().StringVar(&flagAdd.paid, "paid", "", "Yes or No")
	salaryCmd.Flags().StringVar(&flagAdd.date, "date", "", "Payment date")

	expenseCmd := &cobra.Command{
		Use:   "expense",
		Short: "Add an expense",
		Args:  cobra.NoArgs,
		RunE:  withLedger(addExpense),
	}
	expenseCmd.Flags().StringVar(&flagAdd.category, "category", "", "Expense category")
	expenseCmd.Flags().StringVar(&flagAdd.amount, "amount", "", "Expense amount")
	expenseCmd.Flags().StringVar(&flagAdd.date, "date", "", "Expense date")
	expenseCmd.Flags().StringVar(&flagAdd.notes, "notes", "", "Free text")

	monthlyCmd := &cobra.Command{
		Use:   "monthly",
		Short: "Add a monthly plan",
		Args:  cobra.NoArgs,
		RunE:  withLedger(addMonthly),
	}
	monthlyCmd.Flags().StringVar(&flagAdd.client, "client", "", "Client name")
	monthlyCmd.Flags().StringVar(&flagAdd.amount, "amount", "", "Monthly amount")
	monthlyCmd.Flags().StringVar(&flagAdd.method, "method", "", "Payment method")
	monthlyCmd.Flags().StringVar(&flagAdd.social, "social-budget", "", "Yes or No")
	monthlyCmd.Flags().StringVar(&flagAdd.paid, "paid", "", "Yes or No")
	monthlyCmd.Flags().StringVar(&flagAdd.month, "month", "", "Billing month")
	monthlyCmd.Flags().StringVar(&flagAdd.date, "due", "", "Due date")

	addCmd.AddCommand(clientCmd, projectCmd, salaryCmd, expenseCmd, monthlyCmd)
	rootCmd.AddCommand(addCmd)
}

func addClient(ctx context.Context, l *services.Ledger, _ []string) error {
	c, err := flagAdd.clientRecord()
	if err != nil {
		return err
	}
	return reportAdd(l.AddClient(ctx, c))
}

func addProject(ctx context.Context, l *services.Ledger, _ []string) error {
	budget, err := amountFlag("budget", flagAdd.amount)
	if err != nil {
		return err
	}
	return reportAdd(l.AddProject(ctx, flagAdd.client, flagAdd.project, flagAdd.employee, budget))
}

func addSalary(ctx context.Context, l *services.Ledger, _ []string) error {
	s, err := flagAdd.salaryRecord()
	if err != nil {
		return err
	}
	return reportAdd(l.AddSalary(ctx, s))
}

func addExpense(ctx context.Context, l *services.Ledger, _ []string) error {
	e, err := flagAdd.expenseRecord()
	if err != nil {
		return err
	}
	return reportAdd(l.AddExpense(ctx, e))
}

func addMonthly(ctx context.Context, l *services.Ledger, _ []string) error {
	m, err := flagAdd.monthlyRecord()
	if err != nil {
		return err
	}
	return reportAdd(l.AddMonthlyPlan(ctx, m))
}

func reportAdd(tbl core.Table, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(cli.Success(fmt.Sprintf("%s row %d added (version %s)", tbl.Name, tbl.Len()-1, tbl.Version)))
	return nil
}

func (f addFlags) clientRecord() (core.Client, error) {
	paid, err := amountFlag("total-paid", f.paidTotal)
	if err != nil {
		return core.Client{}, err
	}
	due, err := amountFlag("total-due", f.dueTotal)
	if err != nil {
		return core.Client{}, err
	}
	return core.Client{Name: f.client, Contact: f.contact, TotalPaid: paid, TotalDue: due}, nil
}

func (f addFlags) salaryRecord() (core.Salary, error) {
	amount, err := amountFlag("amount", f.amount)
	if err != nil {
		return core.Salary{}, err
	}
	paid, err := flagFlag("paid", f.paid)
	if err != nil {
		return core.Salary{}, err
	}
	date, err := dateFlag("date", f.date)
	if err != nil {
		return core.Salary{}, err
	}
	return core.Salary{Employee: f.employee, Role: f.role, Amount: amount, Paid: paid, Date: date}, nil
}

func (f addFlags) expenseRecord() (core.Expense, error) {
	amount, err := amountFlag("amount", f.amount)
	if err != nil {
		return core.Expense{}, err
	}
	date, err := dateFlag("date", f.date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{Category: f.category, Amount: amount, Date: date, Notes: f.notes}, nil
}

func (f addFlags) monthlyRecord() (core.MonthlyPlan, error) {
	amount, err := amountFlag("amount", f.amount)
	if err != nil {
		return core.MonthlyPlan{}, err
	}
	social, err := flagFlag("social-budget", f.social)
	if err != nil {
		return core.MonthlyPlan{}, err
	}
	paid, err := flagFlag("paid", f.paid)
	if err != nil {
		return core.MonthlyPlan{}, err
	}
	due, err := dateFlag("due", f.date)
	if err != nil {
		return core.MonthlyPlan{}, err
	}
	return core.MonthlyPlan{
		Client:            f.client,
		Amount:            amount,
		PaymentMethod:     f.method,
		SocialMediaBudget: social,
		Paid:              paid,
		Month:             f.month,
		DueDate:           due,
	}, nil
}

// amountFlag leaves an omitted amount at zero.
func amountFlag(name, v string) (core.Money, error) {
	if v == "" {
		return core.Money{}, nil
	}
	m, err := core.ParseAmount(v)
	if err != nil {
		return core.Money{}, fmt.Errorf("--%s %q: %w", name, v, err)
	}
	return m, nil
}

func flagFlag(name, v string) (core.Flag, error) {
	if v == "" {
		return core.FlagUnset, nil
	}
	f := core.ParseFlag(v)
	if f == core.FlagUnset {
		return core.FlagUnset, fmt.Errorf("--%s %q: want yes or no", name, v)
	}
	return f, nil
}

func dateFlag(name, v string) (core.Date, error) {
	if v == "" {
		return core.Date{}, nil
	}
	d, ok := core.ParseDate(v)
	if !ok {
		return core.Date{}, fmt.Errorf("--%s %q: unrecognized date", name, v)
	}
	return d, nil
}
