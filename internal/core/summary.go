package core

import (
	"sort"
	"strings"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Snapshot holds the typed contents of every table.
type Snapshot struct {
	Clients  []Client
	Projects []Project
	Salaries []Salary
	Expenses []Expense
	Monthly  []MonthlyPlan
}

// SnapshotOf converts loaded tables into typed records. Missing tables are
// treated as empty.
func SnapshotOf(tables map[TableName]Table) Snapshot {
	var s Snapshot
	for _, r := range tables[Clients].Rows {
		s.Clients = append(s.Clients, ClientFromRow(r))
	}
	for _, r := range tables[Projects].Rows {
		s.Projects = append(s.Projects, ProjectFromRow(r))
	}
	for _, r := range tables[Salaries].Rows {
		s.Salaries = append(s.Salaries, SalaryFromRow(r))
	}
	for _, r := range tables[Expenses].Rows {
		s.Expenses = append(s.Expenses, ExpenseFromRow(r))
	}
	for _, r := range tables[Monthly].Rows {
		s.Monthly = append(s.Monthly, MonthlyPlanFromRow(r))
	}
	return s
}

// Summary is the dashboard view over all tables.
type Summary struct {
	Income         Money
	Outstanding    Money
	PaidSalaries   Money
	UnpaidSalaries Money
	Expenses       Money
	TotalExpenses  Money // Expenses + PaidSalaries
	MoneyLeft      Money // Income - TotalExpenses

	ByCategory []CategoryAmount

	ProjectsPaid    int
	ProjectsNotPaid int

	MonthlyPlanned Money
	MonthlyPaid    Money
	MonthlyUnpaid  Money
}

const uncategorized = "Uncategorized"

// Summarize computes the derived aggregations.
func Summarize(s Snapshot) Summary {
	var out Summary
	for _, c := range s.Clients {
		out.Income = out.Income.Add(c.TotalPaid)
		out.Outstanding = out.Outstanding.Add(c.TotalDue)
	}
	for _, sal := range s.Salaries {
		switch {
		case sal.Paid.Yes():
			out.PaidSalaries = out.PaidSalaries.Add(sal.Amount)
		case sal.Paid.No():
			out.UnpaidSalaries = out.UnpaidSalaries.Add(sal.Amount)
		}
	}

	byCat := map[string]Money{}
	for _, e := range s.Expenses {
		out.Expenses = out.Expenses.Add(e.Amount)
		name := strings.TrimSpace(e.Category)
		if name == "" {
			name = uncategorized
		}
		byCat[name] = byCat[name].Add(e.Amount)
	}
	out.TotalExpenses = out.Expenses.Add(out.PaidSalaries)
	out.MoneyLeft = out.Income.Sub(out.TotalExpenses)

	out.ByCategory = make([]CategoryAmount, 0, len(byCat))
	for name, amt := range byCat {
		out.ByCategory = append(out.ByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(out.ByCategory, func(i, j int) bool {
		a, b := out.ByCategory[i], out.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Name < b.Name
	})

	for _, p := range s.Projects {
		if p.PaidStatus() == StatusPaid {
			out.ProjectsPaid++
		} else {
			out.ProjectsNotPaid++
		}
	}

	for _, m := range s.Monthly {
		out.MonthlyPlanned = out.MonthlyPlanned.Add(m.Amount)
		if m.Paid.Yes() {
			out.MonthlyPaid = out.MonthlyPaid.Add(m.Amount)
		} else {
			out.MonthlyUnpaid = out.MonthlyUnpaid.Add(m.Amount)
		}
	}
	return out
}
