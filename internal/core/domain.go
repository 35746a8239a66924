package core

import (
	"errors"
	"fmt"
	"strings"
)

// TableName identifies one of the five ledger tables.
type TableName string

const (
	Clients  TableName = "clients"
	Projects TableName = "projects"
	Salaries TableName = "salaries"
	Expenses TableName = "expenses"
	Monthly  TableName = "monthly"
)

// Column names, in the order they appear in the canonical header rows.
const (
	ColClient        = "Client"
	ColContact       = "Contact"
	ColTotalPaid     = "Total Paid"
	ColTotalDue      = "Total Due"
	ColProject       = "Project"
	ColEmployee      = "Employee"
	ColBudget        = "Budget"
	ColPayment20     = "Payment 20%"
	ColPayment40     = "Payment 40%"
	ColPayment40b    = "Payment 40% (2)"
	ColPaidStatus    = "Paid Status"
	ColRole          = "Role"
	ColSalary        = "Salary"
	ColPaid          = "Paid"
	ColDate          = "Date"
	ColCategory      = "Category"
	ColAmount        = "Amount"
	ColNotes         = "Notes"
	ColPaymentMethod = "Payment Method"
	ColSocialBudget  = "Social Media Budget"
	ColMonth         = "Month"
	ColDueDate       = "DueDate"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyField    = errors.New("required field is empty")
)

// AllTables lists every table in the order they are archived and exported.
var AllTables = []TableName{Clients, Projects, Salaries, Expenses, Monthly}

type schema struct {
	columns []string
	dates   []string
	money   []string
}

var schemas = map[TableName]schema{
	Clients: {
		columns: []string{ColClient, ColContact, ColTotalPaid, ColTotalDue},
		money:   []string{ColTotalPaid, ColTotalDue},
	},
	Projects: {
		columns: []string{ColClient, ColProject, ColEmployee, ColBudget, ColPayment20, ColPayment40, ColPayment40b, ColPaidStatus},
		money:   []string{ColBudget, ColPayment20, ColPayment40, ColPayment40b},
	},
	Salaries: {
		columns: []string{ColEmployee, ColRole, ColSalary, ColPaid, ColDate},
		dates:   []string{ColDate},
		money:   []string{ColSalary},
	},
	Expenses: {
		columns: []string{ColCategory, ColAmount, ColDate, ColNotes},
		dates:   []string{ColDate},
		money:   []string{ColAmount},
	},
	Monthly: {
		columns: []string{ColClient, ColAmount, ColPaymentMethod, ColSocialBudget, ColPaid, ColMonth, ColDueDate},
		dates:   []string{ColDueDate},
		money:   []string{ColAmount},
	},
}

// ParseTableName resolves a user supplied table name.
func ParseTableName(s string) (TableName, error) {
	t := TableName(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
	}
	return t, nil
}

func (t TableName) Valid() bool {
	_, ok := schemas[t]
	return ok
}

func (t TableName) String() string { return string(t) }

// Columns returns a copy of the canonical header row.
func (t TableName) Columns() []string {
	return append([]string(nil), schemas[t].columns...)
}

// DateColumns returns the columns holding nullable dates.
func (t TableName) DateColumns() []string {
	return append([]string(nil), schemas[t].dates...)
}

// MoneyColumns returns the columns holding currency amounts.
func (t TableName) MoneyColumns() []string {
	return append([]string(nil), schemas[t].money...)
}

// ColumnIndex returns the position of col in the canonical header, or -1.
func (t TableName) ColumnIndex(col string) int {
	for i, c := range schemas[t].columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Row is one record; cells are aligned with the table's canonical columns.
type Row []string

func (r Row) Clone() Row { return append(Row(nil), r...) }

func (r Row) cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[i])
}

// Table is a loaded snapshot of one table.
type Table struct {
	Name    TableName `json:"name"`
	Columns []string  `json:"columns"`
	Rows    []Row     `json:"rows"`
	Version string    `json:"version"`
}

// NewTable builds an empty snapshot with the canonical header.
func NewTable(name TableName) Table {
	return Table{Name: name, Columns: name.Columns(), Rows: []Row{}}
}

func (t Table) Len() int { return len(t.Rows) }

// Get returns the cell at row i, column col, or "" when either is missing.
func (t Table) Get(i int, col string) string {
	if i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i].cell(t.Name.ColumnIndex(col))
}

func (t Table) Clone() Table {
	out := t
	out.Columns = append([]string(nil), t.Columns...)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// RowFromMap builds a canonical row from column-keyed values. Unknown keys
// are ignored.
func RowFromMap(t TableName, values map[string]string) Row {
	cols := schemas[t].columns
	row := make(Row, len(cols))
	for i, c := range cols {
		row[i] = strings.TrimSpace(values[c])
	}
	return row
}
