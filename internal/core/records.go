package core

import (
	"fmt"
	"strings"
)

type (
	Client struct {
		Name      string
		Contact   string
		TotalPaid Money
		TotalDue  Money
	}

	Project struct {
		Client     string
		Name       string
		Employee   string
		Budget     Money
		Milestones [3]Money
	}

	Salary struct {
		Employee string
		Role     string
		Amount   Money
		Paid     Flag
		Date     Date
	}

	Expense struct {
		Category string
		Amount   Money
		Date     Date
		Notes    string
	}

	MonthlyPlan struct {
		Client            string
		Amount            Money
		PaymentMethod     string
		SocialMediaBudget Flag
		Paid              Flag
		Month             string
		DueDate           Date
	}
)

func ClientFromRow(r Row) Client {
	return Client{
		Name:      r.cell(0),
		Contact:   r.cell(1),
		TotalPaid: CoerceAmount(r.cell(2)),
		TotalDue:  CoerceAmount(r.cell(3)),
	}
}

func (c Client) Row() Row {
	return Row{c.Name, c.Contact, c.TotalPaid.String(), c.TotalDue.String()}
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyField
	}
	return nil
}

// NewProject splits the budget into the three installments.
func NewProject(client, name, employee string, budget Money) Project {
	return Project{
		Client:     client,
		Name:       name,
		Employee:   employee,
		Budget:     budget,
		Milestones: SplitBudget(budget),
	}
}

func ProjectFromRow(r Row) Project {
	return Project{
		Client:   r.cell(0),
		Name:     r.cell(1),
		Employee: r.cell(2),
		Budget:   CoerceAmount(r.cell(3)),
		Milestones: [3]Money{
			CoerceAmount(r.cell(4)),
			CoerceAmount(r.cell(5)),
			CoerceAmount(r.cell(6)),
		},
	}
}

func (p Project) Row() Row {
	return Row{
		p.Client, p.Name, p.Employee, p.Budget.String(),
		p.Milestones[0].String(), p.Milestones[1].String(), p.Milestones[2].String(),
		p.PaidStatus(),
	}
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Client) == "" || strings.TrimSpace(p.Name) == "" {
		return ErrEmptyField
	}
	if p.Budget.Cents < 0 {
		return ErrInvalidAmount
	}
	for _, m := range p.Milestones {
		if m.Cents < 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}

// PaidStatus is "Paid" once no installment has a positive amount left.
func (p Project) PaidStatus() string { return PaidStatusOf(p.Milestones) }

// MarkPaid zeroes one installment.
func (p *Project) MarkPaid(slot MilestoneSlot) error {
	if !slot.Valid() {
		return ErrInvalidMilestone
	}
	p.Milestones[slot] = Money{}
	return nil
}

// NextUnpaid returns the first installment, in billing order, with a
// positive amount.
func (p Project) NextUnpaid() (MilestoneSlot, Money, bool) {
	for _, slot := range MilestoneOrder {
		if p.Milestones[slot].Cents > 0 {
			return slot, p.Milestones[slot], true
		}
	}
	return 0, Money{}, false
}

func SalaryFromRow(r Row) Salary {
	d, _ := ParseDate(r.cell(4))
	return Salary{
		Employee: r.cell(0),
		Role:     r.cell(1),
		Amount:   CoerceAmount(r.cell(2)),
		Paid:     ParseFlag(r.cell(3)),
		Date:     d,
	}
}

func (s Salary) Row() Row {
	return Row{s.Employee, s.Role, s.Amount.String(), string(s.Paid), s.Date.String()}
}

func (s Salary) Validate() error {
	if strings.TrimSpace(s.Employee) == "" {
		return ErrEmptyField
	}
	if s.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func ExpenseFromRow(r Row) Expense {
	d, _ := ParseDate(r.cell(2))
	return Expense{
		Category: r.cell(0),
		Amount:   CoerceAmount(r.cell(1)),
		Date:     d,
		Notes:    r.cell(3),
	}
}

func (e Expense) Row() Row {
	return Row{e.Category, e.Amount.String(), e.Date.String(), e.Notes}
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyField
	}
	return nil
}

func MonthlyPlanFromRow(r Row) MonthlyPlan {
	d, _ := ParseDate(r.cell(6))
	return MonthlyPlan{
		Client:            r.cell(0),
		Amount:            CoerceAmount(r.cell(1)),
		PaymentMethod:     r.cell(2),
		SocialMediaBudget: ParseFlag(r.cell(3)),
		Paid:              ParseFlag(r.cell(4)),
		Month:             r.cell(5),
		DueDate:           d,
	}
}

func (m MonthlyPlan) Row() Row {
	return Row{
		m.Client, m.Amount.String(), m.PaymentMethod,
		string(m.SocialMediaBudget), string(m.Paid), m.Month, m.DueDate.String(),
	}
}

func (m MonthlyPlan) Validate() error {
	if strings.TrimSpace(m.Client) == "" {
		return ErrEmptyField
	}
	if m.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateRow checks an untyped row with the rules of its record type.
// Money cells may be empty but must otherwise parse.
func ValidateRow(t TableName, r Row) error {
	for _, col := range schemas[t].money {
		if v := r.cell(t.ColumnIndex(col)); v != "" {
			if _, err := ParseAmount(v); err != nil {
				return fmt.Errorf("%s %q: %w", col, v, ErrInvalidAmount)
			}
		}
	}
	var err error
	switch t {
	case Clients:
		err = ClientFromRow(r).Validate()
	case Projects:
		err = ProjectFromRow(r).Validate()
	case Salaries:
		err = SalaryFromRow(r).Validate()
	case Expenses:
		err = ExpenseFromRow(r).Validate()
	case Monthly:
		err = MonthlyPlanFromRow(r).Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, t)
	}
	return err
}
