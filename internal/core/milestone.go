package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MilestoneSlot is one of the three fixed installments of a project budget.
type MilestoneSlot int

const (
	Milestone20 MilestoneSlot = iota
	Milestone40
	Milestone40b
)

const (
	StatusPaid    = "Paid"
	StatusNotPaid = "Not Paid"
)

var ErrInvalidMilestone = errors.New("invalid milestone")

// MilestoneOrder is the order installments are billed in.
var MilestoneOrder = [3]MilestoneSlot{Milestone20, Milestone40, Milestone40b}

var milestoneShares = [3]decimal.Decimal{
	decimal.RequireFromString("0.2"),
	decimal.RequireFromString("0.4"),
	decimal.RequireFromString("0.4"),
}

func (s MilestoneSlot) Valid() bool { return s >= Milestone20 && s <= Milestone40b }

// Column is the projects column holding the slot's amount.
func (s MilestoneSlot) Column() string {
	switch s {
	case Milestone20:
		return ColPayment20
	case Milestone40:
		return ColPayment40
	case Milestone40b:
		return ColPayment40b
	}
	return ""
}

// Label is the short human label, e.g. "40% (2)".
func (s MilestoneSlot) Label() string {
	return strings.TrimPrefix(s.Column(), "Payment ")
}

func (s MilestoneSlot) String() string { return s.Label() }

// ParseMilestoneSlot accepts a column name ("Payment 40% (2)"), a label
// ("40% (2)") or a short key ("20", "40", "40-2").
func ParseMilestoneSlot(s string) (MilestoneSlot, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, "payment ")
	switch key {
	case "20", "20%":
		return Milestone20, nil
	case "40", "40%":
		return Milestone40, nil
	case "40-2", "40_2", "40b", "40% (2)", "40%(2)":
		return Milestone40b, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMilestone, s)
}

// SplitBudget computes the 20/40/40 installments, each rounded to cents.
// The three parts may differ from the budget by at most two cents.
func SplitBudget(budget Money) [3]Money {
	b := budget.Decimal()
	var out [3]Money
	for i, share := range milestoneShares {
		out[i] = FromDecimal(b.Mul(share))
	}
	return out
}

// PaidStatusOf derives the project status from its installments. Only a
// positive amount is still owed.
func PaidStatusOf(milestones [3]Money) string {
	for _, m := range milestones {
		if m.Cents > 0 {
			return StatusNotPaid
		}
	}
	return StatusPaid
}
