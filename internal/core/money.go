// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents. Arithmetic that needs rounding
// goes through shopspring/decimal so results round half away from zero.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents.
type Money struct {
	Cents int64
}

// Dollars builds a Money from a whole-dollar amount.
func Dollars(d int64) Money { return Money{Cents: d * 100} }

// FromDecimal rounds d to cents.
func FromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

func (m Money) Decimal() decimal.Decimal { return decimal.New(m.Cents, -2) }

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) IsZero() bool      { return m.Cents == 0 }

// String renders the plain cell form ("1234.50").
func (m Money) String() string { return m.Decimal().StringFixed(2) }

// USD renders the display form "$#,##0.00".
func (m Money) USD() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := decimal.New(cents/100, 0).String()
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	frac := cents % 100
	return sign + "$" + b.String() + "." + string(rune('0'+frac/10)) + string(rune('0'+frac%10))
}

// ParseAmount parses a currency cell. It accepts an optional leading "$",
// thousands separators and surrounding whitespace.
//
// Examples:
//
//	ParseAmount("1000")      -> 100000 cents
//	ParseAmount("$1,234.5")  -> 123450 cents
//	ParseAmount("12.345")    -> 1235 cents (half away from zero)
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return FromDecimal(d), nil
}

// CoerceAmount is the lenient variant used when reading stored cells:
// anything unparsable is zero.
func CoerceAmount(s string) Money {
	m, err := ParseAmount(s)
	if err != nil {
		return Money{}
	}
	return m
}

// Sum adds up the amounts.
func Sum(ms ...Money) Money {
	var total Money
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}

// MarshalJSON encodes the amount as its plain cell string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
