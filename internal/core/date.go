package core

import (
	"strings"
	"time"
)

// DateLayout is the layout date cells are written in.
const DateLayout = "2006-01-02"

// Readers accept ISO dates first, then day-first forms.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Date is a calendar date. The zero value is the null date.
type Date struct {
	time.Time
}

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate reads a date cell. Malformed input yields the null date and false.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return Date{}, false
}

// IsNull reports whether the date is missing.
func (d Date) IsNull() bool { return d.IsZero() }

// String renders the cell form; the null date is the empty string.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Flag is a normalized Yes/No cell. Anything unrecognized is FlagUnset.
type Flag string

const (
	FlagYes   Flag = "Yes"
	FlagNo    Flag = "No"
	FlagUnset Flag = ""
)

// ParseFlag accepts "Yes" and "No" in any case.
func ParseFlag(s string) Flag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return FlagYes
	case "no":
		return FlagNo
	}
	return FlagUnset
}

func FlagOf(b bool) Flag {
	if b {
		return FlagYes
	}
	return FlagNo
}

func (f Flag) Yes() bool { return f == FlagYes }
func (f Flag) No() bool  { return f == FlagNo }
