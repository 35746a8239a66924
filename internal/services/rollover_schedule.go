package services

import "time"

// RolloverSchedule decides whether a period rollover is due.
type RolloverSchedule interface {
	// IsDue reports whether a rollover should run at now, given the time
	// of the previous run (zero if it never ran).
	IsDue(lastRun, now time.Time) bool
}

// MonthlySchedule is due once per calendar month, on or after Day. Days
// past the end of a short month clamp to its last day.
type MonthlySchedule struct {
	Day int
}

func (s MonthlySchedule) IsDue(lastRun, now time.Time) bool {
	if !lastRun.IsZero() && lastRun.Year() == now.Year() && lastRun.Month() == now.Month() {
		return false
	}
	if !lastRun.IsZero() && lastRun.After(now) {
		return false
	}

	target := s.Day
	if target < 1 {
		target = 1
	}
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	if target > lastDay {
		target = lastDay
	}
	return now.Day() >= target
}

// ArchivePeriod is the period a rollover at now closes: the month before
// now. Snapshots are named after the month they contain.
func ArchivePeriod(now time.Time) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 12, 0, 0, 0, now.Location())
	return first.AddDate(0, -1, 0)
}
