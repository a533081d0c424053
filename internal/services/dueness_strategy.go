// This file implements the strategy pattern for autopay dueness checking.
// Each frequency has its own checker deciding whether an autopay should be
// charged.

package services

import (
	"fmt"
	"time"

	"thinkpay/internal/core"
)

// DuenessChecker decides whether a scheduled charge is due.
type DuenessChecker interface {
	// IsDue reports whether a charge anchored on dueDate should run at now,
	// given the time of the last run (zero when it never ran).
	IsDue(lastRun, now time.Time, dueDate core.Date) bool
}

// WeeklyChecker charges once every seven days.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastRun, now time.Time, dueDate core.Date) bool {
	if now.Before(dueDate.Time) {
		return false
	}
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= 7*24*time.Hour
}

// MonthlyChecker charges once per calendar month, on or after the day of
// the month of the due date. Days past the end of a short month fall on its
// last day.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastRun, now time.Time, dueDate core.Date) bool {
	if now.Before(dueDate.Time) {
		return false
	}
	if lastRun.IsZero() {
		return true
	}
	if lastRun.Year() == now.Year() && lastRun.Month() == now.Month() {
		return false
	}

	targetDay := dueDate.Day()
	lastDayOfMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if targetDay > lastDayOfMonth {
		targetDay = lastDayOfMonth
	}
	return now.Day() >= targetDay
}

var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
}

// GetDuenessChecker returns the checker for frequency.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown autopay frequency: %s", frequency)
	}
	return checker, nil
}
