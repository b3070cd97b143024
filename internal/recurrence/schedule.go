// Package recurrence expands recurrence rules into concrete calendar
// occurrences and realizes them into persisted transactions.
package recurrence

import (
	"time"

	"github.com/becauseimclever/budgetexperiment/internal/model"
)

// nthScheduledDate returns the nth natural occurrence date (0-based) of a
// schedule, computed from the anchor each time. Month-based frequencies keep
// the anchor's day-of-month and clamp to the last valid day of the target
// month, so Jan 31 + 1 month is Feb 28 (29 in leap years) and Jan 31 + 2
// months is Mar 31 again.
func nthScheduledDate(rule *model.RecurrenceRule, n int) time.Time {
	anchor := model.DateOnly(rule.AnchorDate)
	step := n * rule.Interval

	switch rule.Frequency {
	case model.FrequencyDaily:
		return anchor.AddDate(0, 0, step)
	case model.FrequencyWeekly:
		return anchor.AddDate(0, 0, step*7)
	case model.FrequencyBiWeekly:
		return anchor.AddDate(0, 0, step*14)
	case model.FrequencyMonthly:
		return addMonthsClamped(anchor, step)
	case model.FrequencyQuarterly:
		return addMonthsClamped(anchor, step*3)
	case model.FrequencyYearly:
		return addMonthsClamped(anchor, step*12)
	}

	// Unreachable for validated rules.
	return anchor
}

// addMonthsClamped adds months to a date, clamping the day-of-month to the
// last valid day of the target month instead of letting time.AddDate spill
// into the following month.
func addMonthsClamped(d time.Time, months int) time.Time {
	year, month, day := d.Date()

	// First day of the target month, then clamp.
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
