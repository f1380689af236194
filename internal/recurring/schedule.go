// Package recurring computes due obligations from stored schedules and
// drives their unattended settlement at startup.
package recurring

import (
	"time"

	"github.com/casafin/expense-capture/internal/backend"
)

// NextDueDate advances a due date by one period. Monthly advancement clamps
// to the last day of shorter months (Jan 31 -> Feb 28).
func NextDueDate(current time.Time, frequency backend.Frequency) time.Time {
	switch frequency {
	case backend.FrequencyDaily:
		return current.AddDate(0, 0, 1)
	case backend.FrequencyWeekly:
		return current.AddDate(0, 0, 7)
	case backend.FrequencyBiweekly:
		return current.AddDate(0, 0, 14)
	case backend.FrequencyMonthly:
		month := int(current.Month()) + 1
		year := current.Year()
		if month > 12 {
			month = 1
			year++
		}
		day := current.Day()
		if max := daysInMonth(year, time.Month(month)); day > max {
			day = max
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, current.Location())
	default:
		return current.AddDate(0, 0, 30)
	}
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsDue reports whether a schedule's next due date has arrived.
func IsDue(schedule backend.RecurringSchedule, asOf time.Time) bool {
	return schedule.IsActive && !schedule.NextDueDate.After(asOf)
}

// Due filters the schedules that need attention, split by settlement path:
// automatic ones self-execute, manual ones are overdue-debt candidates.
func Due(schedules []backend.RecurringSchedule, asOf time.Time) (automatic, manual []backend.RecurringSchedule) {
	for _, schedule := range schedules {
		if !IsDue(schedule, asOf) {
			continue
		}
		if schedule.IsAutomatic {
			automatic = append(automatic, schedule)
		} else {
			manual = append(manual, schedule)
		}
	}
	return automatic, manual
}
