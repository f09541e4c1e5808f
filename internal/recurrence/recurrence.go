// Package recurrence expands a savings cadence into the ordered list of due
// dates inside a plan window. It is pure date math with no side effects; the
// plan service calls it when plans are created or amended.
package recurrence

import (
	"time"

	apperrors "moara/internal/errors"
	"moara/internal/models"
)

// Rule describes a cadence to expand. DayOfMonth is required for monthly
// cadence (1-31; occurrences clamp to shorter months), Weekday for weekly.
type Rule struct {
	Cadence    models.Cadence
	DayOfMonth *int
	Weekday    *int
}

// Expand returns every due date of the rule within [start, end], inclusive,
// in ascending order. Dates are normalized to midnight UTC.
func Expand(rule Rule, start, end time.Time) ([]time.Time, error) {
	start = dateOnly(start)
	end = dateOnly(end)
	if end.Before(start) {
		return nil, apperrors.ErrInvalidPlanWindow
	}

	switch rule.Cadence {
	case models.CadenceMonthly:
		if rule.DayOfMonth == nil {
			return nil, apperrors.WithMessage(apperrors.ErrMissingCadenceDay, "monthly cadence requires a day of month")
		}
		if *rule.DayOfMonth < 1 || *rule.DayOfMonth > 31 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "day of month must be between 1 and 31")
		}
		return monthlyDates(*rule.DayOfMonth, start, end), nil
	case models.CadenceWeekly:
		if rule.Weekday == nil {
			return nil, apperrors.WithMessage(apperrors.ErrMissingCadenceDay, "weekly cadence requires a weekday")
		}
		if *rule.Weekday < 0 || *rule.Weekday > 6 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "weekday must be between 0 (Sunday) and 6")
		}
		return weeklyDates(time.Weekday(*rule.Weekday), start, end), nil
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown cadence")
	}
}

// monthlyDates steps month by month from the start's month. The configured
// day is clamped to the last day of months too short to contain it.
func monthlyDates(day int, start, end time.Time) []time.Time {
	var dates []time.Time

	year, month := start.Year(), start.Month()
	for {
		due := clampedDate(year, month, day)
		if due.After(end) {
			break
		}
		if !due.Before(start) {
			dates = append(dates, due)
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return dates
}

// weeklyDates finds the first date on/after start matching the weekday, then
// steps by exactly 7 days.
func weeklyDates(weekday time.Weekday, start, end time.Time) []time.Time {
	offset := (int(weekday) - int(start.Weekday()) + 7) % 7
	due := start.AddDate(0, 0, offset)

	var dates []time.Time
	for !due.After(end) {
		dates = append(dates, due)
		due = due.AddDate(0, 0, 7)
	}
	return dates
}

// clampedDate builds year/month/day, pulling the day back to the month's
// last day when the month is too short. time.Date would normalize overflow
// into the next month instead.
func clampedDate(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
