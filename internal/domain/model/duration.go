package model

import (
	"time"

	"vendor-billing/internal/domain"
)

// DurationUnit is the calendar unit a package's coverage is measured in.
type DurationUnit string

const (
	DurationUnitDay   DurationUnit = "day"
	DurationUnitWeek  DurationUnit = "week"
	DurationUnitMonth DurationUnit = "month"
	DurationUnitYear  DurationUnit = "year"
)

func (u DurationUnit) Valid() bool {
	switch u {
	case DurationUnitDay, DurationUnitWeek, DurationUnitMonth, DurationUnitYear:
		return true
	}
	return false
}

// AddDuration adds n units to start using calendar arithmetic.
//
// Month and year additions clamp to the last day of the target month instead
// of overflowing into the next one: Jan 31 + 1 month is Feb 28 (Feb 29 in a
// leap year), and Feb 29 + 1 year is Feb 28. Day and week additions keep the
// wall-clock time in start's location.
func AddDuration(start time.Time, n int, unit DurationUnit) (time.Time, error) {
	if n <= 0 {
		return time.Time{}, domain.ErrInvalidArgument
	}
	switch unit {
	case DurationUnitDay:
		return start.AddDate(0, 0, n), nil
	case DurationUnitWeek:
		return start.AddDate(0, 0, 7*n), nil
	case DurationUnitMonth:
		return addMonthsClamped(start, n), nil
	case DurationUnitYear:
		return addMonthsClamped(start, 12*n), nil
	default:
		return time.Time{}, domain.ErrInvalidArgument
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	// first day of the target month, normalised by time.Date
	first := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
