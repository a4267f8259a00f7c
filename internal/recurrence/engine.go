package recurrence

import (
	"errors"
	"time"
)

const hoursPerDay = 24

// ErrWindowTooLarge is returned by Enumerate when the requested window spans
// more days than the caller allows.
var ErrWindowTooLarge = errors.New("occurrence window too large")

// IsOccurrence reports whether the class governed by rule runs on candidate.
// Unknown frequencies match nothing.
func IsOccurrence(rule Rule, candidate time.Time) bool {
	start := Normalize(rule.StartDate)
	day := Normalize(candidate)

	if day.Before(start) {
		return false
	}

	switch rule.Frequency {
	case FrequencyNone:
		return day.Equal(start)
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return rule.hasWeekday(day.Weekday())
	case FrequencyBiWeekly:
		return daysBetween(start, day)%14 < 7 && rule.hasWeekday(day.Weekday())
	case FrequencyMonthly:
		// A start day missing from a month (the 31st in April) never matches,
		// so that month is skipped.
		return day.Day() == start.Day()
	default:
		return false
	}
}

// Enumerate returns every occurrence in [from, to] in ascending order.
// maxDays bounds the window length; zero means unbounded.
func Enumerate(rule Rule, from, to time.Time, maxDays int) ([]time.Time, error) {
	from, to = Normalize(from), Normalize(to)
	if to.Before(from) {
		return []time.Time{}, nil
	}
	if maxDays > 0 && daysBetween(from, to) >= maxDays {
		return nil, ErrWindowTooLarge
	}

	start := Normalize(rule.StartDate)
	if from.Before(start) {
		from = start
	}

	out := make([]time.Time, 0)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsOccurrence(rule, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// HasUpcoming reports whether at least one occurrence falls on or after today.
func HasUpcoming(rule Rule, today time.Time) bool {
	start := Normalize(rule.StartDate)
	today = Normalize(today)

	switch rule.Frequency {
	case FrequencyNone:
		return !start.Before(today)
	case FrequencyDaily, FrequencyMonthly:
		return true
	case FrequencyWeekly, FrequencyBiWeekly:
		return len(rule.DaysOfWeek) > 0
	default:
		return false
	}
}

// daysBetween returns the whole days from a to b; both must be normalised.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / hoursPerDay)
}
