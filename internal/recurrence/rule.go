// Package recurrence decides which calendar dates a recurring class runs on.
//
// All dates are naive calendar dates. They are carried as time.Time values
// normalised to midnight UTC so that whole-day arithmetic is exact.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency is the repetition pattern of a class.
type Frequency string

const (
	FrequencyNone     Frequency = "none"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiWeekly Frequency = "bi-weekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Known reports whether f is one of the supported frequencies.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// RequiresDays reports whether the frequency is driven by a weekday set.
func (f Frequency) RequiresDays() bool {
	return f == FrequencyWeekly || f == FrequencyBiWeekly
}

// Rule is the (start date, frequency, weekdays) tuple of a class.
// DaysOfWeek uses 0 = Sunday ... 6 = Saturday.
type Rule struct {
	StartDate  time.Time
	Frequency  Frequency
	DaysOfWeek []int
}

// ErrInvalidRule is matched by every error returned from Rule.Validate.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// RuleError names the offending rule field.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *RuleError) Is(target error) bool { return target == ErrInvalidRule }

// Validate checks the rule before it is persisted. The engine itself never
// validates; it assumes rules that passed here.
func (r Rule) Validate() error {
	if r.StartDate.IsZero() {
		return &RuleError{Field: "date", Reason: "start date is required"}
	}
	if !r.Frequency.Known() {
		return &RuleError{Field: "frequency", Reason: fmt.Sprintf("unsupported frequency %q", r.Frequency)}
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return &RuleError{Field: "days", Reason: fmt.Sprintf("weekday %d out of range 0-6", d)}
		}
	}
	if r.Frequency.RequiresDays() && len(r.DaysOfWeek) == 0 {
		return &RuleError{Field: "days", Reason: "at least one weekday is required for " + string(r.Frequency)}
	}
	return nil
}

// Normalized returns a copy with the start date reduced to its calendar day.
func (r Rule) Normalized() Rule {
	out := r
	out.StartDate = Normalize(r.StartDate)
	return out
}

func (r Rule) hasWeekday(wd time.Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if d == int(wd) {
			return true
		}
	}
	return false
}

// Normalize strips the time-of-day from t, keeping the calendar date as seen
// in t's own location.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// normalised calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return Normalize(t), nil
}

// FormatDate renders a date in DateLayout.
func FormatDate(t time.Time) string {
	return Normalize(t).Format(DateLayout)
}
