package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// rruleWeekdays is indexed by time.Weekday (Sunday first).
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ToRRule converts rule into its RFC 5545 equivalent. The returned rule
// yields exactly the dates IsOccurrence accepts.
func ToRRule(rule Rule) (*rrule.RRule, error) {
	start := Normalize(rule.StartDate)

	opt := rrule.ROption{Dtstart: start}
	switch rule.Frequency {
	case FrequencyNone:
		opt.Freq = rrule.DAILY
		opt.Count = 1
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = toRRuleWeekdays(rule.DaysOfWeek)
	case FrequencyBiWeekly:
		// Weeks begin on the start date's weekday so that the first active
		// week is [start, start+7).
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
		opt.Wkst = rruleWeekdays[start.Weekday()]
		opt.Byweekday = toRRuleWeekdays(rule.DaysOfWeek)
	case FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{start.Day()}
	default:
		return nil, fmt.Errorf("%w: unsupported frequency %q", ErrInvalidRule, rule.Frequency)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	return r, nil
}

func toRRuleWeekdays(days []int) []rrule.Weekday {
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)

	out := make([]rrule.Weekday, 0, len(sorted))
	for i, d := range sorted {
		if i > 0 && sorted[i-1] == d {
			continue
		}
		out = append(out, rruleWeekdays[time.Weekday(d)])
	}
	return out
}
