// Package calendar renders class schedules as iCalendar feeds.
package calendar

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
)

const productID = "classbook"

// Feed builds a calendar with a single all-day recurring event for class.
// Frequency none produces a plain one-off event.
func Feed(class *model.ClassDefinition, stamp time.Time) (*ical.Calendar, error) {
	cal := newCalendar(class)

	ev := cal.AddEvent(eventUID(class, nil))
	describe(ev, class, stamp)
	start := recurrence.Normalize(class.StartDate)

	if class.Frequency != recurrence.FrequencyNone {
		r, err := recurrence.ToRRule(class.Rule())
		if err != nil {
			return nil, err
		}
		// DTSTART counts as the first instance, so it must be a real
		// occurrence. WKST keeps the bi-weekly phase of the original start.
		first := r.After(start, true)
		if first.IsZero() {
			return nil, fmt.Errorf("class %s has no occurrence", class.ID)
		}
		start = first
		ev.AddRrule(r.OrigOptions.RRuleString())
	}

	ev.SetAllDayStartAt(start)
	ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
	return cal, nil
}

// Expanded builds a calendar with one event per occurrence date.
func Expanded(class *model.ClassDefinition, dates []time.Time, stamp time.Time) *ical.Calendar {
	cal := newCalendar(class)
	for _, d := range dates {
		d := recurrence.Normalize(d)
		ev := cal.AddEvent(eventUID(class, &d))
		describe(ev, class, stamp)
		ev.SetAllDayStartAt(d)
		ev.SetAllDayEndAt(d.AddDate(0, 0, 1))
	}
	return cal
}

func newCalendar(class *model.ClassDefinition) *ical.Calendar {
	cal := ical.NewCalendarFor(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetName(class.Title)
	cal.SetXWRCalName(class.Title)
	return cal
}

func describe(ev *ical.VEvent, class *model.ClassDefinition, stamp time.Time) {
	ev.SetDtStampTime(stamp)
	ev.SetSummary(class.Title)
	if class.Description != "" {
		ev.SetDescription(class.Description)
	}
}

func eventUID(class *model.ClassDefinition, date *time.Time) string {
	if date == nil {
		return fmt.Sprintf("%s@%s", class.ID, productID)
	}
	return fmt.Sprintf("%s-%s@%s", class.ID, date.Format("20060102"), productID)
}
