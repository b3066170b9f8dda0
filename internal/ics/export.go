// Package ics exports schedule views as iCalendar feeds so external
// calendar apps can subscribe to a group's month.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"slotcal/internal/model"
)

const prodID = "-//slotcal//calendar export//EN"

// BuildMonthCalendar renders slot occurrences into a VCALENDAR. Canceled
// slots are exported with a CANCELLED status rather than omitted, so
// subscribing apps drop them from their own copies.
func BuildMonthCalendar(group *model.Group, slots []model.Slot) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetMethod(ical.MethodPublish)
	if group != nil {
		cal.SetXWRCalName(group.Name)
	}

	for _, slot := range slots {
		ev := cal.AddEvent(eventUID(slot))
		ev.SetDtStampTime(slot.UpdatedAt)
		ev.SetStartAt(slot.StartAt)
		ev.SetEndAt(slot.EndAt)
		ev.SetSummary(slot.Title)
		if slot.Content != "" {
			ev.SetDescription(slot.Content)
		}
		switch slot.Status {
		case model.StatusCanceled:
			ev.SetStatus(ical.ObjectStatusCancelled)
		case model.StatusDone:
			ev.SetStatus(ical.ObjectStatusCompleted)
		default:
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return cal
}

// eventUID builds a stable per-occurrence UID. Occurrences of a recurring
// slot share the slot id, so the start time disambiguates them.
func eventUID(slot model.Slot) string {
	return fmt.Sprintf("slot-%d-%s@slotcal", slot.ID, slot.StartAt.UTC().Format(time.RFC3339))
}
