package ics

import (
	"strings"
	"testing"
	"time"

	"slotcal/internal/model"
)

func exportSlots(t *testing.T, slots []model.Slot) string {
	t.Helper()
	group := &model.Group{ID: 42, Name: "design"}
	return BuildMonthCalendar(group, slots).Serialize()
}

func juneSlot(id int64, status model.Status) model.Slot {
	start := time.Date(2025, time.June, 5, 10, 0, 0, 0, time.UTC)
	return model.Slot{
		ID:        id,
		GroupID:   42,
		UserID:    9,
		Title:     "standup",
		Content:   "daily sync",
		StartAt:   start,
		EndAt:     start.Add(30 * time.Minute),
		Status:    status,
		UpdatedAt: start,
	}
}

func TestBuildMonthCalendar(t *testing.T) {
	out := exportSlots(t, []model.Slot{juneSlot(7, model.StatusPlanned)})

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"X-WR-CALNAME:design",
		"UID:slot-7-2025-06-05T10:00:00Z@slotcal",
		"SUMMARY:standup",
		"DESCRIPTION:daily sync",
		"STATUS:CONFIRMED",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("serialized calendar missing %q:\n%s", want, out)
		}
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status model.Status
		want   string
	}{
		{model.StatusPlanned, "STATUS:CONFIRMED"},
		{model.StatusDone, "STATUS:COMPLETED"},
		{model.StatusCanceled, "STATUS:CANCELLED"},
	}

	for _, tt := range tests {
		out := exportSlots(t, []model.Slot{juneSlot(7, tt.status)})
		if !strings.Contains(out, tt.want) {
			t.Errorf("status %s: calendar missing %q", tt.status, tt.want)
		}
	}
}

func TestRecurringOccurrencesGetDistinctUIDs(t *testing.T) {
	a := juneSlot(7, model.StatusPlanned)
	b := a
	b.StartAt = a.StartAt.AddDate(0, 0, 7)
	b.EndAt = a.EndAt.AddDate(0, 0, 7)

	out := exportSlots(t, []model.Slot{a, b})

	if !strings.Contains(out, "UID:slot-7-2025-06-05T10:00:00Z@slotcal") ||
		!strings.Contains(out, "UID:slot-7-2025-06-12T10:00:00Z@slotcal") {
		t.Errorf("occurrences of one slot must carry distinct UIDs:\n%s", out)
	}
}

func TestEmptyDescriptionOmitted(t *testing.T) {
	slot := juneSlot(7, model.StatusPlanned)
	slot.Content = ""

	out := exportSlots(t, []model.Slot{slot})
	if strings.Contains(out, "DESCRIPTION") {
		t.Error("empty content must not emit a DESCRIPTION property")
	}
}
