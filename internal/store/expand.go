package store

import (
	"time"

	"github.com/teambition/rrule-go"

	"slotcal/internal/model"
)

// maxOccurrencesPerSlot caps expansion so a pathological RRULE cannot blow up
// a month query. A one-month window never legitimately needs more.
const maxOccurrencesPerSlot = 100

// expandOccurrences expands a recurring slot into concrete occurrences whose
// start falls within [start, end). Each occurrence is a copy of the base slot
// with shifted StartAt/EndAt and keeps the base slot's ID, so detail lookups
// and sync messages keep working per slot.
func expandOccurrences(base model.Slot, start, end time.Time) ([]model.Slot, error) {
	r, err := rrule.StrToRRule(base.RRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(base.StartAt)

	// Between is inclusive on both ends; the range contract is half-open,
	// so back the upper bound off by a nanosecond.
	times := r.Between(start, end.Add(-time.Nanosecond), true)
	if len(times) > maxOccurrencesPerSlot {
		times = times[:maxOccurrencesPerSlot]
	}

	duration := base.EndAt.Sub(base.StartAt)

	out := make([]model.Slot, 0, len(times))
	for _, t := range times {
		occ := base
		occ.StartAt = t
		occ.EndAt = t.Add(duration)
		out = append(out, occ)
	}
	return out, nil
}
