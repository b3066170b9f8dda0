package notify

import (
	"context"
	"time"

	"slotcal/internal/cache"
	appLog "slotcal/internal/log"
	"slotcal/internal/model"
)

// Dispatcher is invoked by write paths immediately after a mutation commits.
// It maps the mutation kind to cache evictions and sync messages.
//
// Evictions and publishes are two independent external calls with no
// transactional link. Failures of either are logged and swallowed: the write
// that triggered them has already committed and must not fail, and the
// cache TTL bounds the staleness a lost eviction or message can cause.
type Dispatcher struct {
	cache cache.Store
	bus   Publisher
	loc   *time.Location
}

// NewDispatcher builds a dispatcher. loc is the canonical calendar zone used
// to place a slot's timestamps into a year/month/day; it must match the zone
// the aggregation service groups by, or evictions hit the wrong keys.
func NewDispatcher(c cache.Store, bus Publisher, loc *time.Location) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{cache: c, bus: bus, loc: loc}
}

// SlotCreated handles a new slot: the month view gains an entry, so the
// month key is evicted and both coarse variants are broadcast.
func (d *Dispatcher) SlotCreated(ctx context.Context, slot *model.Slot) {
	y, m, day := d.civil(slot.StartAt)
	d.evictMonth(ctx, slot, y, m)
	if slot.GroupID != 0 {
		d.publish(ctx,
			MonthSync{GroupID: slot.GroupID, Year: y, Month: m},
			DaySync{GroupID: slot.GroupID, Year: y, Month: m, Day: day},
		)
	}
}

// SlotUpdated handles a full update (time, importance or status changed
// materially): evict the month key and broadcast all three variants.
func (d *Dispatcher) SlotUpdated(ctx context.Context, slot *model.Slot) {
	y, m, day := d.civil(slot.StartAt)
	d.evictMonth(ctx, slot, y, m)
	if slot.GroupID != 0 {
		d.publish(ctx,
			MonthSync{GroupID: slot.GroupID, Year: y, Month: m},
			DaySync{GroupID: slot.GroupID, Year: y, Month: m, Day: day},
			DetailSync{GroupID: slot.GroupID, SlotID: slot.ID},
		)
	}
}

// ContentEdited handles a detail-only edit. Cached month summaries do not
// show the content, so no eviction: the TTL bounds how long a cached
// summary may disagree with the detail view.
func (d *Dispatcher) ContentEdited(ctx context.Context, slot *model.Slot) {
	if slot.GroupID != 0 {
		d.publish(ctx, DetailSync{GroupID: slot.GroupID, SlotID: slot.ID})
	}
}

// EditorAssigned handles an editor-assignment mutation. A newly granted
// editor changes what day views render, so the day variant goes out too;
// re-granting an existing editor only refreshes the detail.
func (d *Dispatcher) EditorAssigned(ctx context.Context, slot *model.Slot, granted bool) {
	if slot.GroupID == 0 {
		return
	}
	if granted {
		y, m, day := d.civil(slot.StartAt)
		d.publish(ctx,
			DaySync{GroupID: slot.GroupID, Year: y, Month: m, Day: day},
			DetailSync{GroupID: slot.GroupID, SlotID: slot.ID},
		)
		return
	}
	d.publish(ctx, DetailSync{GroupID: slot.GroupID, SlotID: slot.ID})
}

// evictMonth deletes the month view key covering the slot. Group slots evict
// the group view; personal slots evict the personal view. Merged MY_GROUP
// views are left to their TTL: they are per-member, and enumerating every
// member on each write would turn one eviction into N.
func (d *Dispatcher) evictMonth(ctx context.Context, slot *model.Slot, y int, m time.Month) {
	var key cache.ViewKey
	if slot.GroupID != 0 {
		key = cache.GroupKey(slot.GroupID, y, m)
	} else {
		key = cache.MyKey(slot.UserID, y, m)
	}

	if err := d.cache.Del(ctx, key.String()); err != nil {
		appLog.Warn("cache eviction failed; TTL will cover it",
			"key", key.String(), "err", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, msgs ...Message) {
	for _, msg := range msgs {
		payload, err := msg.Payload()
		if err != nil {
			appLog.Error("sync message marshal failed", err)
			continue
		}
		if err := d.bus.Publish(ctx, payload); err != nil {
			appLog.Warn("sync publish failed; subscribers will catch up on TTL",
				"destination", msg.Destination(), "err", err)
		}
	}
}

func (d *Dispatcher) civil(t time.Time) (int, time.Month, int) {
	local := t.In(d.loc)
	return local.Year(), local.Month(), local.Day()
}
