// Package agg assembles month and day schedule views. Month views follow the
// cache-aside pattern against the shared view cache; day views always read
// the record store fresh.
package agg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"slotcal/internal/cache"
	appLog "slotcal/internal/log"
	"slotcal/internal/model"
)

// ErrAccessDenied is returned when the requester is not authorized for the
// scope/owner. Authorization fails closed.
var ErrAccessDenied = errors.New("access denied")

// RecordStore is the slice of the record store the aggregation needs:
// membership checks and dated range queries. Queries return occurrences in
// the store's natural order (start time, then id), which is the order
// equal-importance slots keep in month views.
type RecordStore interface {
	IsMember(groupID, userID int64) (bool, error)
	SlotsForGroupRange(groupID int64, start, end time.Time) ([]model.Slot, error)
	SlotsForUserRange(userID int64, start, end time.Time) ([]model.Slot, error)
	SlotsForUserGroupsRange(userID int64, start, end time.Time) ([]model.Slot, error)
	ListEditors(slotID int64) ([]model.SlotEditor, error)
}

// Service answers schedule reads.
type Service struct {
	store RecordStore
	cache cache.Store
	loc   *time.Location

	groupTTL time.Duration
	myTTL    time.Duration

	// now is overridable so tests can pin the live-month window.
	now func() time.Time
}

// New builds the aggregation service. groupTTL applies to GROUP and MY_GROUP
// views, myTTL to personal ones.
func New(store RecordStore, c cache.Store, loc *time.Location, groupTTL, myTTL time.Duration) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:    store,
		cache:    c,
		loc:      loc,
		groupTTL: groupTTL,
		myTTL:    myTTL,
		now:      time.Now,
	}
}

// GetMonth returns the aggregated month view for one scope/owner. Live
// months (the current calendar month and the next) are served from and
// populated into the shared cache; any other month bypasses the cache
// entirely. A month with no slots is a normal empty view, not an error.
func (s *Service) GetMonth(ctx context.Context, scope model.Scope, ownerID int64, year int, month time.Month, requesterID int64) ([]model.MonthDay, error) {
	if err := s.authorize(scope, ownerID, requesterID); err != nil {
		return nil, err
	}

	live := s.isLive(year, month)
	key := cache.ViewKey{Scope: scope, OwnerID: ownerID, Year: year, Month: month}.String()

	if live {
		if cached, ok := s.cacheGet(ctx, key); ok {
			return cached, nil
		}
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0)

	slots, err := s.querySlots(scope, ownerID, start, end)
	if err != nil {
		return nil, err
	}

	days := BuildMonthDays(slots, s.loc)

	if live {
		s.cacheSet(ctx, key, scope, days)
	}
	return days, nil
}

// GetDay returns every slot on one date, unsummarized. Day views are never
// cached: they are requested far less often than month views and must show
// per-slot editor detail. Group-owned slots carry their editor annotations.
func (s *Service) GetDay(ctx context.Context, scope model.Scope, ownerID int64, year int, month time.Month, day int, requesterID int64) (model.DayView, error) {
	if err := s.authorize(scope, ownerID, requesterID); err != nil {
		return model.DayView{}, err
	}

	start := time.Date(year, month, day, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)

	slots, err := s.querySlots(scope, ownerID, start, end)
	if err != nil {
		return model.DayView{}, err
	}

	view := model.DayView{Date: start, SlotCount: len(slots)}
	for _, slot := range slots {
		ds := model.DaySlot{Slot: slot}
		if slot.GroupID != 0 {
			editors, err := s.store.ListEditors(slot.ID)
			if err != nil {
				return model.DayView{}, fmt.Errorf("editors for slot %d: %w", slot.ID, err)
			}
			ds.Editors = editors
		}
		view.Slots = append(view.Slots, ds)
	}
	return view, nil
}

// RefreshMonth recomputes a live month view from the record store and writes
// it into the cache unconditionally, skipping the read side of cache-aside.
// The cron warmer uses this to renew entries before their TTL lapses; for
// non-live months it is a no-op.
func (s *Service) RefreshMonth(ctx context.Context, scope model.Scope, ownerID int64, year int, month time.Month) error {
	if !s.isLive(year, month) {
		return nil
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0)

	slots, err := s.querySlots(scope, ownerID, start, end)
	if err != nil {
		return err
	}

	key := cache.ViewKey{Scope: scope, OwnerID: ownerID, Year: year, Month: month}.String()
	s.cacheSet(ctx, key, scope, BuildMonthDays(slots, s.loc))
	return nil
}

// LiveMonths returns the months currently eligible for caching: this month
// and the next, in the service's calendar zone.
func (s *Service) LiveMonths() [2]time.Time {
	now := s.now().In(s.loc)
	this := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	return [2]time.Time{this, this.AddDate(0, 1, 0)}
}

func (s *Service) authorize(scope model.Scope, ownerID, requesterID int64) error {
	switch scope {
	case model.ScopeGroup:
		ok, err := s.store.IsMember(ownerID, requesterID)
		if err != nil {
			return fmt.Errorf("membership check: %w", err)
		}
		if !ok {
			return ErrAccessDenied
		}
		return nil
	case model.ScopeMy, model.ScopeMyGroup:
		if ownerID != requesterID {
			return ErrAccessDenied
		}
		return nil
	default:
		return ErrAccessDenied
	}
}

func (s *Service) querySlots(scope model.Scope, ownerID int64, start, end time.Time) ([]model.Slot, error) {
	switch scope {
	case model.ScopeGroup:
		return s.store.SlotsForGroupRange(ownerID, start, end)
	case model.ScopeMy:
		return s.store.SlotsForUserRange(ownerID, start, end)
	case model.ScopeMyGroup:
		return s.store.SlotsForUserGroupsRange(ownerID, start, end)
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
}

// isLive reports whether the month is the current one or the one immediately
// following, in the service's calendar zone. Only live months touch the
// cache, which bounds the staleness window to operationally hot data.
func (s *Service) isLive(year int, month time.Month) bool {
	now := s.now().In(s.loc)
	this := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	next := this.AddDate(0, 1, 0)
	requested := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	return requested.Equal(this) || requested.Equal(next)
}

// cacheGet returns the cached view on a hit. Backend errors and undecodable
// values degrade to a miss: the record store is the source of truth.
func (s *Service) cacheGet(ctx context.Context, key string) ([]model.MonthDay, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		appLog.Warn("cache get failed; falling through to record store", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var days []model.MonthDay
	if err := json.Unmarshal(raw, &days); err != nil {
		appLog.Warn("cached view undecodable; treating as miss", "key", key, "err", err)
		return nil, false
	}
	return days, true
}

// cacheSet populates the cache. Racing writers store the same idempotent
// value, so no locking; failures are logged and the read still succeeds.
func (s *Service) cacheSet(ctx context.Context, key string, scope model.Scope, days []model.MonthDay) {
	raw, err := json.Marshal(days)
	if err != nil {
		appLog.Error("month view marshal failed", err, "key", key)
		return
	}

	ttl := s.groupTTL
	if scope == model.ScopeMy {
		ttl = s.myTTL
	}

	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		appLog.Warn("cache set failed; next read goes to record store", "key", key, "err", err)
	}
}

// BuildMonthDays reduces raw slot occurrences into the compact per-day view:
// slots grouped by calendar day in loc, sorted by descending importance with
// a stable sort (equal importances keep store order), at most two summaries
// kept, and SlotCount always the full per-day total.
func BuildMonthDays(slots []model.Slot, loc *time.Location) []model.MonthDay {
	byDay := make(map[time.Time][]model.Slot)
	for _, slot := range slots {
		local := slot.StartAt.In(loc)
		date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		byDay[date] = append(byDay[date], slot)
	}

	dates := make([]time.Time, 0, len(byDay))
	for date := range byDay {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	days := make([]model.MonthDay, 0, len(dates))
	for _, date := range dates {
		daySlots := byDay[date]
		sort.SliceStable(daySlots, func(i, j int) bool {
			return daySlots[i].Importance.Rank() > daySlots[j].Importance.Rank()
		})

		top := daySlots
		if len(top) > 2 {
			top = top[:2]
		}

		summaries := make([]model.SlotSummary, 0, len(top))
		for _, slot := range top {
			summaries = append(summaries, model.SlotSummary{
				SlotID:     slot.ID,
				Title:      slot.Title,
				StartAt:    slot.StartAt,
				Importance: slot.Importance,
			})
		}

		days = append(days, model.MonthDay{
			Date:      date,
			SlotCount: len(daySlots),
			TopSlots:  summaries,
		})
	}
	return days
}
