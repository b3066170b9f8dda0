// Package warm refreshes live-month cache entries on a cron schedule, so
// hot group views rarely pay a record-store round trip even as TTLs lapse.
package warm

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"slotcal/internal/agg"
	appLog "slotcal/internal/log"
	"slotcal/internal/model"
)

// GroupLister is the slice of the record store the warmer needs.
type GroupLister interface {
	ListGroups() ([]model.Group, error)
}

// Warmer periodically recomputes every group's live month views into the
// shared cache.
type Warmer struct {
	agg    *agg.Service
	groups GroupLister
	spec   string
}

// New builds a warmer. spec is a cron schedule expression; an empty spec
// disables Run.
func New(service *agg.Service, groups GroupLister, spec string) *Warmer {
	return &Warmer{agg: service, groups: groups, spec: spec}
}

// Run schedules warming until ctx is canceled.
func (w *Warmer) Run(ctx context.Context) error {
	if w.spec == "" {
		appLog.Info("cache warmer disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	c := cron.New()
	if _, err := c.AddFunc(w.spec, func() { w.WarmAll(ctx) }); err != nil {
		return err
	}

	appLog.Info("cache warmer started", "cron", w.spec)
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

// WarmAll refreshes both live months for every group. Failures are logged
// per group and do not stop the sweep; warming is best-effort by nature.
func (w *Warmer) WarmAll(ctx context.Context) {
	started := time.Now()

	groups, err := w.groups.ListGroups()
	if err != nil {
		appLog.Error("cache warm: listing groups failed", err)
		return
	}

	months := w.agg.LiveMonths()
	warmed := 0
	for _, g := range groups {
		for _, m := range months {
			if err := w.agg.RefreshMonth(ctx, model.ScopeGroup, g.ID, m.Year(), m.Month()); err != nil {
				appLog.Warn("cache warm failed for group", "group_id", g.ID,
					"year", m.Year(), "month", int(m.Month()), "err", err)
				continue
			}
			warmed++
		}
	}

	appLog.Info("cache warm sweep done",
		"groups", len(groups), "views", warmed, "elapsed", time.Since(started).String())
}
