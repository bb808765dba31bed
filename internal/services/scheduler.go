package services

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chatsuite/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TenantSource lists the tenants the scheduler scans each tick.
type TenantSource interface {
	ListActive(ctx context.Context) ([]models.Tenant, error)
}

// DueLister finds campaigns due at the given weekday and HH:MM.
type DueLister interface {
	ListDue(ctx context.Context, weekday, hhmm string) ([]models.Campaign, error)
}

// TenantStores bundles the per-tenant stores a tick works with.
type TenantStores struct {
	Campaigns CampaignStore
	Due       DueLister
	Messages  MessageStore
}

// StoreProvider resolves a tenant's context and returns stores bound to its
// pooled client. The production provider goes resolver -> client pool ->
// repositories; tests inject fakes.
type StoreProvider func(ctx context.Context, t models.Tenant) (*TenantStores, error)

// Scheduler ticks on a fixed interval and hands due campaigns to the
// dispatcher. Single process, single loop; tenants within a tick fan out
// with bounded parallelism.
type Scheduler struct {
	tenants    TenantSource
	stores     StoreProvider
	dispatcher *Dispatcher
	loc        *time.Location

	interval    time.Duration
	maxTick     time.Duration
	fanOut      int
	log         *zap.Logger
	ticking     atomic.Bool
	now         func() time.Time // test hook
}

func NewScheduler(tenants TenantSource, stores StoreProvider, dispatcher *Dispatcher, loc *time.Location, interval, maxTick time.Duration, fanOut int, log *zap.Logger) *Scheduler {
	if fanOut <= 0 {
		fanOut = 1
	}
	return &Scheduler{
		tenants:    tenants,
		stores:     stores,
		dispatcher: dispatcher,
		loc:        loc,
		interval:   interval,
		maxTick:    maxTick,
		fanOut:     fanOut,
		log:        log,
		now:        time.Now,
	}
}

// Start blocks until ctx is done, ticking every interval.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.String("timezone", s.loc.String()),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick scans every active tenant for due campaigns and dispatches them.
// A single-flight guard skips the tick entirely if the previous one is
// still running, so overlapping scans never double-match a campaign. The
// tick deadline bounds the tenant and due-campaign scans only; a run that
// has started detaches from it inside the dispatcher.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warn("previous tick still running, skipping")
		return
	}
	defer s.ticking.Store(false)

	tickCtx, cancel := context.WithTimeout(ctx, s.maxTick)
	defer cancel()

	now := s.now().In(s.loc)
	weekday := strings.ToLower(now.Weekday().String())
	hhmm := now.Format("15:04")

	tenants, err := s.tenants.ListActive(tickCtx)
	if err != nil {
		s.log.Error("failed to list tenants", zap.Error(err))
		return
	}

	g, gctx := errgroup.WithContext(tickCtx)
	g.SetLimit(s.fanOut)
	for _, t := range tenants {
		t := t
		g.Go(func() error {
			s.runTenant(gctx, t, weekday, hhmm)
			// One tenant's failure must not block the others.
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) runTenant(ctx context.Context, t models.Tenant, weekday, hhmm string) {
	stores, err := s.stores(ctx, t)
	if err != nil {
		s.log.Error("failed to resolve tenant stores",
			zap.String("tenant_id", t.ID.String()),
			zap.Error(err),
		)
		return
	}

	due, err := stores.Due.ListDue(ctx, weekday, hhmm)
	if err != nil {
		s.log.Error("failed to query due campaigns",
			zap.String("tenant_id", t.ID.String()),
			zap.Error(err),
		)
		return
	}

	for _, c := range due {
		s.log.Info("dispatching due campaign",
			zap.String("tenant_id", t.ID.String()),
			zap.String("campaign_id", c.ID.String()),
			zap.String("at", weekday+" "+hhmm),
		)
		if err := s.dispatcher.Run(ctx, stores.Campaigns, stores.Messages, t.ID, c.ID); err != nil {
			// Dispatch-fatal for one campaign; the rest of the tick goes on.
			s.log.Error("campaign run failed",
				zap.String("tenant_id", t.ID.String()),
				zap.String("campaign_id", c.ID.String()),
				zap.Error(err),
			)
		}
	}
}
