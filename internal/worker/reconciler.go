package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"shuttle-tracker/internal/feed"
	"shuttle-tracker/internal/metrics"
	"shuttle-tracker/internal/model"
	"shuttle-tracker/internal/stats"
	"shuttle-tracker/internal/store"
)

// Reconciler ingests the live vehicle feed for a tenant, maintains the
// cached vehicle snapshot, opens schedule records and appends movement
// history. One Run per tenant per tick; the runner guarantees at most
// one in-flight run per tenant.
type Reconciler struct {
	store   ScheduleStore
	cache   SnapshotCache
	feeds   feed.Factory
	metrics *metrics.Collector
	logger  *log.Logger

	now              func() time.Time
	concurrency      int
	completeDeparted bool
}

// ReconcilerOption configures optional behaviour.
type ReconcilerOption func(*Reconciler)

// WithReconcilerClock overrides the wall clock.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithReconcilerLogger overrides the logger.
func WithReconcilerLogger(l *log.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// WithReconcilerMetrics attaches the collector.
func WithReconcilerMetrics(m *metrics.Collector) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithConcurrency bounds the per-vehicle fan-out.
func WithConcurrency(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithDepartureCompletion enables marking schedules finished when a
// vehicle disappears from the live feed.
func WithDepartureCompletion(enabled bool) ReconcilerOption {
	return func(r *Reconciler) { r.completeDeparted = enabled }
}

func NewReconciler(st ScheduleStore, cache SnapshotCache, feeds feed.Factory, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:       st,
		cache:       cache,
		feeds:       feeds,
		logger:      log.New(log.Writer(), "[reconciler] ", log.LstdFlags),
		now:         time.Now,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one reconciliation tick for the tenant.
func (r *Reconciler) Run(ctx context.Context, tenant store.Tenant) error {
	adapter := r.feeds(tenant)
	live, err := adapter.Vehicles(ctx)
	if err != nil {
		return fmt.Errorf("vehicle feed for tenant %s: %w", tenant.ID, err)
	}

	// Cache miss or read error means an empty snapshot: fail-open.
	snapshot, err := r.cache.TenantVehicles(tenant.ID)
	if err != nil {
		r.logger.Printf("snapshot read for tenant %s failed, assuming empty: %v", tenant.ID, err)
		snapshot = nil
	}
	prior := make(map[string]*model.VehicleSnapshotEntry, len(snapshot))
	for i := range snapshot {
		prior[snapshot[i].Name] = &snapshot[i]
	}

	now := r.now()
	guard, err := r.newScheduleGuard(ctx, tenant, now)
	if err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		updated = make(map[string]model.VehicleSnapshotEntry, len(live))
	)
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, v := range live {
		wg.Add(1)
		sem <- struct{}{}
		go func(v model.VehiclePosition) {
			defer wg.Done()
			defer func() { <-sem }()
			entry, err := r.processVehicle(ctx, tenant, v, prior[v.Name], guard, now)
			if err != nil {
				// Contained: one vehicle failing never aborts the tick.
				r.logger.Printf("vehicle %s (tenant %s): %v", v.Name, tenant.ID, err)
				if r.metrics != nil {
					r.metrics.VehicleErrors.Inc()
				}
				mu.Lock()
				if p := prior[v.Name]; p != nil {
					updated[v.Name] = *p
				}
				mu.Unlock()
				return
			}
			if r.metrics != nil {
				r.metrics.VehiclesProcessed.Inc()
			}
			mu.Lock()
			updated[v.Name] = entry
			mu.Unlock()
		}(v)
	}
	wg.Wait()

	if err := r.cache.StoreOnlineRoutes(tenant.ID, distinctRouteTags(live)); err != nil {
		r.logger.Printf("online routes write for tenant %s: %v", tenant.ID, err)
	}

	keep := make([]model.VehicleSnapshotEntry, 0, len(updated))
	liveNames := make(map[string]bool, len(live))
	for _, v := range live {
		liveNames[v.Name] = true
		if entry, ok := updated[v.Name]; ok {
			keep = append(keep, entry)
		}
	}
	var departed []model.VehicleSnapshotEntry
	for i := range snapshot {
		if !liveNames[snapshot[i].Name] {
			departed = append(departed, snapshot[i])
		}
	}
	r.completeDepartedSchedules(ctx, tenant, departed, now)

	if err := r.cache.StoreTenantVehicles(tenant.ID, keep); err != nil {
		return fmt.Errorf("snapshot write for tenant %s: %w", tenant.ID, err)
	}
	return nil
}

func (r *Reconciler) processVehicle(ctx context.Context, tenant store.Tenant, v model.VehiclePosition, prior *model.VehicleSnapshotEntry, guard *scheduleGuard, now time.Time) (model.VehicleSnapshotEntry, error) {
	if err := r.store.EnsureBus(ctx, v.ID, tenant.ID); err != nil {
		return model.VehicleSnapshotEntry{}, err
	}

	route, err := r.store.RouteByServiceTag(ctx, v.RouteTag, tenant.ID)
	if err != nil {
		return model.VehicleSnapshotEntry{}, err
	}
	if route == nil {
		// Missing mapping skips the schedule and history steps only.
		r.logger.Printf("no route mapping for tag %q (tenant %s), skipping schedule for bus %d", v.RouteTag, tenant.ID, v.ID)
	} else if err := guard.ensure(ctx, v.ID, route.ID); err != nil {
		return model.VehicleSnapshotEntry{}, err
	}

	if prior == nil {
		return model.VehicleSnapshotEntry{VehiclePosition: v}, nil
	}

	entry := *prior
	if entry.Lat != v.Lat || entry.Lon != v.Lon {
		if route != nil {
			frame := model.NewMovementFrame(v.ID, route.ID, tenant.ID, now, v.Lat, v.Lon, v.Speed, now)
			if err := r.store.AddHistoryFrame(ctx, frame); err != nil {
				return model.VehicleSnapshotEntry{}, err
			}
			if r.metrics != nil {
				r.metrics.HistoryFrames.Inc()
			}
		}
		entry.VehiclePosition = v
		entry.Resume()
		return entry, nil
	}

	// Position unchanged.
	entry.LastUpdated = v.LastUpdated
	if v.Speed == 0 {
		if entry.StationarySince == nil {
			t := now
			entry.StationarySince = &t
		}
		if !entry.OnBreak && stats.OnBreak(entry.StationaryFor(now)) {
			entry.StartBreak(now)
			if r.metrics != nil {
				r.metrics.BreaksFlagged.Inc()
			}
		}
	} else if entry.OnBreak || entry.StationarySince != nil {
		entry.Resume()
	}
	return entry, nil
}

// completeDepartedSchedules marks schedules finished for vehicles that
// left the live feed. With the toggle off this is deliberately a no-op:
// schedules stay open, matching long-standing production behaviour.
func (r *Reconciler) completeDepartedSchedules(ctx context.Context, tenant store.Tenant, departed []model.VehicleSnapshotEntry, now time.Time) {
	if !r.completeDeparted {
		return
	}
	for _, e := range departed {
		route, err := r.store.RouteByServiceTag(ctx, e.RouteTag, tenant.ID)
		if err != nil || route == nil {
			r.logger.Printf("departed bus %d (tenant %s): route tag %q unresolved", e.ID, tenant.ID, e.RouteTag)
			continue
		}
		if err := r.store.CompleteSchedule(ctx, e.ID, route.ID, tenant.ID, now); err != nil {
			r.logger.Printf("departed bus %d (tenant %s): %v", e.ID, tenant.ID, err)
		}
	}
}

// scheduleGuard serialises exists-or-create checks against today's
// unfinished schedules so a (bus, route) pair is created at most once
// per tick even with the fan-out racing.
type scheduleGuard struct {
	r      *Reconciler
	tenant store.Tenant
	date   time.Time

	mu     sync.Mutex
	exists map[scheduleKey]bool
}

type scheduleKey struct {
	busID   int64
	routeID string
}

func (r *Reconciler) newScheduleGuard(ctx context.Context, tenant store.Tenant, date time.Time) (*scheduleGuard, error) {
	active, err := r.store.ActiveSchedules(ctx, date, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("active schedules for tenant %s: %w", tenant.ID, err)
	}
	exists := make(map[scheduleKey]bool, len(active))
	for _, e := range active {
		exists[scheduleKey{e.BusID, e.RouteID}] = true
	}
	return &scheduleGuard{r: r, tenant: tenant, date: date, exists: exists}, nil
}

func (g *scheduleGuard) ensure(ctx context.Context, busID int64, routeID string) error {
	key := scheduleKey{busID, routeID}
	g.mu.Lock()
	if g.exists[key] {
		g.mu.Unlock()
		return nil
	}
	g.exists[key] = true
	g.mu.Unlock()

	if err := g.r.store.AddSchedule(ctx, busID, routeID, g.tenant.ID, g.date); err != nil {
		g.mu.Lock()
		delete(g.exists, key)
		g.mu.Unlock()
		return err
	}
	if g.r.metrics != nil {
		g.r.metrics.SchedulesCreated.Inc()
	}
	return nil
}

func distinctRouteTags(live []model.VehiclePosition) []string {
	seen := make(map[string]bool, len(live))
	tags := make([]string, 0, len(live))
	for _, v := range live {
		if v.RouteTag == "" || seen[v.RouteTag] {
			continue
		}
		seen[v.RouteTag] = true
		tags = append(tags, v.RouteTag)
	}
	return tags
}
