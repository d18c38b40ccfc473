package worker

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"shuttle-tracker/internal/feed"
	"shuttle-tracker/internal/metrics"
	"shuttle-tracker/internal/model"
	"shuttle-tracker/internal/notify"
	"shuttle-tracker/internal/store"
)

// lateDrift is the tolerance between the tracked frame's arrival time
// and the recorded expected time before lateness handling kicks in.
const lateDrift = 5 * time.Minute

// ReminderEngine advances every outstanding arrival reminder of a
// tenant through one poll of its state machine. Each reminder is
// independent; a poll either persists exactly one row update or, on a
// transient failure, writes nothing and is retried next tick.
type ReminderEngine struct {
	store    ReminderStore
	cache    SnapshotReader
	feeds    feed.Factory
	notifier Notifier
	metrics  *metrics.Collector
	logger   *log.Logger

	now         func() time.Time
	tz          *time.Location
	concurrency int
}

// ReminderOption configures optional behaviour.
type ReminderOption func(*ReminderEngine)

// WithReminderClock overrides the wall clock.
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(e *ReminderEngine) { e.now = now }
}

// WithReminderLogger overrides the logger.
func WithReminderLogger(l *log.Logger) ReminderOption {
	return func(e *ReminderEngine) { e.logger = l }
}

// WithReminderMetrics attaches the collector.
func WithReminderMetrics(m *metrics.Collector) ReminderOption {
	return func(e *ReminderEngine) { e.metrics = m }
}

// WithReminderConcurrency bounds the per-reminder fan-out.
func WithReminderConcurrency(n int) ReminderOption {
	return func(e *ReminderEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithReminderLocation sets the timezone expected times are stored in.
func WithReminderLocation(loc *time.Location) ReminderOption {
	return func(e *ReminderEngine) { e.tz = loc }
}

func NewReminderEngine(st ReminderStore, cache SnapshotReader, feeds feed.Factory, notifier Notifier, opts ...ReminderOption) *ReminderEngine {
	e := &ReminderEngine{
		store:       st,
		cache:       cache,
		feeds:       feeds,
		notifier:    notifier,
		logger:      log.New(log.Writer(), "[reminders] ", log.LstdFlags),
		now:         time.Now,
		tz:          time.Local,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run polls every active reminder for the tenant once.
func (e *ReminderEngine) Run(ctx context.Context, tenant store.Tenant) error {
	reminders, err := e.store.ActiveReminders(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("active reminders for tenant %s: %w", tenant.ID, err)
	}
	adapter := e.feeds(tenant)

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for _, r := range reminders {
		wg.Add(1)
		sem <- struct{}{}
		go func(r model.Reminder) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := e.poll(ctx, tenant, adapter, r); err != nil {
				// Contained: nothing was written, retried next tick.
				e.logger.Printf("reminder %d (tenant %s): %v", r.ID, tenant.ID, err)
				if e.metrics != nil {
					e.metrics.ReminderErrors.Inc()
				}
				return
			}
			if e.metrics != nil {
				e.metrics.RemindersProcessed.Inc()
			}
		}(r)
	}
	wg.Wait()
	return nil
}

// poll advances one reminder through a single transition of the state
// machine. A returned error means nothing was persisted.
func (e *ReminderEngine) poll(ctx context.Context, tenant store.Tenant, adapter feed.Adapter, r model.Reminder) error {
	if r.State.Halted {
		return nil
	}

	route, err := e.store.RouteByID(ctx, r.RouteID, tenant.ID)
	if err != nil {
		return err
	}
	stop, err := e.store.StopByID(ctx, r.StopID, tenant.ID)
	if err != nil {
		return err
	}
	if route == nil || stop == nil {
		return fmt.Errorf("missing route/stop mapping (route=%s stop=%s)", r.RouteID, r.StopID)
	}

	set, err := adapter.ArrivalEstimates(ctx, route.ServiceTag, []string{stop.ServiceTag})
	if err != nil {
		return err
	}
	estimates := set.For(stop.ServiceTag, route.ServiceTag)

	if len(estimates) == 0 {
		return e.handleEmptySequence(ctx, tenant, &r, stop)
	}

	// A stored row may carry a target with no expected time; both
	// columns are independently nullable. Such a row cannot be tracked
	// against anything, so it locks onto the sequence afresh.
	var active model.ArrivalEstimate
	if !r.HasTarget() || r.ExpectedAt == nil {
		active = e.adopt(&r, estimates, 0)
	} else {
		active = e.track(&r, estimates)
	}

	e.checkBreak(tenant, &r)

	now := e.now()
	r.LocalEstimateMinutes = int(math.Abs(r.ExpectedAt.Sub(now).Minutes()))
	if !r.State.Armed {
		// First successful poll arms the reminder; lateness and remind
		// checks start on the next one.
		r.State.Armed = true
	} else {
		gap := active.ArriveAt.Sub(*r.ExpectedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > lateDrift {
			e.raiseLate(&r, int(gap.Minutes()))
		} else {
			r.State.ClearLate()
		}
		if r.LocalEstimateMinutes <= r.DurationMinutes {
			e.raiseRemind(&r, now)
		}
	}
	return e.persist(ctx, &r)
}

// handleEmptySequence covers the branch where the vendor returns no
// arrival estimates: either the tracked vehicle is on a break, or no
// vehicle is servicing the stop at all (terminal).
func (e *ReminderEngine) handleEmptySequence(ctx context.Context, tenant store.Tenant, r *model.Reminder, stop *store.Stop) error {
	snapshot, err := e.cache.TenantVehicles(tenant.ID)
	if err != nil {
		return fmt.Errorf("snapshot read: %w", err)
	}
	if target := findByID(snapshot, r.Target); r.HasTarget() && target != nil && target.OnBreak {
		e.raiseBreak(r)
		return e.persist(ctx, r)
	}

	e.dispatch(r, notify.KindNoVehicle, "No shuttles running",
		fmt.Sprintf("No vehicles are currently servicing %s. Your reminder has been closed.", stop.Name), nil)
	r.Complete = true
	return e.persist(ctx, r)
}

// adopt locks onto the estimate at idx as the tracked target.
func (e *ReminderEngine) adopt(r *model.Reminder, estimates []model.ArrivalEstimate, idx int) model.ArrivalEstimate {
	est := estimates[idx]
	r.Target = est.VehicleID
	t := est.ArriveAt
	r.ExpectedAt = &t
	r.State.Rank = idx
	return est
}

// track locates the target in the freshly fetched sequence, resolving
// stale ranks, schedule drift and outright loss. A target still sitting
// at its recorded rank passes straight through; its lateness, if any,
// is handled by the armed-phase check.
func (e *ReminderEngine) track(r *model.Reminder, estimates []model.ArrivalEstimate) model.ArrivalEstimate {
	st := &r.State
	prev := st.Rank

	if prev >= 0 && prev < len(estimates) && estimates[prev].VehicleID == r.Target {
		st.ClearUnknownCause()
		return estimates[prev]
	}

	// Stale rank: the sequence shifted under us.
	idx := -1
	for i := range estimates {
		if estimates[i].VehicleID == r.Target {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Target vanished from the whole sequence.
		e.raiseUnknownCause(r)
		return e.adopt(r, estimates, 0)
	}
	st.Rank = idx
	// Tracked again: the loss condition, if any, is over.
	st.ClearUnknownCause()

	expected := *r.ExpectedAt
	drift := estimates[idx].ArriveAt.Sub(expected)
	if drift < 0 {
		drift = -drift
	}
	if drift <= lateDrift {
		return estimates[idx]
	}

	// The matched frame drifted. Prefer an earlier rank closer to the
	// recorded expected time; the target does not change.
	best, bestGap := -1, lateDrift
	for i := 0; i < prev && i < len(estimates); i++ {
		gap := estimates[i].ArriveAt.Sub(expected)
		if gap < 0 {
			gap = -gap
		}
		if gap <= bestGap {
			best, bestGap = i, gap
		}
	}
	if best >= 0 {
		st.Rank = best
		return estimates[best]
	}

	// Otherwise look for the same target reappearing further out: the
	// vendor moved it to a later run.
	for i := prev + 1; i < len(estimates); i++ {
		if estimates[i].VehicleID == r.Target {
			e.dispatch(r, notify.KindEarly, "Shuttle rescheduled",
				"Your shuttle was moved to a later arrival; the reminder now tracks its new time.", nil)
			st.Rank = i
			t := estimates[i].ArriveAt
			r.ExpectedAt = &t
			return estimates[i]
		}
	}

	e.raiseUnknownCause(r)
	return e.adopt(r, estimates, 0)
}

// checkBreak raises the break condition when the tracked vehicle is
// flagged on break in the snapshot, and clears it otherwise. Snapshot
// read errors skip the check for this poll.
func (e *ReminderEngine) checkBreak(tenant store.Tenant, r *model.Reminder) {
	snapshot, err := e.cache.TenantVehicles(tenant.ID)
	if err != nil {
		e.logger.Printf("reminder %d: snapshot read failed, skipping break check: %v", r.ID, err)
		return
	}
	if target := findByID(snapshot, r.Target); target != nil && target.OnBreak {
		e.raiseBreak(r)
	} else {
		r.State.ClearBreak()
	}
}

func (e *ReminderEngine) raiseBreak(r *model.Reminder) {
	st := &r.State
	st.Break = true
	if st.BreakBlocked {
		return
	}
	st.BreakBlocked = true
	e.dispatch(r, notify.KindBreak, "Driver on break",
		"Your shuttle's driver appears to be on a scheduled break; arrival times may slip.", nil)
}

func (e *ReminderEngine) raiseLate(r *model.Reminder, gapMinutes int) {
	st := &r.State
	st.Late = true
	if st.LateBlocked {
		return
	}
	st.LateBlocked = true
	e.dispatch(r, notify.KindLate, "Shuttle running late",
		fmt.Sprintf("Your shuttle is about %d minutes off its expected arrival.", gapMinutes),
		map[string]string{"gapMinutes": strconv.Itoa(gapMinutes)})
}

func (e *ReminderEngine) raiseUnknownCause(r *model.Reminder) {
	st := &r.State
	st.UnknownCause = true
	if st.UnknownCauseBlocked {
		return
	}
	st.UnknownCauseBlocked = true
	e.dispatch(r, notify.KindLost, "Lost track of your shuttle",
		"We lost track of your shuttle and are now watching the next arrival instead.", nil)
}

func (e *ReminderEngine) raiseRemind(r *model.Reminder, now time.Time) {
	st := &r.State
	if st.RemindSent {
		return
	}
	st.RemindSent = true
	t := now
	r.FiredAt = &t
	r.Complete = true
	e.dispatch(r, notify.KindRemind, "Shuttle arriving soon",
		fmt.Sprintf("Your shuttle arrives in about %d minutes.", r.LocalEstimateMinutes),
		map[string]string{"estimateMinutes": strconv.Itoa(r.LocalEstimateMinutes)})
}

// dispatch is fire-and-forget relative to state persistence: a failed
// delivery is logged and never blocks the subsequent row write.
func (e *ReminderEngine) dispatch(r *model.Reminder, kind notify.Kind, title, body string, meta map[string]string) {
	delivered := e.notifier.Send(notify.Notification{
		UserID: r.UserID,
		Title:  title,
		Body:   body,
		Kind:   kind,
		Meta:   meta,
	})
	if !delivered {
		e.logger.Printf("reminder %d: %s notification undelivered", r.ID, kind)
	}
}

// persist performs the single per-poll row write, with the expected
// time shifted into the feed's timezone.
func (e *ReminderEngine) persist(ctx context.Context, r *model.Reminder) error {
	if r.ExpectedAt != nil {
		t := r.ExpectedAt.In(e.tz)
		r.ExpectedAt = &t
	}
	if err := e.store.UpdateReminder(ctx, *r); err != nil {
		return err
	}
	if r.Complete && e.metrics != nil {
		e.metrics.RemindersCompleted.Inc()
	}
	return nil
}

func findByID(entries []model.VehicleSnapshotEntry, id int64) *model.VehicleSnapshotEntry {
	if id == 0 {
		return nil
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i]
		}
	}
	return nil
}
