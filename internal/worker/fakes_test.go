package worker

import (
	"context"
	"sync"
	"time"

	"shuttle-tracker/internal/feed"
	"shuttle-tracker/internal/model"
	"shuttle-tracker/internal/notify"
	"shuttle-tracker/internal/store"
)

var testTenant = store.Tenant{ID: "uni-1", ServiceID: "72", VendorName: "transloc"}

type schedRecord struct {
	busID   int64
	routeID string
}

type fakeScheduleStore struct {
	mu        sync.Mutex
	buses     map[int64]bool
	routes    map[string]*store.Route // service tag -> route
	schedules []schedRecord
	completed []schedRecord
	frames    []model.MovementHistoryFrame

	ensureBusErr map[int64]error
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{
		buses:        make(map[int64]bool),
		routes:       make(map[string]*store.Route),
		ensureBusErr: make(map[int64]error),
	}
}

func (f *fakeScheduleStore) EnsureBus(_ context.Context, busID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureBusErr[busID]; err != nil {
		return err
	}
	f.buses[busID] = true
	return nil
}

func (f *fakeScheduleStore) RouteByServiceTag(_ context.Context, serviceTag, _ string) (*store.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routes[serviceTag], nil
}

func (f *fakeScheduleStore) ActiveSchedules(_ context.Context, date time.Time, tenantID string) ([]model.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]model.ScheduleEntry, 0, len(f.schedules))
	for _, s := range f.schedules {
		entries = append(entries, model.ScheduleEntry{
			BusID:       s.busID,
			RouteID:     s.routeID,
			TenantID:    tenantID,
			ServiceDate: date,
		})
	}
	return entries, nil
}

func (f *fakeScheduleStore) AddSchedule(_ context.Context, busID int64, routeID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules = append(f.schedules, schedRecord{busID, routeID})
	return nil
}

func (f *fakeScheduleStore) CompleteSchedule(_ context.Context, busID int64, routeID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, schedRecord{busID, routeID})
	return nil
}

func (f *fakeScheduleStore) AddHistoryFrame(_ context.Context, frame model.MovementHistoryFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

type fakeCache struct {
	mu        sync.Mutex
	snapshots map[string][]model.VehicleSnapshotEntry
	online    map[string][]string
	readErr   error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		snapshots: make(map[string][]model.VehicleSnapshotEntry),
		online:    make(map[string][]string),
	}
}

func (f *fakeCache) TenantVehicles(tenantID string) ([]model.VehicleSnapshotEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.snapshots[tenantID], nil
}

func (f *fakeCache) StoreTenantVehicles(tenantID string, entries []model.VehicleSnapshotEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[tenantID] = entries
	return nil
}

func (f *fakeCache) StoreOnlineRoutes(tenantID string, routeTags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[tenantID] = routeTags
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	fail bool
}

func (f *fakeNotifier) Send(n notify.Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return !f.fail
}

func (f *fakeNotifier) byKind(kind notify.Kind) []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Notification
	for _, n := range f.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// scriptedAdapter serves canned feed responses.
type scriptedAdapter struct {
	mu          sync.Mutex
	vehicles    []model.VehiclePosition
	vehiclesErr error
	estimates   []model.ArrivalEstimate
	estimateErr error
}

func (a *scriptedAdapter) Vendor() string { return "scripted" }

func (a *scriptedAdapter) Vehicles(context.Context) ([]model.VehiclePosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vehicles, a.vehiclesErr
}

func (a *scriptedAdapter) ArrivalEstimates(_ context.Context, routeExtID string, stopExtIDs []string) (feed.EstimateSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.estimateErr != nil {
		return nil, a.estimateErr
	}
	set := make(feed.EstimateSet)
	for _, stop := range stopExtIDs {
		set[stop] = map[string][]model.ArrivalEstimate{routeExtID: a.estimates}
	}
	return set, nil
}

func (a *scriptedAdapter) factory() feed.Factory {
	return func(store.Tenant) feed.Adapter { return a }
}

type fakeReminderStore struct {
	mu        sync.Mutex
	reminders []model.Reminder
	updated   []model.Reminder
	routes    map[string]*store.Route // internal id -> route
	stops     map[string]*store.Stop
}

func newFakeReminderStore() *fakeReminderStore {
	return &fakeReminderStore{
		routes: map[string]*store.Route{
			"r-1": {ID: "r-1", Name: "Campus Loop", ServiceTag: "4001"},
		},
		stops: map[string]*store.Stop{
			"s-1": {ID: "s-1", Name: "Library", ServiceTag: "9001"},
		},
	}
}

func (f *fakeReminderStore) ActiveReminders(_ context.Context, _ string) ([]model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reminder
	for _, r := range f.reminders {
		if !r.Complete {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReminderStore) UpdateReminder(_ context.Context, r model.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, r)
	for i := range f.reminders {
		if f.reminders[i].ID == r.ID {
			f.reminders[i] = r
		}
	}
	return nil
}

func (f *fakeReminderStore) RouteByID(_ context.Context, routeID, _ string) (*store.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routes[routeID], nil
}

func (f *fakeReminderStore) StopByID(_ context.Context, stopID, _ string) (*store.Stop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops[stopID], nil
}

func (f *fakeReminderStore) lastUpdate() (model.Reminder, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updated) == 0 {
		return model.Reminder{}, false
	}
	return f.updated[len(f.updated)-1], true
}
