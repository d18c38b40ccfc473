// Package worker contains the two periodic reconciliation engines: the
// vehicle-schedule reconciler and the reminder state machine.
package worker

import (
	"context"
	"time"

	"shuttle-tracker/internal/model"
	"shuttle-tracker/internal/notify"
	"shuttle-tracker/internal/store"
)

// ScheduleStore is the persistence surface the reconciler needs.
type ScheduleStore interface {
	EnsureBus(ctx context.Context, busID int64, tenantID string) error
	RouteByServiceTag(ctx context.Context, serviceTag, tenantID string) (*store.Route, error)
	ActiveSchedules(ctx context.Context, date time.Time, tenantID string) ([]model.ScheduleEntry, error)
	AddSchedule(ctx context.Context, busID int64, routeID, tenantID string, date time.Time) error
	CompleteSchedule(ctx context.Context, busID int64, routeID, tenantID string, date time.Time) error
	AddHistoryFrame(ctx context.Context, f model.MovementHistoryFrame) error
}

// ReminderStore is the persistence surface the reminder engine needs.
type ReminderStore interface {
	ActiveReminders(ctx context.Context, tenantID string) ([]model.Reminder, error)
	UpdateReminder(ctx context.Context, r model.Reminder) error
	RouteByID(ctx context.Context, routeID, tenantID string) (*store.Route, error)
	StopByID(ctx context.Context, stopID, tenantID string) (*store.Stop, error)
}

// SnapshotCache is the tenant-scoped cache surface used by the
// reconciler (read-modify-write) and the reminder engine (read-only).
type SnapshotCache interface {
	TenantVehicles(tenantID string) ([]model.VehicleSnapshotEntry, error)
	StoreTenantVehicles(tenantID string, entries []model.VehicleSnapshotEntry) error
	StoreOnlineRoutes(tenantID string, routeTags []string) error
}

// SnapshotReader is the read-only subset used by the reminder engine.
type SnapshotReader interface {
	TenantVehicles(tenantID string) ([]model.VehicleSnapshotEntry, error)
}

// Notifier delivers user notifications, best-effort.
type Notifier interface {
	Send(n notify.Notification) bool
}

// TenantLister enumerates tenants for the runner.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]store.Tenant, error)
}
