package model

import (
	"time"

	"github.com/mmcloughlin/geohash"
)

// ScheduleEntry records that a bus was seen servicing a route on a
// service date. Created at most once per (bus, route, tenant, date).
type ScheduleEntry struct {
	BusID       int64
	RouteID     string
	TenantID    string
	ServiceDate time.Time
	Finished    bool

	// Route denormalisation carried by the active-schedules query.
	RouteName      string
	Direction      string
	RouteServiceID string
}

// MovementHistoryFrame is one appended position sample for a tracked bus.
type MovementHistoryFrame struct {
	BusID       int64
	RouteID     string
	TenantID    string
	ServiceDate time.Time
	Geohash     string // 12-character geohash of the sampled coordinate
	RecordedAt  time.Time
	Speed       float64
}

// NewMovementFrame builds a history frame for the given coordinate,
// encoding it as a 12-character geohash.
func NewMovementFrame(busID int64, routeID, tenantID string, serviceDate time.Time, lat, lon, speed float64, at time.Time) MovementHistoryFrame {
	return MovementHistoryFrame{
		BusID:       busID,
		RouteID:     routeID,
		TenantID:    tenantID,
		ServiceDate: serviceDate,
		Geohash:     geohash.EncodeWithPrecision(lat, lon, 12),
		RecordedAt:  at,
		Speed:       speed,
	}
}

// ArrivalEstimate is one entry of the ranked arrival sequence a vendor
// returns for a route/stop pair. Sequences are ordered by ascending
// arrival time; index 0 is the soonest.
type ArrivalEstimate struct {
	RouteExtID    string
	StopExtID     string
	VehicleID     int64
	ArriveAt      time.Time
	OffsetMinutes int
}
