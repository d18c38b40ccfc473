package model

import "time"

// VehiclePosition is one vehicle as reported by a vendor feed poll.
// Instances are ephemeral; a fresh set is produced every tick.
type VehiclePosition struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	RouteTag    string    `json:"routeTag"` // vendor-native route identifier
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Speed       float64   `json:"speed"` // meters per second, as reported
	Heading     float64   `json:"heading"`
	Capacity    float64   `json:"capacity"` // passenger load fraction, 0..1
	LastUpdated time.Time `json:"lastUpdated"`
}

// VehicleSnapshotEntry is a VehiclePosition carried across ticks in the
// snapshot cache, extended with break bookkeeping. Owned exclusively by
// the reconciler; read-modify-write once per tick per tenant.
type VehicleSnapshotEntry struct {
	VehiclePosition

	OnBreak bool `json:"onBreak"`
	// StationarySince marks the first tick the vehicle was observed
	// stopped with zero speed; cleared on any movement.
	StationarySince *time.Time `json:"stationarySince,omitempty"`
	// BreakStart is set when OnBreak flips true.
	BreakStart *time.Time `json:"breakStart,omitempty"`
}

// StartBreak flags the entry as on break. No-op if already flagged.
func (e *VehicleSnapshotEntry) StartBreak(now time.Time) {
	if e.OnBreak {
		return
	}
	e.OnBreak = true
	t := now
	e.BreakStart = &t
}

// Resume clears all break state, typically because the vehicle moved.
func (e *VehicleSnapshotEntry) Resume() {
	e.OnBreak = false
	e.BreakStart = nil
	e.StationarySince = nil
}

// StationaryFor returns how long the vehicle has been observed stopped.
func (e *VehicleSnapshotEntry) StationaryFor(now time.Time) time.Duration {
	if e.StationarySince == nil {
		return 0
	}
	return now.Sub(*e.StationarySince)
}
