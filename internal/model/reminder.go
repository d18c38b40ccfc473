package model

import "time"

// Reminder is one user's outstanding arrival reminder. Mutated exactly
// once per poll by the reminder engine; terminal once Complete is true
// or the halt flag is set.
type Reminder struct {
	ID       int64
	UserID   string
	StopID   string
	RouteID  string
	TenantID string

	// Target is the tracked vehicle id; 0 means no target assigned yet.
	Target     int64
	ExpectedAt *time.Time
	// FiredAt records when the remind notification actually went out.
	FiredAt *time.Time

	DurationMinutes      int
	LocalEstimateMinutes int

	StartDate time.Time
	State     ReminderState
	Complete  bool
}

// HasTarget reports whether a vehicle has been adopted for tracking.
func (r *Reminder) HasTarget() bool { return r.Target != 0 }
