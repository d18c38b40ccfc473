package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shuttle-tracker/internal/model"
)

// ActiveReminders returns every non-complete reminder for a tenant.
func (s *Store) ActiveReminders(ctx context.Context, tenantID string) ([]model.Reminder, error) {
	const q = `SELECT reminderid, userid, startdate, reminderduration, localestimate,
			reminderexpected, reminderactual, pending, evblocked, target,
			stopid, routeid, universityid, iscomplete
		FROM reminder WHERE universityid=$1 AND iscomplete=FALSE`
	rows, err := s.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query active reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// RemindersForUser returns a user's active reminders across tenants.
func (s *Store) RemindersForUser(ctx context.Context, userID string) ([]model.Reminder, error) {
	const q = `SELECT reminderid, userid, startdate, reminderduration, localestimate,
			reminderexpected, reminderactual, pending, evblocked, target,
			stopid, routeid, universityid, iscomplete
		FROM reminder WHERE userid=$1 AND iscomplete=FALSE`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query user reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// CreateReminder inserts a new reminder with empty tracking state.
func (s *Store) CreateReminder(ctx context.Context, userID string, startDate time.Time, durationMinutes int, stopID, routeID, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder (userid, startdate, reminderduration, localestimate,
			pending, evblocked, stopid, routeid, universityid, iscomplete)
		VALUES ($1, $2, $3, 0, 0, 0, $4, $5, $6, FALSE)`,
		userID, startDate, durationMinutes, stopID, routeID, tenantID)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// DeleteReminder removes a user's reminder.
func (s *Store) DeleteReminder(ctx context.Context, userID string, reminderID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reminder WHERE userid=$1 AND reminderid=$2`, userID, reminderID)
	if err != nil {
		return fmt.Errorf("delete reminder %d: %w", reminderID, err)
	}
	return nil
}

// UpdateReminder replaces the mutable columns of a reminder row. This is
// the single per-poll write the reminder engine performs.
func (s *Store) UpdateReminder(ctx context.Context, r model.Reminder) error {
	pending, blocked := r.State.Pack()
	var target sql.NullInt64
	if r.HasTarget() {
		target = sql.NullInt64{Int64: r.Target, Valid: true}
	}
	var expected, fired sql.NullTime
	if r.ExpectedAt != nil {
		expected = sql.NullTime{Time: *r.ExpectedAt, Valid: true}
	}
	if r.FiredAt != nil {
		fired = sql.NullTime{Time: *r.FiredAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminder SET localestimate=$1, reminderexpected=$2, reminderactual=$3,
			pending=$4, evblocked=$5, target=$6, iscomplete=$7
		WHERE reminderid=$8`,
		r.LocalEstimateMinutes, expected, fired, int64(pending), int64(blocked),
		target, r.Complete, r.ID)
	if err != nil {
		return fmt.Errorf("update reminder %d: %w", r.ID, err)
	}
	return nil
}

func scanReminder(rows *sql.Rows) (model.Reminder, error) {
	var (
		r        model.Reminder
		expected sql.NullTime
		fired    sql.NullTime
		target   sql.NullInt64
		pending  int64
		blocked  int64
	)
	err := rows.Scan(&r.ID, &r.UserID, &r.StartDate, &r.DurationMinutes,
		&r.LocalEstimateMinutes, &expected, &fired, &pending, &blocked,
		&target, &r.StopID, &r.RouteID, &r.TenantID, &r.Complete)
	if err != nil {
		return model.Reminder{}, err
	}
	if expected.Valid {
		t := expected.Time
		r.ExpectedAt = &t
	}
	if fired.Valid {
		t := fired.Time
		r.FiredAt = &t
	}
	if target.Valid {
		r.Target = target.Int64
	}
	r.State = model.UnpackState(uint32(pending), uint32(blocked))
	return r, nil
}
