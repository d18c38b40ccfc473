package store

import (
	"context"
	"fmt"
	"time"

	"shuttle-tracker/internal/model"
)

const serviceDateLayout = "2006-01-02"

// ActiveSchedules returns the unfinished schedule entries for a tenant on
// the given service date.
func (s *Store) ActiveSchedules(ctx context.Context, date time.Time, tenantID string) ([]model.ScheduleEntry, error) {
	const q = `SELECT BS.busid, BS.routeid, BS.universityid, BS.finished,
			R.routename, R.direction, R.routeserviceid
		FROM busschedule AS BS INNER JOIN route AS R ON BS.routeid = R.routeid
		WHERE BS.universityid=$1 AND BS.scheduledate=$2 AND BS.finished=FALSE`
	rows, err := s.db.QueryContext(ctx, q, tenantID, date.Format(serviceDateLayout))
	if err != nil {
		return nil, fmt.Errorf("query active schedules: %w", err)
	}
	defer rows.Close()

	var entries []model.ScheduleEntry
	for rows.Next() {
		e := model.ScheduleEntry{ServiceDate: date}
		if err := rows.Scan(&e.BusID, &e.RouteID, &e.TenantID, &e.Finished,
			&e.RouteName, &e.Direction, &e.RouteServiceID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddSchedule records that a bus is active on a route for the date.
func (s *Store) AddSchedule(ctx context.Context, busID int64, routeID, tenantID string, date time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO busschedule (busid, routeid, universityid, scheduledate)
			VALUES ($1, $2, $3, $4)`,
		busID, routeID, tenantID, date.Format(serviceDateLayout))
	if err != nil {
		return fmt.Errorf("add schedule bus=%d route=%s: %w", busID, routeID, err)
	}
	return nil
}

// CompleteSchedule marks a bus schedule finished for the date.
func (s *Store) CompleteSchedule(ctx context.Context, busID int64, routeID, tenantID string, date time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE busschedule SET finished=TRUE
			WHERE busid=$1 AND routeid=$2 AND universityid=$3 AND scheduledate=$4`,
		busID, routeID, tenantID, date.Format(serviceDateLayout))
	if err != nil {
		return fmt.Errorf("complete schedule bus=%d route=%s: %w", busID, routeID, err)
	}
	return nil
}

// AddHistoryFrame appends one movement history frame.
func (s *Store) AddHistoryFrame(ctx context.Context, f model.MovementHistoryFrame) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedulehistory (busid, routeid, universityid, scheduledate, coord, recordedstamp, speed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.BusID, f.RouteID, f.TenantID, f.ServiceDate.Format(serviceDateLayout),
		f.Geohash, f.RecordedAt, f.Speed)
	if err != nil {
		return fmt.Errorf("add history frame bus=%d: %w", f.BusID, err)
	}
	return nil
}

// HistoryFrames returns the recorded frames for a bus on a service date.
func (s *Store) HistoryFrames(ctx context.Context, busID int64, routeID, tenantID string, date time.Time) ([]model.MovementHistoryFrame, error) {
	const q = `SELECT busid, routeid, universityid, coord, recordedstamp, speed
		FROM schedulehistory
		WHERE busid=$1 AND routeid=$2 AND universityid=$3 AND scheduledate=$4
		ORDER BY recordedstamp`
	rows, err := s.db.QueryContext(ctx, q, busID, routeID, tenantID, date.Format(serviceDateLayout))
	if err != nil {
		return nil, fmt.Errorf("query history frames: %w", err)
	}
	defer rows.Close()

	var frames []model.MovementHistoryFrame
	for rows.Next() {
		f := model.MovementHistoryFrame{ServiceDate: date}
		if err := rows.Scan(&f.BusID, &f.RouteID, &f.TenantID, &f.Geohash, &f.RecordedAt, &f.Speed); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}
