// Package store is the Postgres access layer for tenants, buses, routes,
// schedules, movement history and reminders.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store wraps a database handle with the tracker's queries.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// Tenant is one university whose transit data is tracked independently.
type Tenant struct {
	ID         string
	ServiceID  string // vendor-native agency identifier
	VendorName string
}

// Route maps an internal route to its vendor-native service tag.
type Route struct {
	ID         string
	Name       string
	Direction  string
	ServiceTag string
}

// Stop maps an internal stop to its vendor-native identifier.
type Stop struct {
	ID         string
	Name       string
	ServiceTag string
}

// ListTenants returns every tenant with its configured vendor.
func (s *Store) ListTenants(ctx context.Context) ([]Tenant, error) {
	const q = `SELECT U.universityid, U.serviceid, V.vendorname
		FROM university AS U INNER JOIN vendor AS V ON U.vendorid = V.vendorid`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.ServiceID, &t.VendorName); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// EnsureBus creates the bus identity if it does not exist yet.
func (s *Store) EnsureBus(ctx context.Context, busID int64, tenantID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bus WHERE busid=$1 AND universityid=$2)`,
		busID, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup bus %d: %w", busID, err)
	}
	if exists {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bus (busid, universityid) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		busID, tenantID)
	if err != nil {
		return fmt.Errorf("create bus %d: %w", busID, err)
	}
	return nil
}

// RouteByServiceTag resolves a vendor route tag to the internal route.
// Returns nil when no mapping exists.
func (s *Store) RouteByServiceTag(ctx context.Context, serviceTag, tenantID string) (*Route, error) {
	const q = `SELECT routeid, routename, direction, routeserviceid
		FROM route WHERE routeserviceid=$1 AND universityid=$2`
	var r Route
	err := s.db.QueryRowContext(ctx, q, serviceTag, tenantID).
		Scan(&r.ID, &r.Name, &r.Direction, &r.ServiceTag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("route by service tag %q: %w", serviceTag, err)
	}
	return &r, nil
}

// RouteByID returns the internal route row, or nil when absent.
func (s *Store) RouteByID(ctx context.Context, routeID, tenantID string) (*Route, error) {
	const q = `SELECT routeid, routename, direction, routeserviceid
		FROM route WHERE routeid=$1 AND universityid=$2`
	var r Route
	err := s.db.QueryRowContext(ctx, q, routeID, tenantID).
		Scan(&r.ID, &r.Name, &r.Direction, &r.ServiceTag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", routeID, err)
	}
	return &r, nil
}

// StopByID returns the stop row, or nil when absent.
func (s *Store) StopByID(ctx context.Context, stopID, tenantID string) (*Stop, error) {
	const q = `SELECT stopid, stopname, stopserviceid
		FROM stop WHERE stopid=$1 AND universityid=$2`
	var st Stop
	err := s.db.QueryRowContext(ctx, q, stopID, tenantID).
		Scan(&st.ID, &st.Name, &st.ServiceTag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stop %q: %w", stopID, err)
	}
	return &st, nil
}
