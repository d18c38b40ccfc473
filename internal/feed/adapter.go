// Package feed defines the vendor feed port and its implementations.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shuttle-tracker/internal/model"
	"shuttle-tracker/internal/store"
)

// Adapter is the capability surface a transit vendor must provide.
// One implementation exists per vendor; tenants hold a reference to
// their configured implementation.
type Adapter interface {
	Vendor() string
	// Vehicles returns the live vehicle list for the tenant's agency.
	Vehicles(ctx context.Context) ([]model.VehiclePosition, error)
	// ArrivalEstimates returns the ranked arrival sequences for a route
	// across the given stops, ordered ascending by arrival time.
	ArrivalEstimates(ctx context.Context, routeExtID string, stopExtIDs []string) (EstimateSet, error)
}

// EstimateSet groups arrival estimates by stop, then by route.
type EstimateSet map[string]map[string][]model.ArrivalEstimate

// For returns the ordered estimate sequence for one stop/route pair.
func (s EstimateSet) For(stopExtID, routeExtID string) []model.ArrivalEstimate {
	routes, ok := s[stopExtID]
	if !ok {
		return nil
	}
	return routes[routeExtID]
}

// Factory resolves the adapter for a tenant.
type Factory func(t store.Tenant) Adapter

// NewFactory builds the vendor dispatch used by both workers. Unknown
// vendors get an adapter whose calls fail, so a misconfigured tenant
// degrades to logged per-tick errors instead of a crash.
func NewFactory(client *http.Client, translocKey string) Factory {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return func(t store.Tenant) Adapter {
		switch t.VendorName {
		case "transloc", "Transloc", "TransLoc":
			return NewTransLoc(client, translocKey, t.ServiceID)
		default:
			return unknownAdapter{vendor: t.VendorName}
		}
	}
}

type unknownAdapter struct {
	vendor string
}

func (u unknownAdapter) Vendor() string { return u.vendor }

func (u unknownAdapter) Vehicles(context.Context) ([]model.VehiclePosition, error) {
	return nil, fmt.Errorf("vendor %q has no adapter", u.vendor)
}

func (u unknownAdapter) ArrivalEstimates(context.Context, string, []string) (EstimateSet, error) {
	return nil, fmt.Errorf("vendor %q has no adapter", u.vendor)
}
