package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shuttle-tracker/internal/model"
)

const translocBaseURL = "https://transloc-api-1-2.p.mashape.com"

// TransLoc talks to the TransLoc OpenAPI for one agency.
type TransLoc struct {
	client  *http.Client
	apiKey  string
	agency  string
	baseURL string
}

// NewTransLoc builds the adapter for an agency id.
func NewTransLoc(client *http.Client, apiKey, agencyID string) *TransLoc {
	return &TransLoc{
		client:  client,
		apiKey:  apiKey,
		agency:  agencyID,
		baseURL: translocBaseURL,
	}
}

func (t *TransLoc) Vendor() string { return "transloc" }

type translocVehicle struct {
	CallName  string `json:"call_name"`
	VehicleID string `json:"vehicle_id"`
	RouteID   string `json:"route_id"`
	Location  struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Speed         float64   `json:"speed"`
	Heading       float64   `json:"heading"`
	LastUpdatedOn time.Time `json:"last_updated_on"`
	PassengerLoad float64   `json:"passenger_load"`
}

type translocVehiclesResponse struct {
	Data map[string][]translocVehicle `json:"data"`
}

// Vehicles fetches the live vehicle list for the agency.
func (t *TransLoc) Vehicles(ctx context.Context) ([]model.VehiclePosition, error) {
	var resp translocVehiclesResponse
	if err := t.get(ctx, "/vehicles.json?agencies="+url.QueryEscape(t.agency), &resp); err != nil {
		return nil, err
	}
	raw := resp.Data[t.agency]
	vehicles := make([]model.VehiclePosition, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v.VehicleID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("vehicle id %q: %w", v.VehicleID, err)
		}
		vehicles = append(vehicles, model.VehiclePosition{
			ID:          id,
			Name:        v.CallName,
			RouteTag:    v.RouteID,
			Lat:         v.Location.Lat,
			Lon:         v.Location.Lng,
			Speed:       v.Speed,
			Heading:     v.Heading,
			Capacity:    v.PassengerLoad,
			LastUpdated: v.LastUpdatedOn,
		})
	}
	return vehicles, nil
}

type translocArrival struct {
	RouteID   string    `json:"route_id"`
	VehicleID string    `json:"vehicle_id"`
	ArrivalAt time.Time `json:"arrival_at"`
}

type translocStopArrivals struct {
	StopID   string            `json:"stop_id"`
	Arrivals []translocArrival `json:"arrivals"`
}

type translocArrivalsResponse struct {
	Data []translocStopArrivals `json:"data"`
}

// ArrivalEstimates fetches ranked arrival estimates for a route across
// the given stops. Sequences are sorted ascending by arrival time.
func (t *TransLoc) ArrivalEstimates(ctx context.Context, routeExtID string, stopExtIDs []string) (EstimateSet, error) {
	path := fmt.Sprintf("/arrival-estimates.json?agencies=%s&routes=%s&stops=%s",
		url.QueryEscape(t.agency), url.QueryEscape(routeExtID),
		url.QueryEscape(strings.Join(stopExtIDs, ",")))
	var resp translocArrivalsResponse
	if err := t.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	set := make(EstimateSet, len(resp.Data))
	for _, stop := range resp.Data {
		byRoute := make(map[string][]model.ArrivalEstimate)
		for _, a := range stop.Arrivals {
			vid, err := strconv.ParseInt(a.VehicleID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("arrival vehicle id %q: %w", a.VehicleID, err)
			}
			byRoute[a.RouteID] = append(byRoute[a.RouteID], model.ArrivalEstimate{
				RouteExtID:    a.RouteID,
				StopExtID:     stop.StopID,
				VehicleID:     vid,
				ArriveAt:      a.ArrivalAt,
				OffsetMinutes: int(a.ArrivalAt.Sub(now).Minutes()),
			})
		}
		for id := range byRoute {
			ests := byRoute[id]
			sort.SliceStable(ests, func(i, j int) bool {
				return ests[i].ArriveAt.Before(ests[j].ArriveAt)
			})
			byRoute[id] = ests
		}
		set[stop.StopID] = byRoute
	}
	return set, nil
}

func (t *TransLoc) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Mashape-Key", t.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transloc %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transloc %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("transloc %s: decode: %w", path, err)
	}
	return nil
}
