package fleetsim

import (
	"context"
	"errors"
	"fmt"
	logger "log"
	"time"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/business/sim/route"
	"github.com/OpenTransitTools/fleetsim/business/sim/trip"
	"github.com/OpenTransitTools/fleetsim/business/sim/vehicle"
	"github.com/OpenTransitTools/fleetsim/foundation/geocode"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
)

// Sentinel errors the web layer maps onto response status codes
var (
	//ErrInvalidInput marks requests rejected before touching any state
	ErrInvalidInput = errors.New("invalid input")
	//ErrNotReady reports derived data still loading on a no-wait read
	ErrNotReady = errors.New("vehicle directions not loaded yet")
	//ErrUpstream marks geocoder or directions provider failures
	ErrUpstream = errors.New("upstream service failure")
)

// addressLocator resolves a free text address query to a coordinate
type addressLocator interface {
	Locate(ctx context.Context, query string) (geocode.Result, error)
}

// Manager is the fleet façade: it registers vehicles from trip plans and
// serves read queries from the active snapshot and the shared store.
type Manager struct {
	log      *logger.Logger
	store    *fleetstore.Store
	cache    *derivedCache
	snapshot *activeSnapshot
	source   directionsSource
	locator  addressLocator
	hostID   string
}

// makeManager builds Manager
func makeManager(log *logger.Logger,
	store *fleetstore.Store,
	cache *derivedCache,
	snapshot *activeSnapshot,
	source directionsSource,
	locator addressLocator,
	hostID string) *Manager {
	return &Manager{
		log:      log,
		store:    store,
		cache:    cache,
		snapshot: snapshot,
		source:   source,
		locator:  locator,
		hostID:   hostID,
	}
}

// VehiclePage is one page of vehicle states plus the paging echo the UI needs
type VehiclePage struct {
	Vehicles   []*vehicle.State `json:"vehicles"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalCount int              `json:"totalCount"`
}

// Position is the resolved point of a one-shot position query
type Position struct {
	DegLatitude           float64 `json:"degLatitude"`
	DegLongitude          float64 `json:"degLongitude"`
	MetersOffset          float64 `json:"metersOffset"`
	MetersPerSecondPosted float64 `json:"metersPerSecondPosted"`
}

// CreateVehicle registers a new vehicle for the plan: geocodes unresolved
// stops, fetches directions, preprocesses the route, persists the plan and
// the vehicle, and queues it for the schedulers.
func (m *Manager) CreateVehicle(ctx context.Context, plan *trip.Plan) (*vehicle.State, error) {
	directions, err := m.TripDirections(ctx, plan)
	if err != nil {
		return nil, err
	}
	segments, err := route.BuildSegments(directions)
	if err != nil {
		return nil, fmt.Errorf("preprocessing route: %w", err)
	}

	state := vehicle.MakeState("")
	//trip plans are stored under the vehicle id
	state.TripPlanRef = state.Id
	if err = state.SetMetersOffset(0, directions, segments); err != nil {
		return nil, fmt.Errorf("positioning vehicle at route start: %w", err)
	}
	state.LastCalculationEpochMillis = time.Now().UnixMilli()
	state.ManagerHost = m.hostID

	if err = m.store.SaveTripPlan(ctx, state.TripPlanRef, plan); err != nil {
		return nil, fmt.Errorf("persisting trip plan: %w", err)
	}
	if err = m.store.SaveVehicle(ctx, state); err != nil {
		return nil, fmt.Errorf("persisting vehicle: %w", err)
	}
	if err = m.store.AddActive(ctx, state.Id); err != nil {
		return nil, fmt.Errorf("registering vehicle: %w", err)
	}
	if err = m.store.Enqueue(ctx, state.Id, state.LastCalculationEpochMillis); err != nil {
		return nil, fmt.Errorf("queueing vehicle: %w", err)
	}

	m.cache.put(state.Id, directions, segments)
	m.snapshot.add(state.Id)
	m.log.Printf("created vehicle %s on a %.0fm route", state.Id, directions.Distance())
	return state, nil
}

// CreateCrissCross expands the pattern into trip plans and creates a vehicle
// for each
func (m *Manager) CreateCrissCross(ctx context.Context, pattern trip.CrissCross) ([]*vehicle.State, error) {
	plans, err := pattern.Expand()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	states := make([]*vehicle.State, 0, len(plans))
	for i := range plans {
		state, err := m.CreateVehicle(ctx, &plans[i])
		if err != nil {
			return nil, fmt.Errorf("creating criss cross vehicle %d of %d: %w", i+1, len(plans), err)
		}
		states = append(states, state)
	}
	m.log.Printf("created criss cross fleet of %d vehicles around %.4f,%.4f",
		len(states), pattern.DegLatitude, pattern.DegLongitude)
	return states, nil
}

// Vehicle returns the stored state for a vehicle id
func (m *Manager) Vehicle(ctx context.Context, id string) (*vehicle.State, error) {
	return m.store.Vehicle(ctx, id)
}

// VehicleDirections returns the directions for an active vehicle. With wait
// set it blocks until a pending load finishes, otherwise a vehicle whose
// derived data is still loading reports ErrNotReady.
func (m *Manager) VehicleDirections(ctx context.Context, id string, wait bool) (*osrm.Directions, error) {
	active, err := m.store.IsActive(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("checking vehicle registration: %w", err)
	}
	if !active {
		return nil, fleetstore.ErrNotFound
	}

	data, err := m.cache.get(ctx, id, wait)
	if err != nil {
		if errors.Is(err, fleetstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if data == nil {
		return nil, ErrNotReady
	}
	return data.directions, nil
}

// VehiclePage returns one zero-based page of vehicle states over the active
// snapshot. Vehicles retired between snapshot refreshes are skipped.
func (m *Manager) VehiclePage(ctx context.Context, page int, pageSize int) (*VehiclePage, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative, got %d", ErrInvalidInput, page)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("%w: pageSize must be positive, got %d", ErrInvalidInput, pageSize)
	}

	ids := m.snapshot.page(page, pageSize)
	vehicles := make([]*vehicle.State, 0, len(ids))
	for _, id := range ids {
		state, err := m.store.Vehicle(ctx, id)
		if errors.Is(err, fleetstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading vehicle %s: %w", id, err)
		}
		vehicles = append(vehicles, state)
	}
	return &VehiclePage{
		Vehicles:   vehicles,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: m.snapshot.count(),
	}, nil
}

// VehicleCount returns the active vehicle count from the snapshot
func (m *Manager) VehicleCount() int {
	return m.snapshot.count()
}

// Reset empties the shared store and this instance's local caches
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting fleet store: %w", err)
	}
	m.cache.clear()
	m.snapshot.replace(nil)
	m.log.Printf("fleet reset, all vehicles removed")
	return nil
}

// TripDirections resolves a plan to directions without registering a vehicle
func (m *Manager) TripDirections(ctx context.Context, plan *trip.Plan) (*osrm.Directions, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := m.geocodeMissing(ctx, plan); err != nil {
		return nil, err
	}
	coords, err := plan.Coordinates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	directions, err := m.source.Route(ctx, coords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return directions, nil
}

// PositionAt resolves the point metersTravel along the plan's route. Offsets
// outside [0, routeDistance] are rejected as invalid input.
func (m *Manager) PositionAt(ctx context.Context, plan *trip.Plan, metersTravel float64) (*Position, error) {
	directions, err := m.TripDirections(ctx, plan)
	if err != nil {
		return nil, err
	}
	if metersTravel < 0 || metersTravel > directions.Distance() {
		return nil, fmt.Errorf("%w: metersTravel %.1f outside route length %.1f",
			ErrInvalidInput, metersTravel, directions.Distance())
	}
	segments, err := route.BuildSegments(directions)
	if err != nil {
		return nil, fmt.Errorf("preprocessing route: %w", err)
	}

	var probe vehicle.State
	if err = probe.SetMetersOffset(metersTravel, directions, segments); err != nil {
		return nil, fmt.Errorf("resolving position: %w", err)
	}
	return &Position{
		DegLatitude:           probe.DegLatitude,
		DegLongitude:          probe.DegLongitude,
		MetersOffset:          probe.MetersOffset,
		MetersPerSecondPosted: probe.MetersPerSecondDesired,
	}, nil
}

//geocodeMissing resolves coordinates for any plan address that lacks them and
//tags those addresses as geocoded
func (m *Manager) geocodeMissing(ctx context.Context, plan *trip.Plan) error {
	for i := range plan.Addresses {
		address := &plan.Addresses[i]
		if address.HasCoordinates() {
			continue
		}
		result, err := m.locator.Locate(ctx, address.Query())
		if err != nil {
			return fmt.Errorf("%w: geocoding address %d %q: %v", ErrUpstream, i, address.Query(), err)
		}
		lat, lon := result.Lat, result.Lon
		address.DegLatitude = &lat
		address.DegLongitude = &lon
		address.Source = trip.SourceGeocodingService
	}
	return nil
}
