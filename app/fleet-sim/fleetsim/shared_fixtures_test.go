package fleetsim

import (
	"context"
	logger "log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/business/sim/route"
	"github.com/OpenTransitTools/fleetsim/business/sim/trip"
	"github.com/OpenTransitTools/fleetsim/business/sim/vehicle"
	"github.com/OpenTransitTools/fleetsim/foundation/geocode"
	"github.com/OpenTransitTools/fleetsim/foundation/jitter"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testLogWriter struct {
	logLines []string
	log      *logger.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	log := logger.New(&logWriter, "TEST_FLEET_SIM : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	logWriter.log = log
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

// straightDirections builds a single leg route running due north from
// (startLat, startLon) for the given meters at one posted speed
func straightDirections(startLat, startLon, meters, speed float64) *osrm.Directions {
	const vertices = 11
	const metersPerDegreeLat = 111132.0
	dLat := meters / metersPerDegreeLat

	coords := make([][]float64, vertices)
	for i := 0; i < vertices; i++ {
		frac := float64(i) / float64(vertices-1)
		coords[i] = []float64{startLon, startLat + dLat*frac}
	}

	const slices = 4
	sliceDistances := make([]float64, slices)
	sliceSpeeds := make([]float64, slices)
	for i := range sliceDistances {
		sliceDistances[i] = meters / slices
		sliceSpeeds[i] = speed
	}

	return &osrm.Directions{
		Code: "Ok",
		Waypoints: []osrm.Waypoint{
			{Name: "origin", Location: []float64{startLon, startLat}},
			{Name: "destination", Location: []float64{startLon, startLat + dLat}},
		},
		Routes: []osrm.Route{{
			Distance: meters,
			Duration: meters / speed,
			Legs: []osrm.Leg{{
				Distance: meters,
				Annotation: &osrm.Annotation{
					Distance: sliceDistances,
					Speed:    sliceSpeeds,
				},
				Steps: []osrm.Step{{
					Distance: meters,
					Geometry: osrm.Geometry{Type: "LineString", Coordinates: coords},
				}},
			}},
		}},
	}
}

// pointDirections builds a degenerate zero length route at a single coordinate
func pointDirections(lat, lon float64) *osrm.Directions {
	coord := []float64{lon, lat}
	return &osrm.Directions{
		Code: "Ok",
		Waypoints: []osrm.Waypoint{
			{Name: "origin", Location: coord},
			{Name: "destination", Location: coord},
		},
		Routes: []osrm.Route{{
			Distance: 0,
			Legs: []osrm.Leg{{
				Distance: 0,
				Steps: []osrm.Step{{
					Distance: 0,
					Geometry: osrm.Geometry{Type: "LineString", Coordinates: [][]float64{coord}},
				}},
			}},
		}},
	}
}

// twoStopPlan builds a numeric plan matching the waypoints of directions
func twoStopPlan(directions *osrm.Directions) *trip.Plan {
	originLat, originLon := directions.Origin()
	destLat, destLon := directions.Destination()
	return &trip.Plan{
		Addresses: []trip.Address{
			trip.MakeNumericAddress(originLat, originLon),
			trip.MakeNumericAddress(destLat, destLon),
		},
	}
}

//fakeDirectionsSource serves canned directions and records calls
type fakeDirectionsSource struct {
	mu         sync.Mutex
	directions *osrm.Directions
	err        error
	delay      time.Duration
	calls      int
	lastCoords []osrm.Coordinate
}

func (f *fakeDirectionsSource) Route(_ context.Context, coords []osrm.Coordinate) (*osrm.Directions, error) {
	f.mu.Lock()
	f.calls++
	f.lastCoords = coords
	directions, err, delay := f.directions, f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return directions, nil
}

func (f *fakeDirectionsSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDirectionsSource) setDirections(directions *osrm.Directions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directions = directions
}

func (f *fakeDirectionsSource) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeDirectionsSource) setDelay(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = delay
}

func (f *fakeDirectionsSource) lastRequest() []osrm.Coordinate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCoords
}

//fakeLocator serves one canned geocoding result
type fakeLocator struct {
	mu     sync.Mutex
	result geocode.Result
	err    error
	calls  int
}

func (f *fakeLocator) Locate(_ context.Context, _ string) (geocode.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return geocode.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeLocator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

//capturedPublications collects states handed to the publisher
type capturedPublications struct {
	mu     sync.Mutex
	states []*vehicle.State
}

func (c *capturedPublications) Publish(state *vehicle.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, state)
	return nil
}

func (c *capturedPublications) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}

func testFleetStore(t *testing.T) *fleetstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return fleetstore.MakeStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

//routeSegments preprocesses directions, failing the test on error
func routeSegments(t *testing.T, directions *osrm.Directions) []route.Segment {
	t.Helper()
	segments, err := route.BuildSegments(directions)
	if err != nil {
		t.Fatalf("preprocessing route: %v", err)
	}
	return segments
}

func testConfig(hostID string) Config {
	return Config{
		HostID:         hostID,
		UpdatePeriod:   time.Duration(250) * time.Millisecond,
		PollingPeriod:  time.Duration(100) * time.Millisecond,
		ReadySlack:     time.Duration(100) * time.Millisecond,
		VehicleTimeout: time.Duration(30) * time.Second,
		JitterCapacity: 200,
		WebHost:        "127.0.0.1:0",
	}
}

//testFleet wires one instance's services around a shared store with fakes for
//the upstream adapters
type testFleet struct {
	logWriter *testLogWriter
	store     *fleetstore.Store
	source    *fakeDirectionsSource
	locator   *fakeLocator
	window    *jitter.Window
	metrics   *simMetrics
	cache     *derivedCache
	snapshot  *activeSnapshot
	published *capturedPublications
	manager   *Manager
	scheduler *scheduler
	cfg       Config
}

func makeTestFleet(t *testing.T, store *fleetstore.Store, cfg Config) *testFleet {
	t.Helper()
	logWriter := makeTestLogWriter()
	source := &fakeDirectionsSource{}
	locator := &fakeLocator{}
	window := jitter.MakeWindow(cfg.JitterCapacity)
	metrics := makeSimMetrics()
	cache := makeDerivedCache(logWriter.log, store, source)
	snapshot := makeActiveSnapshot()
	published := &capturedPublications{}
	publisher := makeStatePublisher(logWriter.log, published)
	manager := makeManager(logWriter.log, store, cache, snapshot, source, locator, cfg.HostID)
	sched := makeScheduler(logWriter.log, store, cache, snapshot, publisher, metrics, window, cfg)
	return &testFleet{
		logWriter: logWriter,
		store:     store,
		source:    source,
		locator:   locator,
		window:    window,
		metrics:   metrics,
		cache:     cache,
		snapshot:  snapshot,
		published: published,
		manager:   manager,
		scheduler: sched,
		cfg:       cfg,
	}
}

//createTestVehicle registers a vehicle over the fake directions source
func createTestVehicle(t *testing.T, fleet *testFleet, directions *osrm.Directions) *vehicle.State {
	t.Helper()
	fleet.source.setDirections(directions)
	state, err := fleet.manager.CreateVehicle(context.Background(), twoStopPlan(directions))
	if err != nil {
		t.Fatalf("creating vehicle: %v", err)
	}
	return state
}

//restamp rewinds a vehicle's last calculation stamp so driven-clock tests can
//control when it becomes ready
func restamp(t *testing.T, fleet *testFleet, state *vehicle.State, epochMillis int64) {
	t.Helper()
	ctx := context.Background()
	state.LastCalculationEpochMillis = epochMillis
	if err := fleet.store.SaveVehicle(ctx, state); err != nil {
		t.Fatalf("restamping vehicle: %v", err)
	}
	if err := fleet.store.Enqueue(ctx, state.Id, epochMillis); err != nil {
		t.Fatalf("requeueing vehicle: %v", err)
	}
}

//waitFor polls until condition holds, failing the test at the deadline
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Duration(5) * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func inDelta(t *testing.T, got float64, want float64, delta float64) {
	t.Helper()
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > delta {
		t.Fatalf("got %v, want %v within %v", got, want, delta)
	}
}

//countLogLines returns how many captured log lines contain needle
func (t *testLogWriter) countLogLines(needle string) int {
	count := 0
	for _, line := range t.logLines {
		if strings.Contains(line, needle) {
			count++
		}
	}
	return count
}
