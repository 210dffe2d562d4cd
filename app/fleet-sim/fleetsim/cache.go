package fleetsim

import (
	"context"
	"fmt"
	logger "log"
	"sync"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/business/sim/route"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
)

//maxConcurrentLoads bounds the number of directions loads in flight at once
const maxConcurrentLoads = 10

// directionsSource produces directions for an ordered list of stops
type directionsSource interface {
	Route(ctx context.Context, coords []osrm.Coordinate) (*osrm.Directions, error)
}

// derivedData is the non-serializable route material a vehicle update needs,
// rebuilt from the stored trip plan on any instance
type derivedData struct {
	directions *osrm.Directions
	segments   []route.Segment
}

//loadTask tracks one in-flight load; done closes after data and err are set
type loadTask struct {
	done chan struct{}
	data *derivedData
	err  error
}

// derivedCache holds per-vehicle derived data for this instance. Missing
// entries are loaded asynchronously on a bounded pool; an in-flight table
// keeps at most one load running per vehicle.
type derivedCache struct {
	log    *logger.Logger
	store  *fleetstore.Store
	source directionsSource

	mu      sync.Mutex
	loaded  map[string]*derivedData
	loading map[string]*loadTask

	sem chan struct{}
}

// makeDerivedCache builds derivedCache
func makeDerivedCache(log *logger.Logger, store *fleetstore.Store, source directionsSource) *derivedCache {
	return &derivedCache{
		log:     log,
		store:   store,
		source:  source,
		loaded:  map[string]*derivedData{},
		loading: map[string]*loadTask{},
		sem:     make(chan struct{}, maxConcurrentLoads),
	}
}

// get returns the derived data for a vehicle. A missing entry starts an
// asynchronous load; with wait set the call blocks until that load finishes
// and reports its failure, otherwise it returns nil so the caller can skip
// the vehicle until a later tick finds the entry loaded.
func (c *derivedCache) get(ctx context.Context, id string, wait bool) (*derivedData, error) {
	c.mu.Lock()
	if data, ok := c.loaded[id]; ok {
		c.mu.Unlock()
		return data, nil
	}
	task, inFlight := c.loading[id]
	if !inFlight {
		task = &loadTask{done: make(chan struct{})}
		c.loading[id] = task
		go c.runLoad(id, task)
	}
	c.mu.Unlock()

	if !wait {
		return nil, nil
	}

	select {
	case <-task.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if task.err != nil {
		return nil, task.err
	}
	return task.data, nil
}

// put stores derived data directly, used when this instance created the
// vehicle and already holds the route material
func (c *derivedCache) put(id string, directions *osrm.Directions, segments []route.Segment) {
	c.mu.Lock()
	c.loaded[id] = &derivedData{directions: directions, segments: segments}
	c.mu.Unlock()
}

// purge drops a vehicle's entry, used on retirement
func (c *derivedCache) purge(id string) {
	c.mu.Lock()
	delete(c.loaded, id)
	c.mu.Unlock()
}

// clear drops every entry, used on fleet reset
func (c *derivedCache) clear() {
	c.mu.Lock()
	c.loaded = map[string]*derivedData{}
	c.mu.Unlock()
}

// reconcile drops entries for vehicles no longer active and returns how many
// were removed
func (c *derivedCache) reconcile(isActive func(id string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id := range c.loaded {
		if !isActive(id) {
			delete(c.loaded, id)
			removed++
		}
	}
	return removed
}

// size returns the number of loaded entries
func (c *derivedCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loaded)
}

//runLoad performs one bounded load and publishes the outcome. The in-flight
//handle is removed whether the load succeeded or not, so a failed vehicle is
//retried by the next scheduling attempt.
func (c *derivedCache) runLoad(id string, task *loadTask) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	data, err := c.load(context.Background(), id)

	c.mu.Lock()
	if err == nil {
		c.loaded[id] = data
	}
	delete(c.loading, id)
	c.mu.Unlock()

	task.data = data
	task.err = err
	close(task.done)

	if err != nil {
		c.log.Printf("failed loading derived data for vehicle %s, error:%v", id, err)
	}
}

//load rebuilds route material from the stored trip plan
func (c *derivedCache) load(ctx context.Context, id string) (*derivedData, error) {
	plan, err := c.store.TripPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading trip plan: %w", err)
	}
	coords, err := plan.Coordinates()
	if err != nil {
		return nil, fmt.Errorf("resolving trip plan stops: %w", err)
	}
	directions, err := c.source.Route(ctx, coords)
	if err != nil {
		return nil, fmt.Errorf("requesting directions: %w", err)
	}
	segments, err := route.BuildSegments(directions)
	if err != nil {
		return nil, fmt.Errorf("preprocessing route: %w", err)
	}
	return &derivedData{directions: directions, segments: segments}, nil
}
