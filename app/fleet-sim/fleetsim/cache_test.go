package fleetsim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/matryer/is"
)

func testCache(t *testing.T) (*derivedCache, *fakeDirectionsSource, *fleetstore.Store) {
	t.Helper()
	store := testFleetStore(t)
	source := &fakeDirectionsSource{directions: straightDirections(45.52, -122.68, 1000, 10)}
	cache := makeDerivedCache(makeTestLogWriter().log, store, source)
	return cache, source, store
}

func saveStraightPlan(t *testing.T, store *fleetstore.Store, id string) {
	t.Helper()
	plan := twoStopPlan(straightDirections(45.52, -122.68, 1000, 10))
	if err := store.SaveTripPlan(context.Background(), id, plan); err != nil {
		t.Fatalf("saving trip plan: %v", err)
	}
}

func Test_derivedCache_loadsStoredPlanOnDemand(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	cache, source, store := testCache(t)
	saveStraightPlan(t, store, "veh-1")

	data, err := cache.get(ctx, "veh-1", true)
	is.NoErr(err)
	is.True(data != nil)
	is.Equal(data.directions.Distance(), 1000.0)
	is.True(len(data.segments) > 0)
	is.Equal(source.callCount(), 1)
	is.Equal(cache.size(), 1)

	//second read is a cache hit, no new upstream call
	again, err := cache.get(ctx, "veh-1", true)
	is.NoErr(err)
	is.Equal(again, data)
	is.Equal(source.callCount(), 1)
}

func Test_derivedCache_noWaitSkipsWhileLoading(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	cache, source, store := testCache(t)
	saveStraightPlan(t, store, "veh-1")
	source.setDelay(time.Duration(50) * time.Millisecond)

	data, err := cache.get(ctx, "veh-1", false)
	is.NoErr(err)
	is.True(data == nil)

	//a second no-wait read joins the in-flight load instead of starting another
	data, err = cache.get(ctx, "veh-1", false)
	is.NoErr(err)
	is.True(data == nil)

	waitFor(t, time.Duration(2)*time.Second, func() bool { return cache.size() == 1 })
	is.Equal(source.callCount(), 1)

	data, err = cache.get(ctx, "veh-1", false)
	is.NoErr(err)
	is.True(data != nil)
}

func Test_derivedCache_concurrentWaitersShareOneLoad(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	cache, source, store := testCache(t)
	saveStraightPlan(t, store, "veh-1")
	source.setDelay(time.Duration(50) * time.Millisecond)

	var wg sync.WaitGroup
	results := make([]*derivedData, 4)
	for i := 0; i < len(results); i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			data, err := cache.get(ctx, "veh-1", true)
			if err != nil {
				t.Errorf("waiting for derived data: %v", err)
				return
			}
			results[slot] = data
		}(i)
	}
	wg.Wait()

	is.Equal(source.callCount(), 1)
	for _, data := range results {
		is.Equal(data, results[0])
	}
}

func Test_derivedCache_failedLoadIsRetried(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	cache, source, store := testCache(t)
	saveStraightPlan(t, store, "veh-1")
	source.setError(errors.New("directions service down"))

	_, err := cache.get(ctx, "veh-1", true)
	is.True(err != nil)
	is.Equal(cache.size(), 0)

	//the failed in-flight handle is gone, the next attempt loads cleanly
	source.setError(nil)
	data, err := cache.get(ctx, "veh-1", true)
	is.NoErr(err)
	is.True(data != nil)
	is.Equal(source.callCount(), 2)
}

func Test_derivedCache_missingPlanReportsNotFound(t *testing.T) {
	is := is.New(t)
	cache, _, _ := testCache(t)

	_, err := cache.get(context.Background(), "ghost", true)
	is.True(errors.Is(err, fleetstore.ErrNotFound))
}

func Test_derivedCache_waitHonorsContext(t *testing.T) {
	is := is.New(t)
	cache, source, store := testCache(t)
	saveStraightPlan(t, store, "veh-1")
	source.setDelay(time.Duration(200) * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.get(ctx, "veh-1", true)
	is.True(errors.Is(err, context.Canceled))
}

func Test_derivedCache_reconcileDropsInactiveEntries(t *testing.T) {
	is := is.New(t)
	cache, _, _ := testCache(t)
	directions := straightDirections(45.52, -122.68, 1000, 10)
	segments := routeSegments(t, directions)
	cache.put("active", directions, segments)
	cache.put("retired-elsewhere", directions, segments)

	removed := cache.reconcile(func(id string) bool { return id == "active" })
	is.Equal(removed, 1)
	is.Equal(cache.size(), 1)

	data, err := cache.get(context.Background(), "active", false)
	is.NoErr(err)
	is.True(data != nil)
}

func Test_derivedCache_purgeAndClear(t *testing.T) {
	is := is.New(t)
	cache, _, _ := testCache(t)
	directions := straightDirections(45.52, -122.68, 1000, 10)
	segments := routeSegments(t, directions)
	cache.put("a", directions, segments)
	cache.put("b", directions, segments)

	cache.purge("a")
	is.Equal(cache.size(), 1)
	//purging an absent id is harmless
	cache.purge("a")
	is.Equal(cache.size(), 1)

	cache.clear()
	is.Equal(cache.size(), 0)
}
