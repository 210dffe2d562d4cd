package fleetsim

import (
	"context"
	logger "log"
	"sort"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/foundation/jitter"
)

// Periods for the background bookkeeping loop
const (
	snapshotPeriod  = time.Second
	reconcilePeriod = time.Duration(60) * time.Second
)

//jitterSamplesPerVehicle sizes the rolling window so it holds roughly this
//many recent measurements per active vehicle
const (
	jitterSamplesPerVehicle = 10
	jitterWindowFloor       = 10
)

// activeSnapshot is this instance's local copy of the active vehicle set,
// refreshed once a second. Pagination and cache reconciliation read from it
// so they never iterate the shared store.
type activeSnapshot struct {
	mu  sync.RWMutex
	ids []string
	set map[string]bool
}

// makeActiveSnapshot builds an empty snapshot
func makeActiveSnapshot() *activeSnapshot {
	return &activeSnapshot{set: map[string]bool{}}
}

// replace installs a fresh copy of the active set. Ids are sorted so
// pagination is stable between refreshes.
func (s *activeSnapshot) replace(ids []string) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	set := make(map[string]bool, len(sorted))
	for _, id := range sorted {
		set[id] = true
	}
	s.mu.Lock()
	s.ids = sorted
	s.set = set
	s.mu.Unlock()
}

// add inserts a vehicle created on this instance without waiting for the next
// refresh
func (s *activeSnapshot) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set[id] {
		return
	}
	s.set[id] = true
	at := sort.SearchStrings(s.ids, id)
	s.ids = append(s.ids, "")
	copy(s.ids[at+1:], s.ids[at:])
	s.ids[at] = id
}

// remove drops a vehicle retired on this instance without waiting for the
// next refresh
func (s *activeSnapshot) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set[id] {
		return
	}
	delete(s.set, id)
	at := sort.SearchStrings(s.ids, id)
	if at < len(s.ids) && s.ids[at] == id {
		s.ids = append(s.ids[:at], s.ids[at+1:]...)
	}
}

// contains reports whether a vehicle is in the snapshot
func (s *activeSnapshot) contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set[id]
}

// count returns the snapshot size
func (s *activeSnapshot) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// page returns a copy of the ids on the requested zero-based page
func (s *activeSnapshot) page(page int, pageSize int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := page * pageSize
	if start >= len(s.ids) || start < 0 {
		return []string{}
	}
	end := start + pageSize
	if end > len(s.ids) {
		end = len(s.ids)
	}
	out := make([]string, end-start)
	copy(out, s.ids[start:end])
	return out
}

//runSnapshotLoop refreshes the active set snapshot once a second, keeps the
//jitter window sized to the fleet and periodically reconciles the derived
//cache against the snapshot
func runSnapshotLoop(log *logger.Logger,
	wg *sync.WaitGroup,
	store *fleetstore.Store,
	snapshot *activeSnapshot,
	cache *derivedCache,
	window *jitter.Window,
	shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	sleepChan := make(chan bool)

	loopDuration := snapshotPeriod
	sleep := time.Duration(0) //refresh immediately on startup

	nextReconcile := time.Now().Add(reconcilePeriod)

	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting snapshot loop on shutdown signal")
			return
		case <-sleepChan:
		}

		sleep = loopDuration

		// mark the time we start working
		start := time.Now()

		ids, err := store.ActiveIDs(context.Background())
		if err != nil {
			log.Printf("error refreshing active vehicle snapshot. error:%v\n", err)
			continue
		}
		snapshot.replace(ids)

		windowSize := jitterSamplesPerVehicle * len(ids)
		if windowSize < jitterWindowFloor {
			windowSize = jitterWindowFloor
		}
		window.Resize(windowSize)

		if start.After(nextReconcile) {
			removed := cache.reconcile(snapshot.contains)
			if removed > 0 {
				log.Printf("reconciled derived cache, dropped %d inactive entries, %d remain",
					removed, cache.size())
			}
			nextReconcile = start.Add(reconcilePeriod)
		}

		workTook := time.Now().Sub(start)

		// if the work took longer than loopDuration don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}
	}
}
