package fleetsim

import (
	"context"
	"fmt"
	logger "log"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/foundation/jitter"
)

// scheduler claims ready vehicles from the shared update queue and advances
// them. Every instance runs one; the update lock set keeps instances from
// advancing the same vehicle in the same tick window.
type scheduler struct {
	log            *logger.Logger
	store          *fleetstore.Store
	cache          *derivedCache
	snapshot       *activeSnapshot
	publisher      *statePublisher
	metrics        *simMetrics
	window         *jitter.Window
	hostID         string
	updatePeriod   time.Duration
	pollingPeriod  time.Duration
	readySlack     time.Duration
	vehicleTimeout time.Duration
}

// makeScheduler builds scheduler
func makeScheduler(log *logger.Logger,
	store *fleetstore.Store,
	cache *derivedCache,
	snapshot *activeSnapshot,
	publisher *statePublisher,
	metrics *simMetrics,
	window *jitter.Window,
	cfg Config) *scheduler {
	return &scheduler{
		log:            log,
		store:          store,
		cache:          cache,
		snapshot:       snapshot,
		publisher:      publisher,
		metrics:        metrics,
		window:         window,
		hostID:         cfg.HostID,
		updatePeriod:   cfg.UpdatePeriod,
		pollingPeriod:  cfg.PollingPeriod,
		readySlack:     cfg.ReadySlack,
		vehicleTimeout: cfg.VehicleTimeout,
	}
}

// tick runs one scheduler pass at now: claim every vehicle whose queue score
// makes it ready, advance it, write it back and re-queue it, then retire the
// ones that stopped making progress longer than the vehicle timeout ago.
// Per-vehicle failures are logged and the pass continues with the next id.
func (s *scheduler) tick(ctx context.Context, now time.Time) {
	nowMillis := now.UnixMilli()
	timeoutCutoff := nowMillis - s.vehicleTimeout.Milliseconds()
	readyBound := nowMillis - s.updatePeriod.Milliseconds() + s.readySlack.Milliseconds()

	ready, err := s.store.ReadyBefore(ctx, readyBound)
	if err != nil {
		s.log.Printf("error reading vehicle update queue. error:%v\n", err)
		return
	}

	var retire []string
	for _, id := range ready {
		expired, err := s.processVehicle(ctx, id, nowMillis, timeoutCutoff)
		if err != nil {
			s.log.Printf("error updating vehicle %s. error:%v\n", id, err)
			continue
		}
		if expired {
			retire = append(retire, id)
		}
	}

	for _, id := range retire {
		if err := s.store.Retire(ctx, id); err != nil {
			s.log.Printf("error retiring vehicle %s. error:%v\n", id, err)
			continue
		}
		s.cache.purge(id)
		s.snapshot.remove(id)
		s.log.Printf("retired vehicle %s, no progress for over %s", id, s.vehicleTimeout)
	}

	if s.snapshot.count() == 0 {
		// keep the jitter metric trending toward zero while the fleet is empty
		s.window.Record(0)
	}

	stats := s.window.Stats()
	s.metrics.setJitter(stats)
	s.metrics.setActiveVehicles(s.snapshot.count())
}

// processVehicle advances one claimed vehicle and reports whether it should
// be retired. Skips quietly when derived data is still loading or another
// instance holds the vehicle's update lock.
func (s *scheduler) processVehicle(ctx context.Context, id string, nowMillis int64, timeoutCutoff int64) (bool, error) {
	data, err := s.cache.get(ctx, id, false)
	if err != nil {
		return false, err
	}
	if data == nil {
		// derived data is loading asynchronously, a later tick picks this vehicle up
		return false, nil
	}

	won, err := s.store.TryLock(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claiming update lock: %w", err)
	}
	if !won {
		// another instance owns this vehicle for this tick
		return false, nil
	}
	defer func() {
		if unlockErr := s.store.Unlock(ctx, id); unlockErr != nil {
			s.log.Printf("error releasing update lock for vehicle %s. error:%v\n", id, unlockErr)
		}
	}()

	state, err := s.store.Vehicle(ctx, id)
	if err != nil {
		return false, fmt.Errorf("reading vehicle state: %w", err)
	}

	msSinceLastRun := nowMillis - state.LastCalculationEpochMillis
	advanced := false
	if msSinceLastRun > s.pollingPeriod.Milliseconds() {
		start := time.Now()
		advanced, err = state.Update(s.log, nowMillis, data.directions, data.segments)
		if err != nil {
			return false, fmt.Errorf("advancing vehicle state: %w", err)
		}
		state.LastNsExecutionTime = time.Now().Sub(start).Nanoseconds()
	}

	if !advanced {
		// an arrived vehicle sits here, unchanged, until the timeout retires it
		return state.LastCalculationEpochMillis < timeoutCutoff, nil
	}

	state.ManagerHost = s.hostID
	if err = s.store.SaveVehicle(ctx, state); err != nil {
		return false, fmt.Errorf("writing vehicle state: %w", err)
	}
	if err = s.store.Enqueue(ctx, id, state.LastCalculationEpochMillis); err != nil {
		return false, fmt.Errorf("requeueing vehicle: %w", err)
	}

	s.window.Record(float64(msSinceLastRun - s.updatePeriod.Milliseconds()))
	s.metrics.observeUpdate()
	s.publisher.publish(state)
	return false, nil
}

//runSchedulerLoop drives scheduler ticks at the polling period, subtracting
//the time each tick took so the rate stays steady under load
func runSchedulerLoop(log *logger.Logger,
	wg *sync.WaitGroup,
	s *scheduler,
	shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	sleepChan := make(chan bool)

	loopDuration := s.pollingPeriod
	sleep := loopDuration

	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting scheduler loop on shutdown signal")
			return
		case <-sleepChan:
		}

		// mark the time we start working
		start := time.Now()

		s.tick(context.Background(), start)

		workTook := time.Now().Sub(start)

		// if the work took longer than the polling period don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}
	}
}
