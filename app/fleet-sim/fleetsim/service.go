// Package fleetsim runs one instance of the distributed fleet simulator:
// a scheduler loop advancing vehicles claimed from the shared store, a
// snapshot refresher, a NATS state stream and the REST facade the UI uses.
package fleetsim

import (
	logger "log"
	"os"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/foundation/geocode"
	"github.com/OpenTransitTools/fleetsim/foundation/jitter"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
	"github.com/nats-io/nats.go"
)

// Config contains all configurable parameters in fleetsim
type Config struct {
	//HostID is recorded as managerHost on every vehicle this instance writes
	HostID string
	//UpdatePeriod is the target interval between advances of the same vehicle
	UpdatePeriod time.Duration
	//PollingPeriod is the scheduler tick interval, at most UpdatePeriod
	PollingPeriod time.Duration
	//ReadySlack widens the queue ready bound so vehicles become eligible
	//about one UpdatePeriod after their last stamp
	ReadySlack time.Duration
	//VehicleTimeout retires vehicles that stopped making progress
	VehicleTimeout time.Duration
	//JitterCapacity is the initial size of the rolling jitter window
	JitterCapacity int
	//WebHost is the listen address of the REST facade
	WebHost string
}

//StartServices brings up the scheduler loop, the snapshot refresher and the
//web service. Exits after all of them shut down on shutdown signal.
func StartServices(log *logger.Logger,
	cfg Config,
	store *fleetstore.Store,
	directions *osrm.Client,
	geocoder *geocode.Client,
	natsConn *nats.Conn,
	shutdownSignal chan os.Signal) {

	wg := sync.WaitGroup{}

	//create shared structures
	window := jitter.MakeWindow(cfg.JitterCapacity)
	metrics := makeSimMetrics()
	cache := makeDerivedCache(log, store, directions)
	snapshot := makeActiveSnapshot()

	var destination statePublicationDestination
	if natsConn != nil {
		destination = &natsStatePublicationDestination{natsConn: natsConn, subject: VehicleStateSubject}
	}
	publisher := makeStatePublisher(log, destination)

	manager := makeManager(log, store, cache, snapshot, directions, geocoder, cfg.HostID)
	sched := makeScheduler(log, store, cache, snapshot, publisher, metrics, window, cfg)

	//create shutdown channels
	schedulerShutdown := make(chan bool, 1)
	snapshotShutdown := make(chan bool, 1)
	webServiceShutdown := make(chan bool, 1)

	//start all child services
	go runSchedulerLoop(log, &wg, sched, schedulerShutdown)
	go runSnapshotLoop(log, &wg, store, snapshot, cache, window, snapshotShutdown)
	go runWebService(log, &wg, manager, metrics, cfg.WebHost, webServiceShutdown)

	select {
	case <-shutdownSignal:
		log.Printf("Exiting on shutdown signal, shutting down subroutines")
		schedulerShutdown <- true
		snapshotShutdown <- true
		webServiceShutdown <- true
		wg.Wait()
		log.Printf("Subroutines shut down, exiting fleet simulator")
	}
}
