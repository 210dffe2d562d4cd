package fleetsim

import (
	"encoding/json"
	"fmt"
	logger "log"

	"github.com/OpenTransitTools/fleetsim/business/sim/vehicle"
	"github.com/nats-io/nats.go"
)

// VehicleStateSubject is the NATS subject live map consumers subscribe to
const VehicleStateSubject = "fleet-sim.vehicle-state"

// statePublicationDestination is where advanced vehicle states are sent
type statePublicationDestination interface {
	Publish(state *vehicle.State) error
}

// natsStatePublicationDestination sends vehicle states over nats
type natsStatePublicationDestination struct {
	natsConn *nats.Conn
	subject  string
}

func (n *natsStatePublicationDestination) Publish(state *vehicle.State) error {
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("error marshaling vehicle state to json: error:%v", err)
	}
	return n.natsConn.Publish(n.subject, jsonData)
}

// statePublisher hands every advanced vehicle state to its destination.
// A nil destination disables publishing. Failures are logged, never fatal.
type statePublisher struct {
	log         *logger.Logger
	destination statePublicationDestination
}

// makeStatePublisher builds statePublisher
func makeStatePublisher(log *logger.Logger, destination statePublicationDestination) *statePublisher {
	return &statePublisher{
		log:         log,
		destination: destination,
	}
}

// publish sends one vehicle state, a no-op when publishing is disabled
func (p *statePublisher) publish(state *vehicle.State) {
	if p.destination == nil {
		return
	}
	if err := p.destination.Publish(state); err != nil {
		p.log.Printf("Error publishing vehicle state: error:%v\n", err)
	}
}
