// Package vehicle implements the per-vehicle kinematic state machine the
// scheduler advances on every tick
package vehicle

import (
	"encoding/json"
	"errors"
	logger "log"
	"math"

	"github.com/OpenTransitTools/fleetsim/business/sim/route"
	"github.com/OpenTransitTools/fleetsim/foundation/geodesy"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
	"github.com/google/uuid"
)

// Kinematic defaults applied at creation
const (
	DefaultMssAcceleration   = 2.0
	DefaultDegsPerSecondTurn = 120.0
)

// State is the persistent simulation state of one vehicle. Derived route data
// (directions and segments) is never stored on it; callers pass both into the
// kinematic operations.
type State struct {
	Id                         string  `json:"id"`
	TripPlanRef                string  `json:"tripPlanRef"`
	MetersOffset               float64 `json:"metersOffset"`
	PositionLimited            bool    `json:"positionLimited"`
	PositionValid              bool    `json:"positionValid"`
	DegLatitude                float64 `json:"degLatitude"`
	DegLongitude               float64 `json:"degLongitude"`
	MetersPerSecond            float64 `json:"metersPerSecond"`
	MetersPerSecondDesired     float64 `json:"metersPerSecondDesired"`
	MssAcceleration            float64 `json:"mssAcceleration"`
	DegBearing                 float64 `json:"degBearing"`
	DegBearingDesired          float64 `json:"degBearingDesired"`
	DegsPerSecondTurn          float64 `json:"degsPerSecondTurn"`
	ColorCode                  string  `json:"colorCode"`
	LastCalculationEpochMillis int64   `json:"lastCalculationEpochMillis"`
	ManagerHost                string  `json:"managerHost"`
	LastNsExecutionTime        int64   `json:"lastNsExecutionTime"`

	//set once the vehicle has a resolved position, guards the first desired
	//bearing calculation
	positioned bool
}

// MakeState creates a vehicle with a fresh id, kinematic defaults and a stable
// random display color
func MakeState(tripPlanRef string) *State {
	return &State{
		Id:                uuid.NewString(),
		TripPlanRef:       tripPlanRef,
		MssAcceleration:   DefaultMssAcceleration,
		DegsPerSecondTurn: DefaultDegsPerSecondTurn,
		ColorCode:         randomColorCode(),
	}
}

// UnmarshalJSON decodes a stored vehicle. Stored vehicles always carry a
// resolved position.
func (s *State) UnmarshalJSON(data []byte) error {
	type alias State
	if err := json.Unmarshal(data, (*alias)(s)); err != nil {
		return err
	}
	s.positioned = true
	return nil
}

// SetMetersOffset positions the vehicle at arclength m from the route start.
// Out of range offsets clamp to the nearest endpoint and mark the position
// limited and invalid. The desired speed is refreshed from the annotations at
// the resulting offset on every call.
func (s *State) SetMetersOffset(m float64, directions *osrm.Directions, segments []route.Segment) error {
	if !directions.HasRoute() || len(segments) == 0 {
		return errors.New("vehicle has no route data")
	}
	routeDistance := directions.Distance()

	switch {
	case m == 0:
		lat, lon := directions.Origin()
		s.placeAt(lat, lon)
		s.MetersOffset = 0
		s.PositionValid = true
		s.PositionLimited = false
	case m == routeDistance:
		lat, lon := directions.Destination()
		s.placeAt(lat, lon)
		s.MetersOffset = routeDistance
		s.PositionValid = true
		s.PositionLimited = false
	case m < 0:
		lat, lon := directions.Origin()
		s.placeAt(lat, lon)
		s.MetersOffset = 0
		s.PositionValid = false
		s.PositionLimited = true
	case m > routeDistance:
		lat, lon := directions.Destination()
		s.placeAt(lat, lon)
		s.MetersOffset = routeDistance
		s.PositionValid = false
		s.PositionLimited = true
	default:
		lat, lon, err := route.PositionAt(segments, m)
		if err != nil {
			return err
		}
		if s.positioned && (lat != s.DegLatitude || lon != s.DegLongitude) {
			s.DegBearingDesired = geodesy.InitialBearing(s.DegLatitude, s.DegLongitude, lat, lon)
		}
		s.placeAt(lat, lon)
		s.MetersOffset = m
		s.PositionValid = true
		s.PositionLimited = false
	}

	s.MetersPerSecondDesired = route.SpeedAt(directions, s.MetersOffset)
	return nil
}

// Update advances the vehicle by the wall-clock time elapsed since its last
// calculation. It reports whether state was advanced; an arrived vehicle or a
// zero elapsed interval leaves state untouched and reports false.
func (s *State) Update(log *logger.Logger, nowMillis int64, directions *osrm.Directions, segments []route.Segment) (bool, error) {
	if !directions.HasRoute() || len(segments) == 0 {
		return false, errors.New("vehicle has no route data")
	}
	elapsedMillis := nowMillis - s.LastCalculationEpochMillis
	if elapsedMillis <= 0 {
		return false, nil
	}

	routeDistance := directions.Distance()
	atRouteEnd := s.PositionLimited && (s.MetersOffset > 0 || routeDistance == 0)
	if atRouteEnd && s.MetersPerSecond == 0 {
		// arrived: absorbing until retirement
		return false, nil
	}

	deltaSeconds := float64(elapsedMillis) / 1000.0

	if routeDistance == 0 {
		// degenerate route: pin to the only waypoint and stop immediately
		if err := s.SetMetersOffset(0, directions, segments); err != nil {
			return false, err
		}
		s.PositionLimited = true
		s.MetersPerSecond = 0
		s.MetersPerSecondDesired = 0
		log.Printf("vehicle %s arrived at route end, offset %.1fm", s.Id, s.MetersOffset)
		s.LastCalculationEpochMillis = nowMillis
		return true, nil
	}

	if atRouteEnd {
		// still rolling at the destination, ramp down to a stop
		s.MetersPerSecondDesired = 0
	}

	priorSpeed := s.MetersPerSecond
	s.MetersPerSecond = approach(s.MetersPerSecond, s.MetersPerSecondDesired, s.MssAcceleration*deltaSeconds)

	target := s.MetersOffset + s.MetersPerSecond*deltaSeconds
	reachedEnd := target >= routeDistance
	if reachedEnd {
		target = routeDistance
	}
	if err := s.SetMetersOffset(target, directions, segments); err != nil {
		return false, err
	}
	if reachedEnd {
		s.PositionLimited = true
		s.MetersPerSecondDesired = 0
		if priorSpeed > 0 && s.MetersPerSecond == 0 {
			log.Printf("vehicle %s arrived at route end, offset %.1fm", s.Id, s.MetersOffset)
		}
	}

	s.DegBearing = geodesy.NormalizeBearing(s.DegBearing)
	s.DegBearingDesired = geodesy.NormalizeBearing(s.DegBearingDesired)
	turn := geodesy.ShortestAngleDiff(s.DegBearing, s.DegBearingDesired)
	maxTurn := s.DegsPerSecondTurn * deltaSeconds
	switch {
	case math.Abs(turn) <= maxTurn:
		s.DegBearing = s.DegBearingDesired
	case turn > 0:
		s.DegBearing = geodesy.NormalizeBearing(s.DegBearing + maxTurn)
	default:
		s.DegBearing = geodesy.NormalizeBearing(s.DegBearing - maxTurn)
	}

	s.LastCalculationEpochMillis = nowMillis
	return true, nil
}

func (s *State) placeAt(lat float64, lon float64) {
	s.DegLatitude = lat
	s.DegLongitude = lon
	s.positioned = true
}

//approach moves current toward desired by at most maxDelta, never overshooting
func approach(current, desired, maxDelta float64) float64 {
	diff := desired - current
	if math.Abs(diff) <= maxDelta {
		return desired
	}
	if diff > 0 {
		return current + maxDelta
	}
	return current - maxDelta
}
