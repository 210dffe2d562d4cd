// Package trip contains trip plan types and their expansion into routable stops
package trip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTransitTools/fleetsim/foundation/geodesy"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
)

// Address source tags record how a coordinate was resolved
const (
	SourceGeocodingService = "GeocodingService"
	SourceNumericEntry     = "NumericEntry"
)

// Address is one stop on a trip plan. Coordinates are optional on input;
// addresses without them are geocoded from the street fields before routing.
type Address struct {
	Source       string   `json:"source,omitempty"`
	Street       string   `json:"street,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Zip          string   `json:"zip,omitempty"`
	DegLatitude  *float64 `json:"degLatitude,omitempty"`
	DegLongitude *float64 `json:"degLongitude,omitempty"`
}

// MakeNumericAddress builds an address directly from a coordinate
func MakeNumericAddress(lat float64, lon float64) Address {
	return Address{
		Source:       SourceNumericEntry,
		DegLatitude:  &lat,
		DegLongitude: &lon,
	}
}

// HasCoordinates reports whether both latitude and longitude are present
func (a Address) HasCoordinates() bool {
	return a.DegLatitude != nil && a.DegLongitude != nil
}

// Query assembles the street fields into a geocoder query string
func (a Address) Query() string {
	parts := make([]string, 0, 4)
	for _, part := range []string{a.Street, a.City, a.State, a.Zip} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}
	return strings.Join(parts, ", ")
}

// Validate checks an address can be resolved: it needs either a coordinate
// pair in range or at least one street field to geocode from
func (a Address) Validate() error {
	if a.HasCoordinates() {
		if err := geodesy.ValidateLatLon(*a.DegLatitude, *a.DegLongitude); err != nil {
			return err
		}
		return nil
	}
	if a.Query() == "" {
		return errors.New("address has neither coordinates nor street fields")
	}
	return nil
}

// Plan is an ordered sequence of stops. The first address is the origin, the
// last the destination, any between are waypoints in travel order.
type Plan struct {
	Addresses []Address `json:"addresses"`
}

// Validate checks the plan holds at least an origin and a destination and
// every address is resolvable
func (p *Plan) Validate() error {
	if p == nil {
		return errors.New("trip plan is required")
	}
	if len(p.Addresses) < 2 {
		return fmt.Errorf("trip plan requires at least 2 addresses, got %d", len(p.Addresses))
	}
	for i, address := range p.Addresses {
		if err := address.Validate(); err != nil {
			return fmt.Errorf("address %d: %w", i, err)
		}
	}
	return nil
}

// Coordinates returns the stop coordinates in travel order. Every address must
// already carry coordinates; geocoding happens before this point.
func (p *Plan) Coordinates() ([]osrm.Coordinate, error) {
	coords := make([]osrm.Coordinate, 0, len(p.Addresses))
	for i, address := range p.Addresses {
		if !address.HasCoordinates() {
			return nil, fmt.Errorf("address %d has no resolved coordinates", i)
		}
		coords = append(coords, osrm.Coordinate{Lat: *address.DegLatitude, Lon: *address.DegLongitude})
	}
	return coords, nil
}
