// Package osrm provides a client for OSRM compatible directions services and
// the response model route preprocessing consumes
package osrm

// Directions is the directions service response for one routing request.
// Coordinate arrays are ordered longitude first, matching GeoJSON.
type Directions struct {
	Code      string     `json:"code"`
	Message   string     `json:"message,omitempty"`
	Routes    []Route    `json:"routes"`
	Waypoints []Waypoint `json:"waypoints"`
}

// Waypoint is a requested stop snapped onto the road network
type Waypoint struct {
	Name     string    `json:"name"`
	Location []float64 `json:"location"`
}

// LatLon returns the waypoint coordinate. Locations are stored lon first.
func (w Waypoint) LatLon() (float64, float64) {
	if len(w.Location) < 2 {
		return 0, 0
	}
	return w.Location[1], w.Location[0]
}

// Route is one driveable path visiting every waypoint in order
type Route struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Legs     []Leg   `json:"legs"`
}

// Leg connects two consecutive waypoints
type Leg struct {
	Distance   float64     `json:"distance"`
	Duration   float64     `json:"duration"`
	Annotation *Annotation `json:"annotation,omitempty"`
	Steps      []Step      `json:"steps"`
}

// Annotation carries per coordinate-pair metadata along a leg. Distance values
// are meters, speed values meters per second. Both run in travel order.
type Annotation struct {
	Distance []float64 `json:"distance"`
	Speed    []float64 `json:"speed"`
}

// Step is a maneuver-to-maneuver stretch of a leg with its own geometry
type Step struct {
	Distance float64  `json:"distance"`
	Name     string   `json:"name"`
	Geometry Geometry `json:"geometry"`
}

// Geometry is a GeoJSON LineString of lon,lat pairs
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// HasRoute reports whether at least one route came back
func (d *Directions) HasRoute() bool {
	return d != nil && len(d.Routes) > 0
}

// Distance returns the total driving distance in meters of the primary route,
// zero when no route exists
func (d *Directions) Distance() float64 {
	if !d.HasRoute() {
		return 0
	}
	return d.Routes[0].Distance
}

// Origin returns the first waypoint coordinate
func (d *Directions) Origin() (float64, float64) {
	if len(d.Waypoints) == 0 {
		return 0, 0
	}
	return d.Waypoints[0].LatLon()
}

// Destination returns the last waypoint coordinate
func (d *Directions) Destination() (float64, float64) {
	if len(d.Waypoints) == 0 {
		return 0, 0
	}
	return d.Waypoints[len(d.Waypoints)-1].LatLon()
}
