package vehicle

import (
	"io"
	logger "log"
	"testing"

	"github.com/OpenTransitTools/fleetsim/business/sim/route"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, "TEST : ", logger.LstdFlags)
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

func routeFixture(t *testing.T, directions *osrm.Directions) []route.Segment {
	t.Helper()
	segments, err := route.BuildSegments(directions)
	if err != nil {
		t.Fatalf("building segments: %v", err)
	}
	return segments
}
