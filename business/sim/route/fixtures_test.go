package route

import (
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
)

//meridian degree length near 45 degrees latitude
const metersPerDegreeLat = 111132.0

// straightDirections builds a single leg route running due north from
// (startLat, startLon) for the given meters, with the posted speed annotated
// in equal slices and the geometry split into two steps sharing a vertex.
func straightDirections(startLat, startLon, meters, speed float64, slices int) *osrm.Directions {
	const vertices = 11
	dLat := meters / metersPerDegreeLat

	coords := make([][]float64, vertices)
	for i := 0; i < vertices; i++ {
		frac := float64(i) / float64(vertices-1)
		coords[i] = []float64{startLon, startLat + dLat*frac}
	}
	mid := vertices / 2

	sliceDistances := make([]float64, slices)
	sliceSpeeds := make([]float64, slices)
	for i := range sliceDistances {
		sliceDistances[i] = meters / float64(slices)
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
				Steps: []osrm.Step{
					{
						Distance: meters / 2,
						Geometry: osrm.Geometry{Type: "LineString", Coordinates: coords[:mid+1]},
					},
					{
						Distance: meters / 2,
						Geometry: osrm.Geometry{Type: "LineString", Coordinates: coords[mid:]},
					},
				},
			}},
		}},
	}
}

// zoneCrossingDirections builds an eastbound route at latitude 45 crossing the
// UTM zone 10/11 boundary at longitude -120. The second step begins in zone 11
// with the seam vertex shared between the steps.
func zoneCrossingDirections() *osrm.Directions {
	stepOne := [][]float64{
		{-120.004, 45.0},
		{-120.002, 45.0},
		{-119.999, 45.0},
	}
	stepTwo := [][]float64{
		{-119.999, 45.0},
		{-119.997, 45.0},
		{-119.995, 45.0},
	}
	// about 79km per degree of longitude at latitude 45
	totalMeters := 0.009 * 78850.0

	return &osrm.Directions{
		Code: "Ok",
		Waypoints: []osrm.Waypoint{
			{Name: "origin", Location: []float64{-120.004, 45.0}},
			{Name: "destination", Location: []float64{-119.995, 45.0}},
		},
		Routes: []osrm.Route{{
			Distance: totalMeters,
			Legs: []osrm.Leg{{
				Distance: totalMeters,
				Annotation: &osrm.Annotation{
					Distance: []float64{totalMeters / 2, totalMeters / 2},
					Speed:    []float64{13.4, 13.4},
				},
				Steps: []osrm.Step{
					{Distance: totalMeters / 2, Geometry: osrm.Geometry{Type: "LineString", Coordinates: stepOne}},
					{Distance: totalMeters / 2, Geometry: osrm.Geometry{Type: "LineString", Coordinates: stepTwo}},
				},
			}},
		}},
	}
}
