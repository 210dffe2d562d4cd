package route

import (
	"errors"
	"fmt"
	"sort"

	"github.com/OpenTransitTools/fleetsim/foundation/geodesy"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
)

// Segment is one UTM-zone-contiguous run of the route. MetersOffset is the
// cumulative distance from the route start to the segment start; the line and
// projection are valid for this segment's zone only.
type Segment struct {
	MetersOffset float64
	Line         *LengthIndexedLine
	Projection   geodesy.Projection
}

// PositionAt resolves a route offset within this segment to a WGS84 coordinate
func (s Segment) PositionAt(routeMeters float64) (float64, float64) {
	p := s.Line.PointAt(routeMeters - s.MetersOffset)
	return s.Projection.Inverse(p.X, p.Y)
}

// BuildSegments walks the step geometry of the primary route, splitting into a
// new segment with fresh transformers whenever a step begins in a different
// UTM zone than the running reference longitude.
func BuildSegments(directions *osrm.Directions) ([]Segment, error) {
	if !directions.HasRoute() {
		return nil, errors.New("directions have no route")
	}
	if len(directions.Waypoints) == 0 || len(directions.Waypoints[0].Location) < 2 {
		return nil, errors.New("directions have no usable waypoints")
	}

	refLat, refLon := directions.Waypoints[0].LatLon()
	b := makeSegmentBuilder(refLat, refLon)

	for _, leg := range directions.Routes[0].Legs {
		for _, step := range leg.Steps {
			coords := step.Geometry.Coordinates
			if len(coords) == 0 {
				continue
			}
			if len(coords[0]) >= 2 && geodesy.IsZoneChange(b.refLon, coords[0][0]) {
				b.restart(coords[0][1], coords[0][0])
			}
			for _, coord := range coords {
				if len(coord) < 2 {
					continue
				}
				b.append(coord[1], coord[0])
			}
		}
	}
	return b.finish()
}

// FindSegment returns the segment containing the route offset: the one with
// the largest MetersOffset not exceeding meters
func FindSegment(segments []Segment, meters float64) (Segment, error) {
	if len(segments) == 0 {
		return Segment{}, errors.New("no segments")
	}
	idx := sort.Search(len(segments), func(i int) bool {
		return segments[i].MetersOffset > meters
	}) - 1
	if idx < 0 {
		idx = 0
	}
	return segments[idx], nil
}

// PositionAt resolves a route offset to a WGS84 coordinate
func PositionAt(segments []Segment, meters float64) (float64, float64, error) {
	segment, err := FindSegment(segments, meters)
	if err != nil {
		return 0, 0, err
	}
	lat, lon := segment.PositionAt(meters)
	return lat, lon, nil
}

// PlanarLength returns the summed planar arclength of all segments. It tracks
// the route distance reported by the directions provider to within projection
// rounding.
func PlanarLength(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	last := segments[len(segments)-1]
	return last.MetersOffset + last.Line.Length()
}

// SpeedAt returns the posted speed in m/s at a route offset by walking the leg
// annotations in travel order. Offsets beyond the annotated distance return
// the last known speed; directions without annotations return 0.
func SpeedAt(directions *osrm.Directions, meters float64) float64 {
	if !directions.HasRoute() {
		return 0
	}
	cumulative := 0.0
	lastSpeed := 0.0
	annotated := false
	for _, leg := range directions.Routes[0].Legs {
		if leg.Annotation == nil {
			continue
		}
		n := len(leg.Annotation.Distance)
		if len(leg.Annotation.Speed) < n {
			n = len(leg.Annotation.Speed)
		}
		for i := 0; i < n; i++ {
			cumulative += leg.Annotation.Distance[i]
			lastSpeed = leg.Annotation.Speed[i]
			annotated = true
			if meters <= cumulative {
				return lastSpeed
			}
		}
	}
	if !annotated {
		return 0
	}
	return lastSpeed
}

//segmentBuilder accumulates projected points and closes a segment on each zone change
type segmentBuilder struct {
	segments   []Segment
	projection geodesy.Projection
	refLon     float64
	offset     float64
	points     []Point
	lastLat    float64
	lastLon    float64
}

func makeSegmentBuilder(lat float64, lon float64) *segmentBuilder {
	return &segmentBuilder{
		projection: geodesy.MakeProjection(lat, lon),
		refLon:     lon,
	}
}

func (b *segmentBuilder) append(lat float64, lon float64) {
	if len(b.points) > 0 && lat == b.lastLat && lon == b.lastLon {
		return
	}
	x, y := b.projection.Forward(lat, lon)
	b.points = append(b.points, Point{X: x, Y: y})
	b.lastLat, b.lastLon = lat, lon
}

func (b *segmentBuilder) restart(lat float64, lon float64) {
	b.closeSegment()
	b.projection = geodesy.MakeProjection(lat, lon)
	b.refLon = lon
}

func (b *segmentBuilder) closeSegment() {
	if len(b.points) == 0 {
		return
	}
	line, err := MakeLengthIndexedLine(b.points)
	if err != nil {
		return
	}
	b.segments = append(b.segments, Segment{
		MetersOffset: b.offset,
		Line:         line,
		Projection:   b.projection,
	})
	b.offset += line.Length()
	b.points = nil
}

func (b *segmentBuilder) finish() ([]Segment, error) {
	b.closeSegment()
	if len(b.segments) == 0 {
		return nil, fmt.Errorf("directions contain no step geometry")
	}
	return b.segments, nil
}
