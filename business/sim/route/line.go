// Package route turns directions geometry into UTM line segments supporting
// position and speed lookups by meters traveled from the route start
package route

import (
	"errors"
	"math"
	"sort"
)

// Point is a planar UTM coordinate in meters
type Point struct {
	X float64
	Y float64
}

// LengthIndexedLine is a polyline parameterized by cumulative arclength,
// supporting point lookup at any distance along it in O(log K)
type LengthIndexedLine struct {
	points     []Point
	cumulative []float64
}

// MakeLengthIndexedLine builds the cumulative arclength table for points.
// Consecutive duplicate points are dropped so the table strictly increases.
func MakeLengthIndexedLine(points []Point) (*LengthIndexedLine, error) {
	if len(points) == 0 {
		return nil, errors.New("a length indexed line requires at least one point")
	}
	kept := make([]Point, 0, len(points))
	cumulative := make([]float64, 0, len(points))
	for _, p := range points {
		if len(kept) > 0 {
			last := kept[len(kept)-1]
			if p == last {
				continue
			}
			cumulative = append(cumulative, cumulative[len(cumulative)-1]+math.Hypot(p.X-last.X, p.Y-last.Y))
		} else {
			cumulative = append(cumulative, 0)
		}
		kept = append(kept, p)
	}
	return &LengthIndexedLine{points: kept, cumulative: cumulative}, nil
}

// Length returns the total arclength in meters
func (l *LengthIndexedLine) Length() float64 {
	return l.cumulative[len(l.cumulative)-1]
}

// PointAt returns the point at arclength s from the line start. Values outside
// [0, Length] clamp to the respective endpoint.
func (l *LengthIndexedLine) PointAt(s float64) Point {
	if s <= 0 || len(l.points) == 1 {
		return l.points[0]
	}
	if s >= l.Length() {
		return l.points[len(l.points)-1]
	}
	i := sort.SearchFloat64s(l.cumulative, s)
	if l.cumulative[i] == s {
		return l.points[i]
	}
	prev := l.cumulative[i-1]
	frac := (s - prev) / (l.cumulative[i] - prev)
	a, b := l.points[i-1], l.points[i]
	return Point{
		X: a.X + (b.X-a.X)*frac,
		Y: a.Y + (b.Y-a.Y)*frac,
	}
}
