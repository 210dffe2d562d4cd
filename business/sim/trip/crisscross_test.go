package trip

import (
	"math"
	"testing"

	"github.com/OpenTransitTools/fleetsim/foundation/geodesy"
)

func Test_CrissCross_Validate(t *testing.T) {
	tests := []struct {
		name    string
		plan    CrissCross
		wantErr bool
	}{
		{name: "valid", plan: CrissCross{DegLatitude: 32.7507, DegLongitude: -97.3286, KmRange: 50, VehicleCount: 4}},
		{name: "zero range", plan: CrissCross{DegLatitude: 32.7507, DegLongitude: -97.3286, KmRange: 0, VehicleCount: 4}, wantErr: true},
		{name: "zero vehicles", plan: CrissCross{DegLatitude: 32.7507, DegLongitude: -97.3286, KmRange: 50, VehicleCount: 0}, wantErr: true},
		{name: "bad center", plan: CrissCross{DegLatitude: 95, DegLongitude: -97.3286, KmRange: 50, VehicleCount: 4}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_CrissCross_Expand(t *testing.T) {
	centerLat, centerLon := 32.7507, -97.3286
	plan := CrissCross{DegLatitude: centerLat, DegLongitude: centerLon, KmRange: 50, VehicleCount: 4}

	plans, err := plan.Expand()
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if len(plans) != 4 {
		t.Fatalf("Expand() produced %d plans, want 4", len(plans))
	}

	wantBearings := []float64{45, 135, 225, 315}
	for i, p := range plans {
		if len(p.Addresses) != 2 {
			t.Fatalf("plan %d has %d addresses, want 2", i, len(p.Addresses))
		}
		start, end := p.Addresses[0], p.Addresses[1]
		if !start.HasCoordinates() || !end.HasCoordinates() {
			t.Fatalf("plan %d has unresolved endpoints", i)
		}
		if start.Source != SourceNumericEntry || end.Source != SourceNumericEntry {
			t.Errorf("plan %d endpoints are not numeric entry", i)
		}

		// start sits on the circle at the expected bearing
		gotBearing := geodesy.InitialBearing(centerLat, centerLon, *start.DegLatitude, *start.DegLongitude)
		if math.Abs(geodesy.ShortestAngleDiff(gotBearing, wantBearings[i])) > 0.5 {
			t.Errorf("plan %d start bearing = %v, want %v", i, gotBearing, wantBearings[i])
		}

		// both endpoints are a circle radius from the center
		startRange := geodesy.GreatCircleMeters(centerLat, centerLon, *start.DegLatitude, *start.DegLongitude)
		endRange := geodesy.GreatCircleMeters(centerLat, centerLon, *end.DegLatitude, *end.DegLongitude)
		for _, gotMeters := range []float64{startRange, endRange} {
			if math.Abs(gotMeters-50000) > 500 {
				t.Errorf("plan %d endpoint range = %vm, want about 50000m", i, gotMeters)
			}
		}

		// endpoints are antipodal across the center: a full diameter apart
		span := geodesy.GreatCircleMeters(*start.DegLatitude, *start.DegLongitude, *end.DegLatitude, *end.DegLongitude)
		if math.Abs(span-100000) > 1000 {
			t.Errorf("plan %d start-end span = %vm, want about 100000m", i, span)
		}
	}
}

func Test_CrissCross_Expand_neverStartsAtZeroBearing(t *testing.T) {
	for _, count := range []int{1, 2, 3, 5, 8} {
		plan := CrissCross{DegLatitude: 45.52, DegLongitude: -122.67, KmRange: 10, VehicleCount: count}
		plans, err := plan.Expand()
		if err != nil {
			t.Fatalf("Expand() error for count %d: %v", count, err)
		}
		for i, p := range plans {
			gotBearing := geodesy.InitialBearing(45.52, -122.67, *p.Addresses[0].DegLatitude, *p.Addresses[0].DegLongitude)
			if math.Abs(geodesy.ShortestAngleDiff(gotBearing, 0)) < 1.0 {
				t.Errorf("count %d plan %d starts at bearing %v, too close to 0", count, i, gotBearing)
			}
		}
	}
}
