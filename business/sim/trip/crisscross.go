package trip

import (
	"fmt"

	"github.com/OpenTransitTools/fleetsim/foundation/geodesy"
)

// CrissCross describes a fan of trips crossing a center point. It expands to
// VehicleCount plans whose origins sit on a circle of KmRange kilometers
// around the center, each destination antipodal across it.
type CrissCross struct {
	DegLatitude  float64 `json:"degLatitude"`
	DegLongitude float64 `json:"degLongitude"`
	KmRange      float64 `json:"kmRange"`
	VehicleCount int     `json:"vehicleCount"`
}

// Validate checks the criss cross parameters
func (c CrissCross) Validate() error {
	if err := geodesy.ValidateLatLon(c.DegLatitude, c.DegLongitude); err != nil {
		return err
	}
	if c.KmRange <= 0 {
		return fmt.Errorf("kmRange must be positive, got %v", c.KmRange)
	}
	if c.VehicleCount < 1 {
		return fmt.Errorf("vehicleCount must be at least 1, got %d", c.VehicleCount)
	}
	return nil
}

// Expand produces one two-stop plan per vehicle. Start bearings are evenly
// spaced around the circle, offset by half an increment so none sits at 0.
func (c CrissCross) Expand() ([]Plan, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	increment := 360.0 / float64(c.VehicleCount)
	plans := make([]Plan, 0, c.VehicleCount)
	for k := 0; k < c.VehicleCount; k++ {
		bearing := increment/2 + float64(k)*increment
		startLat, startLon := geodesy.PointAtBearingRange(c.DegLatitude, c.DegLongitude, c.KmRange, bearing)
		endLat, endLon := geodesy.PointAtBearingRange(c.DegLatitude, c.DegLongitude, c.KmRange,
			geodesy.NormalizeBearing(bearing+180))
		plans = append(plans, Plan{
			Addresses: []Address{
				MakeNumericAddress(startLat, startLon),
				MakeNumericAddress(endLat, endLon),
			},
		})
	}
	return plans, nil
}
