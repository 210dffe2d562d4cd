package geodesy

import (
	"math"

	"github.com/wroge/wgs84"
)

// ZoneFor returns the UTM longitude zone (1-60) containing lon
func ZoneFor(lon float64) int {
	zone := int(math.Ceil((lon + maxAbsoluteLon) / 6.0))
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone
}

// IsZoneChange reports whether two longitudes fall in different UTM zones
func IsZoneChange(lonOld float64, lonNew float64) bool {
	return ZoneFor(lonOld) != ZoneFor(lonNew)
}

// Projection transforms coordinates between WGS84 degrees and planar UTM meters.
// Forward and inverse transforms are only valid for coordinates within the zone
// the projection was built for.
type Projection struct {
	Zone     int
	Northern bool

	forward wgs84.Func
	inverse wgs84.Func
}

// MakeProjection builds the forward and inverse transform pair for the UTM zone
// containing the given representative coordinate
func MakeProjection(lat float64, lon float64) Projection {
	zone := ZoneFor(lon)
	northern := lat >= 0
	return Projection{
		Zone:     zone,
		Northern: northern,
		forward:  wgs84.LonLat().To(wgs84.UTM(float64(zone), northern)),
		inverse:  wgs84.UTM(float64(zone), northern).To(wgs84.LonLat()),
	}
}

// Forward projects a WGS84 coordinate to easting/northing meters
func (p Projection) Forward(lat float64, lon float64) (float64, float64) {
	east, north, _ := p.forward(lon, lat, 0)
	return east, north
}

// Inverse unprojects easting/northing meters back to a WGS84 coordinate
func (p Projection) Inverse(x float64, y float64) (float64, float64) {
	lon, lat, _ := p.inverse(x, y, 0)
	return lat, lon
}
