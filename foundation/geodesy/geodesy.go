// Package geodesy provides spherical earth math and unit conversions
package geodesy

import (
	"fmt"
	"math"

	geo "github.com/kellydunn/golang-geo"
)

// EarthRadiusKm is the spherical earth radius used for forward geodesic calculations
const EarthRadiusKm = 6378.14

const (
	metersPerMile         = 1609.344
	metersPerNauticalMile = 1852.0
	secondsPerHour        = 3600.0
	degreesPerRadian      = 180.0 / math.Pi
	radiansPerDegree      = math.Pi / 180.0
	fullCircleDegrees     = 360.0
	halfCircleDegrees     = 180.0
	maxAbsoluteLat        = 90.0
	maxAbsoluteLon        = 180.0
	kilometersPerMeter    = 0.001
)

// ValidateLatLon returns an error when lat or lon fall outside the WGS84 domain
func ValidateLatLon(lat float64, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.Abs(lat) > maxAbsoluteLat {
		return fmt.Errorf("latitude %v out of range [-90,90]", lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || math.Abs(lon) > maxAbsoluteLon {
		return fmt.Errorf("longitude %v out of range [-180,180]", lon)
	}
	return nil
}

// MphToMetersPerSecond converts miles per hour to meters per second
func MphToMetersPerSecond(mph float64) float64 {
	return mph * metersPerMile / secondsPerHour
}

// MetersPerSecondToMph converts meters per second to miles per hour
func MetersPerSecondToMph(ms float64) float64 {
	return ms * secondsPerHour / metersPerMile
}

// MilesToMeters converts miles to meters
func MilesToMeters(miles float64) float64 {
	return miles * metersPerMile
}

// MetersToMiles converts meters to miles
func MetersToMiles(meters float64) float64 {
	return meters / metersPerMile
}

// KnotsToMetersPerSecond converts knots to meters per second
func KnotsToMetersPerSecond(knots float64) float64 {
	return knots * metersPerNauticalMile / secondsPerHour
}

// MetersPerSecondToKnots converts meters per second to knots
func MetersPerSecondToKnots(ms float64) float64 {
	return ms * secondsPerHour / metersPerNauticalMile
}

// NormalizeBearing maps any angle in degrees onto [0,360)
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, fullCircleDegrees)
	if deg < 0 {
		deg += fullCircleDegrees
	}
	return deg
}

// ShortestAngleDiff returns the signed smallest rotation in degrees moving from bearing
// "from" to bearing "to", in [-180,180]. Positive results rotate clockwise.
func ShortestAngleDiff(from float64, to float64) float64 {
	diff := math.Mod(to-from, fullCircleDegrees)
	if diff > halfCircleDegrees {
		diff -= fullCircleDegrees
	} else if diff < -halfCircleDegrees {
		diff += fullCircleDegrees
	}
	return diff
}

// InitialBearing returns the great circle initial bearing in degrees [0,360)
// traveling from (lat1,lon1) toward (lat2,lon2)
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	from := geo.NewPoint(lat1, lon1)
	to := geo.NewPoint(lat2, lon2)
	return NormalizeBearing(from.BearingTo(to))
}

// GreatCircleMeters returns the great circle distance in meters between two coordinates
func GreatCircleMeters(lat1, lon1, lat2, lon2 float64) float64 {
	from := geo.NewPoint(lat1, lon1)
	to := geo.NewPoint(lat2, lon2)
	return from.GreatCircleDistance(to) / kilometersPerMeter
}

// PointAtBearingRange returns the coordinate reached by traveling kmRange kilometers
// from (lat,lon) along the great circle at initial bearing degBearing.
func PointAtBearingRange(lat, lon, kmRange, degBearing float64) (float64, float64) {
	latRad := lat * radiansPerDegree
	lonRad := lon * radiansPerDegree
	bearingRad := degBearing * radiansPerDegree
	angularDist := kmRange / EarthRadiusKm

	destLat := math.Asin(math.Sin(latRad)*math.Cos(angularDist) +
		math.Cos(latRad)*math.Sin(angularDist)*math.Cos(bearingRad))
	destLon := lonRad + math.Atan2(math.Sin(bearingRad)*math.Sin(angularDist)*math.Cos(latRad),
		math.Cos(angularDist)-math.Sin(latRad)*math.Sin(destLat))

	destLonDeg := math.Mod(destLon*degreesPerRadian+540, fullCircleDegrees) - halfCircleDegrees
	return destLat * degreesPerRadian, destLonDeg
}
