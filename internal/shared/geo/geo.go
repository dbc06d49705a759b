package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

const EarthRadiusM = 6371000.0

// DistanceM returns the great-circle distance between two points in meters.
// Non-finite results (NaN input) collapse to zero.
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lng1)
	p2 := s2.LatLngFromDegrees(lat2, lng2)
	d := p1.Distance(p2).Radians() * EarthRadiusM
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}
