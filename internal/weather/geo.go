package weather

import (
	"github.com/golang/geo/s2"
)

const earthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b Coordinates) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}

// NearestRecord returns the saved record closest to coords within radius meters.
func NearestRecord(records []LocationRecord, coords Coordinates, radiusMeters float64) (LocationRecord, bool) {
	var (
		best     LocationRecord
		bestDist = radiusMeters
		found    bool
	)
	for _, r := range records {
		d := DistanceMeters(r.Coordinates, coords)
		if d <= bestDist {
			best, bestDist, found = r, d, true
		}
	}
	return best, found
}
