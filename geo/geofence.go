package geo

import (
	"math"

	"github.com/shorelinehq/dispatch/types"
)

// geofenceSides is the vertex count of generated geofence polygons. A
// 32-gon stays within 0.5% of the true circle, tight enough for the
// coverage-map rendering this feeds.
const geofenceSides = 32

// metersPerDegree is the approximate length of one degree of latitude.
const metersPerDegree = 111320.0

// CircularGeofence returns a polygon approximating the circle of
// radiusMeters around center, using equirectangular offsets. Vertices
// are ordered counterclockwise starting due north.
func CircularGeofence(center types.GeoPoint, radiusMeters float64) []types.GeoPoint {
	points := make([]types.GeoPoint, 0, geofenceSides)
	for i := 0; i < geofenceSides; i++ {
		angle := float64(i) / geofenceSides * 2 * math.Pi
		latOffset := radiusMeters / metersPerDegree * math.Cos(angle)
		lngOffset := radiusMeters / (metersPerDegree * math.Cos(center.Lat*math.Pi/180)) * math.Sin(angle)

		points = append(points, types.GeoPoint{
			Lat: center.Lat + latOffset,
			Lng: center.Lng + lngOffset,
		})
	}
	return points
}
