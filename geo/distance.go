package geo

import (
	"math"

	"github.com/shorelinehq/dispatch/types"
)

const (
	// earthRadius is the mean earth radius in meters.
	earthRadius = 6371000.0

	// travelSpeed is the assumed provider travel speed in meters per
	// second (~30 km/h, mixed urban traffic).
	travelSpeed = 8.33
)

// Distance returns the great-circle distance between two points in
// meters, computed with the haversine formula. It is symmetric and
// zero for identical points.
func Distance(p1, p2 types.GeoPoint) float64 {
	phi1 := p1.Lat * math.Pi / 180
	phi2 := p2.Lat * math.Pi / 180
	dPhi := (p2.Lat - p1.Lat) * math.Pi / 180
	dLambda := (p2.Lng - p1.Lng) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// ETA estimates arrival time in whole minutes: the provider's base
// response time plus travel time at the fixed travel speed, rounded up.
// The result is never below ceil(baseResponseSeconds/60).
func ETA(from, to types.GeoPoint, baseResponseSeconds float64) int {
	travelTime := Distance(from, to) / travelSpeed
	return int(math.Ceil((baseResponseSeconds + travelTime) / 60))
}
