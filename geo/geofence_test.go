package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/shorelinehq/dispatch/types"
)

func TestCircularGeofence_VertexCount(t *testing.T) {
	fence := CircularGeofence(types.GeoPoint{Lat: 37.7749, Lng: -122.4194}, 5000)
	assert.Len(t, fence, 32)
}

func TestCircularGeofence_VerticesOnCircleProperty(t *testing.T) {
	// Every vertex must sit within 1% of the requested radius. Latitudes
	// are kept away from the poles where the equirectangular
	// approximation degenerates.
	rapid.Check(t, func(rt *rapid.T) {
		center := types.GeoPoint{
			Lat: rapid.Float64Range(-60, 60).Draw(rt, "lat"),
			Lng: rapid.Float64Range(-180, 180).Draw(rt, "lng"),
		}
		radius := rapid.Float64Range(100, 50000).Draw(rt, "radius")

		for i, vertex := range CircularGeofence(center, radius) {
			d := Distance(center, vertex)
			if d < 0.99*radius || d > 1.01*radius {
				rt.Fatalf("vertex %d at %f m, outside [%f, %f]",
					i, d, 0.99*radius, 1.01*radius)
			}
		}
	})
}
