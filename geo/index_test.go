package geo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/types"
)

func newListing(id string, lat, lng float64) *types.ServiceListing {
	return &types.ServiceListing{
		ID:       id,
		Category: "food-delivery",
		Location: types.GeoPoint{Lat: lat, Lng: lng},
		Status:   types.ListingStatusActive,
	}
}

func TestGridIndex_InsertAndQuery(t *testing.T) {
	idx := NewGridIndex(zap.NewNop())

	near := newListing("near", 37.7749, -122.4194)
	far := newListing("far", 37.9, -122.2) // ~20 km away

	idx.Insert(near)
	idx.Insert(far)
	require.Equal(t, 2, idx.Len())

	results := idx.QueryRadius(types.GeoPoint{Lat: 37.78, Lng: -122.41}, 5000)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].ID)

	// Widening the radius brings in the second listing.
	results = idx.QueryRadius(types.GeoPoint{Lat: 37.78, Lng: -122.41}, 50000)
	assert.Len(t, results, 2)
}

func TestGridIndex_QueryExcludesBeyondRadius(t *testing.T) {
	idx := NewGridIndex(nil)
	center := types.GeoPoint{Lat: 40.0, Lng: -74.0}

	for i := 0; i < 10; i++ {
		// Spread listings roughly every 1.1 km northward.
		idx.Insert(newListing(fmt.Sprintf("l%d", i), 40.0+float64(i)*0.01, -74.0))
	}

	for _, result := range idx.QueryRadius(center, 3000) {
		assert.LessOrEqual(t, Distance(center, result.Location), 3000.0)
	}
}

func TestGridIndex_InsertReplacesSameID(t *testing.T) {
	idx := NewGridIndex(nil)

	idx.Insert(newListing("a", 10, 10))
	moved := newListing("a", 50, 50)
	idx.Insert(moved)

	require.Equal(t, 1, idx.Len())
	results := idx.QueryRadius(types.GeoPoint{Lat: 50, Lng: 50}, 1000)
	require.Len(t, results, 1)
	assert.Equal(t, 50.0, results[0].Location.Lat)

	// The old cell no longer answers for it.
	assert.Empty(t, idx.QueryRadius(types.GeoPoint{Lat: 10, Lng: 10}, 1000))
}

func TestGridIndex_Remove(t *testing.T) {
	idx := NewGridIndex(nil)

	idx.Insert(newListing("a", 10, 10))
	idx.Remove("a")
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.QueryRadius(types.GeoPoint{Lat: 10, Lng: 10}, 1000))

	// Removing an unknown id is a no-op.
	idx.Remove("missing")
}
