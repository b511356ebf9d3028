package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/dispatch"
	"github.com/shorelinehq/dispatch/types"
)

// seqMinter hands out deterministic identities for tests.
type seqMinter struct {
	mu  sync.Mutex
	n   int
	err error
}

func (m *seqMinter) Mint(ctx context.Context, purpose types.Purpose) (types.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.Identity{}, m.err
	}
	m.n++
	addr := fmt.Sprintf("0xprov%03d", m.n)
	return types.Identity{Address: addr, PublicKey: "0x04" + addr}, nil
}

func newTestCatalog(t *testing.T) (*Catalog, *dispatch.Coordinator) {
	t.Helper()
	minter := &seqMinter{}
	coordinator := dispatch.NewCoordinator(nil, minter, zap.NewNop())
	return NewCatalog(coordinator, minter, zap.NewNop()), coordinator
}

func post(t *testing.T, c *Catalog, name, category string, lat, lng, radius float64) *types.ServiceListing {
	t.Helper()
	listing, err := c.PostService(context.Background(), ServiceInput{
		Name:              name,
		Category:          category,
		Location:          types.GeoPoint{Lat: lat, Lng: lng},
		ServiceRadius:     radius,
		EstimatedResponse: 300,
	})
	require.NoError(t, err)
	return listing
}

func TestPostService(t *testing.T) {
	c, coordinator := newTestCatalog(t)

	listing := post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)

	assert.NotEmpty(t, listing.ID)
	assert.Equal(t, types.ListingStatusActive, listing.Status)
	assert.Len(t, listing.Geofence, 32)
	assert.NotEmpty(t, listing.AgentIdentity.Address)

	// The backing agent is live and routable under the geo purpose.
	agent, err := coordinator.GetAgent(listing.AgentIdentity.Address)
	require.NoError(t, err)
	assert.Equal(t, types.GeoServicePurpose("food-delivery"), agent.Purpose)
	assert.Contains(t, agent.Capabilities, "food-delivery")
	assert.Contains(t, agent.Capabilities, "location-based")
	assert.Equal(t, "Mario's Pizza", agent.Role)

	routed, err := coordinator.RouteRequest(context.Background(), dispatch.ServiceRequest{Service: "food-delivery"})
	require.NoError(t, err)
	assert.Equal(t, agent.ID, routed.ID)
}

func TestPostService_Validation(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	cases := []ServiceInput{
		{Category: "food-delivery", ServiceRadius: 100},
		{Name: "x", ServiceRadius: 100},
		{Name: "x", Category: "food-delivery", ServiceRadius: 0},
		{Name: "x", Category: "food-delivery", ServiceRadius: -5},
		{Name: "x", Category: "food-delivery", ServiceRadius: 100, Location: types.GeoPoint{Lat: 91}},
		{Name: "x", Category: "food-delivery", ServiceRadius: 100, Location: types.GeoPoint{Lng: 181}},
	}
	for i, in := range cases {
		_, err := c.PostService(ctx, in)
		assert.True(t, types.IsValidation(err), "case %d", i)
	}
}

func TestPostService_MinterFailure(t *testing.T) {
	minter := &seqMinter{err: assert.AnError}
	coordinator := dispatch.NewCoordinator(nil, &seqMinter{}, zap.NewNop())
	c := NewCatalog(coordinator, minter, zap.NewNop())

	_, err := c.PostService(context.Background(), ServiceInput{
		Name: "x", Category: "wellness", ServiceRadius: 100,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrIdentityUnavailable, types.GetErrorCode(err))
	assert.Empty(t, c.GetAllServices())
}

func TestFindNearbyServices(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	// Spec scenario: one provider in central San Francisco.
	post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)
	// A second, farther provider and an out-of-category one.
	far := post(t, c, "Sunset Eats", "food-delivery", 37.74, -122.48, 5000)
	post(t, c, "Zen Spa", "wellness", 37.7750, -122.4180, 3000)

	customer := types.GeoPoint{Lat: 37.78, Lng: -122.41}
	nearby, err := c.FindNearbyServices(ctx, customer, 10000, "food-delivery")
	require.NoError(t, err)
	require.Len(t, nearby, 2)

	assert.Equal(t, "Mario's Pizza", nearby[0].Name)
	assert.Less(t, nearby[0].Distance, nearby[1].Distance)
	assert.Less(t, nearby[0].Distance, 2000.0)
	assert.Greater(t, nearby[0].ETA, 0)

	// Tight radius excludes the far provider.
	within, err := c.FindNearbyServices(ctx, customer, 2000, "food-delivery")
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, "Mario's Pizza", within[0].Name)

	// Paused listings disappear from results.
	require.NoError(t, c.UpdateServiceStatus(ctx, far.ID, types.ListingStatusPaused))
	nearby, err = c.FindNearbyServices(ctx, customer, 10000, "food-delivery")
	require.NoError(t, err)
	require.Len(t, nearby, 1)
}

func TestFindNearestProvider(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	customer := types.GeoPoint{Lat: 37.78, Lng: -122.41}

	_, err := c.FindNearestProvider(ctx, customer, "food-delivery", 0)
	assert.True(t, types.IsNotFound(err))

	post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)
	post(t, c, "Sunset Eats", "food-delivery", 37.74, -122.48, 5000)

	// A non-positive radius falls back to the 10 km default.
	nearest, err := c.FindNearestProvider(ctx, customer, "food-delivery", 0)
	require.NoError(t, err)
	assert.Equal(t, "Mario's Pizza", nearest.Name)
}

func TestFindNearestProvider_CustomRadius(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	customer := types.GeoPoint{Lat: 37.78, Lng: -122.41}

	// Only the far provider exists, about 7.5 km away.
	post(t, c, "Sunset Eats", "food-delivery", 37.74, -122.48, 5000)

	// A narrowed search misses it.
	_, err := c.FindNearestProvider(ctx, customer, "food-delivery", 2000)
	assert.True(t, types.IsNotFound(err))

	// A widened search much beyond the default still finds a provider
	// the default radius would.
	nearest, err := c.FindNearestProvider(ctx, customer, "food-delivery", 50000)
	require.NoError(t, err)
	assert.Equal(t, "Sunset Eats", nearest.Name)
}

func TestUpdateService(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	listing := post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)
	before := listing.Geofence[0]

	name := "Mario's Pizzeria"
	radius := 8000.0
	updated, err := c.UpdateService(ctx, listing.ID, ServiceUpdate{
		Name:          &name,
		ServiceRadius: &radius,
	})
	require.NoError(t, err)
	assert.Equal(t, "Mario's Pizzeria", updated.Name)
	assert.Equal(t, 8000.0, updated.ServiceRadius)
	// A radius change pushes the fence outward.
	assert.NotEqual(t, before, updated.Geofence[0])

	bad := -1.0
	_, err = c.UpdateService(ctx, listing.ID, ServiceUpdate{ServiceRadius: &bad})
	assert.True(t, types.IsValidation(err))

	_, err = c.UpdateService(ctx, "missing", ServiceUpdate{Name: &name})
	assert.True(t, types.IsNotFound(err))
}

func TestUpdateServiceStatus(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	listing := post(t, c, "Zen Spa", "wellness", 37.775, -122.418, 3000)

	require.NoError(t, c.UpdateServiceStatus(ctx, listing.ID, types.ListingStatusOffline))
	got, err := c.GetService(listing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ListingStatusOffline, got.Status)

	err = c.UpdateServiceStatus(ctx, listing.ID, types.ListingStatus("retired"))
	assert.True(t, types.IsValidation(err))
	err = c.UpdateServiceStatus(ctx, "missing", types.ListingStatusActive)
	assert.True(t, types.IsNotFound(err))
}

func TestRemoveService_DecommissionsBackingAgent(t *testing.T) {
	c, coordinator := newTestCatalog(t)
	ctx := context.Background()

	listing := post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)

	require.NoError(t, c.RemoveService(ctx, listing.ID))

	_, err := c.GetService(listing.ID)
	assert.True(t, types.IsNotFound(err))
	_, err = coordinator.GetAgent(listing.AgentIdentity.Address)
	assert.True(t, types.IsNotFound(err))

	assert.True(t, types.IsNotFound(c.RemoveService(ctx, "missing")))
}

func TestIsWithinServiceArea(t *testing.T) {
	c, _ := newTestCatalog(t)

	listing := post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)

	inside, err := c.IsWithinServiceArea(listing.ID, types.GeoPoint{Lat: 37.78, Lng: -122.41})
	require.NoError(t, err)
	assert.True(t, inside)

	outside, err := c.IsWithinServiceArea(listing.ID, types.GeoPoint{Lat: 37.8044, Lng: -122.2712})
	require.NoError(t, err)
	assert.False(t, outside)

	_, err = c.IsWithinServiceArea("missing", types.GeoPoint{})
	assert.True(t, types.IsNotFound(err))
}

func TestGetServiceStats(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 4000)
	post(t, c, "Oakland Eats", "food-delivery", 37.8044, -122.2712, 6000)
	spa := post(t, c, "Zen Spa", "wellness", 37.775, -122.418, 2000)
	require.NoError(t, c.UpdateServiceStatus(ctx, spa.ID, types.ListingStatusPaused))

	stats := c.GetServiceStats()
	assert.Equal(t, 3, stats.TotalServices)
	assert.Equal(t, 2, stats.ActiveServices)
	assert.Equal(t, 2, stats.ByCategory["food-delivery"])
	assert.Equal(t, 1, stats.ByCategory["wellness"])
	assert.Equal(t, 1, stats.ByStatus[types.ListingStatusPaused])
	assert.Equal(t, 4000.0, stats.AvgRadius)
}

func TestGetServiceCoverageMap(t *testing.T) {
	c, _ := newTestCatalog(t)

	post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)
	post(t, c, "Zen Spa", "wellness", 37.775, -122.418, 3000)

	areas := c.GetServiceCoverageMap()
	require.Len(t, areas, 2)
	for _, area := range areas {
		assert.Len(t, area.Geofence, 32)
		assert.Positive(t, area.Radius)
	}
	assert.Less(t, areas[0].ServiceID, areas[1].ServiceID)
}

func TestGetServicesByCategory(t *testing.T) {
	c, _ := newTestCatalog(t)

	post(t, c, "Mario's Pizza", "food-delivery", 37.7749, -122.4194, 5000)
	post(t, c, "Zen Spa", "wellness", 37.775, -122.418, 3000)

	food := c.GetServicesByCategory("food-delivery")
	require.Len(t, food, 1)
	assert.Equal(t, "Mario's Pizza", food[0].Name)
	assert.Empty(t, c.GetServicesByCategory("plumbing"))
	assert.Len(t, c.GetAllServices(), 2)
}
