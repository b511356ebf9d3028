package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shorelinehq/dispatch/dispatch"
	"github.com/shorelinehq/dispatch/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore(Config{Addr: mr.Addr(), KeyPrefix: "test"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNetworkSnapshot_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadNetwork(ctx)
	assert.True(t, types.IsNotFound(err))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &dispatch.Snapshot{
		TakenAt: now,
		Agents: []*types.Agent{
			{
				ID:           "0xa",
				Identity:     types.Identity{Address: "0xa", PublicKey: "0x04a"},
				Purpose:      types.PurposeSales,
				Capabilities: []string{"sales"},
				Status:       types.AgentStatusActive,
				CurrentLoad:  1,
				MaxLoad:      10,
				Metadata:     map[string]string{"region": "west"},
			},
		},
		Sessions: []*types.Session{
			{
				ID:         "01ARZ",
				CustomerID: "cust",
				AgentID:    "0xa",
				Service:    "sales",
				StartTime:  now,
				Status:     types.SessionStatusActive,
			},
		},
		Order:   []string{"0xa"},
		Cursors: map[string]int{"sales": 3},
	}

	require.NoError(t, s.SaveNetwork(ctx, snap))

	loaded, err := s.LoadNetwork(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Agents, 1)
	assert.Equal(t, "0xa", loaded.Agents[0].ID)
	assert.Equal(t, "west", loaded.Agents[0].Metadata["region"])
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, types.SessionStatusActive, loaded.Sessions[0].Status)
	assert.Equal(t, 3, loaded.Cursors["sales"])
	assert.True(t, loaded.TakenAt.Equal(now))

	require.Error(t, s.SaveNetwork(ctx, nil))
}

func TestSnapshot_RestoresCoordinator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	source := dispatch.NewCoordinator(nil, nopMinter{}, nil)
	_, err := source.RegisterAgent(ctx, types.Identity{Address: "0xa"}, types.PurposeSales, []string{"sales"}, nil)
	require.NoError(t, err)
	agent, err := source.RouteRequest(ctx, dispatch.ServiceRequest{Service: "sales"})
	require.NoError(t, err)
	session, err := source.CreateSession(ctx, "cust", agent.ID, "sales")
	require.NoError(t, err)

	require.NoError(t, s.SaveNetwork(ctx, source.Snapshot()))

	loaded, err := s.LoadNetwork(ctx)
	require.NoError(t, err)

	restored := dispatch.NewCoordinator(nil, nopMinter{}, nil)
	require.NoError(t, restored.Restore(loaded))

	got, err := restored.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.AgentID)

	a, err := restored.GetAgent(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.CurrentLoad)
}

func TestListings_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadListings(ctx)
	assert.True(t, types.IsNotFound(err))

	listings := []*types.ServiceListing{
		{
			ID:            "svc-1",
			Name:          "Mario's Pizza",
			Category:      "food-delivery",
			Location:      types.GeoPoint{Lat: 37.7749, Lng: -122.4194},
			ServiceRadius: 5000,
			Status:        types.ListingStatusActive,
			Pricing:       map[string]string{"delivery": "5 USD"},
		},
	}
	require.NoError(t, s.SaveListings(ctx, listings))

	loaded, err := s.LoadListings(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Mario's Pizza", loaded[0].Name)
	assert.Equal(t, "5 USD", loaded[0].Pricing["delivery"])
}

func TestNewStore_ConnectFailure(t *testing.T) {
	_, err := NewStore(Config{Addr: "127.0.0.1:1"}, nil)
	require.Error(t, err)
}

type nopMinter struct{}

func (nopMinter) Mint(ctx context.Context, purpose types.Purpose) (types.Identity, error) {
	return types.Identity{Address: "0xnop"}, nil
}
