// Package catalog maintains geo-fenced service listings on top of the
// dispatch network. Every listing is backed by exactly one agent
// registered under the geo-service purpose for its category, so
// posting a service makes it routable and removing it retires the
// agent along with it.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/dispatch"
	"github.com/shorelinehq/dispatch/geo"
	"github.com/shorelinehq/dispatch/identity"
	"github.com/shorelinehq/dispatch/internal/metrics"
	"github.com/shorelinehq/dispatch/types"
)

// defaultSearchRadius is the provider-search radius in meters used
// when a query does not set one.
const defaultSearchRadius = 10000.0

// Catalog owns the listing table and its spatial index. Mutations
// serialize on the coordinator-style lock; queries return deep copies.
type Catalog struct {
	coordinator *dispatch.Coordinator
	minter      identity.Minter
	index       *geo.GridIndex

	mu       sync.RWMutex
	listings map[string]*types.ServiceListing

	logger    *zap.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(cat *Catalog) { cat.collector = c }
}

// NewCatalog creates a catalog bound to a coordinator. The minter
// supplies identities for backing agents.
func NewCatalog(coordinator *dispatch.Coordinator, minter identity.Minter, logger *zap.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Catalog{
		coordinator: coordinator,
		minter:      minter,
		index:       geo.NewGridIndex(logger),
		listings:    make(map[string]*types.ServiceListing),
		logger:      logger.With(zap.String("component", "catalog")),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServiceInput describes a service being posted.
type ServiceInput struct {
	Name     string
	Category string
	Location types.GeoPoint

	// ServiceRadius is the coverage radius in meters. Must be positive.
	ServiceRadius float64

	Pricing      map[string]string
	Availability string

	// EstimatedResponse is the base response time in seconds.
	EstimatedResponse float64

	Metadata map[string]string
}

func validateInput(in ServiceInput) error {
	if in.Name == "" {
		return types.NewError(types.ErrValidation, "service name is empty")
	}
	if in.Category == "" {
		return types.NewError(types.ErrValidation, "service category is empty")
	}
	if in.ServiceRadius <= 0 {
		return types.NewErrorf(types.ErrValidation, "service radius must be positive, got %f", in.ServiceRadius)
	}
	return validatePoint(in.Location)
}

func validatePoint(p types.GeoPoint) error {
	if p.Lat < -90 || p.Lat > 90 {
		return types.NewErrorf(types.ErrValidation, "latitude %f out of range", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return types.NewErrorf(types.ErrValidation, "longitude %f out of range", p.Lng)
	}
	return nil
}

// PostService publishes a listing: it mints an identity, registers the
// backing agent under the category's geo-service purpose, fences the
// coverage circle, and indexes the listing for radius queries.
func (c *Catalog) PostService(ctx context.Context, in ServiceInput) (*types.ServiceListing, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	purpose := types.GeoServicePurpose(in.Category)
	id, err := c.minter.Mint(ctx, purpose)
	if err != nil {
		return nil, types.NewError(types.ErrIdentityUnavailable, "minting backing agent identity").WithCause(err)
	}

	_, err = c.coordinator.RegisterAgent(ctx, id, purpose,
		[]string{in.Category, "location-based"},
		&dispatch.AgentOptions{
			Role:        in.Name,
			Location:    &in.Location,
			ServiceArea: &types.GeoFence{Type: types.GeoFenceCircle, Center: &in.Location, Radius: in.ServiceRadius},
		})
	if err != nil {
		return nil, err
	}

	listing := &types.ServiceListing{
		ID:                uuid.NewString(),
		Name:              in.Name,
		Category:          in.Category,
		Location:          in.Location,
		ServiceRadius:     in.ServiceRadius,
		Geofence:          geo.CircularGeofence(in.Location, in.ServiceRadius),
		AgentIdentity:     id,
		Pricing:           in.Pricing,
		Availability:      in.Availability,
		EstimatedResponse: in.EstimatedResponse,
		Status:            types.ListingStatusActive,
		Metadata:          in.Metadata,
	}

	c.mu.Lock()
	c.listings[listing.ID] = listing
	c.index.Insert(listing)
	c.updateGaugeLocked()
	c.mu.Unlock()

	c.logger.Info("service posted",
		zap.String("listing_id", listing.ID),
		zap.String("category", in.Category),
		zap.Float64("radius_m", in.ServiceRadius),
	)
	if c.collector != nil {
		c.collector.RecordServicePosted(in.Category)
	}
	c.coordinator.Events().Publish(&dispatch.Event{
		Type:      dispatch.EventServicePosted,
		ServiceID: listing.ID,
		AgentID:   id.Address,
	})

	return listing.Clone(), nil
}

// ServiceUpdate carries optional field changes for a listing. Nil
// fields are left untouched.
type ServiceUpdate struct {
	Name              *string
	Location          *types.GeoPoint
	ServiceRadius     *float64
	Pricing           map[string]string
	Availability      *string
	EstimatedResponse *float64
	Metadata          map[string]string
}

// UpdateService applies a partial update. A location or radius change
// regenerates the geofence and reindexes the listing.
func (c *Catalog) UpdateService(ctx context.Context, listingID string, update ServiceUpdate) (*types.ServiceListing, error) {
	if update.ServiceRadius != nil && *update.ServiceRadius <= 0 {
		return nil, types.NewErrorf(types.ErrValidation, "service radius must be positive, got %f", *update.ServiceRadius)
	}
	if update.Location != nil {
		if err := validatePoint(*update.Location); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	listing, exists := c.listings[listingID]
	if !exists {
		return nil, types.NewErrorf(types.ErrNotFound, "listing %s not found", listingID)
	}

	if update.Name != nil {
		listing.Name = *update.Name
	}
	if update.Pricing != nil {
		listing.Pricing = update.Pricing
	}
	if update.Availability != nil {
		listing.Availability = *update.Availability
	}
	if update.EstimatedResponse != nil {
		listing.EstimatedResponse = *update.EstimatedResponse
	}
	if update.Metadata != nil {
		listing.Metadata = update.Metadata
	}

	if update.Location != nil || update.ServiceRadius != nil {
		if update.Location != nil {
			listing.Location = *update.Location
		}
		if update.ServiceRadius != nil {
			listing.ServiceRadius = *update.ServiceRadius
		}
		listing.Geofence = geo.CircularGeofence(listing.Location, listing.ServiceRadius)
		c.index.Insert(listing)
	}

	c.logger.Info("service updated", zap.String("listing_id", listingID))
	c.coordinator.Events().Publish(&dispatch.Event{
		Type:      dispatch.EventServiceUpdated,
		ServiceID: listingID,
	})

	return listing.Clone(), nil
}

// UpdateServiceStatus transitions a listing between active, paused,
// and offline.
func (c *Catalog) UpdateServiceStatus(ctx context.Context, listingID string, status types.ListingStatus) error {
	switch status {
	case types.ListingStatusActive, types.ListingStatusPaused, types.ListingStatusOffline:
	default:
		return types.NewErrorf(types.ErrValidation, "unknown listing status %q", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	listing, exists := c.listings[listingID]
	if !exists {
		return types.NewErrorf(types.ErrNotFound, "listing %s not found", listingID)
	}

	listing.Status = status
	c.updateGaugeLocked()

	c.logger.Info("service status changed",
		zap.String("listing_id", listingID),
		zap.String("status", string(status)),
	)
	c.coordinator.Events().Publish(&dispatch.Event{
		Type:      dispatch.EventServiceUpdated,
		ServiceID: listingID,
	})
	return nil
}

// RemoveService deletes a listing and decommissions its backing agent.
// Active sessions on that agent migrate before it goes away.
func (c *Catalog) RemoveService(ctx context.Context, listingID string) error {
	c.mu.Lock()
	listing, exists := c.listings[listingID]
	if !exists {
		c.mu.Unlock()
		return types.NewErrorf(types.ErrNotFound, "listing %s not found", listingID)
	}
	delete(c.listings, listingID)
	c.index.Remove(listingID)
	c.updateGaugeLocked()
	c.mu.Unlock()

	if err := c.coordinator.DecommissionAgent(ctx, listing.AgentIdentity.Address); err != nil {
		return err
	}

	c.logger.Info("service removed",
		zap.String("listing_id", listingID),
		zap.String("agent_id", listing.AgentIdentity.Address),
	)
	c.coordinator.Events().Publish(&dispatch.Event{
		Type:      dispatch.EventServiceRemoved,
		ServiceID: listingID,
		AgentID:   listing.AgentIdentity.Address,
	})
	return nil
}

// updateGaugeLocked refreshes the active-services gauge.
func (c *Catalog) updateGaugeLocked() {
	if c.collector == nil {
		return
	}
	active := 0
	for _, listing := range c.listings {
		if listing.Status == types.ListingStatusActive {
			active++
		}
	}
	c.collector.SetActiveServices(active)
}
