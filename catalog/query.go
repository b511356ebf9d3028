package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/shorelinehq/dispatch/geo"
	"github.com/shorelinehq/dispatch/types"
)

// FindNearbyServices returns active listings of the category whose
// center lies within radiusMeters of the customer location, sorted by
// distance. A non-positive radius falls back to the default search
// radius; an empty category matches all.
func (c *Catalog) FindNearbyServices(ctx context.Context, location types.GeoPoint, radiusMeters float64, category string) ([]*types.NearbyService, error) {
	if err := validatePoint(location); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = defaultSearchRadius
	}

	start := time.Now()

	c.mu.RLock()
	candidates := c.index.QueryRadius(location, radiusMeters)

	var nearby []*types.NearbyService
	for _, listing := range candidates {
		if listing.Status != types.ListingStatusActive {
			continue
		}
		if category != "" && listing.Category != category {
			continue
		}
		nearby = append(nearby, &types.NearbyService{
			ServiceListing: *listing.Clone(),
			Distance:       geo.Distance(location, listing.Location),
			ETA:            geo.ETA(listing.Location, location, listing.EstimatedResponse),
		})
	}
	c.mu.RUnlock()

	sort.Slice(nearby, func(i, j int) bool { return nearby[i].Distance < nearby[j].Distance })

	if c.collector != nil {
		c.collector.RecordGeoQuery("nearby", time.Since(start))
	}
	return nearby, nil
}

// FindNearestProvider returns the closest active listing of the
// category within radiusMeters of the customer, or a NOT_FOUND error
// when no provider covers the area. A non-positive radius falls back
// to the default search radius.
func (c *Catalog) FindNearestProvider(ctx context.Context, location types.GeoPoint, category string, radiusMeters float64) (*types.NearbyService, error) {
	start := time.Now()

	nearby, err := c.FindNearbyServices(ctx, location, radiusMeters, category)
	if err != nil {
		return nil, err
	}
	if c.collector != nil {
		c.collector.RecordGeoQuery("nearest", time.Since(start))
	}
	if len(nearby) == 0 {
		return nil, types.NewErrorf(types.ErrNotFound, "no %s provider near (%f, %f)", category, location.Lat, location.Lng)
	}
	return nearby[0], nil
}

// GetService returns a copy of a listing, or a NOT_FOUND error.
func (c *Catalog) GetService(listingID string) (*types.ServiceListing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	listing, exists := c.listings[listingID]
	if !exists {
		return nil, types.NewErrorf(types.ErrNotFound, "listing %s not found", listingID)
	}
	return listing.Clone(), nil
}

// GetAllServices returns copies of every listing, ordered by id.
func (c *Catalog) GetAllServices() []*types.ServiceListing {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]*types.ServiceListing, 0, len(c.listings))
	for _, listing := range c.listings {
		all = append(all, listing.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// GetServicesByCategory returns copies of the category's listings,
// ordered by id.
func (c *Catalog) GetServicesByCategory(category string) []*types.ServiceListing {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*types.ServiceListing
	for _, listing := range c.listings {
		if listing.Category == category {
			matched = append(matched, listing.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

// IsWithinServiceArea reports whether the point falls inside the
// listing's coverage circle.
func (c *Catalog) IsWithinServiceArea(listingID string, point types.GeoPoint) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	listing, exists := c.listings[listingID]
	if !exists {
		return false, types.NewErrorf(types.ErrNotFound, "listing %s not found", listingID)
	}
	return geo.Distance(point, listing.Location) <= listing.ServiceRadius, nil
}

// ServiceStats aggregates the catalog state.
type ServiceStats struct {
	TotalServices  int                         `json:"total_services"`
	ActiveServices int                         `json:"active_services"`
	ByCategory     map[string]int              `json:"by_category"`
	ByStatus       map[types.ListingStatus]int `json:"by_status"`
	AvgRadius      float64                     `json:"avg_radius"`
	AvgResponse    float64                     `json:"avg_response"`
}

// GetServiceStats returns aggregate statistics over all listings.
func (c *Catalog) GetServiceStats() ServiceStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := ServiceStats{
		TotalServices: len(c.listings),
		ByCategory:    make(map[string]int),
		ByStatus:      make(map[types.ListingStatus]int),
	}

	var radiusSum, responseSum float64
	for _, listing := range c.listings {
		stats.ByCategory[listing.Category]++
		stats.ByStatus[listing.Status]++
		if listing.Status == types.ListingStatusActive {
			stats.ActiveServices++
		}
		radiusSum += listing.ServiceRadius
		responseSum += listing.EstimatedResponse
	}
	if len(c.listings) > 0 {
		stats.AvgRadius = radiusSum / float64(len(c.listings))
		stats.AvgResponse = responseSum / float64(len(c.listings))
	}
	return stats
}

// CoverageArea is one listing's footprint for map rendering.
type CoverageArea struct {
	ServiceID string              `json:"service_id"`
	Name      string              `json:"name"`
	Category  string              `json:"category"`
	Center    types.GeoPoint      `json:"center"`
	Radius    float64             `json:"radius"`
	Geofence  []types.GeoPoint    `json:"geofence"`
	Status    types.ListingStatus `json:"status"`
}

// GetServiceCoverageMap returns every listing's coverage polygon,
// ordered by id.
func (c *Catalog) GetServiceCoverageMap() []CoverageArea {
	c.mu.RLock()
	defer c.mu.RUnlock()

	areas := make([]CoverageArea, 0, len(c.listings))
	for _, listing := range c.listings {
		areas = append(areas, CoverageArea{
			ServiceID: listing.ID,
			Name:      listing.Name,
			Category:  listing.Category,
			Center:    listing.Location,
			Radius:    listing.ServiceRadius,
			Geofence:  append([]types.GeoPoint(nil), listing.Geofence...),
			Status:    listing.Status,
		})
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].ServiceID < areas[j].ServiceID })
	return areas
}
