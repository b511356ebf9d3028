package geo

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/types"
)

// GridIndex is a coarse spatial index over service listings. Listings
// are bucketed by a fixed 0.01-degree lat/lng grid (~1.1 km cell edge)
// keyed on their center point only; a listing whose radius spills into
// neighboring cells still lives in exactly one bucket. QueryRadius is
// therefore answered from the full listing set rather than the cell
// buckets, trading lookup speed for exactness.
//
// The index holds non-owning references: the catalog's listing map is
// the sole owner, and status transitions are filtered by the caller at
// query time rather than purged here.
type GridIndex struct {
	mu sync.RWMutex

	// cells maps grid key to the listings centered in that cell.
	cells map[string][]*types.ServiceListing

	// all maps listing id to listing for exact radius scans.
	all map[string]*types.ServiceListing

	logger *zap.Logger
}

// NewGridIndex creates an empty grid index.
func NewGridIndex(logger *zap.Logger) *GridIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GridIndex{
		cells:  make(map[string][]*types.ServiceListing),
		all:    make(map[string]*types.ServiceListing),
		logger: logger.With(zap.String("component", "geo_index")),
	}
}

// Insert adds a listing to the index, replacing any previous entry with
// the same id.
func (g *GridIndex) Insert(listing *types.ServiceListing) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.all[listing.ID]; exists {
		g.removeLocked(listing.ID)
	}

	key := cellKey(listing.Location)
	g.cells[key] = append(g.cells[key], listing)
	g.all[listing.ID] = listing

	g.logger.Debug("listing indexed",
		zap.String("listing_id", listing.ID),
		zap.String("cell", key),
	)
}

// Remove deletes a listing from the index. Unknown ids are ignored.
func (g *GridIndex) Remove(listingID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(listingID)
}

func (g *GridIndex) removeLocked(listingID string) {
	listing, exists := g.all[listingID]
	if !exists {
		return
	}
	delete(g.all, listingID)

	key := cellKey(listing.Location)
	bucket := g.cells[key]
	for i, l := range bucket {
		if l.ID == listingID {
			g.cells[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(g.cells[key]) == 0 {
		delete(g.cells, key)
	}
}

// QueryRadius returns every indexed listing whose center lies within
// radiusMeters of center. Results carry no status filtering.
func (g *GridIndex) QueryRadius(center types.GeoPoint, radiusMeters float64) []*types.ServiceListing {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var results []*types.ServiceListing
	for _, listing := range g.all {
		if Distance(center, listing.Location) <= radiusMeters {
			results = append(results, listing)
		}
	}
	return results
}

// Len returns the number of indexed listings.
func (g *GridIndex) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.all)
}

// cellKey buckets a point into its 0.01-degree grid cell.
func cellKey(p types.GeoPoint) string {
	return fmt.Sprintf("%d,%d", int(math.Floor(p.Lat*100)), int(math.Floor(p.Lng*100)))
}
