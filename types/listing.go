package types

// ListingStatus represents the availability of a service listing.
type ListingStatus string

const (
	ListingStatusActive  ListingStatus = "active"
	ListingStatusPaused  ListingStatus = "paused"
	ListingStatusOffline ListingStatus = "offline"
)

// ServiceListing is a geo-fenced service offer. Each listing owns
// exactly one backing agent registered under the geo-service purpose
// for its category; removing the listing decommissions that agent.
type ServiceListing struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Category is the service type, e.g. "food-delivery" or "wellness".
	Category string `json:"category"`

	Location GeoPoint `json:"location"`

	// ServiceRadius is the coverage radius in meters. Always positive.
	ServiceRadius float64 `json:"service_radius"`

	// Geofence approximates the ServiceRadius circle around Location.
	// It is regenerated whenever location or radius change.
	Geofence []GeoPoint `json:"geofence"`

	// AgentIdentity is the identity of the backing agent.
	AgentIdentity Identity `json:"agent_identity"`

	Pricing      map[string]string `json:"pricing,omitempty"`
	Availability string            `json:"availability,omitempty"`

	// EstimatedResponse is the provider's base response time in seconds,
	// before travel time.
	EstimatedResponse float64 `json:"estimated_response"`

	Status ListingStatus `json:"status"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the listing.
func (l *ServiceListing) Clone() *ServiceListing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Geofence != nil {
		clone.Geofence = append([]GeoPoint(nil), l.Geofence...)
	}
	if l.Pricing != nil {
		clone.Pricing = make(map[string]string, len(l.Pricing))
		for k, v := range l.Pricing {
			clone.Pricing[k] = v
		}
	}
	if l.Metadata != nil {
		clone.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// NearbyService is a listing annotated with proximity data for a
// specific customer location.
type NearbyService struct {
	ServiceListing

	// Distance is the great-circle distance to the customer in meters.
	Distance float64 `json:"distance"`

	// ETA is the estimated arrival time in whole minutes.
	ETA int `json:"eta"`
}
