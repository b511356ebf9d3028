package types

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// GeoFenceType distinguishes the shape of a service area.
type GeoFenceType string

const (
	// GeoFenceCircle is a circular area described by center and radius.
	GeoFenceCircle GeoFenceType = "circle"
	// GeoFencePolygon is an explicit vertex list.
	GeoFencePolygon GeoFenceType = "polygon"
)

// GeoFence describes an agent's service coverage area.
type GeoFence struct {
	Type GeoFenceType `json:"type"`

	// Center and Radius describe a circle fence. Radius is in meters.
	Center *GeoPoint `json:"center,omitempty"`
	Radius float64   `json:"radius,omitempty"`

	// Points holds the vertices of a polygon fence.
	Points []GeoPoint `json:"points,omitempty"`
}
