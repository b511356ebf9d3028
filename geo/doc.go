// Package geo provides the spatial primitives for service discovery:
// haversine distance, arrival-time estimation, circular geofence
// generation, and a coarse grid index over service listings.
//
// All math assumes a spherical earth. That keeps the distance error
// under 0.5% for the sub-100km ranges this module deals in, which is
// well inside the tolerance of proximity ranking.
package geo
