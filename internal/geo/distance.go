package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PlanarDistance returns sqrt(Δlat² + Δlon²) in decimal degrees.
//
// This is a flat-plane approximation, not a geodesic distance: a degree of longitude
// shrinks with latitude and the result has no fixed unit of length. It is adequate for
// ranking candidates within a single campus and must not be read as meters or used to
// compare places far apart.
func PlanarDistance(aLat, aLon, bLat, bLon float64) float64 {
	return planar.Distance(orb.Point{aLon, aLat}, orb.Point{bLon, bLat})
}

// MinVertexDistance returns the smallest PlanarDistance between (lat, lon) and any vertex.
// Returns +Inf for an empty vertex list.
func MinVertexDistance(lat, lon float64, vertices []orb.Point) float64 {
	best := math.Inf(1)
	for _, v := range vertices {
		if d := PlanarDistance(lat, lon, v.Lat(), v.Lon()); d < best {
			best = d
		}
	}
	return best
}
