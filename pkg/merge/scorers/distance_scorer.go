package scorers

import (
	"fmt"
	"math"
	"strings"

	"github.com/campus-outlines/buildingmap/internal/geo"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
)

// Result is the outcome of scoring one (row, outline) pair
type Result struct {
	// Cost ranks outlines for a row; lower is better
	Cost float64
	// Distance is the undiscounted vertex distance the cost was derived from
	Distance float64
	// Similarity is the name similarity used for discounting, or 1 when names are not weighted
	Similarity float64
}

// VertexMode selects how a single distance is taken from an outline's vertices
type VertexMode int

const (
	// VertexMinimum uses the smallest distance over all vertices
	VertexMinimum VertexMode = iota
	// VertexRunningBest starts from the first vertex and takes any later vertex whose
	// distance is strictly below the best cost accepted so far for the row, so the
	// result is not necessarily the outline's own minimum.
	VertexRunningBest
)

func (m VertexMode) String() string {
	switch m {
	case VertexMinimum:
		return "minimum"
	case VertexRunningBest:
		return "running-best"
	default:
		return "unknown"
	}
}

// ParseVertexMode converts a flag value to a VertexMode
func ParseVertexMode(s string) (VertexMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minimum", "min":
		return VertexMinimum, nil
	case "running-best", "legacy":
		return VertexRunningBest, nil
	default:
		return VertexMinimum, fmt.Errorf("unknown vertex mode %q (must be minimum or running-best)", s)
	}
}

// DistanceScorer ranks outlines by vertex distance alone
type DistanceScorer struct {
	Mode VertexMode
}

// Score returns the vertex distance as the cost. running is the best cost accepted so far
// for the row (+Inf before any) and only matters in VertexRunningBest mode.
func (s *DistanceScorer) Score(row *buildings.Row, o *buildings.Outline, running float64) Result {
	d := vertexDistance(row, o, running, s.Mode)
	return Result{Cost: d, Distance: d, Similarity: 1.0}
}

// vertexDistance reduces an outline's vertices to one distance from the row's point
func vertexDistance(row *buildings.Row, o *buildings.Outline, running float64, mode VertexMode) float64 {
	if len(o.Vertices) == 0 {
		return math.Inf(1)
	}

	if mode != VertexRunningBest {
		return geo.MinVertexDistance(row.Lat, row.Lon, o.Vertices)
	}

	first := o.Vertices[0]
	local := geo.PlanarDistance(row.Lat, row.Lon, first.Lat(), first.Lon())
	for _, v := range o.Vertices {
		if d := geo.PlanarDistance(row.Lat, row.Lon, v.Lat(), v.Lon()); d < running {
			local = d
		}
	}
	return local
}
