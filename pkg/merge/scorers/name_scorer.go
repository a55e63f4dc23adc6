package scorers

import (
	"github.com/campus-outlines/buildingmap/internal/textsim"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
)

// NoSimilarityCost is the cost given to a pair whose names share nothing.
// It is far above any campus-scale distance so such a pair never wins.
const NoSimilarityCost = 10000.0

// NameWeightedScorer discounts the vertex distance by name similarity:
// cost = distance / (2 * similarity)
type NameWeightedScorer struct {
	Mode       VertexMode
	Similarity textsim.Func
}

// NewNameWeightedScorer creates a scorer using the given similarity metric (Ratio when nil)
func NewNameWeightedScorer(mode VertexMode, similarity textsim.Func) *NameWeightedScorer {
	if similarity == nil {
		similarity = textsim.Ratio
	}
	return &NameWeightedScorer{Mode: mode, Similarity: similarity}
}

// Score returns the similarity-discounted distance.
// In VertexRunningBest mode raw vertex distances are compared against running, which
// holds a discounted cost.
func (s *NameWeightedScorer) Score(row *buildings.Row, o *buildings.Outline, running float64) Result {
	d := vertexDistance(row, o, running, s.Mode)

	sim := s.Similarity(row.Name, o.Name)
	if sim <= 0 {
		return Result{Cost: NoSimilarityCost, Distance: d, Similarity: 0}
	}

	return Result{Cost: d / (2 * sim), Distance: d, Similarity: sim}
}
