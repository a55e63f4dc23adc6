package geo

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// OutlineIndex is an R-tree over outline bounding boxes keyed by collection position
type OutlineIndex struct {
	tree *rtree.RTree
	size int
}

// NewOutlineIndex creates an empty index
func NewOutlineIndex() *OutlineIndex {
	return &OutlineIndex{tree: &rtree.RTree{}}
}

// Insert adds the bounding box of the outline at position idx.
// Boxes are stored as [lat, lon] like point entries.
func (ix *OutlineIndex) Insert(bound orb.Bound, idx int) {
	ix.tree.Insert(
		[2]float64{bound.Min.Lat(), bound.Min.Lon()}, // min
		[2]float64{bound.Max.Lat(), bound.Max.Lon()}, // max
		idx,
	)
	ix.size++
}

// Len returns the number of indexed outlines
func (ix *OutlineIndex) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Near returns, in ascending position order, every outline whose bounding box intersects
// the square of half-width radius centred on (lat, lon). The square contains the circle of
// that radius, so no outline with a vertex within radius is ever missed.
func (ix *OutlineIndex) Near(lat, lon, radius float64) []int {
	if ix == nil || ix.tree == nil {
		return []int{}
	}

	var results []int
	ix.tree.Search(
		[2]float64{lat - radius, lon - radius}, // search min
		[2]float64{lat + radius, lon + radius}, // search max
		func(min, max [2]float64, data interface{}) bool {
			if idx, ok := data.(int); ok {
				results = append(results, idx)
			}
			return true
		},
	)

	sort.Ints(results)
	return results
}
