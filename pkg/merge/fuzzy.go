package merge

import (
	"math"

	"github.com/campus-outlines/buildingmap/internal/geo"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
)

// outlineSet is the scored side of a run: every usable outline in collection order,
// plus an optional R-tree over the candidates among them.
type outlineSet struct {
	outlines []*buildings.Outline
	index    *geo.OutlineIndex
}

func newOutlineSet(outlines []*buildings.Outline, useIndex bool) *outlineSet {
	set := &outlineSet{outlines: outlines}
	if !useIndex {
		return set
	}
	set.index = geo.NewOutlineIndex()
	for i, o := range outlines {
		if o.Candidate {
			set.index.Insert(o.Bound, i)
		}
	}
	return set
}

// candidates returns the positions worth scoring for a point, in collection order.
// Without an index that is every outline.
func (s *outlineSet) candidates(lat, lon, radius float64) []int {
	if s.index == nil {
		all := make([]int, len(s.outlines))
		for i := range all {
			all[i] = i
		}
		return all
	}
	return s.index.Near(lat, lon, radius)
}

// searchRadius is the largest vertex distance that can still produce an acceptable cost.
// A name-weighted cost is at least half the distance.
func (m *Merger) searchRadius() float64 {
	if m.opts.NameWeighting {
		return 2 * m.opts.Threshold
	}
	return m.opts.Threshold
}

// findBestMatch returns the cheapest eligible outline within threshold, or nil.
// Ties go to the outline that comes first in the collection.
func (m *Merger) findBestMatch(c *Context, row *buildings.Row, set *outlineSet, scorer CandidateScorer) *Match {
	running := math.Inf(1)
	var best *Match

	for _, i := range set.candidates(row.Lat, row.Lon, m.searchRadius()) {
		o := set.outlines[i]
		if !c.eligible(row, o) {
			continue
		}
		res := scorer.Score(row, o, running)
		// NaN costs fail every comparison and must not be accepted
		if !(res.Cost <= m.opts.Threshold) {
			continue
		}
		if best == nil || res.Cost < best.Result.Cost {
			best = &Match{Outline: o, Result: res}
			running = res.Cost
		}
	}
	return best
}
