package merge

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/campus-outlines/buildingmap/pkg/buildings"
)

// assembleFeature copies the matched outline and writes min_dist and every row column
// under the header name at the same position. The input feature is left untouched.
func assembleFeature(header []string, row *buildings.Row, m *Match) (*geojson.Feature, error) {
	if len(row.Columns) != len(header) {
		return nil, fmt.Errorf("%w: line %d has %d columns, header has %d",
			ErrColumnMismatch, row.Line, len(row.Columns), len(header))
	}

	src := m.Outline.Feature
	f := geojson.NewFeature(orb.Clone(src.Geometry))
	f.ID = src.ID
	if len(src.BBox) > 0 {
		f.BBox = append(geojson.BBox(nil), src.BBox...)
	}
	f.Properties = src.Properties.Clone()

	f.Properties[buildings.PropMinDist] = m.Result.Cost
	for i, name := range header {
		f.Properties[name] = row.Columns[i]
	}
	return f, nil
}
