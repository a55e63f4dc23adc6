package merge

import "github.com/campus-outlines/buildingmap/pkg/buildings"

// eligible reports whether o may be assigned to row: the outline's tags must make it a
// named, non-amenity building and the row's code must not have lost it before.
func (c *Context) eligible(row *buildings.Row, o *buildings.Outline) bool {
	if o == nil || !o.Candidate {
		return false
	}
	return !c.IsBlacklisted(row.Code, o.Name)
}
