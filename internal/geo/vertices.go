package geo

import "github.com/paulmach/orb"

// Vertices flattens a geometry into its coordinate sequence.
// Order is the GeoJSON coordinate order: rings in order (outer ring first), parts of
// multi-geometries in order, collection members in order. Closing vertices of rings are
// kept, so a closed ring yields its first point twice.
func Vertices(g orb.Geometry) []orb.Point {
	var out []orb.Point
	appendVertices(&out, g)
	return out
}

func appendVertices(out *[]orb.Point, g orb.Geometry) {
	switch t := g.(type) {
	case nil:
		return
	case orb.Point:
		*out = append(*out, t)
	case orb.MultiPoint:
		*out = append(*out, t...)
	case orb.LineString:
		*out = append(*out, t...)
	case orb.Ring:
		*out = append(*out, t...)
	case orb.MultiLineString:
		for _, ls := range t {
			*out = append(*out, ls...)
		}
	case orb.Polygon:
		for _, r := range t {
			*out = append(*out, r...)
		}
	case orb.MultiPolygon:
		for _, p := range t {
			for _, r := range p {
				*out = append(*out, r...)
			}
		}
	case orb.Collection:
		for _, member := range t {
			appendVertices(out, member)
		}
	case orb.Bound:
		appendVertices(out, t.ToPolygon())
	}
}

// ExteriorRing returns the first ring of a polygonal geometry, or the flattened
// vertices for anything else.
func ExteriorRing(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case orb.Polygon:
		if len(t) > 0 {
			return t[0]
		}
	case orb.MultiPolygon:
		if len(t) > 0 && len(t[0]) > 0 {
			return t[0][0]
		}
	}
	return Vertices(g)
}
