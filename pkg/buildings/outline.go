package buildings

import (
	"errors"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/campus-outlines/buildingmap/internal/geo"
)

// Property keys read from every outline
const (
	PropBuilding = "building"
	PropAmenity  = "amenity"
	PropName     = "name"
	// PropMinDist is written onto every merged outline
	PropMinDist = "min_dist"
)

// noneSentinel is how the outline source spells a missing tag
const noneSentinel = "None"

var (
	// ErrNoProperties is returned for a feature without a property bag
	ErrNoProperties = errors.New("feature has no properties")
	// ErrNoGeometry is returned for a feature without a usable geometry
	ErrNoGeometry = errors.New("feature has no geometry")
)

// Outline wraps a feature of the outline collection with the values matching needs.
// The wrapped feature is shared input and is never modified.
type Outline struct {
	// Index is the position of the feature in its collection
	Index    int
	Feature  *geojson.Feature
	Name     string
	Vertices []orb.Point
	Bound    orb.Bound
	// Candidate is true when the tags allow matching at all (blacklists aside)
	Candidate bool
}

// NewOutline wraps feature f found at position index
func NewOutline(index int, f *geojson.Feature) (*Outline, error) {
	if f == nil || f.Properties == nil {
		return nil, ErrNoProperties
	}
	if f.Geometry == nil {
		return nil, ErrNoGeometry
	}
	vertices := geo.Vertices(f.Geometry)
	if len(vertices) == 0 {
		return nil, ErrNoGeometry
	}

	name, hasName := DisplayName(f.Properties)
	return &Outline{
		Index:     index,
		Feature:   f,
		Name:      name,
		Vertices:  vertices,
		Bound:     f.Geometry.Bound(),
		Candidate: IsBuilding(f.Properties) && !IsAmenity(f.Properties) && hasName,
	}, nil
}

// IsBuilding reports whether the building tag is set to something truthy
func IsBuilding(props geojson.Properties) bool {
	return truthy(props[PropBuilding])
}

// IsAmenity reports whether the amenity tag is present and not a null sentinel
func IsAmenity(props geojson.Properties) bool {
	v, ok := props[PropAmenity]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(s), noneSentinel) {
		return false
	}
	return true
}

// DisplayName returns the feature's name tag and whether it is usable
func DisplayName(props geojson.Properties) (string, bool) {
	s, ok := props[PropName].(string)
	if !ok {
		return "", false
	}
	if s == "" || strings.EqualFold(strings.TrimSpace(s), noneSentinel) {
		return "", false
	}
	return s, true
}

// truthy follows the loose tag semantics of the outline source: nil, false, zero,
// empty strings and the None sentinel are all false.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		s := strings.TrimSpace(t)
		return s != "" && !strings.EqualFold(s, noneSentinel)
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}
