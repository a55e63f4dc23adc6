package buildings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// NullSentinel marks an unknown latitude or longitude in the building table
const NullSentinel = "null"

// Column positions of the building table
const (
	ColCode = iota
	ColName
	ColAddress
	ColLat
	ColLon

	// MinColumns is the number of positional columns every data line must carry
	MinColumns
)

// CodeLength is the required length of a building code
const CodeLength = 3

// Row is one record of the building table
type Row struct {
	Code    string
	Name    string
	Address string
	Lat     float64
	Lon     float64
	// HasCoords is false when either coordinate is the null sentinel
	HasCoords bool
	// Columns holds every raw column in source order, mapped positionally onto the header
	Columns []string
	// Line is the 1-based line of the record in the source table
	Line int
}

// Key returns the case-insensitive identity of the row's building code
func (r *Row) Key() string {
	return CodeKey(r.Code)
}

// CodeKey normalizes a building code for map lookups
func CodeKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseRow builds a Row from the raw columns of one data line.
// The returned error describes why the line is unusable; callers treat it as a per-row fault.
func ParseRow(cols []string, line int) (Row, error) {
	if len(cols) < MinColumns {
		return Row{}, fmt.Errorf("invalid length: %d columns, need at least %d", len(cols), MinColumns)
	}

	code := strings.TrimSpace(cols[ColCode])
	if utf8.RuneCountInString(code) != CodeLength {
		return Row{}, fmt.Errorf("invalid building code: %q", cols[ColCode])
	}

	lat, latKnown, err := parseCoordinate(cols[ColLat])
	if err != nil {
		return Row{}, fmt.Errorf("invalid latitude value: %q", cols[ColLat])
	}
	lon, lonKnown, err := parseCoordinate(cols[ColLon])
	if err != nil {
		return Row{}, fmt.Errorf("invalid longitude value: %q", cols[ColLon])
	}

	columns := make([]string, len(cols))
	copy(columns, cols)

	return Row{
		Code:      code,
		Name:      strings.TrimSpace(cols[ColName]),
		Address:   strings.TrimSpace(cols[ColAddress]),
		Lat:       lat,
		Lon:       lon,
		HasCoords: latKnown && lonKnown,
		Columns:   columns,
		Line:      line,
	}, nil
}

// parseCoordinate returns (value, known, error); the null sentinel is known=false without error.
// NaN and infinities are rejected.
func parseCoordinate(raw string) (float64, bool, error) {
	s := strings.TrimSpace(raw)
	if strings.EqualFold(s, NullSentinel) {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("non-finite coordinate %q", raw)
	}
	return v, true, nil
}
