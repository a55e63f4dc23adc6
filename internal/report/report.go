// Package report writes the optional CSV diagnostics of a run: the per-row match report
// and the name similarity matrix.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/campus-outlines/buildingmap/internal/geo"
	"github.com/campus-outlines/buildingmap/internal/textsim"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
	"github.com/campus-outlines/buildingmap/pkg/merge"
)

// MatchReportHeader is the first line of a match report
var MatchReportHeader = []string{
	"line", "code", "name", "status", "reason",
	"outline", "cost", "distance", "similarity", "outline_polyline",
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// WriteMatchReport writes one line per input row with its final status
func WriteMatchReport(w io.Writer, outcomes []merge.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MatchReportHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, o := range outcomes {
		record := []string{
			strconv.Itoa(o.Row.Line), o.Row.Code, o.Row.Name, string(o.Status), o.Reason,
			"", "", "", "", "",
		}
		if o.Match != nil {
			record[5] = o.Match.Outline.Name
			record[6] = formatFloat(o.Match.Result.Cost)
			record[7] = formatFloat(o.Match.Result.Distance)
			record[8] = formatFloat(o.Match.Result.Similarity)
			record[9] = EncodeOutline(o.Match.Outline)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write report line %d: %w", o.Row.Line, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// EncodeOutline returns the outline's exterior ring as an encoded polyline
func EncodeOutline(o *buildings.Outline) string {
	if o == nil || o.Feature == nil {
		return ""
	}
	ring := geo.ExteriorRing(o.Feature.Geometry)
	if len(ring) == 0 {
		return ""
	}
	coords := make([][]float64, 0, len(ring))
	for _, p := range ring {
		coords = append(coords, []float64{p.Lat(), p.Lon()})
	}
	return string(polyline.EncodeCoords(coords))
}

// OutlineNames returns the sorted, comma-free names of every named building in fc.
// A non-empty tag keeps only buildings whose building tag equals it (case-insensitive).
func OutlineNames(fc *geojson.FeatureCollection, tag string) []string {
	var names []string
	for _, f := range fc.Features {
		if f == nil || f.Properties == nil || !buildings.IsBuilding(f.Properties) {
			continue
		}
		if tag != "" && !hasBuildingTag(f.Properties, tag) {
			continue
		}
		if name, ok := buildings.DisplayName(f.Properties); ok {
			names = append(names, textsim.Normalize(name))
		}
	}
	sort.Strings(names)
	return names
}

func hasBuildingTag(props geojson.Properties, tag string) bool {
	v, ok := props[buildings.PropBuilding].(string)
	return ok && strings.EqualFold(strings.TrimSpace(v), tag)
}

// RowNames returns the comma-free names of rows in table order
func RowNames(rows []buildings.Row) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, textsim.Normalize(r.Name))
	}
	return names
}

// WriteSimilarityMatrix writes an empty corner cell and the outline names as the header,
// then one line per row name with its similarity to every outline name
func WriteSimilarityMatrix(w io.Writer, rowNames, outlineNames []string, sim textsim.Func) error {
	if sim == nil {
		sim = textsim.Ratio
	}
	cw := csv.NewWriter(w)

	header := append([]string{""}, outlineNames...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write matrix header: %w", err)
	}

	record := make([]string, len(outlineNames)+1)
	for _, rn := range rowNames {
		record[0] = rn
		for j, on := range outlineNames {
			record[j+1] = formatFloat(sim(rn, on))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write matrix line for %q: %w", rn, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
