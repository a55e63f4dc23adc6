package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
	"github.com/campus-outlines/buildingmap/pkg/merge/scorers"
)

var testHeader = []string{"building_code", "building_name", "building_address", "lat", "lon"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// outlineFeature builds a named university building whose first vertex is (lat, lon).
// The other vertices lie far enough east that the first vertex is the nearest one for any
// point due north or south of it.
func outlineFeature(name string, lat, lon float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{orb.Ring{
		{lon, lat},
		{lon + 0.002, lat + 0.0001},
		{lon + 0.002, lat - 0.0001},
		{lon, lat},
	}})
	f.Properties["building"] = "university"
	f.Properties["name"] = name
	return f
}

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, features...)
	return fc
}

func row(t *testing.T, line int, cols ...string) buildings.Row {
	t.Helper()
	r, err := buildings.ParseRow(cols, line)
	require.NoError(t, err)
	return r
}

func runMerge(t *testing.T, opts Options, rows []buildings.Row, fc *geojson.FeatureCollection) *MergeResult {
	t.Helper()
	merger := NewMerger(opts, quietLogger())
	result, err := merger.Merge(context.Background(), Input{Header: testHeader, Rows: rows, Outlines: fc})
	require.NoError(t, err)
	return result
}

func TestMerge_ExactVertexMatch(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "ABC", "Annen Hall", "123 X St", "34.0", "-118.0")}
	fc := collection(outlineFeature("Annen Hall", 34.0, -118.0))

	result := runMerge(t, DefaultOptions(), rows, fc)

	require.Len(t, result.Merged.Features, 1)
	props := result.Merged.Features[0].Properties
	assert.Equal(t, 0.0, props[buildings.PropMinDist])
	assert.Equal(t, "ABC", props["building_code"])
	assert.Equal(t, "Annen Hall", props["building_name"])
	assert.Equal(t, "123 X St", props["building_address"])
	assert.Equal(t, "34.0", props["lat"])
	assert.Equal(t, "-118.0", props["lon"])
	assert.Equal(t, "university", props["building"])
	assert.Equal(t, "Annen Hall", props["name"])

	assert.Equal(t, 1, result.Stats.Total)
	assert.Equal(t, 1, result.Stats.Matched)
	assert.Equal(t, 0, result.Stats.Ignored)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, DISTANCE, result.Strategy)
	assert.False(t, result.Truncated)
}

func TestMerge_InputFeatureUntouched(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "ABC", "Annen Hall", "123 X St", "34.0", "-118.0")}
	src := outlineFeature("Annen Hall", 34.0, -118.0)

	result := runMerge(t, DefaultOptions(), rows, collection(src))

	require.Len(t, result.Merged.Features, 1)
	assert.NotContains(t, src.Properties, buildings.PropMinDist)
	assert.NotContains(t, src.Properties, "building_code")

	out := result.Merged.Features[0]
	out.Geometry.(orb.Polygon)[0][0][0] = 0
	assert.Equal(t, -118.0, src.Geometry.(orb.Polygon)[0][0][0], "geometry is copied")
}

func TestMerge_CollisionLowerCostDisplaces(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "AAA", "Hall A", "1 X St", "34.001", "-118.0"),
		row(t, 3, "BBB", "Hall B", "2 X St", "34.0005", "-118.0"),
	}
	fc := collection(outlineFeature("Shared Hall", 34.0, -118.0))

	result := runMerge(t, DefaultOptions(), rows, fc)

	require.Len(t, result.Merged.Features, 1)
	props := result.Merged.Features[0].Properties
	assert.Equal(t, "BBB", props["building_code"])
	assert.InDelta(t, 0.0005, props[buildings.PropMinDist].(float64), 1e-12)

	assert.Equal(t, map[string][]string{"AAA": {"Shared Hall"}}, result.Blacklist)

	assert.Equal(t, 2, result.Stats.Total)
	assert.Equal(t, 1, result.Stats.Matched)
	assert.Equal(t, 1, result.Stats.Ignored)
	assert.Equal(t, 1, result.Stats.IgnoredBy[ReasonNoCandidate])
	assert.Equal(t, 1, result.Stats.Collisions)
	assert.Equal(t, 1, result.Stats.Displacements)
	assert.Equal(t, 1, result.Stats.Requeues)
	assert.Equal(t, 3, result.Stats.Passes)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, StatusIgnored, result.Outcomes[0].Status)
	assert.Equal(t, ReasonNoCandidate, result.Outcomes[0].Reason)
	assert.Equal(t, StatusMatched, result.Outcomes[1].Status)
	assert.Equal(t, "Shared Hall", result.Outcomes[1].Match.Outline.Name)
}

func TestMerge_CollisionHigherCostLoses(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "BBB", "Hall B", "2 X St", "34.0005", "-118.0"),
		row(t, 3, "AAA", "Hall A", "1 X St", "34.001", "-118.0"),
	}
	fc := collection(outlineFeature("Shared Hall", 34.0, -118.0))

	result := runMerge(t, DefaultOptions(), rows, fc)

	require.Len(t, result.Merged.Features, 1)
	assert.Equal(t, "BBB", result.Merged.Features[0].Properties["building_code"])
	assert.Equal(t, map[string][]string{"AAA": {"Shared Hall"}}, result.Blacklist)
	assert.Equal(t, 1, result.Stats.Collisions)
	assert.Equal(t, 0, result.Stats.Displacements)
}

func TestMerge_EqualCostKeepsHolder(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "AAA", "Hall A", "1 X St", "34.001", "-118.0"),
		row(t, 3, "BBB", "Hall B", "2 X St", "34.001", "-118.0"),
	}
	fc := collection(geojson.NewFeature(orb.Point{-118.0, 34.0}))
	fc.Features[0].Properties["building"] = "yes"
	fc.Features[0].Properties["name"] = "Shared Hall"

	result := runMerge(t, DefaultOptions(), rows, fc)

	require.Len(t, result.Merged.Features, 1)
	assert.Equal(t, "AAA", result.Merged.Features[0].Properties["building_code"])
	assert.Equal(t, map[string][]string{"BBB": {"Shared Hall"}}, result.Blacklist)
}

func TestMerge_LoserReassignedElsewhere(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "AAA", "Hall A", "1 X St", "34.001", "-118.0"),
		row(t, 3, "BBB", "Hall B", "2 X St", "34.0005", "-118.0"),
	}
	fc := collection(
		outlineFeature("Shared Hall", 34.0, -118.0),
		outlineFeature("Other Hall", 34.004, -118.0),
	)

	result := runMerge(t, DefaultOptions(), rows, fc)

	require.Len(t, result.Merged.Features, 2)
	// Shared Hall was assigned first and keeps its position after the replacement
	assert.Equal(t, "Shared Hall", result.Merged.Features[0].Properties["name"])
	assert.Equal(t, "BBB", result.Merged.Features[0].Properties["building_code"])
	assert.Equal(t, "Other Hall", result.Merged.Features[1].Properties["name"])
	assert.Equal(t, "AAA", result.Merged.Features[1].Properties["building_code"])
	assert.InDelta(t, 0.003, result.Merged.Features[1].Properties[buildings.PropMinDist].(float64), 1e-12)

	assert.Equal(t, 2, result.Stats.Matched)
	assert.Equal(t, 0, result.Stats.Ignored)
}

func TestMerge_NameWeighting(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "VKC", "Leavey Library", "651 W 35th St", "34.0", "-118.0")}
	fc := collection(
		outlineFeature("Gerontology", 34.009, -118.0),
		outlineFeature("Leavey", 34.01, -118.0),
	)

	opts := DefaultOptions()
	opts.Threshold = 0.05

	t.Run("distance only picks nearest", func(t *testing.T) {
		result := runMerge(t, opts, rows, fc)
		require.Len(t, result.Merged.Features, 1)
		assert.Equal(t, "Gerontology", result.Merged.Features[0].Properties["name"])
	})

	t.Run("name weighted picks similar name", func(t *testing.T) {
		weighted := opts
		weighted.NameWeighting = true
		result := runMerge(t, weighted, rows, fc)
		require.Len(t, result.Merged.Features, 1)
		assert.Equal(t, "Leavey", result.Merged.Features[0].Properties["name"])
		assert.InDelta(t, 0.01/1.2, result.Merged.Features[0].Properties[buildings.PropMinDist].(float64), 1e-9)
		assert.Equal(t, NAME_WEIGHTED, result.Strategy)
	})
}

func TestMerge_ThresholdInvariant(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "AAA", "Near Hall", "", "34.0", "-118.0"),
		row(t, 3, "BBB", "Far Hall", "", "34.1", "-118.0"),
	}
	fc := collection(
		outlineFeature("Near Hall", 34.007, -118.0),
		outlineFeature("Far Hall", 34.109, -118.0),
	)

	result := runMerge(t, DefaultOptions(), rows, fc)

	require.Len(t, result.Merged.Features, 1)
	for _, f := range result.Merged.Features {
		assert.LessOrEqual(t, f.Properties[buildings.PropMinDist].(float64), DefaultThreshold)
	}
	assert.Equal(t, ReasonNoCandidate, result.Outcomes[1].Reason)
}

func TestMerge_IneligibleFeatures(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "ABC", "Annen Hall", "", "34.0", "-118.0")}

	cafe := outlineFeature("Starbucks", 34.0, -118.0)
	cafe.Properties["amenity"] = "cafe"
	lot := outlineFeature("Parking", 34.0, -118.0)
	lot.Properties["building"] = "None"
	unnamed := outlineFeature("", 34.0, -118.0)
	unnamed.Properties["name"] = "None"
	noProps := outlineFeature("Ghost", 34.0, -118.0)
	noProps.Properties = nil
	hall := outlineFeature("Annen Hall", 34.001, -118.0)

	result := runMerge(t, DefaultOptions(), rows, collection(cafe, lot, unnamed, noProps, hall))

	require.Len(t, result.Merged.Features, 1)
	assert.Equal(t, "Annen Hall", result.Merged.Features[0].Properties["name"])
	assert.Equal(t, 1, result.Stats.SkippedFeatures)
}

func TestMerge_IgnoredRows(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "ABC", "Annen Hall", "", "null", "-118.0"),
		row(t, 3, "DEF", "Doheny Library", "", "34.0", "-118.0", "extra"),
		row(t, 4, "GHI", "Gerontology", "", "34.0", "-118.0"),
	}
	fc := collection(
		outlineFeature("Doheny Library", 34.0, -118.0),
		outlineFeature("Gerontology", 34.0, -118.0),
	)

	merger := NewMerger(DefaultOptions(), quietLogger())
	result, err := merger.Merge(context.Background(), Input{Header: testHeader, Rows: rows, Malformed: 2, Outlines: fc})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Stats.Total)
	assert.Equal(t, 1, result.Stats.Matched)
	assert.Equal(t, 4, result.Stats.Ignored)
	assert.Equal(t, 2, result.Stats.IgnoredBy[ReasonMalformed])
	assert.Equal(t, 1, result.Stats.IgnoredBy[ReasonUnknownCoordinates])
	assert.Equal(t, 1, result.Stats.IgnoredBy[ReasonColumnMismatch])
	assert.Equal(t, result.Stats.Total, result.Stats.Matched+result.Stats.Ignored)

	assert.Equal(t, ReasonUnknownCoordinates, result.Outcomes[0].Reason)
	assert.Equal(t, ReasonColumnMismatch, result.Outcomes[1].Reason)
	assert.Equal(t, StatusMatched, result.Outcomes[2].Status)
}

func TestMerge_InputErrors(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "ABC", "Annen Hall", "", "34.0", "-118.0")}
	fc := collection(outlineFeature("Annen Hall", 34.0, -118.0))

	badThreshold := DefaultOptions()
	badThreshold.Threshold = 0

	tests := []struct {
		name  string
		opts  Options
		input Input
		err   error
	}{
		{"no rows", DefaultOptions(), Input{Header: testHeader, Outlines: fc}, ErrNoRows},
		{"no features", DefaultOptions(), Input{Header: testHeader, Rows: rows, Outlines: collection()}, ErrNoFeatures},
		{"nil features", DefaultOptions(), Input{Header: testHeader, Rows: rows}, ErrNoFeatures},
		{"no header", DefaultOptions(), Input{Rows: rows, Outlines: fc}, ErrMissingHeader},
		{"zero threshold", badThreshold, Input{Header: testHeader, Rows: rows, Outlines: fc}, ErrInvalidThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMerger(tt.opts, quietLogger()).Merge(context.Background(), tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestMerge_CancelledContext(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "ABC", "Annen Hall", "", "34.0", "-118.0")}
	fc := collection(outlineFeature("Annen Hall", 34.0, -118.0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMerger(DefaultOptions(), quietLogger()).Merge(ctx, Input{Header: testHeader, Rows: rows, Outlines: fc})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge_NonFiniteRowNeverAccepted(t *testing.T) {
	// ParseRow rejects non-finite coordinates; rows built by callers can still carry them
	nan := buildings.Row{
		Code: "NAN", Name: "Mystery", Lat: math.NaN(), Lon: -118.0, HasCoords: true,
		Columns: []string{"NAN", "Mystery", "", "NaN", "-118.0"}, Line: 2,
	}
	annen := row(t, 3, "ABC", "Annen Hall", "", "34.0", "-118.0")

	for _, mode := range []scorers.VertexMode{scorers.VertexMinimum, scorers.VertexRunningBest} {
		for _, weighted := range []bool{false, true} {
			for _, useIndex := range []bool{false, true} {
				name := fmt.Sprintf("%s/weighted=%v/index=%v", mode, weighted, useIndex)
				t.Run(name, func(t *testing.T) {
					opts := DefaultOptions()
					opts.VertexMode = mode
					opts.NameWeighting = weighted
					opts.UseSpatialIndex = useIndex

					fc := collection(outlineFeature("Annen Hall", 34.0, -118.0))
					result := runMerge(t, opts, []buildings.Row{nan, annen}, fc)

					require.Len(t, result.Merged.Features, 1)
					props := result.Merged.Features[0].Properties
					assert.Equal(t, "ABC", props["building_code"])
					assert.Equal(t, 0.0, props[buildings.PropMinDist])

					assert.Equal(t, StatusIgnored, result.Outcomes[0].Status)
					assert.Equal(t, ReasonNoCandidate, result.Outcomes[0].Reason)
					assert.Equal(t, 0, result.Stats.Collisions)

					_, err := json.Marshal(result.Merged)
					assert.NoError(t, err)
				})
			}
		}
	}
}

func TestMerge_LoggerFromContext(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "ABC", "Annen Hall", "", "34.0", "-118.0")}
	fc := collection(outlineFeature("Annen Hall", 34.0, -118.0))

	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	result, err := NewMerger(DefaultOptions(), nil).Merge(ctx, Input{Header: testHeader, Rows: rows, Outlines: fc})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "merge_started")
	assert.Contains(t, out, "component=merger")
	assert.Contains(t, out, "run_id="+result.RunID)
}

func TestMerge_PassLimit(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "AAA", "Hall A", "", "34.001", "-118.0"),
		row(t, 3, "BBB", "Hall B", "", "34.0005", "-118.0"),
	}
	fc := collection(outlineFeature("Shared Hall", 34.0, -118.0))

	opts := DefaultOptions()
	opts.MaxPasses = 2

	result := runMerge(t, opts, rows, fc)

	assert.True(t, result.Truncated)
	assert.Equal(t, 2, result.Stats.Passes)
	assert.Equal(t, 1, result.Stats.IgnoredBy[ReasonPassLimit])
	assert.Equal(t, ReasonPassLimit, result.Outcomes[0].Reason)
	assert.Equal(t, result.Stats.Total, result.Stats.Matched+result.Stats.Ignored)
}

// campus builds a grid of outlines with a row near each and a few rows competing
// for the same outlines.
func campus(t *testing.T) ([]buildings.Row, *geojson.FeatureCollection) {
	var rows []buildings.Row
	fc := collection()
	line := 2
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			lat := 34.0 + float64(i)*0.004
			lon := -118.0 + float64(j)*0.004
			name := fmt.Sprintf("Hall %d-%d", i, j)
			fc.Features = append(fc.Features, outlineFeature(name, lat, lon))

			code := fmt.Sprintf("%c%c%d", 'A'+i, 'A'+j, (i+j)%10)
			rows = append(rows, row(t, line, code, name, "", fmt.Sprint(lat+0.0011), fmt.Sprint(lon+0.0007)))
			line++
			if (i+j)%4 == 0 {
				rival := fmt.Sprintf("%c%cX", 'Z'-i, 'Z'-j)
				rows = append(rows, row(t, line, rival, "Annex "+name, "", fmt.Sprint(lat+0.0003), fmt.Sprint(lon-0.0004)))
				line++
			}
		}
	}
	return rows, fc
}

func TestMerge_Properties(t *testing.T) {
	rows, fc := campus(t)

	for _, weighted := range []bool{false, true} {
		for _, mode := range []scorers.VertexMode{scorers.VertexMinimum, scorers.VertexRunningBest} {
			t.Run(fmt.Sprintf("weighted=%v mode=%s", weighted, mode), func(t *testing.T) {
				opts := DefaultOptions()
				opts.NameWeighting = weighted
				opts.VertexMode = mode

				first := runMerge(t, opts, rows, fc)
				second := runMerge(t, opts, rows, fc)

				// Determinism
				assert.Equal(t, first.Merged.Features, second.Merged.Features)
				assert.Equal(t, first.Blacklist, second.Blacklist)
				assert.Equal(t, first.Stats, second.Stats)

				// No duplicate outline names
				seen := make(map[string]bool)
				for _, f := range first.Merged.Features {
					name := f.Properties["name"].(string)
					assert.False(t, seen[name], "duplicate %s", name)
					seen[name] = true
					assert.LessOrEqual(t, f.Properties[buildings.PropMinDist].(float64), opts.Threshold)
				}

				// Blacklisted pairs never end up assigned
				for _, f := range first.Merged.Features {
					code := f.Properties["building_code"].(string)
					assert.NotContains(t, first.Blacklist[buildings.CodeKey(code)], f.Properties["name"])
				}

				assert.Equal(t, first.Stats.Total, first.Stats.Matched+first.Stats.Ignored)
				assert.Equal(t, len(rows), first.Stats.Total)
				assert.False(t, first.Truncated)

				// Spatial prefilter does not change the outcome
				linear := opts
				linear.UseSpatialIndex = false
				scan := runMerge(t, linear, rows, fc)
				assert.Equal(t, first.Merged.Features, scan.Merged.Features)
				assert.Equal(t, first.Blacklist, scan.Blacklist)
			})
		}
	}
}

func TestMerge_CollisionCorrectness(t *testing.T) {
	rows, fc := campus(t)
	result := runMerge(t, DefaultOptions(), rows, fc)

	// Rivals sit closer to their outline than the owners, so they must hold it
	for _, f := range result.Merged.Features {
		name := f.Properties["name"].(string)
		var hasRival bool
		for _, r := range rows {
			if r.Name == "Annex "+name {
				hasRival = true
			}
		}
		if hasRival {
			assert.Equal(t, "Annex "+name, f.Properties["building_name"])
		}
	}
	assert.Positive(t, result.Stats.Collisions)
}

type countingScorer struct {
	inner CandidateScorer
	calls int
}

func (c *countingScorer) Score(row *buildings.Row, o *buildings.Outline, running float64) scorers.Result {
	c.calls++
	return c.inner.Score(row, o, running)
}

func TestMerger_RegisterScorer(t *testing.T) {
	rows := []buildings.Row{row(t, 2, "ABC", "Annen Hall", "", "34.0", "-118.0")}
	fc := collection(outlineFeature("Annen Hall", 34.0, -118.0))

	scorer := &countingScorer{inner: &scorers.DistanceScorer{}}
	merger := NewMerger(DefaultOptions(), quietLogger())
	merger.RegisterScorer(DISTANCE, scorer)

	_, err := merger.Merge(context.Background(), Input{Header: testHeader, Rows: rows, Outlines: fc})
	require.NoError(t, err)
	assert.Equal(t, 1, scorer.calls)
}

type recordingObserver struct {
	assigned, collisions, requeued int
	ignored                        []string
}

func (r *recordingObserver) Assigned(Strategy, float64) { r.assigned++ }
func (r *recordingObserver) Collision(bool)             { r.collisions++ }
func (r *recordingObserver) Requeued()                  { r.requeued++ }
func (r *recordingObserver) Ignored(reason string)      { r.ignored = append(r.ignored, reason) }

func TestMerger_Observer(t *testing.T) {
	rows := []buildings.Row{
		row(t, 2, "AAA", "Hall A", "", "34.001", "-118.0"),
		row(t, 3, "BBB", "Hall B", "", "34.0005", "-118.0"),
	}
	fc := collection(outlineFeature("Shared Hall", 34.0, -118.0))

	obs := &recordingObserver{}
	merger := NewMerger(DefaultOptions(), quietLogger())
	merger.SetObserver(obs)

	_, err := merger.Merge(context.Background(), Input{Header: testHeader, Rows: rows, Outlines: fc})
	require.NoError(t, err)

	assert.Equal(t, 2, obs.assigned)
	assert.Equal(t, 1, obs.collisions)
	assert.Equal(t, 1, obs.requeued)
	assert.Equal(t, []string{ReasonNoCandidate}, obs.ignored)
}
