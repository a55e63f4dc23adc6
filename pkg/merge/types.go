package merge

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb/geojson"

	"github.com/campus-outlines/buildingmap/internal/textsim"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
	"github.com/campus-outlines/buildingmap/pkg/merge/scorers"
)

// DefaultThreshold is the acceptance threshold in coordinate degrees
const DefaultThreshold = 0.008

var (
	// ErrNoRows is returned when the building table has no data rows
	ErrNoRows = errors.New("no building rows provided")
	// ErrNoFeatures is returned when the outline collection is missing or empty
	ErrNoFeatures = errors.New("no outline features provided")
	// ErrInvalidThreshold is returned for a threshold that is not a positive finite number
	ErrInvalidThreshold = errors.New("threshold must be a positive finite number")
	// ErrMissingHeader is returned when the header row is empty
	ErrMissingHeader = errors.New("missing header row")
	// ErrColumnMismatch is returned when a row's column count differs from the header's
	ErrColumnMismatch = errors.New("column count does not match header")
)

// Strategy represents how candidate outlines are ranked
type Strategy int

const (
	// DISTANCE ranks outlines by vertex distance alone
	DISTANCE Strategy = iota
	// NAME_WEIGHTED discounts the distance by name similarity
	NAME_WEIGHTED
)

func (s Strategy) String() string {
	switch s {
	case DISTANCE:
		return "DISTANCE"
	case NAME_WEIGHTED:
		return "NAME_WEIGHTED"
	default:
		return "UNKNOWN"
	}
}

// Reasons a row ends up ignored
const (
	ReasonMalformed          = "malformed"
	ReasonUnknownCoordinates = "unknown_coordinates"
	ReasonNoCandidate        = "no_candidate"
	ReasonColumnMismatch     = "column_mismatch"
	ReasonPassLimit          = "pass_limit"
)

// Options configures the merge behavior
type Options struct {
	// Threshold is the largest cost an assignment may have
	Threshold float64
	// NameWeighting discounts distances by name similarity
	NameWeighting bool
	// Similarity selects the name metric used when NameWeighting is set
	Similarity textsim.Algorithm
	// VertexMode selects how a distance is taken from an outline's vertices
	VertexMode scorers.VertexMode
	// MaxPasses caps the number of rows taken off the queue; 0 derives a bound
	MaxPasses int
	// UseSpatialIndex prefilters candidates through an R-tree
	UseSpatialIndex bool
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		Threshold:       DefaultThreshold,
		Similarity:      textsim.AlgorithmRatio,
		VertexMode:      scorers.VertexMinimum,
		UseSpatialIndex: true,
	}
}

// Strategy returns the ranking strategy the options select
func (o Options) Strategy() Strategy {
	if o.NameWeighting {
		return NAME_WEIGHTED
	}
	return DISTANCE
}

// Validate checks the options before a run
func (o Options) Validate() error {
	if o.Threshold <= 0 || math.IsNaN(o.Threshold) || math.IsInf(o.Threshold, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, o.Threshold)
	}
	if o.MaxPasses < 0 {
		return fmt.Errorf("max passes must not be negative: %d", o.MaxPasses)
	}
	if _, err := textsim.ForAlgorithm(o.Similarity); err != nil {
		return err
	}
	return nil
}

// Input is one building table and one outline collection
type Input struct {
	// Header names every column of the table, positionally
	Header []string
	Rows   []buildings.Row
	// Malformed counts table lines rejected before parsing into rows
	Malformed int
	Outlines  *geojson.FeatureCollection
}

// CandidateScorer ranks one outline for one row
type CandidateScorer interface {
	// Score returns the cost of assigning o to row; lower is better.
	// running is the best cost accepted so far for the row, +Inf before any.
	Score(row *buildings.Row, o *buildings.Outline, running float64) scorers.Result
}

// Match is an accepted (row, outline) pairing
type Match struct {
	Outline *buildings.Outline
	Result  scorers.Result
}

// Status is the final state of a row
type Status string

const (
	StatusMatched Status = "matched"
	StatusIgnored Status = "ignored"
)

// Outcome is the final state of one input row
type Outcome struct {
	Row    *buildings.Row
	Status Status
	// Reason is set for ignored rows
	Reason string
	// Match is set for matched rows
	Match *Match
}

// Stats counts what happened during a run
type Stats struct {
	Total     int
	Matched   int
	Ignored   int
	IgnoredBy map[string]int
	// Collisions counts rows whose best outline was already held
	Collisions int
	// Displacements counts collisions won by the newcomer
	Displacements int
	Requeues      int
	Passes        int
	// SkippedFeatures counts outline features without properties or geometry
	SkippedFeatures int
}

// MergeResult contains the merged collection and run metadata
type MergeResult struct {
	RunID    string
	Merged   *geojson.FeatureCollection
	Strategy Strategy
	Stats    Stats
	// Outcomes is in input row order
	Outcomes []Outcome
	// Blacklist maps an upper-cased code to the outline names it may no longer take
	Blacklist map[string][]string
	// Truncated is set when the pass cap stopped the run with rows still queued
	Truncated bool
}

// Observer receives resolver events as they happen
type Observer interface {
	Assigned(strategy Strategy, cost float64)
	Collision(displaced bool)
	Requeued()
	Ignored(reason string)
}

type noopObserver struct{}

func (noopObserver) Assigned(Strategy, float64) {}
func (noopObserver) Collision(bool)             {}
func (noopObserver) Requeued()                  {}
func (noopObserver) Ignored(string)             {}
