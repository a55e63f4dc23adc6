package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/internal/textsim"
	"github.com/campus-outlines/buildingmap/pkg/buildings"
	"github.com/campus-outlines/buildingmap/pkg/merge/scorers"
)

// Merger attaches building table rows to the outlines that best represent them
type Merger struct {
	opts     Options
	logger   *slog.Logger
	scorers  map[Strategy]CandidateScorer
	observer Observer
}

// NewMerger creates a new Merger with the given options. With a nil logger each run logs
// to the logger carried by its context (logging.FromContext).
func NewMerger(opts Options, logger *slog.Logger) *Merger {
	return &Merger{
		opts:     opts,
		logger:   logger,
		scorers:  make(map[Strategy]CandidateScorer),
		observer: noopObserver{},
	}
}

// RegisterScorer replaces the scorer used for a strategy
func (m *Merger) RegisterScorer(strategy Strategy, scorer CandidateScorer) {
	m.scorers[strategy] = scorer
}

// SetObserver routes resolver events to o
func (m *Merger) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	m.observer = o
}

func (m *Merger) scorer() (CandidateScorer, error) {
	strategy := m.opts.Strategy()
	if s, ok := m.scorers[strategy]; ok {
		return s, nil
	}
	if strategy == DISTANCE {
		return &scorers.DistanceScorer{Mode: m.opts.VertexMode}, nil
	}
	sim, err := textsim.ForAlgorithm(m.opts.Similarity)
	if err != nil {
		return nil, err
	}
	return scorers.NewNameWeightedScorer(m.opts.VertexMode, sim), nil
}

// Outlines wraps every usable feature of fc. Features without properties or geometry are
// skipped with a warning and counted.
func Outlines(fc *geojson.FeatureCollection, logger *slog.Logger) ([]*buildings.Outline, int) {
	outlines := make([]*buildings.Outline, 0, len(fc.Features))
	skipped := 0
	for i, f := range fc.Features {
		o, err := buildings.NewOutline(i, f)
		if err != nil {
			skipped++
			logging.LogWarning(logger, "skipping outline feature",
				slog.Int("feature_index", i),
				slog.String("reason", err.Error()))
			continue
		}
		outlines = append(outlines, o)
	}
	return outlines, skipped
}

// Merge runs the requeue-and-blacklist resolution over in and returns the merged collection.
// Rows are processed in order; a row that loses a collision goes to the back of the queue
// with the contested outline blacklisted for its code.
func (m *Merger) Merge(ctx context.Context, in Input) (*MergeResult, error) {
	if err := m.opts.Validate(); err != nil {
		return nil, err
	}
	if len(in.Header) == 0 {
		return nil, ErrMissingHeader
	}
	if len(in.Rows) == 0 && in.Malformed == 0 {
		return nil, ErrNoRows
	}
	if in.Outlines == nil || len(in.Outlines.Features) == 0 {
		return nil, ErrNoFeatures
	}

	scorer, err := m.scorer()
	if err != nil {
		return nil, fmt.Errorf("building scorer: %w", err)
	}

	base := m.logger
	if base == nil {
		base = logging.FromContext(ctx)
	}
	runID := uuid.NewString()
	logger := base.With(slog.String("component", "merger"), slog.String("run_id", runID))

	outlines, skipped := Outlines(in.Outlines, logger)
	set := newOutlineSet(outlines, m.opts.UseSpatialIndex)

	rc := NewContext()
	rc.stats.Total = len(in.Rows) + in.Malformed
	rc.stats.SkippedFeatures = skipped
	for i := 0; i < in.Malformed; i++ {
		rc.RecordIgnored(ReasonMalformed)
		m.observer.Ignored(ReasonMalformed)
	}

	logging.LogOperation(logger, "merge_started",
		slog.String("strategy", m.opts.Strategy().String()),
		slog.String("vertex_mode", m.opts.VertexMode.String()),
		slog.Float64("threshold", m.opts.Threshold),
		slog.Int("rows", len(in.Rows)),
		slog.Int("outlines", len(outlines)),
		slog.Int("skipped_features", skipped))

	reasons := make([]string, len(in.Rows))
	queue := newWorkQueue(len(in.Rows))
	limit := m.passLimit(len(in.Rows), len(outlines))
	truncated := false

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("merge interrupted after %d passes: %w", rc.stats.Passes, err)
		}
		if rc.stats.Passes >= limit {
			truncated = true
			for _, idx := range queue.Drain() {
				m.ignore(logger, rc, &in.Rows[idx], ReasonPassLimit)
				reasons[idx] = ReasonPassLimit
			}
			break
		}

		idx, _ := queue.Pop()
		rc.RecordPass()
		row := &in.Rows[idx]

		if !row.HasCoords {
			m.ignore(logger, rc, row, ReasonUnknownCoordinates)
			reasons[idx] = ReasonUnknownCoordinates
			continue
		}

		best := m.findBestMatch(rc, row, set, scorer)
		if best == nil {
			m.ignore(logger, rc, row, ReasonNoCandidate)
			reasons[idx] = ReasonNoCandidate
			continue
		}

		feature, err := assembleFeature(in.Header, row, best)
		if err != nil {
			m.ignore(logger, rc, row, ReasonColumnMismatch)
			reasons[idx] = ReasonColumnMismatch
			continue
		}

		m.resolve(logger, rc, queue, in.Rows, idx, best, feature)
	}

	stats := rc.GetStatistics()
	if truncated {
		logging.LogWarning(logger, "pass limit reached",
			slog.Int("limit", limit),
			slog.Int("unresolved", stats.IgnoredBy[ReasonPassLimit]))
	}
	logging.LogOperation(logger, "merge_completed",
		slog.Int("total", stats.Total),
		slog.Int("matched", stats.Matched),
		slog.Int("ignored", stats.Ignored),
		slog.Int("collisions", stats.Collisions),
		slog.Int("requeues", stats.Requeues),
		slog.Int("passes", stats.Passes))

	merged := geojson.NewFeatureCollection()
	merged.Features = rc.Features()

	return &MergeResult{
		RunID:     runID,
		Merged:    merged,
		Strategy:  m.opts.Strategy(),
		Stats:     stats,
		Outcomes:  outcomes(rc, in.Rows, reasons),
		Blacklist: rc.BlacklistSnapshot(),
		Truncated: truncated,
	}, nil
}

// resolve places an accepted match, settling a collision on its outline name if there is one
func (m *Merger) resolve(logger *slog.Logger, rc *Context, queue *workQueue, rows []buildings.Row,
	idx int, best *Match, feature *geojson.Feature) {

	name := best.Outline.Name
	row := &rows[idx]
	incoming := &assignment{rowIdx: idx, match: *best, feature: feature}

	held, ok := rc.holder(name)
	if !ok {
		rc.assign(name, incoming)
		m.observer.Assigned(m.opts.Strategy(), best.Result.Cost)
		return
	}

	displaced := best.Result.Cost < held.match.Result.Cost
	rc.RecordCollision(displaced)
	m.observer.Collision(displaced)

	loser := idx
	if displaced {
		rc.assign(name, incoming)
		m.observer.Assigned(m.opts.Strategy(), best.Result.Cost)
		loser = held.rowIdx
	}

	loserRow := &rows[loser]
	rc.Blacklist(loserRow.Code, name)
	queue.Push(loser)
	rc.RecordRequeue()
	m.observer.Requeued()

	logging.LogDebug(logger, "collision",
		slog.String("outline", name),
		slog.String("code", row.Code),
		slog.Float64("cost", best.Result.Cost),
		slog.String("held_by", rows[held.rowIdx].Code),
		slog.Float64("held_cost", held.match.Result.Cost),
		slog.Bool("displaced", displaced),
		slog.String("requeued", loserRow.Code))
}

func (m *Merger) ignore(logger *slog.Logger, rc *Context, row *buildings.Row, reason string) {
	rc.RecordIgnored(reason)
	m.observer.Ignored(reason)
	logging.LogOperation(logger, "row_ignored",
		slog.String("code", row.Code),
		slog.Int("line", row.Line),
		slog.String("reason", reason))
}

// passLimit bounds the number of rows taken off the queue. Every requeue adds a new
// (code, name) pair to the blacklist, so the derived bound is never reached in practice.
func (m *Merger) passLimit(rows, outlines int) int {
	if m.opts.MaxPasses > 0 {
		return m.opts.MaxPasses
	}
	bound := float64(rows) + 2*float64(rows)*float64(outlines) + 1
	if bound > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(bound)
}

func outcomes(rc *Context, rows []buildings.Row, reasons []string) []Outcome {
	out := make([]Outcome, len(rows))
	for i := range rows {
		out[i] = Outcome{Row: &rows[i], Status: StatusIgnored, Reason: reasons[i]}
	}
	for _, name := range rc.order {
		a := rc.output[name]
		match := a.match
		out[a.rowIdx] = Outcome{Row: &rows[a.rowIdx], Status: StatusMatched, Match: &match}
	}
	return out
}

// IsInputError reports whether err came from validating the run's inputs rather than
// from the run itself
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoRows) || errors.Is(err, ErrNoFeatures) ||
		errors.Is(err, ErrMissingHeader) || errors.Is(err, ErrInvalidThreshold)
}
