// Package metrics counts merge events in a Prometheus registry that can be written to a
// node-exporter text file at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/campus-outlines/buildingmap/pkg/merge"
)

const namespace = "buildingmap"

// Metrics implements merge.Observer
type Metrics struct {
	registry *prometheus.Registry

	AssignmentsTotal *prometheus.CounterVec
	AssignmentCost   prometheus.Histogram
	CollisionsTotal  *prometheus.CounterVec
	RequeuesTotal    prometheus.Counter
	IgnoredTotal     *prometheus.CounterVec

	Rows            *prometheus.GaugeVec
	Passes          prometheus.Gauge
	SkippedFeatures prometheus.Gauge
	Truncated       prometheus.Gauge
	DurationSeconds prometheus.Gauge
}

var _ merge.Observer = (*Metrics)(nil)

// New creates the collectors and registers them in a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AssignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Rows placed on an outline, including placements later displaced",
		}, []string{"strategy"}),
		AssignmentCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assignment_cost",
			Help:      "Cost of accepted assignments in coordinate degrees",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.002, 0.004, 0.006, 0.008, 0.01, 0.02},
		}),
		CollisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collisions_total",
			Help:      "Rows whose best outline was already held, by outcome",
		}, []string{"outcome"}),
		RequeuesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requeues_total",
			Help:      "Rows sent back to the work queue",
		}),
		IgnoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignored_rows_total",
			Help:      "Rows left unmatched, by reason",
		}, []string{"reason"}),
		Rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows",
			Help:      "Rows in the last run, by final status",
		}, []string{"status"}),
		Passes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "passes",
			Help:      "Rows taken off the work queue in the last run",
		}),
		SkippedFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_features",
			Help:      "Outline features without properties or geometry in the last run",
		}),
		Truncated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "truncated",
			Help:      "1 when the last run stopped at the pass limit",
		}),
		DurationSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last merge",
		}),
	}

	m.registry.MustRegister(
		m.AssignmentsTotal,
		m.AssignmentCost,
		m.CollisionsTotal,
		m.RequeuesTotal,
		m.IgnoredTotal,
		m.Rows,
		m.Passes,
		m.SkippedFeatures,
		m.Truncated,
		m.DurationSeconds,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Assigned(strategy merge.Strategy, cost float64) {
	m.AssignmentsTotal.WithLabelValues(strategy.String()).Inc()
	m.AssignmentCost.Observe(cost)
}

func (m *Metrics) Collision(displaced bool) {
	outcome := "kept"
	if displaced {
		outcome = "displaced"
	}
	m.CollisionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Requeued() {
	m.RequeuesTotal.Inc()
}

func (m *Metrics) Ignored(reason string) {
	m.IgnoredTotal.WithLabelValues(reason).Inc()
}

// ObserveResult records the final statistics of a run
func (m *Metrics) ObserveResult(result *merge.MergeResult, elapsed time.Duration) {
	m.Rows.WithLabelValues("total").Set(float64(result.Stats.Total))
	m.Rows.WithLabelValues(string(merge.StatusMatched)).Set(float64(result.Stats.Matched))
	m.Rows.WithLabelValues(string(merge.StatusIgnored)).Set(float64(result.Stats.Ignored))
	m.Passes.Set(float64(result.Stats.Passes))
	m.SkippedFeatures.Set(float64(result.Stats.SkippedFeatures))
	if result.Truncated {
		m.Truncated.Set(1)
	} else {
		m.Truncated.Set(0)
	}
	m.DurationSeconds.Set(elapsed.Seconds())
}

// WriteTextfile writes every metric in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
