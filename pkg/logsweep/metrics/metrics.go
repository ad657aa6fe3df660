// Package metrics exports run counters in the Prometheus text format for
// node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

const namespace = "logsweep"

// Exporter accumulates run metrics and writes them to a textfile after
// each run. It implements engine.Observer.
type Exporter struct {
	registry *prometheus.Registry
	path     string
	log      *logging.Logger

	archived        prometheus.Counter
	archivesDeleted prometheus.Counter
	accessDenied    prometheus.Counter
	rules           *prometheus.CounterVec
	runs            prometheus.Counter
	duration        prometheus.Gauge
	lastRun         prometheus.Gauge
	lastSuccess     prometheus.Gauge
	dryRun          prometheus.Gauge
}

// New creates an Exporter writing to path. An empty path keeps the
// metrics in memory only.
func New(path string) *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		path:     path,
		log:      logging.Get("metrics"),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_files_total",
			Help:      "Files added to archive containers.",
		}),
		archivesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_deleted_total",
			Help:      "Expired archive containers deleted.",
		}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_denied_total",
			Help:      "Directories that could not be read.",
		}),
		rules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_total",
			Help:      "Rules processed, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the most recent run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Start time of the most recent run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Start time of the most recent run in which no rule failed.",
		}),
		dryRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_dry",
			Help:      "1 if every rule of the most recent run was a dry run.",
		}),
	}

	registry.MustRegister(
		e.archived,
		e.archivesDeleted,
		e.accessDenied,
		e.rules,
		e.runs,
		e.duration,
		e.lastRun,
		e.lastSuccess,
		e.dryRun,
	)

	for _, o := range []types.RuleOutcome{types.OutcomeOK, types.OutcomeSkipped, types.OutcomeFailed} {
		e.rules.WithLabelValues(string(o))
	}

	return e
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Observe folds a run into the metrics and rewrites the textfile.
// Write failures are logged; metrics never fail a run.
func (e *Exporter) Observe(s types.RunSummary) {
	e.archived.Add(float64(s.Archived))
	e.archivesDeleted.Add(float64(s.ArchivesDeleted))
	e.accessDenied.Add(float64(s.AccessDenied))
	for _, r := range s.Rules {
		e.rules.WithLabelValues(string(r.Outcome)).Inc()
	}
	e.runs.Inc()

	e.duration.Set(s.Elapsed.Seconds())
	if !s.Started.IsZero() {
		e.lastRun.Set(float64(s.Started.Unix()))
		if s.RulesFailed == 0 {
			e.lastSuccess.Set(float64(s.Started.Unix()))
		}
	}
	if s.DryRun {
		e.dryRun.Set(1)
	} else {
		e.dryRun.Set(0)
	}

	if err := e.Write(); err != nil {
		e.log.Warn("failed to write metrics textfile", "path", e.path, "error", err)
	}
}

// Write atomically writes the textfile. It is a no-op without a path.
func (e *Exporter) Write() error {
	if e.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(e.path, e.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
