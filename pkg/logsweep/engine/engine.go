// Package engine runs rules through discovery, archiving and pruning and
// aggregates the outcome into a RunSummary.
//
// Rules run one at a time in configuration order. A rule that fails
// validation is skipped; a rule that errors or panics part way is marked
// failed. Neither stops the run.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jamesainslie/logsweep/pkg/logsweep/archive"
	"github.com/jamesainslie/logsweep/pkg/logsweep/discover"
	"github.com/jamesainslie/logsweep/pkg/logsweep/filter"
	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/prune"
	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// Logger is the logging collaborator. *logging.Logger implements it.
type Logger = logging.Sink

// Recorder persists what a non-dry rule changed on disk.
type Recorder interface {
	Record(r rule.Rule, archived []types.ArchivedFile, deleted []string) error
}

// Observer receives every finished run.
type Observer interface {
	Observe(s types.RunSummary)
}

// Engine applies rules.
type Engine struct {
	log         Logger
	now         func() time.Time
	ruleTimeout time.Duration
	forceDryRun bool
	recorder    Recorder
	observers   []Observer
	writer      *archive.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine messages to s.
func WithLogger(s Logger) Option {
	return func(e *Engine) {
		if s != nil {
			e.log = s
		}
	}
}

// WithNow overrides the clock used for age cutoffs and timing.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRuleTimeout bounds each rule. Zero means no limit.
func WithRuleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.ruleTimeout = d
	}
}

// WithForceDryRun makes every rule a dry run regardless of its setting.
func WithForceDryRun(force bool) Option {
	return func(e *Engine) {
		e.forceDryRun = force
	}
}

// WithRecorder records non-dry changes, e.g. to the history manifest.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithObserver adds a run observer, e.g. the metrics exporter.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithArchiveWriter replaces the default archive writer.
func WithArchiveWriter(w *archive.Writer) Option {
	return func(e *Engine) {
		if w != nil {
			e.writer = w
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		log: logging.Get("engine"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.writer == nil {
		e.writer = archive.NewWriter()
	}
	return e
}

// RunRotation runs rules with a default Engine.
func RunRotation(ctx context.Context, rules []rule.Rule, nameFilter string) types.RunSummary {
	return New().Run(ctx, rules, nameFilter)
}

// Run applies every rule selected by nameFilter (case-insensitive; empty
// selects all). Unselected rules are ignored entirely.
func (e *Engine) Run(ctx context.Context, rules []rule.Rule, nameFilter string) types.RunSummary {
	started := e.now()
	summary := types.RunSummary{Started: started}

	executed, dry := 0, 0
	for _, r := range rules {
		if !r.Matches(nameFilter) {
			continue
		}
		if nameFilter != "" {
			e.log.Log(logging.LevelInfo, "matched rule by name", "name", nameFilter)
		}
		if err := ctx.Err(); err != nil {
			e.log.Log(logging.LevelWarn, "run cancelled, remaining rules not processed", "error", err)
			break
		}

		rs := e.runRule(ctx, r)
		summary.Add(rs)
		if rs.Outcome != types.OutcomeSkipped {
			executed++
			if rs.DryRun {
				dry++
			}
		}
	}

	if nameFilter != "" && len(summary.Rules) == 0 {
		e.log.Log(logging.LevelWarn, "no rule matched name", "name", nameFilter)
	}

	summary.DryRun = executed > 0 && executed == dry
	summary.Elapsed = e.now().Sub(started)

	e.log.Log(logging.LevelInfo, summary.Line(),
		"access_denied", summary.AccessDenied,
		"rules_run", summary.RulesRun,
		"rules_skipped", summary.RulesSkipped,
		"rules_failed", summary.RulesFailed,
	)

	for _, o := range e.observers {
		o.Observe(summary)
	}

	return summary
}

// runRule is the isolation boundary: nothing that goes wrong inside one
// rule escapes it.
func (e *Engine) runRule(ctx context.Context, r rule.Rule) (rs types.RuleSummary) {
	started := e.now()
	rs = types.RuleSummary{
		Name:     r.Name,
		Location: r.Location,
		DryRun:   r.DryRun || e.forceDryRun,
	}

	defer func() {
		if p := recover(); p != nil {
			rs.Outcome = types.OutcomeFailed
			rs.Reason = fmt.Sprintf("panic: %v", p)
			e.log.Log(logging.LevelError, "rule aborted", "rule", r.Label(), "panic", p)
		}
		rs.Elapsed = e.now().Sub(started)
	}()

	if err := r.Validate(); err != nil {
		rs.Outcome = types.OutcomeSkipped
		rs.Reason = err.Error()
		e.log.Log(logging.LevelWarn, "invalid parameters in configuration, rule skipped", "rule", r.Label(), "error", err)
		return rs
	}

	if e.ruleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ruleTimeout)
		defer cancel()
	}

	if err := e.process(ctx, r, rs.DryRun, &rs); err != nil {
		rs.Outcome = types.OutcomeFailed
		rs.Reason = err.Error()
		e.log.Log(logging.LevelError, "rule failed", "rule", r.Label(), "error", err)
		return rs
	}

	rs.Outcome = types.OutcomeOK
	return rs
}

func (e *Engine) process(ctx context.Context, r rule.Rule, dry bool, rs *types.RuleSummary) error {
	e.describe(r, dry)

	// Checked before archiving, which may delete the file.
	fileRoot := false
	if info, err := os.Stat(r.Location); err == nil && !info.IsDir() {
		fileRoot = true
	}

	f := filter.FromRule(r, filter.WithNow(e.now))
	found, err := discover.New(f, r.Recursive).Discover(ctx, r.Location)
	rs.AccessDenied += found.AccessDenied
	rs.Failures += len(found.Errors)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	archived, err := e.writer.Archive(ctx, found.Candidates, archive.Options{
		ArchiveDirectory: r.ArchiveDirectory,
		DeleteOriginal:   r.DeleteOriginal,
		DryRun:           dry,
	})
	rs.Archived += archived.Archived
	rs.Failures += archived.Failed + archived.DeleteFailures
	rs.Containers = archived.Containers
	if err != nil {
		return fmt.Errorf("archiving: %w", err)
	}

	var removed []string
	if r.Prunes() {
		e.log.Log(logging.LevelInfo, "deleting archives older than threshold", "rule", r.Label(), "days", *r.DeleteArchiveAfterDays)

		pruner := prune.New(prune.WithNow(e.now))
		var pruned prune.Result
		if fileRoot {
			pruned, err = pruner.PruneContainers(ctx, archive.OutputDir(r.Location, r.ArchiveDirectory), *r.DeleteArchiveAfterDays, dry)
		} else {
			pruned, err = pruner.Prune(ctx, r.Location, *r.DeleteArchiveAfterDays, r.Recursive, dry)
		}
		rs.ArchivesDeleted += pruned.Deleted
		rs.Failures += pruned.Failed
		if pruned.AccessDenied > 0 {
			// Discovery already counted these directories.
			e.log.Log(logging.LevelDebug, "prune skipped unreadable directories", "rule", r.Label(), "count", pruned.AccessDenied)
		}
		removed = pruned.Removed
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}
	}

	if dry || e.recorder == nil || (len(archived.Records) == 0 && len(removed) == 0) {
		return nil
	}
	if err := e.recorder.Record(r, archived.Records, removed); err != nil {
		e.log.Log(logging.LevelWarn, "failed to record history", "rule", r.Label(), "error", err)
	}
	return nil
}

func (e *Engine) describe(r rule.Rule, dry bool) {
	retention := "never"
	if r.Prunes() {
		retention = fmt.Sprintf("%d", *r.DeleteArchiveAfterDays)
	}
	e.log.Log(logging.LevelInfo, "processing rule",
		"rule", r.Label(),
		"location", r.Location,
		"extensions", strings.Join(rule.NormalizeExtensions(r.Extensions), ","),
		"archive_after_days", r.ArchiveAfterDays,
		"delete_archive_after_days", retention,
		"recursive", r.Recursive,
	)
	if dry {
		e.log.Log(logging.LevelInfo, "dry run, files and archives will not be modified", "rule", r.Label())
	}
}
