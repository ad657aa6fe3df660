package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/logsweep/pkg/logsweep/config"
	"github.com/jamesainslie/logsweep/pkg/logsweep/engine"
	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/manifest"
	"github.com/jamesainslie/logsweep/pkg/logsweep/metrics"
	"github.com/jamesainslie/logsweep/pkg/logsweep/output"
	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
	"github.com/jamesainslie/logsweep/pkg/logsweep/schedule"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
	"github.com/jamesainslie/logsweep/pkg/logsweep/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Apply the configured rules",
	Long: `Apply every configured rule once, or repeatedly on a cron schedule.

Each rule archives files whose last access is older than
archive_after_days and, when delete_archive_after_days is set, deletes
containers older than that. Rules marked dry_run only report.

A rule that is invalid or fails is reported and the remaining rules
still run; the exit status is non-zero only when the configuration
itself cannot be read.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

// runFlags holds the run flags. Both the root command and "run" bind
// to the same values.
type runFlags struct {
	name     string
	dryRun   bool
	output   string
	schedule string
	watch    bool
	metrics  string
}

var runOptions runFlags

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&runOptions.name, "name", "n", "", "only run the rule with this name (case-insensitive)")
	f.BoolVar(&runOptions.dryRun, "dry-run", false, "treat every rule as a dry run")
	f.StringVarP(&runOptions.output, "output", "o", "", fmt.Sprintf("summary format: %v", output.Available()))
	f.StringVar(&runOptions.schedule, "schedule", "", "run on this cron schedule until interrupted")
	f.BoolVar(&runOptions.watch, "watch", false, "reload rules when the config file changes (with --schedule)")
	f.StringVar(&runOptions.metrics, "metrics-file", "", "write Prometheus metrics to this textfile after each run")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("%v", err)
		return err
	}

	rules, err := cfg.RuleSet()
	if err != nil {
		printError("%v", err)
		return err
	}
	reportProblems(cfg)

	formatter, err := output.Get(firstNonEmpty(runOptions.output, cfg.Output, config.DefaultOutput))
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := firstNonEmpty(runOptions.schedule, cfg.Schedule)
	if spec == "" {
		if runOptions.watch {
			return errors.New("--watch requires a schedule")
		}
		summary := eng.Run(ctx, rules, runOptions.name)
		return printSummary(formatter, &summary)
	}

	return runScheduled(ctx, cfg, eng, formatter, spec, rules)
}

// newEngine wires the engine collaborators selected by the configuration.
func newEngine(cfg *config.Config) (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithLogger(logging.Get("engine")),
		engine.WithRuleTimeout(cfg.RuleTimeout),
		engine.WithForceDryRun(runOptions.dryRun),
	}

	if cfg.Manifest.Enabled {
		m, err := manifest.New(cfg.Manifest.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize manifest: %w", err)
		}
		if err := m.EnsureDir(); err != nil {
			return nil, fmt.Errorf("failed to create manifest directory: %w", err)
		}
		opts = append(opts, engine.WithRecorder(m), engine.WithObserver(historyCleaner{m, cfg.Manifest.RetentionDays}))
	}

	if path := firstNonEmpty(runOptions.metrics, cfg.Metrics.Textfile); path != "" {
		opts = append(opts, engine.WithObserver(metrics.New(path)))
	}

	return engine.New(opts...), nil
}

// historyCleaner drops expired manifest entries after every run.
type historyCleaner struct {
	m    *manifest.Manifest
	days int
}

func (h historyCleaner) Observe(types.RunSummary) {
	days := h.days
	if days <= 0 {
		days = config.DefaultRetentionDays
	}
	if n, err := h.m.Cleanup(days); err != nil {
		logging.Get("manifest").Warn("history cleanup failed", "error", err)
	} else if n > 0 {
		logging.Get("manifest").Debug("history cleaned", "removed", n)
	}
}

// runScheduled repeats the run on spec until ctx is cancelled.
func runScheduled(ctx context.Context, cfg *config.Config, eng *engine.Engine, f output.Formatter, spec string, rules []rule.Rule) error {
	current := &ruleHolder{rules: rules}

	sched, err := schedule.New(spec, func(ctx context.Context) {
		summary := eng.Run(ctx, current.get(), runOptions.name)
		if err := printSummary(f, &summary); err != nil {
			logging.Get("cli").Error("printing summary", "error", err)
		}
	}, schedule.WithRunOnStart(true))
	if err != nil {
		return err
	}

	if runOptions.watch {
		if cfg.Source == "" {
			return errors.New("--watch needs a configuration file")
		}
		w, err := watcher.New(cfg.Source)
		if err != nil {
			return err
		}
		defer w.Close()
		go w.Run(ctx, func() { current.reload(w.Path()) })
	}

	printInfo("Running on schedule %q, next run at %s. Press Ctrl+C to stop.", spec, sched.Next().Format("2006-01-02 15:04:05"))
	return sched.Run(ctx)
}

// ruleHolder is the rule set shared between the scheduler and the
// config watcher.
type ruleHolder struct {
	mu    sync.RWMutex
	rules []rule.Rule
}

func (h *ruleHolder) get() []rule.Rule {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rules
}

// reload replaces the rules from path. A configuration that fails to
// load leaves the previous rules in place.
func (h *ruleHolder) reload(path string) {
	log := logging.Get("cli")

	cfg, err := config.Load(path)
	if err == nil {
		var rules []rule.Rule
		if rules, err = cfg.RuleSet(); err == nil {
			reportProblems(cfg)
			h.mu.Lock()
			h.rules = rules
			h.mu.Unlock()
			log.Info("rules reloaded", "path", path, "rules", len(rules))
			return
		}
	}
	log.Warn("keeping previous rules", "path", path, "error", err)
}

// reportProblems logs rule entries that could not be decoded.
func reportProblems(cfg *config.Config) {
	log := logging.Get("config")
	for _, p := range cfg.Problems {
		log.Warn("ignoring rule", "error", p.Error())
	}
}

func printSummary(f output.Formatter, s *types.RunSummary) error {
	if getQuiet() {
		return nil
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, s); err != nil {
		return fmt.Errorf("formatting summary: %w", err)
	}
	_, err := os.Stdout.Write(buf.Bytes())
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
