// Package schedule runs a job on a cron expression until its context is
// cancelled. Runs never overlap: a tick that arrives while the previous
// run is still going is skipped.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
)

// Job is the scheduled work.
type Job func(ctx context.Context)

// Validate reports whether spec is a standard five-field cron expression
// or a descriptor such as "@daily" or "@every 1h".
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler drives a Job from a cron expression.
type Scheduler struct {
	spec       string
	schedule   cron.Schedule
	job        Job
	log        *logging.Logger
	runOnStart bool

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunOnStart runs the job once immediately when Run starts.
func WithRunOnStart(run bool) Option {
	return func(s *Scheduler) {
		s.runOnStart = run
	}
}

// WithLogger replaces the scheduler logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// New validates spec and prepares a Scheduler.
func New(spec string, job Job, opts ...Option) (*Scheduler, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		spec:     spec,
		schedule: sched,
		job:      job,
		log:      logging.Get("schedule"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is cancelled. It returns
// once any in-flight run has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{s.log}
	c := cron.New(cron.WithLogger(logger))

	wrapped := cron.NewChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	).Then(cron.FuncJob(func() {
		started := time.Now()
		s.log.Info("scheduled run starting", "schedule", s.spec)
		s.job(ctx)
		s.log.Info("scheduled run finished", "elapsed", time.Since(started).Round(time.Millisecond), "next", s.Next())
	}))

	s.mu.Lock()
	s.cron = c
	s.entry = c.Schedule(s.schedule, wrapped)
	s.mu.Unlock()

	c.Start()
	s.log.Info("scheduler started", "schedule", s.spec, "next", s.Next())

	if s.runOnStart {
		go wrapped.Run()
	}

	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	s.log.Info("scheduler stopped")
	return nil
}

// Next returns the next activation.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			return next
		}
	}
	return s.schedule.Next(time.Now())
}

// cronLogger adapts the package logger to cron's logger interface.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
