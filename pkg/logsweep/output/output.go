// Package output renders a run summary in the format chosen on the
// command line (plain, json, yaml or pretty).
//
// Formatters are looked up by name in a registry:
//
//	f, err := output.Get("json")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, &summary); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// ErrUnknownFormat is returned by Get for an unregistered name.
var ErrUnknownFormat = errors.New("unknown output format")

// Formatter renders a run summary.
type Formatter interface {
	Format(w *bytes.Buffer, s *types.RunSummary) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps format names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a formatter.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownFormat, name, r.available())
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available()
}

func (r *Registry) available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the default registry's names.
func Available() []string {
	return DefaultRegistry.Available()
}

// document is the structured shape shared by the json and yaml formats.
type document struct {
	Summary string         `json:"summary" yaml:"summary"`
	Totals  totals         `json:"totals" yaml:"totals"`
	Rules   []ruleDocument `json:"rules" yaml:"rules"`
}

type totals struct {
	Archived        int       `json:"archived" yaml:"archived"`
	ArchivesDeleted int       `json:"archives_deleted" yaml:"archives_deleted"`
	AccessDenied    int       `json:"access_denied" yaml:"access_denied"`
	RulesRun        int       `json:"rules_run" yaml:"rules_run"`
	RulesSkipped    int       `json:"rules_skipped" yaml:"rules_skipped"`
	RulesFailed     int       `json:"rules_failed" yaml:"rules_failed"`
	DryRun          bool      `json:"dry_run" yaml:"dry_run"`
	Started         time.Time `json:"started" yaml:"started"`
	Elapsed         string    `json:"elapsed" yaml:"elapsed"`
}

type ruleDocument struct {
	Name            string   `json:"name,omitempty" yaml:"name,omitempty"`
	Location        string   `json:"location" yaml:"location"`
	Outcome         string   `json:"outcome" yaml:"outcome"`
	Reason          string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	DryRun          bool     `json:"dry_run" yaml:"dry_run"`
	Archived        int      `json:"archived" yaml:"archived"`
	ArchivesDeleted int      `json:"archives_deleted" yaml:"archives_deleted"`
	AccessDenied    int      `json:"access_denied" yaml:"access_denied"`
	Failures        int      `json:"failures" yaml:"failures"`
	Containers      []string `json:"containers,omitempty" yaml:"containers,omitempty"`
	Elapsed         string   `json:"elapsed" yaml:"elapsed"`
}

func buildDocument(s *types.RunSummary) document {
	doc := document{
		Summary: s.Line(),
		Totals: totals{
			Archived:        s.Archived,
			ArchivesDeleted: s.ArchivesDeleted,
			AccessDenied:    s.AccessDenied,
			RulesRun:        s.RulesRun,
			RulesSkipped:    s.RulesSkipped,
			RulesFailed:     s.RulesFailed,
			DryRun:          s.DryRun,
			Started:         s.Started,
			Elapsed:         types.FormatElapsed(s.Elapsed),
		},
		Rules: make([]ruleDocument, 0, len(s.Rules)),
	}
	for _, r := range s.Rules {
		doc.Rules = append(doc.Rules, ruleDocument{
			Name:            r.Name,
			Location:        r.Location,
			Outcome:         string(r.Outcome),
			Reason:          r.Reason,
			DryRun:          r.DryRun,
			Archived:        r.Archived,
			ArchivesDeleted: r.ArchivesDeleted,
			AccessDenied:    r.AccessDenied,
			Failures:        r.Failures,
			Containers:      r.Containers,
			Elapsed:         types.FormatElapsed(r.Elapsed),
		})
	}
	return doc
}
