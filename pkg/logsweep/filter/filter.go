// Package filter decides which discovered files are eligible for
// archiving. It checks extension membership, last-access age and
// optional include/exclude glob patterns.
package filter

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
)

// FileInfo is the subset of file metadata the filter looks at.
type FileInfo struct {
	Path       string
	AccessTime time.Time
}

// Filter holds compiled eligibility criteria.
type Filter struct {
	// Extensions contains normalized extensions (".log"). Empty means any.
	Extensions []string

	// OlderThan is the minimum access age. Files accessed at or after
	// now-OlderThan are excluded. Zero admits anything accessed before now.
	OlderThan time.Duration

	// Include contains glob patterns. If non-empty, files must match one.
	Include []string

	// Exclude contains glob patterns. Matching files are excluded.
	Exclude []string

	// Now supplies the reference time. Defaults to time.Now.
	Now func() time.Time

	include []glob.Glob
	exclude []glob.Glob
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a Filter with the given options.
func New(opts ...Option) *Filter {
	f := &Filter{Now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	f.include = compile(f.Include)
	f.exclude = compile(f.Exclude)
	return f
}

// FromRule builds the filter a rule describes.
func FromRule(r rule.Rule, opts ...Option) *Filter {
	base := []Option{
		WithExtensions(r.Extensions...),
		WithOlderThanDays(r.ArchiveAfterDays),
		WithInclude(r.Include...),
		WithExclude(r.Exclude...),
	}
	return New(append(base, opts...)...)
}

// WithExtensions sets the extensions to include, normalized once.
func WithExtensions(extensions ...string) Option {
	return func(f *Filter) {
		f.Extensions = rule.NormalizeExtensions(extensions)
	}
}

// WithOlderThan sets the minimum access age.
func WithOlderThan(d time.Duration) Option {
	return func(f *Filter) {
		if d < 0 {
			d = 0
		}
		f.OlderThan = d
	}
}

// WithOlderThanDays sets the minimum access age in whole days.
func WithOlderThanDays(days int) Option {
	return WithOlderThan(time.Duration(days) * 24 * time.Hour)
}

// WithInclude sets the include glob patterns.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Include = patterns
	}
}

// WithExclude sets the exclude glob patterns.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithNow overrides the reference clock.
func WithNow(now func() time.Time) Option {
	return func(f *Filter) {
		if now != nil {
			f.Now = now
		}
	}
}

// Cutoff returns the instant a file must have been last accessed before.
func (f *Filter) Cutoff() time.Time {
	return f.Now().Add(-f.OlderThan)
}

// Match reports whether the file passes every criterion.
func (f *Filter) Match(fi FileInfo) bool {
	return f.MatchAt(fi, f.Cutoff())
}

// MatchAt is Match against a precomputed cutoff, so one walk uses a
// single reference time.
func (f *Filter) MatchAt(fi FileInfo, cutoff time.Time) bool {
	if !f.matchExtension(fi) {
		return false
	}
	if !fi.AccessTime.Before(cutoff) {
		return false
	}
	return f.matchPatterns(fi)
}

// matchExtension compares the file's extension exactly, case included.
func (f *Filter) matchExtension(fi FileInfo) bool {
	if len(f.Extensions) == 0 {
		return true
	}
	return slices.Contains(f.Extensions, filepath.Ext(fi.Path))
}

func (f *Filter) matchPatterns(fi FileInfo) bool {
	path := filepath.ToSlash(fi.Path)

	for _, g := range f.exclude {
		if g.Match(path) {
			return false
		}
	}

	if len(f.Include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// compile skips invalid patterns; rule validation reports them earlier.
func compile(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}
