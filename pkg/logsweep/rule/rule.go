// Package rule defines the per-directory retention policy that drives a
// logsweep run, along with its validation.
package rule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Rule is one directory's retention and archival policy. A Rule is not
// modified once handed to the engine.
type Rule struct {
	// Name optionally identifies the rule for selective runs.
	Name string `mapstructure:"name" json:"name" yaml:"name"`

	// Location is the root directory (or single file) the rule applies to.
	Location string `mapstructure:"location" json:"location" yaml:"location"`

	// Extensions restricts discovery to these extensions. Empty means all.
	Extensions []string `mapstructure:"extensions" json:"extensions,omitempty" yaml:"extensions,omitempty"`

	// ArchiveAfterDays is the access-age threshold for archiving.
	ArchiveAfterDays int `mapstructure:"archive_after_days" json:"archive_after_days" yaml:"archive_after_days"`

	// DeleteArchiveAfterDays is the modification-age threshold for pruning
	// containers. Nil disables pruning.
	DeleteArchiveAfterDays *int `mapstructure:"delete_archive_after_days" json:"delete_archive_after_days,omitempty" yaml:"delete_archive_after_days,omitempty"`

	// DryRun reports actions without touching the filesystem.
	DryRun bool `mapstructure:"dry_run" json:"dry_run" yaml:"dry_run"`

	// DeleteOriginal removes sources once archived.
	DeleteOriginal bool `mapstructure:"delete_original" json:"delete_original" yaml:"delete_original"`

	// ArchiveDirectory is a subpath of each file's parent that receives
	// its container. Empty means the parent itself.
	ArchiveDirectory string `mapstructure:"archive_directory" json:"archive_directory,omitempty" yaml:"archive_directory,omitempty"`

	// Recursive descends into subdirectories for discovery and pruning.
	Recursive bool `mapstructure:"recursive" json:"recursive" yaml:"recursive"`

	// Include and Exclude are glob patterns matched against slash paths.
	Include []string `mapstructure:"include" json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Default returns a rule with the documented defaults: dry run on,
// originals deleted once archived, no recursion.
func Default() Rule {
	return Rule{
		DryRun:         true,
		DeleteOriginal: true,
	}
}

// Label returns the rule name, or its location when unnamed.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Location
}

// Prunes reports whether archive pruning is configured.
func (r Rule) Prunes() bool {
	return r.DeleteArchiveAfterDays != nil
}

// Matches reports whether the rule is selected by a name filter.
// An empty filter selects every rule.
func (r Rule) Matches(name string) bool {
	return name == "" || strings.EqualFold(r.Name, name)
}

// ErrInvalidRule is wrapped by every ConfigError.
var ErrInvalidRule = errors.New("invalid rule")

// ConfigError describes why a rule failed validation.
type ConfigError struct {
	Rule   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("invalid rule: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid rule %q: %s: %s", e.Rule, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidRule.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidRule
}

// Validate checks the rule against the filesystem and its own fields.
// The location must exist; it may be a directory or a single file.
func (r Rule) Validate() error {
	label := r.Label()

	if strings.TrimSpace(r.Location) == "" {
		return &ConfigError{Rule: label, Field: "location", Reason: "is empty"}
	}
	if _, err := os.Stat(r.Location); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ConfigError{Rule: label, Field: "location", Reason: "does not exist"}
		}
		return &ConfigError{Rule: label, Field: "location", Reason: err.Error()}
	}

	if r.ArchiveAfterDays < 0 {
		return &ConfigError{Rule: label, Field: "archive_after_days", Reason: "must not be negative"}
	}
	if r.DeleteArchiveAfterDays != nil && *r.DeleteArchiveAfterDays < 0 {
		return &ConfigError{Rule: label, Field: "delete_archive_after_days", Reason: "must not be negative"}
	}

	if dir := r.ArchiveDirectory; dir != "" {
		if filepath.IsAbs(dir) {
			return &ConfigError{Rule: label, Field: "archive_directory", Reason: "must be relative"}
		}
		clean := filepath.Clean(dir)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return &ConfigError{Rule: label, Field: "archive_directory", Reason: "must stay below the file's directory"}
		}
	}

	for _, pattern := range append(append([]string{}, r.Include...), r.Exclude...) {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return &ConfigError{Rule: label, Field: "include/exclude", Reason: fmt.Sprintf("bad pattern %q: %v", pattern, err)}
		}
	}

	return nil
}

// NormalizeExtensions trims each extension, drops blanks and prepends a
// leading dot where missing. Case is preserved; matching is exact.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
