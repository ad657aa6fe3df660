// Package types holds the values passed between the logsweep engine
// packages: discovered candidates, per-rule and per-run summaries, and
// helpers for rendering sizes and elapsed times.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Candidate is a file selected for archiving in the current run.
type Candidate struct {
	// Path is the absolute path to the file.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// AccessTime is the last access time, the clock used for eligibility.
	AccessTime time.Time `json:"access_time"`

	// ModTime is the last modification time.
	ModTime time.Time `json:"mod_time"`

	// CreateTime is the creation (birth) time. Platforms that do not
	// record one report ModTime here.
	CreateTime time.Time `json:"create_time"`
}

// ScanError pairs a path with the error encountered while visiting it.
type ScanError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ArchivedFile records a source file written into a container.
type ArchivedFile struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Container string `json:"container"`
}

// RuleOutcome describes how a rule finished.
type RuleOutcome string

const (
	// OutcomeOK means the rule ran to completion.
	OutcomeOK RuleOutcome = "ok"
	// OutcomeSkipped means the rule failed validation and never ran.
	OutcomeSkipped RuleOutcome = "skipped"
	// OutcomeFailed means the rule aborted part way.
	OutcomeFailed RuleOutcome = "failed"
)

// RuleSummary reports what a single rule did.
type RuleSummary struct {
	Name            string        `json:"name"`
	Location        string        `json:"location"`
	Outcome         RuleOutcome   `json:"outcome"`
	Reason          string        `json:"reason,omitempty"`
	DryRun          bool          `json:"dry_run"`
	Archived        int           `json:"archived"`
	ArchivesDeleted int           `json:"archives_deleted"`
	AccessDenied    int           `json:"access_denied"`
	Failures        int           `json:"failures"`
	Containers      []string      `json:"containers,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// RunSummary aggregates the counters of a whole run.
type RunSummary struct {
	Archived        int           `json:"archived"`
	ArchivesDeleted int           `json:"archives_deleted"`
	AccessDenied    int           `json:"access_denied"`
	RulesRun        int           `json:"rules_run"`
	RulesSkipped    int           `json:"rules_skipped"`
	RulesFailed     int           `json:"rules_failed"`
	DryRun          bool          `json:"dry_run"`
	Started         time.Time     `json:"started"`
	Elapsed         time.Duration `json:"elapsed"`
	Rules           []RuleSummary `json:"rules"`
}

// Add folds a rule's counters into the run totals.
func (s *RunSummary) Add(r RuleSummary) {
	s.Archived += r.Archived
	s.ArchivesDeleted += r.ArchivesDeleted
	s.AccessDenied += r.AccessDenied

	switch r.Outcome {
	case OutcomeSkipped:
		s.RulesSkipped++
	case OutcomeFailed:
		s.RulesFailed++
		s.RulesRun++
	default:
		s.RulesRun++
	}

	s.Rules = append(s.Rules, r)
}

// Line returns the one-line end-of-run summary.
func (s RunSummary) Line() string {
	return fmt.Sprintf("Archived %d item(s) and deleted %d archive(s) in %s",
		s.Archived, s.ArchivesDeleted, FormatElapsed(s.Elapsed))
}

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ParseSize parses a human-readable size such as "10MB" or "512KiB".
// Bare numbers are bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: negative size %q", ErrInvalidSize, s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	return int64(n), nil
}

// FormatSize converts a size in bytes to IEC units ("1.5 MiB").
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatElapsed renders a duration as milliseconds below one second,
// seconds below one minute and minutes otherwise.
func FormatElapsed(d time.Duration) string {
	d = d.Truncate(time.Millisecond)
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return strconv.FormatInt(ms, 10) + "ms"
	case ms < 60000:
		return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
	default:
		return strconv.FormatFloat(d.Minutes(), 'f', -1, 64) + "m"
	}
}
