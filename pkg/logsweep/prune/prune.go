// Package prune deletes archive containers past their retention age.
package prune

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/logsweep/pkg/logsweep/archive"
	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
)

// Result reports what a prune did.
type Result struct {
	// Deleted counts containers removed, or that would be in a dry run.
	Deleted int `json:"deleted"`

	// Matched lists every expired container, sorted.
	Matched []string `json:"matched,omitempty"`

	// Removed lists the containers actually deleted. Empty for dry runs.
	Removed []string `json:"removed,omitempty"`

	// Failed counts containers whose removal failed.
	Failed int `json:"failed"`

	// AccessDenied counts directories that could not be read.
	AccessDenied int `json:"access_denied"`
}

// Pruner scans for expired containers.
type Pruner struct {
	log logging.Sink
	now func() time.Time
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithLogger routes prune messages to s.
func WithLogger(s logging.Sink) Option {
	return func(p *Pruner) {
		if s != nil {
			p.log = s
		}
	}
}

// WithNow overrides the reference clock.
func WithNow(now func() time.Time) Option {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Pruner.
func New(opts ...Option) *Pruner {
	p := &Pruner{
		log: logging.Get("prune"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ErrNotDirectory is returned when Prune is given a file.
var ErrNotDirectory = errors.New("prune root is not a directory")

// Prune deletes expired containers under root with the default Pruner.
func Prune(ctx context.Context, root string, days int, recursive, dryRun bool) (Result, error) {
	return New().Prune(ctx, root, days, recursive, dryRun)
}

// Prune removes every file with the container extension under root whose
// modification time is strictly older than days.
func (p *Pruner) Prune(ctx context.Context, root string, days int, recursive, dryRun bool) (Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Result{}, fmt.Errorf("stat prune root: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}
	return p.prune(ctx, filepath.Clean(root), days, scope{recursive: recursive}, dryRun)
}

// PruneContainers removes expired Archive_YYYY-MM-DD.zip containers
// directly inside dir, without descending. A missing dir has nothing to
// prune.
func (p *Pruner) PruneContainers(ctx context.Context, dir string, days int, dryRun bool) (Result, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("stat prune root: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	return p.prune(ctx, filepath.Clean(dir), days, scope{containersOnly: true}, dryRun)
}

// scope limits what a walk considers.
type scope struct {
	recursive      bool
	containersOnly bool
}

func (p *Pruner) prune(ctx context.Context, root string, days int, sc scope, dryRun bool) (Result, error) {
	var res Result

	cutoff := p.now().Add(-time.Duration(days) * 24 * time.Hour)

	expired, err := p.scan(ctx, root, cutoff, sc, &res)
	if err != nil {
		return res, err
	}
	res.Matched = expired

	for _, path := range expired {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if dryRun {
			p.log.Log(logging.LevelInfo, "dry run, would delete", "archive", path)
			res.Deleted++
			continue
		}

		if err := os.Remove(path); err != nil {
			res.Failed++
			p.log.Log(logging.LevelError, "error deleting archive", "archive", path, "error", err)
			continue
		}
		res.Deleted++
		res.Removed = append(res.Removed, path)
		p.log.Log(logging.LevelInfo, "deleted archive", "archive", path)
	}

	return res, nil
}

// scan walks root and returns expired containers in sorted order. The
// walk callback runs concurrently, so shared state sits behind mu.
func (p *Pruner) scan(ctx context.Context, root string, cutoff time.Time, sc scope, res *Result) ([]string, error) {
	var (
		mu      sync.Mutex
		expired []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fastwalk.ErrSkipFiles
		}

		if err != nil {
			mu.Lock()
			if errors.Is(err, fs.ErrPermission) {
				res.AccessDenied++
			}
			mu.Unlock()
			p.log.Log(logging.LevelWarn, "cannot read directory", "path", path, "error", err)
			return nil
		}

		if d.IsDir() {
			if path != root && !sc.recursive {
				return fastwalk.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || filepath.Ext(path) != archive.ContainerExt {
			return nil
		}
		if sc.containersOnly && !archive.IsContainerName(filepath.Base(path)) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			mu.Lock()
			expired = append(expired, path)
			mu.Unlock()
		}
		return nil
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(expired)
	return expired, nil
}
