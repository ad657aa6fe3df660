// Package discover enumerates the files a rule makes eligible for
// archiving.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/logsweep/pkg/logsweep/archive"
	"github.com/jamesainslie/logsweep/pkg/logsweep/filter"
	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// EntryKind classifies a filesystem entry seen during discovery.
type EntryKind int

const (
	// KindOther is anything that is neither a regular file nor a
	// traversable directory: symlinks, devices, sockets, vanished entries.
	KindOther EntryKind = iota
	// KindFile is a regular file.
	KindFile
	// KindDir is a directory.
	KindDir
	// KindDenied is a path the process may not read.
	KindDenied
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindDenied:
		return "denied"
	default:
		return "other"
	}
}

// Entry is a classified filesystem entry.
type Entry struct {
	Path string
	Kind EntryKind
	Info fs.FileInfo
	Err  error
}

// Result is the outcome of one discovery.
type Result struct {
	Candidates   []types.Candidate `json:"candidates"`
	AccessDenied int               `json:"access_denied"`
	DirsScanned  int               `json:"dirs_scanned"`
	FilesScanned int               `json:"files_scanned"`
	Errors       []types.ScanError `json:"errors,omitempty"`
}

// Discoverer walks a root and collects candidates.
type Discoverer struct {
	filter    *filter.Filter
	recursive bool
	log       logging.Sink
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithLogger routes discovery messages to s.
func WithLogger(s logging.Sink) Option {
	return func(d *Discoverer) {
		if s != nil {
			d.log = s
		}
	}
}

// New creates a Discoverer. A nil filter admits every file.
func New(f *filter.Filter, recursive bool, opts ...Option) *Discoverer {
	if f == nil {
		f = filter.New()
	}
	d := &Discoverer{
		filter:    f,
		recursive: recursive,
		log:       logging.Get("discover"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover enumerates candidates under root with the given filter.
func Discover(ctx context.Context, root string, f *filter.Filter, recursive bool) (Result, error) {
	return New(f, recursive).Discover(ctx, root)
}

// Discover probes root and, when it is a directory, walks it. A root that
// is a regular file is returned as the only candidate, unfiltered.
func (d *Discoverer) Discover(ctx context.Context, root string) (Result, error) {
	var res Result

	top := probe(root)
	switch top.Kind {
	case KindFile:
		res.FilesScanned = 1
		res.Candidates = append(res.Candidates, candidate(top.Path, top.Info))
		d.log.Log(logging.LevelInfo, "location is a file, filters bypassed", "path", top.Path)
		return res, nil
	case KindDenied:
		res.AccessDenied++
		d.log.Log(logging.LevelWarn, "access denied", "path", top.Path)
		return res, nil
	case KindDir:
	default:
		if top.Err != nil {
			return res, fmt.Errorf("probing %s: %w", root, top.Err)
		}
		return res, fmt.Errorf("probing %s: not a file or directory", root)
	}

	cutoff := d.filter.Cutoff()
	if err := d.walk(ctx, top.Path, cutoff, &res); err != nil {
		return res, err
	}

	d.log.Log(logging.LevelDebug, "discovery finished",
		"root", root,
		"candidates", len(res.Candidates),
		"dirs", res.DirsScanned,
		"files", res.FilesScanned,
		"denied", res.AccessDenied,
	)
	return res, nil
}

func (d *Discoverer) walk(ctx context.Context, dir string, cutoff time.Time, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, kind, err := list(dir)
	switch kind {
	case KindDenied:
		res.AccessDenied++
		d.log.Log(logging.LevelWarn, "access denied", "path", dir)
		return nil
	case KindDir:
	default:
		res.Errors = append(res.Errors, types.ScanError{Path: dir, Error: err.Error()})
		d.log.Log(logging.LevelError, "listing failed", "path", dir, "error", err)
		return nil
	}
	res.DirsScanned++

	var subdirs []string
	for _, e := range entries {
		switch e.Kind {
		case KindFile:
			res.FilesScanned++
			if name := filepath.Base(e.Path); archive.IsContainerName(name) || archive.IsTempName(name) {
				continue
			}
			c := candidate(e.Path, e.Info)
			if d.filter.MatchAt(filter.FileInfo{Path: c.Path, AccessTime: c.AccessTime}, cutoff) {
				res.Candidates = append(res.Candidates, c)
			}
		case KindDir:
			subdirs = append(subdirs, e.Path)
		default:
			if e.Err != nil {
				res.Errors = append(res.Errors, types.ScanError{Path: e.Path, Error: e.Err.Error()})
			}
		}
	}

	if !d.recursive {
		return nil
	}
	for _, sub := range subdirs {
		if err := d.walk(ctx, sub, cutoff, res); err != nil {
			return err
		}
	}
	return nil
}

// probe classifies path without listing it.
func probe(path string) Entry {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Entry{Path: path, Kind: KindDenied, Err: err}
		}
		return Entry{Path: path, Kind: KindOther, Err: err}
	}
	return Entry{Path: path, Kind: kindOf(info.Mode()), Info: info}
}

// list reads dir and classifies its children. The returned kind is
// KindDir on success, KindDenied when listing is forbidden and KindOther
// for any other failure.
func list(dir string) ([]Entry, EntryKind, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, KindDenied, err
		}
		return nil, KindOther, err
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		p := filepath.Join(dir, de.Name())
		info, err := de.Info()
		if err != nil {
			entries = append(entries, Entry{Path: p, Kind: KindOther, Err: err})
			continue
		}
		entries = append(entries, Entry{Path: p, Kind: kindOf(info.Mode()), Info: info})
	}
	return entries, KindDir, nil
}

// kindOf does not follow symlinks: a link to a directory is KindOther.
func kindOf(mode fs.FileMode) EntryKind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	default:
		return KindOther
	}
}

func candidate(path string, info fs.FileInfo) types.Candidate {
	atime, ctime := fileTimes(path, info)
	return types.Candidate{
		Path:       path,
		Size:       info.Size(),
		AccessTime: atime,
		ModTime:    info.ModTime(),
		CreateTime: ctime,
	}
}
