package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// Options controls a single Archive call.
type Options struct {
	// ArchiveDirectory is the subpath of each file's parent for containers.
	ArchiveDirectory string

	// DeleteOriginal removes sources after their container is written.
	DeleteOriginal bool

	// DryRun logs what would happen and touches nothing.
	DryRun bool
}

// Result reports what an Archive call did.
type Result struct {
	// Archived counts files written, or every candidate in a dry run.
	Archived int `json:"archived"`

	// Containers lists the containers written (or that would be).
	Containers []string `json:"containers,omitempty"`

	// Failed counts files that could not be archived.
	Failed int `json:"failed"`

	// DeleteFailures counts archived files whose removal failed.
	DeleteFailures int `json:"delete_failures"`

	// Records lists each archived file. Empty for dry runs.
	Records []types.ArchivedFile `json:"records,omitempty"`
}

// Writer writes batches of candidates into zip containers.
type Writer struct {
	log    logging.Sink
	method uint16
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger routes writer messages to s.
func WithLogger(s logging.Sink) WriterOption {
	return func(w *Writer) {
		if s != nil {
			w.log = s
		}
	}
}

// WithStore writes entries uncompressed. Useful for already-compressed
// inputs.
func WithStore() WriterOption {
	return func(w *Writer) {
		w.method = zip.Store
	}
}

// NewWriter creates a Writer that deflates entries.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		log:    logging.Get("archive"),
		method: zip.Deflate,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Archive groups candidates with the default writer and archives them.
func Archive(ctx context.Context, candidates []types.Candidate, opts Options) (Result, error) {
	return NewWriter().Archive(ctx, candidates, opts)
}

// Archive writes each group of candidates into its container. Failures
// are contained to the file or group they occur in; only cancellation
// stops the call early.
func (w *Writer) Archive(ctx context.Context, candidates []types.Candidate, opts Options) (Result, error) {
	var res Result

	for _, b := range Group(candidates, opts.ArchiveDirectory) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		target := b.Key.Path()

		if opts.DryRun {
			for _, c := range b.Files {
				w.log.Log(logging.LevelInfo, "dry run, would archive", "file", c.Path, "archive", target)
			}
			res.Archived += len(b.Files)
			res.Containers = append(res.Containers, target)
			continue
		}

		written, skipped, err := w.writeBatch(b)
		res.Failed += skipped
		if err != nil {
			res.Failed += len(b.Files) - skipped
			w.log.Log(logging.LevelError, "archive write failed", "archive", target, "error", err)
			continue
		}
		if len(written) == 0 {
			continue
		}

		res.Archived += len(written)
		res.Containers = append(res.Containers, target)

		for _, c := range written {
			res.Records = append(res.Records, types.ArchivedFile{Path: c.Path, Size: c.Size, Container: target})
			w.log.Log(logging.LevelInfo, "archived file", "file", c.Path, "archive", target)

			if !opts.DeleteOriginal {
				continue
			}
			if err := os.Remove(c.Path); err != nil {
				res.DeleteFailures++
				w.log.Log(logging.LevelError, "error deleting file", "file", c.Path, "error", err)
			}
		}
	}

	return res, nil
}

// writeBatch writes b's files into its container, keeping any entries the
// container already holds. The new container replaces the old one only
// once fully written. It returns the files that made it in and the
// number of sources that could not be opened.
func (w *Writer) writeBatch(b Batch) ([]types.Candidate, int, error) {
	dir := b.Key.OutputDir
	target := b.Key.Path()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, 0, fmt.Errorf("creating archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, b.Key.tempPattern())
	if err != nil {
		return nil, 0, fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	names := make(map[string]struct{})

	if err := copyExisting(zw, target, names); err != nil {
		return nil, 0, err
	}

	var written []types.Candidate
	skipped := 0
	for _, c := range b.Files {
		src, err := os.Open(c.Path)
		if err != nil {
			skipped++
			w.log.Log(logging.LevelError, "cannot open file for archiving", "file", c.Path, "error", err)
			continue
		}

		err = w.addEntry(zw, src, c, uniqueName(filepath.Base(c.Path), names))
		_ = src.Close()
		if err != nil {
			// The zip stream is unusable after a partial entry.
			return nil, skipped, fmt.Errorf("adding %s: %w", c.Path, err)
		}
		written = append(written, c)
	}

	if len(written) == 0 {
		// Nothing new; any existing container stays untouched.
		return nil, skipped, nil
	}

	if err := zw.Close(); err != nil {
		return nil, skipped, fmt.Errorf("finishing archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, skipped, fmt.Errorf("syncing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, skipped, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return nil, skipped, fmt.Errorf("replacing archive: %w", err)
	}
	committed = true

	return written, skipped, nil
}

func (w *Writer) addEntry(zw *zip.Writer, src *os.File, c types.Candidate, name string) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   w.method,
		Modified: c.ModTime,
	}
	hdr.SetMode(0o644)

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// copyExisting copies the raw entries of an existing container into zw
// and records their names. A missing container is not an error.
func copyExisting(zw *zip.Writer, path string, names map[string]struct{}) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading existing archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("copying %s from existing archive: %w", f.Name, err)
		}
		names[f.Name] = struct{}{}
	}
	return nil
}

// uniqueName returns name, or "stem (n).ext" for the first n not yet used.
func uniqueName(name string, used map[string]struct{}) string {
	if _, taken := used[name]; !taken {
		used[name] = struct{}{}
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := stem + " (" + strconv.Itoa(n) + ")" + ext
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
	}
}
