package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// ErrNotFound is returned by Get for an unknown entry ID.
var ErrNotFound = errors.New("manifest entry not found")

// Manifest stores one JSON file per entry in a directory.
type Manifest struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New creates a Manifest rooted at dir. The directory is created on the
// first write.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	return &Manifest{dir: dir, now: time.Now}, nil
}

// Dir returns the manifest directory.
func (m *Manifest) Dir() string { return m.dir }

// EnsureDir creates the manifest directory if it does not exist.
func (m *Manifest) EnsureDir() error {
	return os.MkdirAll(m.dir, 0o755)
}

// Record stores what a rule archived and pruned.
func (m *Manifest) Record(r rule.Rule, archived []types.ArchivedFile, deleted []string) error {
	_, err := m.Log(r, archived, deleted)
	return err
}

// Log creates and persists an entry and returns it.
func (m *Manifest) Log(r rule.Rule, archived []types.ArchivedFile, deleted []string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &Entry{
		ID:        uuid.NewString(),
		Timestamp: m.now().UTC(),
		Rule:      r.Label(),
		Location:  r.Location,
		Deleted:   deleted,
	}

	if len(archived) > 0 {
		entry.Operations = append(entry.Operations, OpArchive)
	}
	if len(deleted) > 0 {
		entry.Operations = append(entry.Operations, OpPrune)
	}

	for _, f := range archived {
		entry.Files = append(entry.Files, FileRecord{Path: f.Path, Size: f.Size, Container: f.Container})
		entry.Summary.TotalBytes += f.Size
	}
	entry.Summary.TotalFiles = int64(len(archived))
	entry.Summary.ArchivesDeleted = int64(len(deleted))

	if err := m.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to write manifest entry: %w", err)
	}
	return entry, nil
}

func (m *Manifest) writeEntry(entry *Entry) error {
	if err := m.EnsureDir(); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", entry.Timestamp.Format("20060102T150405"), entry.ID)
	path := filepath.Join(m.dir, name)

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns entries newest first. A limit of zero or less returns all.
func (m *Manifest) List(limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID, or one whose ID starts with it
// when the prefix is unambiguous.
func (m *Manifest) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	var match *Entry
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
		if strings.HasPrefix(entries[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous entry ID %q", id)
			}
			match = &entries[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed.
func (m *Manifest) Cleanup(retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, f.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (m *Manifest) readAll() ([]Entry, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, f.Name()))
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			// Unparseable files are skipped.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
