// Package manifest keeps a history of what each rule changed on disk.
package manifest

import "time"

// OperationType represents the type of change recorded.
type OperationType string

const (
	// OpArchive records files moved into containers.
	OpArchive OperationType = "archive"
	// OpPrune records expired containers that were deleted.
	OpPrune OperationType = "prune"
)

// Entry is one rule run.
type Entry struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Rule       string          `json:"rule"`
	Location   string          `json:"location"`
	Operations []OperationType `json:"operations"`
	Files      []FileRecord    `json:"files,omitempty"`
	Deleted    []string        `json:"deleted,omitempty"`
	Summary    Summary         `json:"summary"`
}

// FileRecord is a file that went into a container.
type FileRecord struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Container string `json:"container"`
}

// Summary totals an entry.
type Summary struct {
	TotalFiles      int64 `json:"total_files"`
	TotalBytes      int64 `json:"total_bytes"`
	ArchivesDeleted int64 `json:"archives_deleted"`
}
