// Package archive groups candidates into dated zip containers and writes
// them.
package archive

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

const (
	// ContainerPrefix starts every container name.
	ContainerPrefix = "Archive_"
	// ContainerExt is the container extension, also used by the pruner.
	ContainerExt = ".zip"

	dateLayout = "2006-01-02"
)

// Date is a calendar day in local time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the local calendar day of t.
func DateOf(t time.Time) Date {
	y, m, d := t.Local().Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Key identifies one container: the directory it lives in and the
// creation day of the files it holds.
type Key struct {
	OutputDir string
	Date      Date
}

// KeyFor returns the key of a candidate. The output directory is the
// file's parent joined with hint.
func KeyFor(c types.Candidate, hint string) Key {
	return Key{
		OutputDir: OutputDir(c.Path, hint),
		Date:      DateOf(c.CreateTime),
	}
}

// OutputDir resolves where the container for the file at path goes.
func OutputDir(path, hint string) string {
	dir := filepath.Dir(path)
	if hint == "" {
		return dir
	}
	return filepath.Join(dir, hint)
}

// Name returns the container file name, e.g. Archive_2024-06-15.zip.
func (k Key) Name() string {
	return ContainerPrefix + k.Date.String() + ContainerExt
}

// Path returns the container's full path.
func (k Key) Path() string {
	return filepath.Join(k.OutputDir, k.Name())
}

// IsContainerName reports whether name is a container written by logsweep.
func IsContainerName(name string) bool {
	if !strings.HasPrefix(name, ContainerPrefix) || !strings.HasSuffix(name, ContainerExt) {
		return false
	}
	day := strings.TrimSuffix(strings.TrimPrefix(name, ContainerPrefix), ContainerExt)
	_, err := time.Parse(dateLayout, day)
	return err == nil
}

// tempSuffix ends the names of containers still being written.
const tempSuffix = ".tmp"

// tempPattern is the os.CreateTemp pattern for k's unfinished container.
func (k Key) tempPattern() string {
	return "." + ContainerPrefix + k.Date.String() + "-*" + tempSuffix
}

// IsTempName reports whether name is an unfinished container left by an
// interrupted write.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, "."+ContainerPrefix) && strings.HasSuffix(name, tempSuffix)
}

// Batch is the set of candidates bound for one container.
type Batch struct {
	Key   Key
	Files []types.Candidate
}

// Group partitions candidates by key, keeping first-seen order for both
// batches and the files within them.
func Group(candidates []types.Candidate, hint string) []Batch {
	index := make(map[Key]int)
	var batches []Batch

	for _, c := range candidates {
		k := KeyFor(c, hint)
		i, ok := index[k]
		if !ok {
			i = len(batches)
			index[k] = i
			batches = append(batches, Batch{Key: k})
		}
		batches[i].Files = append(batches[i].Files, c)
	}

	return batches
}
