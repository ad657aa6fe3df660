package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

var (
	day1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	day2 = time.Date(2024, 3, 2, 10, 0, 0, 0, time.Local)
)

func quietWriter() *Writer {
	return NewWriter(WithLogger(logging.New(io.Discard, "archive", logging.LevelDebug)))
}

func makeFile(t *testing.T, path, content string, created time.Time) types.Candidate {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return types.Candidate{
		Path:       path,
		Size:       int64(len(content)),
		ModTime:    created,
		AccessTime: created,
		CreateTime: created,
	}
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = io.Copy(&buf, rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = buf.String()
	}
	return out
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		names = append(names, rel)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(names)
	return names
}

func TestKey(t *testing.T) {
	k := KeyFor(types.Candidate{Path: "/logs/app/a.log", CreateTime: day1}, "archive")

	assert.Equal(t, filepath.Join("/logs/app", "archive"), k.OutputDir)
	assert.Equal(t, "Archive_2024-03-01.zip", k.Name())
	assert.Equal(t, filepath.Join("/logs/app/archive", "Archive_2024-03-01.zip"), k.Path())
}

func TestIsContainerName(t *testing.T) {
	assert.True(t, IsContainerName("Archive_2024-03-01.zip"))
	assert.False(t, IsContainerName("Archive_2024-13-01.zip"))
	assert.False(t, IsContainerName("Archive_latest.zip"))
	assert.False(t, IsContainerName("archive_2024-03-01.zip"))
	assert.False(t, IsContainerName("Archive_2024-03-01.tar"))
}

func TestIsTempName(t *testing.T) {
	k := KeyFor(types.Candidate{Path: "/logs/a.log", CreateTime: day1}, "")
	name := strings.Replace(k.tempPattern(), "*", "918273", 1)

	assert.True(t, IsTempName(name))
	assert.False(t, IsContainerName(name))
	assert.False(t, IsTempName(k.Name()))
	assert.False(t, IsTempName("notes.tmp"))
}

func TestGroup(t *testing.T) {
	cands := []types.Candidate{
		{Path: "/l/a.log", CreateTime: day1},
		{Path: "/l/b.log", CreateTime: day2},
		{Path: "/l/c.log", CreateTime: day1},
		{Path: "/l/sub/d.log", CreateTime: day1},
	}

	t.Run("same parent and day share a batch", func(t *testing.T) {
		batches := Group(cands, "")
		require.Len(t, batches, 3)

		assert.Equal(t, Key{OutputDir: "/l", Date: DateOf(day1)}, batches[0].Key)
		assert.Equal(t, []string{"/l/a.log", "/l/c.log"}, paths(batches[0].Files))
		assert.Equal(t, DateOf(day2), batches[1].Key.Date)
		assert.Equal(t, filepath.FromSlash("/l/sub"), batches[2].Key.OutputDir)
	})

	t.Run("different days never share", func(t *testing.T) {
		for _, b := range Group(cands, "arch") {
			for _, f := range b.Files {
				assert.Equal(t, b.Key.Date, DateOf(f.CreateTime))
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Group(nil, ""))
	})
}

func paths(cs []types.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, filepath.ToSlash(c.Path))
	}
	return out
}

func TestArchive_WritesAndDeletes(t *testing.T) {
	dir := t.TempDir()
	a := makeFile(t, filepath.Join(dir, "a.log"), "alpha", day1)
	b := makeFile(t, filepath.Join(dir, "b.log"), "bravo", day1)
	c := makeFile(t, filepath.Join(dir, "c.log"), "charlie", day2)

	res, err := quietWriter().Archive(context.Background(), []types.Candidate{a, b, c}, Options{DeleteOriginal: true})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Archived)
	assert.Zero(t, res.Failed)
	assert.Len(t, res.Containers, 2)
	assert.Len(t, res.Records, 3)

	assert.Equal(t, map[string]string{"a.log": "alpha", "b.log": "bravo"},
		readZip(t, filepath.Join(dir, "Archive_2024-03-01.zip")))
	assert.Equal(t, map[string]string{"c.log": "charlie"},
		readZip(t, filepath.Join(dir, "Archive_2024-03-02.zip")))

	for _, p := range []string{a.Path, b.Path, c.Path} {
		assert.NoFileExists(t, p)
	}
}

func TestArchive_KeepOriginals(t *testing.T) {
	dir := t.TempDir()
	a := makeFile(t, filepath.Join(dir, "a.log"), "alpha", day1)

	res, err := quietWriter().Archive(context.Background(), []types.Candidate{a}, Options{DeleteOriginal: false})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Archived)
	assert.FileExists(t, a.Path)
	assert.FileExists(t, filepath.Join(dir, "Archive_2024-03-01.zip"))
}

func TestArchive_ArchiveDirectoryAndFlatten(t *testing.T) {
	root := t.TempDir()
	top := makeFile(t, filepath.Join(root, "app.log"), "top", day1)
	nested := makeFile(t, filepath.Join(root, "svc", "deep", "app.log"), "nested", day1)

	res, err := quietWriter().Archive(context.Background(), []types.Candidate{top, nested},
		Options{ArchiveDirectory: "old", DeleteOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Archived)

	assert.Equal(t, map[string]string{"app.log": "top"},
		readZip(t, filepath.Join(root, "old", "Archive_2024-03-01.zip")))
	assert.Equal(t, map[string]string{"app.log": "nested"},
		readZip(t, filepath.Join(root, "svc", "deep", "old", "Archive_2024-03-01.zip")))
}

func TestArchive_AppendsToExistingContainer(t *testing.T) {
	dir := t.TempDir()
	first := makeFile(t, filepath.Join(dir, "app.log"), "first", day1)

	w := quietWriter()
	_, err := w.Archive(context.Background(), []types.Candidate{first}, Options{DeleteOriginal: true})
	require.NoError(t, err)

	second := makeFile(t, filepath.Join(dir, "app.log"), "second", day1)
	other := makeFile(t, filepath.Join(dir, "other.log"), "other", day1)
	res, err := w.Archive(context.Background(), []types.Candidate{second, other}, Options{DeleteOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Archived)

	assert.Equal(t, map[string]string{
		"app.log":     "first",
		"app (1).log": "second",
		"other.log":   "other",
	}, readZip(t, filepath.Join(dir, "Archive_2024-03-01.zip")))
}

func TestArchive_DryRunTouchesNothing(t *testing.T) {
	root := t.TempDir()
	a := makeFile(t, filepath.Join(root, "a.log"), "alpha", day1)
	b := makeFile(t, filepath.Join(root, "b.log"), "bravo", day2)
	before := listDir(t, root)

	res, err := quietWriter().Archive(context.Background(), []types.Candidate{a, b},
		Options{ArchiveDirectory: "archive", DeleteOriginal: true, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Archived)
	assert.Len(t, res.Containers, 2)
	assert.Empty(t, res.Records)
	assert.Equal(t, before, listDir(t, root))
}

func TestArchive_MissingSourceIsSkipped(t *testing.T) {
	dir := t.TempDir()
	ok := makeFile(t, filepath.Join(dir, "ok.log"), "ok", day1)
	gone := types.Candidate{Path: filepath.Join(dir, "gone.log"), CreateTime: day1}

	res, err := quietWriter().Archive(context.Background(), []types.Candidate{gone, ok}, Options{DeleteOriginal: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Archived)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, map[string]string{"ok.log": "ok"}, readZip(t, filepath.Join(dir, "Archive_2024-03-01.zip")))
}

func TestArchive_WriteFailureIsIsolated(t *testing.T) {
	root := t.TempDir()
	// A file where the archive directory should be makes mkdir fail for
	// this group only.
	blocked := filepath.Join(root, "blocked")
	require.NoError(t, os.MkdirAll(blocked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blocked, "arch"), []byte("not a dir"), 0o644))

	bad := makeFile(t, filepath.Join(blocked, "a.log"), "bad", day1)
	good := makeFile(t, filepath.Join(root, "fine", "b.log"), "good", day1)

	res, err := quietWriter().Archive(context.Background(), []types.Candidate{bad, good},
		Options{ArchiveDirectory: "arch", DeleteOriginal: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Archived)
	assert.Equal(t, 1, res.Failed)
	assert.FileExists(t, bad.Path, "source of a failed group must survive")
	assert.FileExists(t, filepath.Join(root, "fine", "arch", "Archive_2024-03-01.zip"))
}

func TestArchive_CorruptExistingContainerLeftAlone(t *testing.T) {
	dir := t.TempDir()
	container := filepath.Join(dir, "Archive_2024-03-01.zip")
	require.NoError(t, os.WriteFile(container, []byte("garbage"), 0o644))
	a := makeFile(t, filepath.Join(dir, "a.log"), "alpha", day1)

	res, err := quietWriter().Archive(context.Background(), []types.Candidate{a}, Options{DeleteOriginal: true})
	require.NoError(t, err)

	assert.Zero(t, res.Archived)
	assert.Equal(t, 1, res.Failed)
	assert.FileExists(t, a.Path)

	data, err := os.ReadFile(container)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}

func TestArchive_Cancelled(t *testing.T) {
	dir := t.TempDir()
	a := makeFile(t, filepath.Join(dir, "a.log"), "alpha", day1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := quietWriter().Archive(ctx, []types.Candidate{a}, Options{DeleteOriginal: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Archived)
	assert.FileExists(t, a.Path)
}

func TestUniqueName(t *testing.T) {
	used := map[string]struct{}{}

	assert.Equal(t, "a.log", uniqueName("a.log", used))
	assert.Equal(t, "a (1).log", uniqueName("a.log", used))
	assert.Equal(t, "a (2).log", uniqueName("a.log", used))
	assert.Equal(t, "README", uniqueName("README", used))
	assert.Equal(t, "README (1)", uniqueName("README", used))
}
