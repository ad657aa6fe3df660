package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

func quiet() Option {
	return WithLogger(logging.New(io.Discard, "engine", logging.LevelDebug))
}

func aged(t *testing.T, path string, days int) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
	when := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, when, when))
	return path
}

func intPtr(v int) *int { return &v }

func snapshot(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		out = append(out, rel)
		return nil
	}))
	sort.Strings(out)
	return out
}

func zips(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	require.NoError(t, err)
	return matches
}

type recorded struct {
	rule     string
	archived []types.ArchivedFile
	deleted  []string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recorded
	panic bool
}

func (f *fakeRecorder) Record(r rule.Rule, archived []types.ArchivedFile, deleted []string) error {
	if f.panic {
		panic("recorder exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recorded{rule: r.Name, archived: archived, deleted: deleted})
	return nil
}

type fakeObserver struct {
	runs []types.RunSummary
}

func (f *fakeObserver) Observe(s types.RunSummary) { f.runs = append(f.runs, s) }

func logRule(name, dir string) rule.Rule {
	return rule.Rule{
		Name:             name,
		Location:         dir,
		Extensions:       []string{".log"},
		ArchiveAfterDays: 7,
		DeleteOriginal:   true,
	}
}

func TestRun_ArchivesOldFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		aged(t, filepath.Join(dir, n+".log"), 10)
	}
	fresh := []string{
		aged(t, filepath.Join(dir, "x.log"), 3),
		aged(t, filepath.Join(dir, "y.log"), 3),
		aged(t, filepath.Join(dir, "z.log"), 3),
	}

	rec := &fakeRecorder{}
	obs := &fakeObserver{}
	e := New(quiet(), WithRecorder(rec), WithObserver(obs))

	sum := e.Run(context.Background(), []rule.Rule{logRule("app", dir)}, "")

	assert.Equal(t, 10, sum.Archived)
	assert.Zero(t, sum.ArchivesDeleted)
	assert.Equal(t, 1, sum.RulesRun)
	assert.False(t, sum.DryRun)
	require.Len(t, sum.Rules, 1)
	assert.Equal(t, types.OutcomeOK, sum.Rules[0].Outcome)

	for _, p := range fresh {
		assert.FileExists(t, p)
	}
	assert.NotEmpty(t, zips(t, dir))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "app", rec.calls[0].rule)
	assert.Len(t, rec.calls[0].archived, 10)

	require.Len(t, obs.runs, 1)
	assert.Equal(t, 10, obs.runs[0].Archived)

	t.Run("second run finds nothing", func(t *testing.T) {
		again := e.Run(context.Background(), []rule.Rule{logRule("app", dir)}, "")
		assert.Zero(t, again.Archived)
		assert.Len(t, rec.calls, 1, "nothing changed, nothing recorded")
	})
}

func TestRun_DryRunChangesNothing(t *testing.T) {
	dir := t.TempDir()
	aged(t, filepath.Join(dir, "a.log"), 10)
	aged(t, filepath.Join(dir, "b.log"), 10)
	aged(t, filepath.Join(dir, "Archive_2020-01-01.zip"), 60)
	before := snapshot(t, dir)

	r := logRule("dry", dir)
	r.DryRun = true
	r.ArchiveDirectory = "archive"
	r.DeleteArchiveAfterDays = intPtr(30)

	rec := &fakeRecorder{}
	sum := New(quiet(), WithRecorder(rec)).Run(context.Background(), []rule.Rule{r}, "")

	assert.Equal(t, 2, sum.Archived)
	assert.Equal(t, 1, sum.ArchivesDeleted)
	assert.True(t, sum.DryRun)
	assert.Equal(t, before, snapshot(t, dir))
	assert.Empty(t, rec.calls)
}

func TestRun_ForceDryRun(t *testing.T) {
	dir := t.TempDir()
	aged(t, filepath.Join(dir, "a.log"), 10)
	before := snapshot(t, dir)

	sum := New(quiet(), WithForceDryRun(true)).Run(context.Background(), []rule.Rule{logRule("app", dir)}, "")

	assert.Equal(t, 1, sum.Archived)
	assert.True(t, sum.DryRun)
	assert.Equal(t, before, snapshot(t, dir))
}

func TestRun_NameFilter(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	aged(t, filepath.Join(first, "a.log"), 10)
	keep := aged(t, filepath.Join(second, "b.log"), 10)

	rules := []rule.Rule{logRule("Web", first), logRule("db", second)}

	t.Run("case-insensitive match", func(t *testing.T) {
		sum := New(quiet()).Run(context.Background(), rules, "WEB")
		assert.Equal(t, 1, sum.Archived)
		require.Len(t, sum.Rules, 1)
		assert.Equal(t, "Web", sum.Rules[0].Name)
		assert.FileExists(t, keep)
	})

	t.Run("no match runs nothing", func(t *testing.T) {
		sum := New(quiet()).Run(context.Background(), rules, "nope")
		assert.Zero(t, sum.Archived)
		assert.Empty(t, sum.Rules)
		assert.Zero(t, sum.RulesRun)
	})
}

func TestRun_InvalidRuleIsSkipped(t *testing.T) {
	dir := t.TempDir()
	aged(t, filepath.Join(dir, "a.log"), 10)

	bad := logRule("bad", filepath.Join(dir, "missing"))
	negative := logRule("negative", dir)
	negative.ArchiveAfterDays = -1

	sum := New(quiet()).Run(context.Background(), []rule.Rule{bad, negative, logRule("good", dir)}, "")

	assert.Equal(t, 2, sum.RulesSkipped)
	assert.Equal(t, 1, sum.RulesRun)
	assert.Equal(t, 1, sum.Archived)
	require.Len(t, sum.Rules, 3)
	assert.Equal(t, types.OutcomeSkipped, sum.Rules[0].Outcome)
	assert.NotEmpty(t, sum.Rules[0].Reason)
	assert.Equal(t, types.OutcomeOK, sum.Rules[2].Outcome)
}

func TestRun_PanicIsContained(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	aged(t, filepath.Join(first, "a.log"), 10)
	aged(t, filepath.Join(second, "b.log"), 10)

	rec := &fakeRecorder{panic: true}
	sum := New(quiet(), WithRecorder(rec)).Run(context.Background(),
		[]rule.Rule{logRule("one", first), logRule("two", second)}, "")

	assert.Equal(t, 2, sum.RulesFailed)
	assert.Equal(t, 2, sum.RulesRun)
	require.Len(t, sum.Rules, 2)
	assert.Equal(t, types.OutcomeFailed, sum.Rules[1].Outcome)
	assert.Contains(t, sum.Rules[1].Reason, "recorder exploded")
}

func TestRun_PrunesExpiredArchives(t *testing.T) {
	dir := t.TempDir()
	old := aged(t, filepath.Join(dir, "Archive_2024-01-01.zip"), 40)
	recent := aged(t, filepath.Join(dir, "Archive_2024-02-01.zip"), 10)

	r := logRule("prune", dir)
	r.DeleteArchiveAfterDays = intPtr(30)

	rec := &fakeRecorder{}
	sum := New(quiet(), WithRecorder(rec)).Run(context.Background(), []rule.Rule{r}, "")

	assert.Zero(t, sum.Archived, "existing containers are never re-archived")
	assert.Equal(t, 1, sum.ArchivesDeleted)
	assert.NoFileExists(t, old)
	assert.FileExists(t, recent)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{old}, rec.calls[0].deleted)
}

func TestRun_AccessDeniedIsCounted(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	dir := t.TempDir()
	aged(t, filepath.Join(dir, "a.log"), 10)
	locked := filepath.Join(dir, "locked")
	aged(t, filepath.Join(locked, "b.log"), 10)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	r := logRule("denied", dir)
	r.Recursive = true

	sum := New(quiet()).Run(context.Background(), []rule.Rule{r}, "")

	assert.Equal(t, 1, sum.Archived)
	assert.Equal(t, 1, sum.AccessDenied)
	assert.Equal(t, types.OutcomeOK, sum.Rules[0].Outcome)
}

func TestRun_AccessDeniedCountedOnceWithPruning(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	dir := t.TempDir()
	aged(t, filepath.Join(dir, "one", "a.log"), 10)
	aged(t, filepath.Join(dir, "two", "b.log"), 10)
	locked := filepath.Join(dir, "three")
	aged(t, filepath.Join(locked, "c.log"), 10)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	r := logRule("denied", dir)
	r.Recursive = true
	r.DeleteArchiveAfterDays = intPtr(30)

	sum := New(quiet()).Run(context.Background(), []rule.Rule{r}, "")

	assert.Equal(t, 2, sum.Archived)
	assert.Equal(t, 1, sum.AccessDenied)
	assert.Equal(t, types.OutcomeOK, sum.Rules[0].Outcome)
}

func TestRun_FileLocationPrunesOnlyItsOwnContainers(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	single := aged(t, filepath.Join(app, "app.log"), 10)
	expired := aged(t, filepath.Join(app, "Archive_2020-01-01.zip"), 90)
	unrelated := aged(t, filepath.Join(app, "unrelated", "backup.zip"), 90)
	sibling := aged(t, filepath.Join(app, "backup.zip"), 90)

	r := logRule("single", single)
	r.Recursive = true
	r.DeleteArchiveAfterDays = intPtr(30)

	sum := New(quiet()).Run(context.Background(), []rule.Rule{r}, "")

	require.Len(t, sum.Rules, 1)
	assert.Equal(t, types.OutcomeOK, sum.Rules[0].Outcome, sum.Rules[0].Reason)
	assert.Equal(t, 1, sum.Archived)
	assert.Equal(t, 1, sum.ArchivesDeleted)
	assert.NoFileExists(t, single)
	assert.NoFileExists(t, expired)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, sibling)
}

func TestRun_CancelledStopsRemainingRules(t *testing.T) {
	dir := t.TempDir()
	path := aged(t, filepath.Join(dir, "a.log"), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := New(quiet()).Run(ctx, []rule.Rule{logRule("app", dir)}, "")
	assert.Empty(t, sum.Rules)
	assert.FileExists(t, path)
}

func TestRun_ElapsedUsesClock(t *testing.T) {
	base := time.Now()
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	sum := New(quiet(), WithNow(clock)).Run(context.Background(), nil, "")
	assert.Equal(t, base.Add(time.Second), sum.Started)
	assert.Equal(t, time.Second, sum.Elapsed)
	assert.False(t, sum.DryRun)
}
