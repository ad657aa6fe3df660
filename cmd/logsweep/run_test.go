package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/manifest"
	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Empty(t, firstNonEmpty("", ""))
}

func TestRuleHolder_Reload(t *testing.T) {
	dir := t.TempDir()
	h := &ruleHolder{rules: []rule.Rule{{Name: "old"}}}

	path := writeConfig(t, dir, "rules:\n  - name: fresh\n    location: "+dir+"\n    archive_after_days: 3\n")
	h.reload(path)
	require.Len(t, h.get(), 1)
	assert.Equal(t, "fresh", h.get()[0].Name)

	writeConfig(t, dir, "output: plain\n")
	h.reload(path)
	require.Len(t, h.get(), 1)
	assert.Equal(t, "fresh", h.get()[0].Name, "a config without rules keeps the previous set")

	writeConfig(t, dir, "rules: [\n")
	h.reload(path)
	assert.Equal(t, "fresh", h.get()[0].Name, "an unreadable config keeps the previous set")
}

func TestRetentionLabel(t *testing.T) {
	days := 30
	assert.Equal(t, "never", retention(rule.Rule{}))
	assert.Equal(t, "30d", retention(rule.Rule{DeleteArchiveAfterDays: &days}))
	assert.Equal(t, "-", displayName(rule.Rule{}))
}

func TestRunCommand_ArchivesAndRecords(t *testing.T) {
	root := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	xdg.Reload()

	logs := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(logs, 0o755))

	old := filepath.Join(logs, "app.log")
	require.NoError(t, os.WriteFile(old, []byte("old entries"), 0o644))
	when := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, when, when))

	fresh := filepath.Join(logs, "today.log")
	require.NoError(t, os.WriteFile(fresh, []byte("new entries"), 0o644))

	history := filepath.Join(root, "history")
	metricsFile := filepath.Join(root, "metrics", "logsweep.prom")
	cfgPath := writeConfig(t, root, `
logging:
  path: `+filepath.Join(root, "logsweep.log")+`
manifest:
  enabled: true
  path: `+history+`
metrics:
  textfile: `+metricsFile+`
rules:
  - name: app
    location: `+logs+`
    extensions: [log]
    archive_after_days: 7
    dry_run: false
`)

	t.Cleanup(func() {
		cfgFile = ""
		runOptions = runFlags{}
		_ = logging.Close()
	})

	rootCmd.SetArgs([]string{"--config", cfgPath, "--quiet", "run"})
	require.NoError(t, rootCmd.Execute())

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	containers, err := filepath.Glob(filepath.Join(logs, "Archive_*.zip"))
	require.NoError(t, err)
	assert.Len(t, containers, 1)

	assert.FileExists(t, metricsFile)

	m, err := manifest.New(history)
	require.NoError(t, err)
	entries, err := m.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "app", entries[0].Rule)
	assert.EqualValues(t, 1, entries[0].Summary.TotalFiles)
}
