package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultTemplate = `# logsweep configuration

# Summary format for 'logsweep run': plain, json, yaml or pretty.
output: plain

# Cron expression, e.g. "0 2 * * *". When set, 'logsweep run' keeps
# running and applies the rules on this schedule. Empty runs once.
schedule: ""

# Upper bound for a single rule, e.g. 10m. 0 means no limit.
rule_timeout: 0s

rules:
  # Every rule starts as a dry run. Set dry_run: false once the log
  # output shows the files you expect.
  - name: example
    location: /var/log/example
    extensions: [".log"]
    archive_after_days: 7
    # Containers (Archive_YYYY-MM-DD.zip) older than this are deleted.
    # Remove the key to keep archives forever.
    delete_archive_after_days: 90
    dry_run: true
    delete_original: true
    # Relative directory below each file's folder that receives the
    # container. Empty keeps containers next to the files.
    archive_directory: ""
    recursive: false
    # Optional glob filters against the full path.
    include: []
    exclude: []

# Run history of archived and pruned files.
manifest:
  enabled: true
  path: %q
  retention_days: %d

# Prometheus node_exporter textfile, written after every run. Empty
# disables it.
metrics:
  textfile: ""

logging:
  # debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/logsweep/logsweep.log
  path: ""
  rotation:
    max_size: %s
    max_age: 30
    max_backups: 5
    daily: true
    compress: true
  components:
    engine: info
    discover: info
    archive: info
    prune: info
    schedule: info
    watcher: warn
`

// WriteDefault writes a commented default configuration to path (the
// default location when empty). An existing file is left alone and
// reported with created false.
func WriteDefault(path string) (string, bool, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return path, false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(defaultTemplate, ManifestDir(), DefaultRetentionDays, DefaultLogMaxSize)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return path, false, fmt.Errorf("failed to write default config: %w", err)
	}
	return path, true, nil
}
