// Package config loads logsweep settings and rules from YAML (or the
// legacy paths.xml format) and the environment.
package config

// Default configuration values for logsweep.
const (
	// AppName names the config, state and data subdirectories.
	AppName = "logsweep"

	// EnvPrefix prefixes environment overrides, e.g. LOGSWEEP_OUTPUT.
	EnvPrefix = "LOGSWEEP"

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 90

	// DefaultOutput is the summary format when none is configured.
	DefaultOutput = "plain"

	// DefaultLogMaxSize is the size at which the own log file rotates.
	DefaultLogMaxSize = "10MB"
)

// DefaultComponentLevels are the per-component log levels written into a
// fresh configuration.
var DefaultComponentLevels = map[string]string{
	"engine":   "info",
	"discover": "info",
	"archive":  "info",
	"prune":    "info",
	"schedule": "info",
	"watcher":  "warn",
}
