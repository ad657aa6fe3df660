package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
)

// ErrConfigUnreadable means the configuration could not be read or holds
// no rule list. Nothing runs when it is returned.
var ErrConfigUnreadable = errors.New("configuration unreadable")

// RotationConfig configures own-log rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// ManifestConfig configures run history.
type ManifestConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// RuleError reports a rule entry that could not be decoded.
type RuleError struct {
	Index int
	Name  string
	Err   error
}

func (e RuleError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("rule %d (%s): %v", e.Index+1, e.Name, e.Err)
	}
	return fmt.Sprintf("rule %d: %v", e.Index+1, e.Err)
}

func (e RuleError) Unwrap() error { return e.Err }

// Config is the effective configuration.
type Config struct {
	Output      string         `mapstructure:"output" yaml:"output"`
	Schedule    string         `mapstructure:"schedule" yaml:"schedule"`
	RuleTimeout time.Duration  `mapstructure:"rule_timeout" yaml:"rule_timeout"`
	Logging     LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Manifest    ManifestConfig `mapstructure:"manifest" yaml:"manifest"`
	Metrics     MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`

	// Rules holds every rule that decoded; validation happens at run time.
	Rules []rule.Rule `mapstructure:"-" yaml:"rules"`

	// Problems lists rule entries that failed to decode.
	Problems []RuleError `mapstructure:"-" yaml:"-"`

	// Source is the file the configuration came from, empty when only
	// defaults and environment applied.
	Source string `mapstructure:"-" yaml:"-"`

	hasRules bool
}

// RuleSet returns the rules, or ErrConfigUnreadable when the source
// defines no rule list at all.
func (c *Config) RuleSet() ([]rule.Rule, error) {
	if !c.hasRules {
		if c.Source == "" {
			return nil, fmt.Errorf("%w: no configuration file found (try 'logsweep config init')", ErrConfigUnreadable)
		}
		return nil, fmt.Errorf("%w: %s defines no rules", ErrConfigUnreadable, c.Source)
	}
	return c.Rules, nil
}

// Load reads configuration. An explicit path must exist; with an empty
// path the default location is tried and its absence is not an error.
// Paths ending in .xml are read as legacy paths.xml files.
// Environment variables prefixed with LOGSWEEP_ override file values.
func Load(path string) (*Config, error) {
	v := newViper()

	legacy := strings.EqualFold(filepath.Ext(path), ".xml")

	switch {
	case legacy:
		// Settings other than rules keep their defaults.
	case path != "":
		v.SetConfigFile(path)
	default:
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	if !legacy {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if path != "" || !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
	}
	cfg.Source = v.ConfigFileUsed()

	if legacy {
		rules, problems, err := loadXML(path)
		if err != nil {
			return nil, err
		}
		cfg.Source = path
		cfg.Rules, cfg.Problems, cfg.hasRules = rules, problems, true
	} else if v.IsSet("rules") {
		cfg.hasRules = true
		cfg.Rules, cfg.Problems = decodeRules(v.Get("rules"))
	}

	if cfg.Manifest.Path == "" {
		cfg.Manifest.Path = ManifestDir()
	}
	var err error
	if cfg.Manifest.Path, err = ExpandPath(cfg.Manifest.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if cfg.Metrics.Textfile, err = ExpandPath(cfg.Metrics.Textfile); err != nil {
		return nil, err
	}
	for i := range cfg.Rules {
		if cfg.Rules[i].Location, err = ExpandPath(cfg.Rules[i].Location); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("output", DefaultOutput)
	v.SetDefault("schedule", "")
	v.SetDefault("rule_timeout", "0s")

	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.path", "")
	v.SetDefault("manifest.retention_days", DefaultRetentionDays)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.rotation.compress", true)
	v.SetDefault("logging.components", DefaultComponentLevels)

	return v
}

// decodeRules decodes each rule entry on its own so a bad entry is
// reported without losing the others.
func decodeRules(raw any) ([]rule.Rule, []RuleError) {
	items, ok := raw.([]any)
	if !ok {
		return nil, []RuleError{{Index: 0, Err: fmt.Errorf("rules must be a list, got %T", raw)}}
	}

	rules := make([]rule.Rule, 0, len(items))
	var problems []RuleError
	for i, item := range items {
		r, err := DecodeRule(item)
		if err != nil {
			name := ""
			if m, ok := item.(map[string]any); ok {
				name, _ = m["name"].(string)
			}
			problems = append(problems, RuleError{Index: i, Name: name, Err: err})
			continue
		}
		rules = append(rules, r)
	}
	return rules, problems
}

// DecodeRule decodes one rule from a generic map, starting from
// rule.Default. Extensions and globs may be given as a comma-separated
// string; an empty delete_archive_after_days disables pruning.
func DecodeRule(raw any) (rule.Rule, error) {
	r := rule.Default()

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &r,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			trimSliceHook(),
		),
	})
	if err != nil {
		return r, err
	}
	if err := dec.Decode(dropBlankRetention(raw)); err != nil {
		return r, err
	}
	r.Extensions = rule.NormalizeExtensions(r.Extensions)
	return r, nil
}

// dropBlankRetention returns raw without a blank delete_archive_after_days
// so the decoded rule keeps its nil retention.
func dropBlankRetention(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.EqualFold(k, "delete_archive_after_days") {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func trimSliceHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.Slice || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		items, ok := data.([]string)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(items))
		for _, s := range items {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/logsweep, or ~/.config/logsweep.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", AppName)
	}
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultConfigPath returns the config file used when none is given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ManifestDir returns the default run history directory.
func ManifestDir() string {
	return filepath.Join(DataDir(), "history")
}

// DataDir returns $XDG_DATA_HOME/logsweep.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir returns $XDG_STATE_HOME/logsweep, home of the log file.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
