package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/logsweep/pkg/logsweep/config"
	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage logsweep configuration settings.

Configuration is loaded from:
  1. --config (YAML, or a legacy paths.xml file)
  2. $XDG_CONFIG_HOME/logsweep/config.yaml (if set)
  3. ~/.config/logsweep/config.yaml

Environment variables can override config file settings using the LOGSWEEP_ prefix:
  LOGSWEEP_OUTPUT=json
  LOGSWEEP_RULE_TIMEOUT=10m
  LOGSWEEP_MANIFEST_ENABLED=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after files and environment are applied.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a commented default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configView is the printable form of config.Config.
type configView struct {
	Output      string                `yaml:"output"`
	Schedule    string                `yaml:"schedule,omitempty"`
	RuleTimeout string                `yaml:"rule_timeout"`
	Logging     config.LoggingConfig  `yaml:"logging"`
	Manifest    config.ManifestConfig `yaml:"manifest"`
	Metrics     config.MetricsConfig  `yaml:"metrics"`
	Rules       []rule.Rule           `yaml:"rules"`
}

func newConfigView(cfg *config.Config) configView {
	return configView{
		Output:      cfg.Output,
		Schedule:    cfg.Schedule,
		RuleTimeout: cfg.RuleTimeout.String(),
		Logging:     cfg.Logging,
		Manifest:    cfg.Manifest,
		Metrics:     cfg.Metrics,
		Rules:       cfg.Rules,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Source != "" {
		fmt.Printf("# Config file: %s\n", cfg.Source)
	} else {
		fmt.Println("# Config file: (using defaults, no file found)")
	}
	for _, p := range cfg.Problems {
		fmt.Printf("# ignored: %v\n", p)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(newConfigView(cfg)); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	path, _, err := config.WriteDefault(cfgFile)
	if err != nil {
		return err
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path, created, err := config.WriteDefault(cfgFile)
	if err != nil {
		return err
	}

	if !created {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'logsweep config edit' to modify it.")
		return nil
	}

	printInfo("Created default config file: %s", path)
	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	fmt.Println(path)
	return nil
}
