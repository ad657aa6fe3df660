package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/logsweep/pkg/logsweep/config"
	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// initializeLogging is the root PersistentPreRunE hook. A configuration
// that fails to load still gets default logging; the command itself
// reports the load error.
func initializeLogging(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(config.StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		cfg = nil
	}

	if err := logging.Init(loggingConfig(cfg, getDebug(), getQuiet())); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}

// loggingConfig converts settings into a logging configuration. A nil
// cfg yields the defaults.
func loggingConfig(cfg *config.Config, debug, quiet bool) logging.Config {
	out := logging.DefaultConfig()
	out.Components = config.DefaultComponentLevels

	if cfg != nil {
		if cfg.Logging.Level != "" {
			out.Level = cfg.Logging.Level
		}
		if cfg.Logging.Path != "" {
			out.Path = cfg.Logging.Path
		}
		out.Rotation = parseRotationConfig(cfg.Logging.Rotation)
		if len(cfg.Logging.Components) > 0 {
			out.Components = cfg.Logging.Components
		}
	}

	switch {
	case quiet:
		out.ConsoleLevel = ""
	case debug:
		out.Level = "debug"
		out.ConsoleLevel = "debug"
		out.Components = nil
	default:
		out.ConsoleLevel = "warn"
	}
	return out
}

// parseRotationConfig converts rotation settings; an empty or invalid
// size falls back to the default.
func parseRotationConfig(cfg config.RotationConfig) logging.RotationConfig {
	out := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Daily:      cfg.Daily,
		Compress:   cfg.Compress,
	}
	if cfg.MaxSize != "" {
		if size, err := types.ParseSize(cfg.MaxSize); err == nil {
			out.MaxSize = size
		} else {
			printError("invalid logging.rotation.max_size %q, using default", cfg.MaxSize)
		}
	}
	return out
}
