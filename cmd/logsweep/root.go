package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/logsweep/pkg/logsweep/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "logsweep",
		Short: "Archive and expire old log files",
		Long: `logsweep walks the directories named by its rules, zips files that have
not been accessed for a number of days into Archive_YYYY-MM-DD.zip
containers and deletes containers past their retention age.

Every rule is a dry run until dry_run is set to false.

Examples:
  logsweep                          # Apply every rule once
  logsweep run -n web               # Apply only the rule named "web"
  logsweep run --dry-run -o pretty  # Preview everything, coloured summary
  logsweep run --schedule "0 2 * * *" --watch
  logsweep rules validate           # Check the configuration
  logsweep history                  # Show what past runs changed`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: initializeLogging,
		RunE:              runRun,
		SilenceUsage:      true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, YAML or legacy paths.xml (default: ~/.config/logsweep/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "echo debug logging to the console")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	addRunFlags(rootCmd)
}

// initConfig wires environment overrides for the CLI-only switches.
func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func getDebug() bool {
	return viper.GetBool("debug")
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message in debug mode.
func printVerbose(format string, args ...interface{}) {
	if getDebug() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message unless quiet.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
