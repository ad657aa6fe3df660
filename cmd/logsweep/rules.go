package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/logsweep/pkg/logsweep/config"
	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
	"github.com/jamesainslie/logsweep/pkg/logsweep/schedule"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect configured rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured rules",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every rule without running it",
	Long: `Decode and validate every rule and the schedule, if any.

Exits non-zero when any rule is invalid or could not be decoded.`,
	Args: cobra.NoArgs,
	RunE: runRulesValidate,
}

// errInvalidRules is returned by "rules validate" after the report is printed.
var errInvalidRules = errors.New("configuration has invalid rules")

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}

func loadRules() (*config.Config, []rule.Rule, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rules, err := cfg.RuleSet()
	if err != nil {
		return nil, nil, err
	}
	return cfg, rules, nil
}

func runRulesList(_ *cobra.Command, _ []string) error {
	cfg, rules, err := loadRules()
	if err != nil {
		return err
	}

	if len(rules) == 0 {
		printInfo("No rules configured in %s.", cfg.Source)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLOCATION\tARCHIVE AFTER\tDELETE AFTER\tDRY RUN\tRECURSIVE")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%dd\t%s\t%t\t%t\n",
			displayName(r), r.Location, r.ArchiveAfterDays, retention(r), r.DryRun, r.Recursive)
	}
	return tw.Flush()
}

func runRulesValidate(_ *cobra.Command, _ []string) error {
	cfg, rules, err := loadRules()
	if err != nil {
		return err
	}

	bad := 0
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			bad++
			fmt.Printf("✗ %s: %v\n", displayName(r), err)
			continue
		}
		printInfo("✓ %s", displayName(r))
	}
	for _, p := range cfg.Problems {
		bad++
		fmt.Printf("✗ %v\n", p)
	}
	if cfg.Schedule != "" {
		if err := schedule.Validate(cfg.Schedule); err != nil {
			bad++
			fmt.Printf("✗ schedule: %v\n", err)
		}
	}

	if bad > 0 {
		return fmt.Errorf("%w: %d problem(s)", errInvalidRules, bad)
	}
	printInfo("%d rule(s) OK", len(rules))
	return nil
}

func displayName(r rule.Rule) string {
	if r.Name == "" {
		return "-"
	}
	return r.Name
}

func retention(r rule.Rule) string {
	if !r.Prunes() {
		return "never"
	}
	return strconv.Itoa(*r.DeleteArchiveAfterDays) + "d"
}
