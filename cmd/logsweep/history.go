package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/logsweep/pkg/logsweep/config"
	"github.com/jamesainslie/logsweep/pkg/logsweep/manifest"
	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View what past runs changed",
	Long: `View the history of archive and prune operations.

Every rule run that archived or deleted something is recorded in the
manifest, including which files went into which container.`,
	RunE: runHistory,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific run",
	Long:  `Display a recorded run by its ID or an unambiguous ID prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getManifest returns the manifest, falling back to the default
// directory when the configuration does not load.
func getManifest() (*manifest.Manifest, *config.Config) {
	cfg, err := loadConfig()
	if err != nil {
		printVerbose("using default manifest directory: %v", err)
		m, _ := manifest.New(config.ManifestDir())
		return m, nil
	}
	m, err := manifest.New(cfg.Manifest.Path)
	if err != nil {
		m, _ = manifest.New(config.ManifestDir())
	}
	return m, cfg
}

func runHistory(_ *cobra.Command, _ []string) error {
	m, _ := getManifest()

	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Runs with dry_run: false are recorded here.")
		return nil
	}

	fmt.Printf("\n%-10s  %-16s  %-20s  %-8s  %-10s  %s\n", "ID", "WHEN", "RULE", "FILES", "SIZE", "PRUNED")
	fmt.Println(strings.Repeat("-", 80))

	for _, entry := range entries {
		fmt.Printf("%-10s  %-16s  %-20s  %-8d  %-10s  %d\n",
			shortID(entry.ID),
			humanize.Time(entry.Timestamp),
			truncateString(entry.Rule, 20),
			entry.Summary.TotalFiles,
			types.FormatSize(entry.Summary.TotalBytes),
			entry.Summary.ArchivesDeleted,
		)
	}

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'logsweep history show <id>' for details on a specific entry.")

	return nil
}

func runHistoryShow(_ *cobra.Command, args []string) error {
	m, _ := getManifest()

	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	ops := make([]string, len(entry.Operations))
	for i, op := range entry.Operations {
		ops[i] = string(op)
	}

	fmt.Println("\nRun Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s (%s)\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"), humanize.Time(entry.Timestamp))
	fmt.Printf("Rule:       %s\n", entry.Rule)
	fmt.Printf("Location:   %s\n", entry.Location)
	fmt.Printf("Operations: %s\n", strings.Join(ops, ", "))
	fmt.Printf("Files:      %d\n", entry.Summary.TotalFiles)
	fmt.Printf("Total Size: %s\n", types.FormatSize(entry.Summary.TotalBytes))

	if len(entry.Files) > 0 {
		fmt.Println("\nArchived:")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-12s  %s\n", "SIZE", "PATH")
		fmt.Println(strings.Repeat("-", 60))

		limit := min(len(entry.Files), 50)
		for _, file := range entry.Files[:limit] {
			fmt.Printf("%-12s  %s -> %s\n", types.FormatSize(file.Size), file.Path, file.Container)
		}
		if len(entry.Files) > limit {
			fmt.Printf("\n... and %d more files\n", len(entry.Files)-limit)
		}
	}

	if len(entry.Deleted) > 0 {
		fmt.Println("\nDeleted archives:")
		fmt.Println(strings.Repeat("-", 60))
		for _, path := range entry.Deleted {
			fmt.Println(path)
		}
	}

	return nil
}

func runHistoryClean(_ *cobra.Command, _ []string) error {
	m, cfg := getManifest()

	retentionDays := config.DefaultRetentionDays
	if cfg != nil && cfg.Manifest.RetentionDays > 0 {
		retentionDays = cfg.Manifest.RetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	removed, err := m.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("History cleanup complete, %d entr%s removed.", removed, plural(removed, "y", "ies"))
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// shortID is the ID prefix accepted by "history show".
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
