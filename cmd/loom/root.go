package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Workflow graph engine for multi-agent runs",
	Long: `Loom manages a hierarchical workflow graph: a run starts from a goal,
grows tickets, reviews, and merges underneath it, and every mutation is
recorded as an ordered event stream you can watch live or replay.

Start a run with 'loom run "your goal"', inspect the graph with
'loom status', and replay the full history with 'loom events'.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}
