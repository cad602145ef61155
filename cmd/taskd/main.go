// Taskd turns a high-level request into a verified todo list: it
// decomposes the request into subtasks, routes each to capability
// providers, verifies outcomes, and repairs failures by replanning.
//
// Usage:
//
//	# Execute a request through the engine
//	taskd run "collect the release notes and publish them"
//
//	# Execute a pre-built task list
//	taskd run --tasks tasks.json
//
// Configuration is loaded from ~/.config/taskd/config.yaml and TASKD_*
// environment variables. See internal/config for details.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "taskd",
	Short: "Agent todo orchestration engine",
	Long: `taskd decomposes a request into subtasks, routes each to
capability providers, verifies outcomes, and replans failures.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/taskd/config.yaml)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("taskd by Fyrsmith Labs\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate))
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
