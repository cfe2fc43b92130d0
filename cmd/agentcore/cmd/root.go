// Package cmd implements the agentcore CLI, wiring the store, cache,
// router, planner, approval controller, hook dispatcher, resource
// guard, and scheduler together with the config/telemetry/metrics
// packages. The CLI is the operator-facing surface; a richer UI would
// sit on the same event channel.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flagDBPath     string
	flagConfigPath string
	flagTrustPath  string
	flagKeyDir     string
)

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "Autonomous task scheduling core: plan, approve, execute, and audit desktop-automation tasks",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "agentcore.db", "path to the sqlite persistence file")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to an agentcore.yaml config file (optional)")
	rootCmd.PersistentFlags().StringVar(&flagTrustPath, "trust-store", "trust.json", "path to the approval trust-store JSON file")
	rootCmd.PersistentFlags().StringVar(&flagKeyDir, "key-dir", ".", "directory holding (or to receive) the settings encryption key")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(hooksCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
