// Package cli implements the QuizHub command-line interface using Cobra.
// Each subcommand maps to a progression operation (streak, title, xp) or
// to running the API server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quizhub/quizhub/internal/daemon"
)

var (
	verbose bool
	output  string

	// Set by PersistentPreRunE for every subcommand.
	cfg    daemon.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "quizhub",
	Short: "QuizHub: XP titles and daily quiz streaks",
	Long: `QuizHub tracks learner progression: XP titles on a fixed ladder and
daily quiz streaks with monthly freeze tokens.

Run 'quizhub serve' for the HTTP API, or use the subcommands directly
against the local database.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
}

// setup loads config and builds the logger before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = daemon.LoadConfig()
	if err != nil {
		return err
	}
	logger, err = cfg.NewLogger(verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	switch output {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", output)
	}
	return nil
}

// openDaemon wires the services against the local database.
func openDaemon() (*daemon.Daemon, error) {
	return daemon.NewWithConfig(cfg, logger)
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}
