// Package main implements the redqueen CLI - adversarial code hardening
// driven by Digital Red Queen dynamics.
//
// Command index:
//   - main.go        - entry point, rootCmd, global flags, logger setup
//   - cmd_harden.go  - harden command: the DRQ loop against one target
//   - cmd_presets.go - presets command: built-in run profiles
//   - cmd_archive.go - archive command: inspect a saved attack archive
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"redqueen/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "redqueen",
	Short: "redqueen - adversarial code hardening",
	Long: `redqueen hardens a target source file by co-evolving attacks and
patches: an LLM attacker hunts for crashing inputs, an LLM defender
patches against everything the MAP-Elites archive has preserved, and the
target is promoted only when a patch strictly improves robustness.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		settings := logging.Settings{DebugMode: verbose, Level: "debug"}
		if err := logging.Initialize(ws, settings); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(hardenCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(archiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
