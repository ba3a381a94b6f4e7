// Package main provides the CLI entry point for the Halcyon task
// orchestration core.
//
// Halcyon turns natural-language requests into tool executions: it
// classifies intent, builds multi-step execution plans with rollback,
// and runs registered tools through a permission-checked, schema-
// validated pipeline.
//
// # Basic Usage
//
// Ask a one-shot question:
//
//	halcyon ask "check inventory for products WID-002"
//
// Start an interactive session:
//
//	halcyon chat
//
// Inspect what a request would plan without executing it:
//
//	halcyon plan "create product WID-009"
//
// # Environment Variables
//
//   - HALCYON_CONFIG: Path to configuration file (default: none, built-in defaults)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "halcyon",
		Short: "Halcyon - AI task orchestration core",
		Long: `Halcyon coordinates conversational requests across providers and tools.

Requests are classified by intent, decomposed into dependency-ordered
plans where needed, and executed against the registered tool catalog
with permission checks, schema validation, and compensating rollback.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildAskCmd(),
		buildChatCmd(),
		buildPlanCmd(),
		buildToolsCmd(),
	)

	return rootCmd
}

// resolveConfigPath falls back to HALCYON_CONFIG when no --config flag
// was given.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("HALCYON_CONFIG")
}
