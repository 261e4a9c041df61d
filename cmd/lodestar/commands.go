// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/lodestar-ai/lodestar/pkg/logging"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	topK      int
	modelID   string
	sessionID string
	rawJSON   bool
	verbose   bool

	// cliLogger is replaced by the configured logger before any
	// subcommand runs; the default covers flag-parsing failures.
	cliLogger = logging.Default()

	rootCmd = &cobra.Command{
		Use:   "lodestar",
		Short: "A cli for the Lodestar grounded chat service",
		Long: `Lodestar talks to the chatcore service: ask questions against
the indexed document corpus, compare answers across models, and check
service health.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelInfo
			if verbose {
				level = logging.LevelDebug
			}
			cliLogger = logging.New(logging.Config{
				Level:   level,
				LogDir:  os.Getenv("LODESTAR_LOG_DIR"),
				Service: "cli",
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			cliLogger.Close()
		},
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a question and prints the cited answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	compareCmd = &cobra.Command{
		Use:   "compare [question]",
		Short: "Asks every configured model in parallel and prints all answers",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCompareCommand, // Defined in cmd_chat.go
	}

	selectCmd = &cobra.Command{
		Use:   "select [model-id]",
		Short: "Records which comparison answer you kept",
		Args:  cobra.ExactArgs(1),
		Run:   runSelectCommand, // Defined in cmd_chat.go
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Checks the chatcore service health endpoint",
		Run:   runHealthCommand, // Defined in cmd_health.go
	}
)

func init() {
	askCmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (0 uses the server default)")
	askCmd.Flags().StringVar(&modelID, "model", "", "Model ID override for generation")
	compareCmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (0 uses the server default)")

	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session ID to attribute events to")
	rootCmd.PersistentFlags().BoolVar(&rawJSON, "json", false, "Print raw JSON responses")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging on stderr")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(healthCmd)
}
