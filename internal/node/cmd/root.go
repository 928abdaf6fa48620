/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package cmd assembles the nodecore command tree: serve and migrate.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nodecore/provisioner/internal/config"
	"github.com/nodecore/provisioner/internal/logging"
)

var cfg config.Config

// nodeRootCmd is the root command for the node identity, matching, and lifecycle core.
var nodeRootCmd = &cobra.Command{
	Use:   "nodecore",
	Short: "Node identity, matching, and lifecycle core",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.NewLogger().SetFlags(cmd.Flags()).Build()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		slog.SetDefault(logger)

		if err := cfg.LoadFromEnv(); err != nil {
			return fmt.Errorf("failed to load environment variables: %w", err)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Nothing to do. Use a sub-command instead.")
	},
}

// RootCmd returns the assembled command tree.
func RootCmd() *cobra.Command {
	return nodeRootCmd
}

func init() {
	logging.AddFlags(nodeRootCmd.PersistentFlags())
	config.SetFlags(nodeRootCmd.PersistentFlags(), &cfg)
}

func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		os.Exit(1)
	}
}
