/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nodecore/provisioner/internal/node"
)

// migrateCmd runs every pending migration for the node store, all the way up.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run node store migrations all the way up",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cfg.Validate(); err != nil {
			exitOnError(err, "invalid configuration")
		}
		exitOnError(node.StartMigration(cfg.Database), "failed to run node store migrations")
	},
}

func init() {
	nodeRootCmd.AddCommand(migrateCmd)
}
