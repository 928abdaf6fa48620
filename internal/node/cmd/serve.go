/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nodecore/provisioner/internal/node"
)

// serveCmd starts the background subsystems: the postgres connection pool, the
// LISTEN/NOTIFY-driven outbox worker, and its catch-up poll.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the node core's background subsystems",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cfg.Validate(); err != nil {
			exitOnError(err, "invalid configuration")
		}
		exitOnError(node.Serve(&cfg, &logQueue{}), "node core exited with error")
	},
}

func init() {
	nodeRootCmd.AddCommand(serveCmd)
}

// logQueue is the minimal concrete node.Queue used when the process isn't wired to a
// real broker; the background job queue's transport is an external collaborator this
// core only reaches through the node.Queue interface.
type logQueue struct{}

func (q *logQueue) Publish(ctx context.Context, recipient string, message any) error {
	slog.Info("publishing signal", "recipient", recipient, "message", message)
	return nil
}
