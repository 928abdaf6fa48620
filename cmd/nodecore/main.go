/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"log/slog"
	"os"

	"github.com/nodecore/provisioner/internal/node/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		slog.Error("nodecore exited with error", "error", err)
		os.Exit(1)
	}
}
