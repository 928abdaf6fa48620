/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package node

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/nodecore/provisioner/internal/config"
	"github.com/nodecore/provisioner/internal/db"
)

//go:embed db/migrations/*.sql
var migrations embed.FS

// StartMigration runs every pending migration for the node store against cfg's
// database.
func StartMigration(cfg config.DatabaseConfig) error {
	source, err := iofs.New(migrations, "db/migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded node migrations: %w", err)
	}

	if err := db.StartMigration(cfg, source); err != nil {
		return fmt.Errorf("failed to run node migrations: %w", err)
	}
	return nil
}
