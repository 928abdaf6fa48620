/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package power implements the power reconciler (C6): querying and toggling a node's
// management-channel power state.
package power

import (
	"context"
	"fmt"

	"github.com/nodecore/provisioner/internal/dbutils"
	"github.com/nodecore/provisioner/internal/node"
	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/node/models"
	typederrors "github.com/nodecore/provisioner/internal/typed-errors"
)

// Reconciler implements UpdatePowerState and the thin Reboot/On/Off wrappers over the
// management channel.
type Reconciler struct {
	Repo    *repo.Repository
	Channel node.ManagementChannel
}

// UpdatePowerState queries the management channel for the node's current power state,
// enqueues an asynchronous toggle request if the observed state disagrees with the
// desired one, and persists the observed state regardless of outcome.
func (r *Reconciler) UpdatePowerState(ctx context.Context, db dbutils.Queryer, n *models.Node) error {
	on, chanErr := r.Channel.On(ctx, n)

	if chanErr != nil {
		n.LastKnownPowerState = models.PowerStateUnknown
	} else if on {
		n.LastKnownPowerState = models.PowerStateOn
	} else {
		n.LastKnownPowerState = models.PowerStateOff
	}

	if chanErr == nil && n.LastKnownPowerState != models.PowerStateUnknown && n.DesiredPowerState != models.PowerStateUnknown &&
		n.LastKnownPowerState != n.DesiredPowerState {
		if err := r.Repo.EmitSignal(ctx, db, n.ID, models.SignalPowerToggle, map[string]any{
			"desired": string(n.DesiredPowerState),
		}); err != nil {
			return fmt.Errorf("failed to enqueue power-toggle signal for node %s: %w", n.Name, err)
		}
	}

	if _, err := r.Repo.Save(ctx, db, n); err != nil {
		return fmt.Errorf("failed to persist power state for node %s: %w", n.Name, err)
	}

	if chanErr != nil {
		return typederrors.NewManagementError(chanErr, "failed to query power state for node %s", n.Name)
	}
	return nil
}

// Reboot asks the management channel to reset the node.
func (r *Reconciler) Reboot(ctx context.Context, n *models.Node) error {
	if err := r.Channel.Reset(ctx, n); err != nil {
		return typederrors.NewManagementError(err, "failed to reboot node %s", n.Name)
	}
	return nil
}

// On powers the node on via the management channel.
func (r *Reconciler) On(ctx context.Context, n *models.Node) error {
	if err := r.Channel.Power(ctx, n, true); err != nil {
		return typederrors.NewManagementError(err, "failed to power on node %s", n.Name)
	}
	return nil
}

// Off powers the node off via the management channel.
func (r *Reconciler) Off(ctx context.Context, n *models.Node) error {
	if err := r.Channel.Power(ctx, n, false); err != nil {
		return typederrors.NewManagementError(err, "failed to power off node %s", n.Name)
	}
	return nil
}
