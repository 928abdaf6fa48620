/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package node defines the interfaces through which the identity, checkin, binding,
// and power-reconciliation components reach the collaborators that are explicitly out
// of scope for this core: the tag/rule matcher, the policy catalogue, the management
// (IPMI) channel, and the background job queue.
package node

import (
	"context"

	"github.com/nodecore/provisioner/internal/node/models"
)

// Policy is the minimal shape of a provisioning policy the binder needs. The policy
// catalogue that produces these is out of scope; this is the contract the binder
// consumes.
type Policy struct {
	Name            string
	HostnamePattern string
	RootPassword    string
	NodeMetadata    map[string]any
}

// TagMatcher evaluates every configured tag expression against a node's facts and
// metadata and returns the set of tags that currently apply.
type TagMatcher interface {
	Match(ctx context.Context, node *models.Node) (map[string]struct{}, error)
}

// PolicyCatalogue chooses the first policy whose selector matches a node's tag set, or
// returns nil if none applies.
type PolicyCatalogue interface {
	Bind(ctx context.Context, node *models.Node) (*Policy, error)
}

// ManagementChannel is the remote management (IPMI) transport. The power reconciler
// wraps every error it returns as a typederrors.ManagementError, whether it came from
// the transport or from the device.
//
//go:generate mockgen -source=collaborators.go -destination=mocks/management_channel.go -package=mocks ManagementChannel
type ManagementChannel interface {
	On(ctx context.Context, node *models.Node) (bool, error)
	Power(ctx context.Context, node *models.Node, on bool) error
	Reset(ctx context.Context, node *models.Node) error
}

// Queue is the background job queue. Delivery is at-least-once and ordering across
// recipients is not guaranteed; the worker on the other end owns retry policy.
type Queue interface {
	Publish(ctx context.Context, recipient string, message any) error
}
