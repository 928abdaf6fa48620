/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package binder implements the policy binder (C5): tag evaluation and the
// match-and-bind procedure that attaches a provisioning policy to a node.
package binder

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nodecore/provisioner/internal/node"
	"github.com/nodecore/provisioner/internal/node/models"
)

// idPattern matches "${id}" with optional surrounding whitespace inside a hostname
// pattern.
var idPattern = regexp.MustCompile(`\$\{\s*id\s*\}`)

// Binder evaluates tags and binds policies against the external TagMatcher and
// PolicyCatalogue collaborators.
type Binder struct {
	Matcher   node.TagMatcher
	Catalogue node.PolicyCatalogue
}

// MatchAndBind evaluates every tag expression against n, sets n's tag set to the
// symmetric difference of its current tags and the freshly matched ones, then asks the
// policy catalogue for the first applicable policy. If one is chosen, bind is applied
// and the returned bool is true.
func (b *Binder) MatchAndBind(ctx context.Context, n *models.Node) (bool, error) {
	matched, err := b.Matcher.Match(ctx, n)
	if err != nil {
		return false, fmt.Errorf("tag evaluation failed for node %s: %w", n.Name, err)
	}
	n.Tags = symmetricDifference(n.Tags, matched)

	policy, err := b.Catalogue.Bind(ctx, n)
	if err != nil {
		return false, fmt.Errorf("policy catalogue failed for node %s: %w", n.Name, err)
	}
	if policy == nil {
		return false, nil
	}

	if err := bind(n, policy); err != nil {
		return false, err
	}
	return true, nil
}

// bind attaches policy to n: policy reference, boot_count reset, installed cleared,
// root password and hostname from the policy, and a no-replace merge of the policy's
// node_metadata into the node's existing metadata.
func bind(n *models.Node, policy *node.Policy) error {
	name := policy.Name
	n.PolicyName = &name
	n.BootCount = 1
	n.Installed = nil
	n.InstalledAt = nil
	n.RootPassword = policy.RootPassword
	n.Hostname = idPattern.ReplaceAllString(policy.HostnamePattern, n.ID.String())

	if len(policy.NodeMetadata) == 0 {
		return nil
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	// Existing keys are preserved regardless of their value, matching the
	// {no_replace: true} merge semantics.
	for k, v := range policy.NodeMetadata {
		if _, exists := n.Metadata[k]; !exists {
			n.Metadata[k] = v
		}
	}
	return nil
}

// symmetricDifference returns the tags present in exactly one of current and matched.
func symmetricDifference(current []string, matched map[string]struct{}) []string {
	currentSet := make(map[string]struct{}, len(current))
	for _, t := range current {
		currentSet[t] = struct{}{}
	}

	var out []string
	for t := range matched {
		if _, ok := currentSet[t]; !ok {
			out = append(out, t)
		}
	}
	for t := range currentSet {
		if _, ok := matched[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
