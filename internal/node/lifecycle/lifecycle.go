/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package lifecycle implements the operator-facing operations that round out a node's
// lifecycle beyond checkin and power reconciliation: stage completion, metadata
// modification, and search.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/nodecore/provisioner/internal/dbutils"
	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/node/models"
)

// StageFinished is the stage name, reported back by the microkernel via stage_done,
// that marks the end of the installer's boot/install sequence.
const StageFinished = "finished"

// Manager implements StageDone, ModifyMetadata, and Search.
type Manager struct {
	Repo *repo.Repository
}

// StageDone records that node nodeID reached stage. When stage is "finished" and the
// node carries a policy, boot_count is incremented first and only then is the node
// sealed installed under that policy, before the row is saved; this order is
// deliberate.
func (m *Manager) StageDone(ctx context.Context, db dbutils.Queryer, n *models.Node, stage string) error {
	if _, err := m.Repo.AppendLogEntry(ctx, db, n.ID, map[string]any{
		"severity": string(models.SeverityInfo),
		"action":   "stage",
		"stage":    stage,
	}, time.Time{}); err != nil {
		return fmt.Errorf("failed to append stage log entry: %w", err)
	}

	if stage == StageFinished && n.PolicyName != nil {
		n.BootCount++
		policyName := *n.PolicyName
		now := time.Now().UTC()
		n.Installed = &policyName
		n.InstalledAt = &now
	}

	if _, err := m.Repo.Save(ctx, db, n); err != nil {
		return fmt.Errorf("failed to persist stage_done for node %s: %w", n.Name, err)
	}
	return nil
}

// ModifyMetadataInput is the operator-facing request to modify_metadata. Clear takes
// precedence over Update when both are set.
type ModifyMetadataInput struct {
	Update    map[string]any
	NoReplace bool
	Clear     bool
}

// ModifyMetadata applies input to n's metadata, persists it, and emits an eval_tags
// signal if metadata actually changed (checkin never calls this path, since it already
// evaluates tags synchronously).
func (m *Manager) ModifyMetadata(ctx context.Context, db dbutils.Queryer, n *models.Node, input ModifyMetadataInput) error {
	before := cloneMetadata(n.Metadata)

	switch {
	case input.Clear:
		n.Metadata = map[string]any{}
	case input.Update != nil:
		if n.Metadata == nil {
			n.Metadata = map[string]any{}
		}
		if input.NoReplace {
			// A key already present, regardless of its value, is preserved rather than
			// overwritten.
			for k, v := range input.Update {
				if _, exists := n.Metadata[k]; !exists {
					n.Metadata[k] = v
				}
			}
		} else {
			for k, v := range input.Update {
				n.Metadata[k] = v
			}
		}
	}

	if !metadataEqual(before, n.Metadata) {
		if err := m.Repo.EmitSignal(ctx, db, n.ID, models.SignalEvalTags, nil); err != nil {
			return fmt.Errorf("failed to enqueue eval_tags signal for node %s: %w", n.Name, err)
		}
	}

	if _, err := m.Repo.Save(ctx, db, n); err != nil {
		return fmt.Errorf("failed to persist metadata for node %s: %w", n.Name, err)
	}
	return nil
}

// Search resolves hostname against a case-insensitive regex; if it fails to compile,
// search silently falls back to a literal substring match, a downgrade surfaced here
// via a trace log so operators can tell why a pattern behaved unexpectedly.
// hwInfoFilters are ANDed "key=value" hw_info entries.
func (m *Manager) Search(ctx context.Context, db dbutils.Queryer, hostname string, hwInfoFilters []string) ([]models.Node, error) {
	pattern := hostname
	if _, err := regexp.Compile(hostname); err != nil {
		slog.Debug("search hostname is not a valid regex, downgrading to literal substring match",
			"hostname", hostname, "error", err)
		pattern = regexp.QuoteMeta(hostname)
	}

	nodes, err := m.Repo.Search(ctx, db, pattern, hwInfoFilters)
	if err != nil {
		return nil, fmt.Errorf("failed to search nodes: %w", err)
	}
	return nodes, nil
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func metadataEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}
