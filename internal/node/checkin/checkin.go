/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package checkin implements the checkin processor (C4): reconciling an in-band agent
// fact report against a node already resolved by the identity resolver.
package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/nodecore/provisioner/internal/config"
	"github.com/nodecore/provisioner/internal/dbutils"
	"github.com/nodecore/provisioner/internal/logging"
	"github.com/nodecore/provisioner/internal/node/binder"
	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/node/hwinfo"
	"github.com/nodecore/provisioner/internal/node/models"
	typederrors "github.com/nodecore/provisioner/internal/typed-errors"
)

// Action is the outbound result of a checkin: whether the agent should reboot.
type Action string

const (
	ActionNone   Action = "none"
	ActionReboot Action = "reboot"
)

// Processor implements Process, the C4 procedure.
type Processor struct {
	Repo   *repo.Repository
	Binder *binder.Binder
	Config *config.Config
}

// Process reconciles facts against n, which must already be locked by the caller
// (identity resolution and checkin both mutate a node and so share its row lock).
func (p *Processor) Process(ctx context.Context, db dbutils.Queryer, n *models.Node, facts map[string]any) (Action, error) {
	ctx = logging.AppendCtx(ctx, slog.String("node_id", n.ID.String()))
	if n.Facts == nil {
		n.Facts = map[string]any{}
	}

	filtered := filterBlacklist(facts, p.Config.FactsBlacklist)
	if !factsEqual(filtered, n.Facts) {
		n.Facts = filtered
	}

	recomputed := recomputeFactHwInfo(n.HwInfo, filtered, p.Config.MatchNodesOnFacts)
	if !hwInfoEqual(recomputed, n.HwInfo) {
		n.HwInfo = recomputed
	}

	now := time.Now().UTC()
	n.LastCheckin = &now

	if n.PolicyName == nil {
		if _, err := p.Binder.MatchAndBind(ctx, n); err != nil {
			return ActionNone, p.logAndSave(ctx, db, n, err)
		}
	}

	action := ActionNone
	if n.PolicyName != nil {
		policyName := *n.PolicyName
		if _, err := p.Repo.AppendLogEntry(ctx, db, n.ID, map[string]any{
			"severity": string(models.SeverityInfo),
			"action":   "reboot",
			"policy":   policyName,
		}, time.Time{}); err != nil {
			return ActionNone, fmt.Errorf("failed to append reboot log entry: %w", err)
		}
		action = ActionReboot
	}

	if _, err := p.Repo.Save(ctx, db, n); err != nil {
		return ActionNone, fmt.Errorf("failed to persist checkin: %w", err)
	}
	return action, nil
}

// logAndSave records a RuleEvaluationError against the node and persists it, then
// returns that RuleEvaluationError so the caller re-raises it unchanged. If persisting
// the node itself fails, that failure is returned instead, since it is the more urgent
// problem.
func (p *Processor) logAndSave(ctx context.Context, db dbutils.Queryer, n *models.Node, cause error) error {
	wrapped := typederrors.NewRuleEvaluationError(cause, "tag evaluation failed for node %s", n.Name)
	if _, err := p.Repo.AppendLogEntry(ctx, db, n.ID, map[string]any{
		"severity": string(models.SeverityError),
		"error":    wrapped.Error(),
	}, time.Time{}); err != nil {
		slog.ErrorContext(ctx, "failed to append rule-evaluation log entry", "error", err)
	}
	if _, err := p.Repo.Save(ctx, db, n); err != nil {
		return fmt.Errorf("failed to persist node after rule-evaluation failure: %w", err)
	}
	return wrapped
}

// filterBlacklist drops every fact whose name matches one of the configured
// blacklist patterns, interpreted as regexes, falling back to a literal match when a
// pattern fails to compile as a regex.
func filterBlacklist(facts map[string]any, patterns []string) map[string]any {
	out := map[string]any{}
	for k, v := range facts {
		if !blacklisted(k, patterns) {
			out[k] = v
		}
	}
	return out
}

func blacklisted(name string, patterns []string) bool {
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			if re.MatchString(name) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}

// recomputeFactHwInfo drops every existing fact_* entry from hwInfo and re-derives it
// from facts matching matchNodesOnFacts, re-canonicalizing the result.
func recomputeFactHwInfo(hwInfo []string, facts map[string]any, matchNodesOnFacts []string) []string {
	descriptor := hwinfo.Parse(hwInfo)
	delete(descriptor, "facts")

	matched := map[string]any{}
	for _, p := range matchNodesOnFacts {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		for k, v := range facts {
			if re.MatchString(k) {
				matched[k] = v
			}
		}
	}
	if len(matched) > 0 {
		descriptor["facts"] = matched
	}
	return hwinfo.Canonicalize(descriptor)
}

func factsEqual(a, b map[string]any) bool {
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

func hwInfoEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, e := range a {
		seen[e]++
	}
	for _, e := range b {
		seen[e]--
	}
	for _, count := range seen {
		if count != 0 {
			return false
		}
	}
	return true
}
