/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package identity implements the identity resolver (C3): mapping an incoming
// hardware/fact descriptor to exactly one node, creating, updating, merging, or
// rejecting it as ambiguous.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nodecore/provisioner/internal/config"
	"github.com/nodecore/provisioner/internal/dbutils"
	"github.com/nodecore/provisioner/internal/logging"
	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/node/hwinfo"
	"github.com/nodecore/provisioner/internal/node/models"
	typederrors "github.com/nodecore/provisioner/internal/typed-errors"
)

// ProtectedInstallMarker is used as the Installed value for a freshly created node
// when protect_new_nodes is enabled. It has no corresponding policy; it exists purely
// to satisfy the "installed, therefore not eligible for automatic reprovisioning"
// check until an operator explicitly binds a policy.
const ProtectedInstallMarker = "<protected:new-node>"

// Resolver implements Lookup, the identity resolution procedure described in the
// specification's component C3.
type Resolver struct {
	Pool   *pgxpool.Pool
	Repo   *repo.Repository
	Config *config.Config
}

// Input carries exactly one of Facts (an in-band checkin fact report) or HwInfo (a raw
// firmware descriptor reported at network boot, which may carry a dhcp_mac entry).
type Input struct {
	Facts  map[string]any
	HwInfo map[string]any
}

// Lookup resolves input to exactly one node. The boolean result reports whether a new
// node was created, replacing the source's transient is_new flag on the node itself.
func (res *Resolver) Lookup(ctx context.Context, input Input) (node *models.Node, created bool, err error) {
	canonical, dhcpMac, err := res.canonicalize(input)
	if err != nil {
		return nil, false, err
	}

	hwMatch := matchEligible(canonical, res.Config.MatchNodesOn)
	if len(hwMatch) == 0 {
		return nil, false, typederrors.NewInvalidArgumentError(nil,
			"descriptor offers no keys eligible for match_nodes_on %v or fact_* entries: %v",
			res.Config.MatchNodesOn, canonical)
	}
	ctx = logging.AppendCtx(ctx, slog.Any("hw_match", hwMatch))

	node, created, err = res.resolveOnce(ctx, canonical, hwMatch, dhcpMac)
	if err == nil {
		return node, created, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		slog.WarnContext(ctx, "lookup hit a unique-constraint race, retrying once")
		return res.resolveOnce(ctx, canonical, hwMatch, dhcpMac)
	}
	return nil, false, err
}

// resolveOnce runs the overlap query and dispatch exactly once, inside a single
// transaction so the outcome (create/update/merge/reject) is atomic with the overlap
// read that produced it. The transaction is opened here and handed down to the
// dispatch methods as a dbutils.Queryer, so those methods can be driven directly with
// pgxmock in tests without ever needing a real *pgxpool.Pool.
func (res *Resolver) resolveOnce(ctx context.Context, canonical, hwMatch []string, dhcpMac *string) (node *models.Node, created bool, err error) {
	txErr := pgx.BeginFunc(ctx, res.Pool, func(tx pgx.Tx) error {
		node, created, err = res.dispatch(ctx, tx, canonical, hwMatch, dhcpMac)
		return err
	})
	if txErr != nil {
		return nil, false, txErr
	}
	return node, created, nil
}

// dispatch runs the overlap query and create/update/merge/reject decision against any
// dbutils.Queryer, so it can be exercised with pgxmock as well as with a real
// transaction.
func (res *Resolver) dispatch(ctx context.Context, db dbutils.Queryer, canonical, hwMatch []string, dhcpMac *string) (*models.Node, bool, error) {
	candidates, err := res.Repo.Overlap(ctx, db, hwMatch)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query overlap: %w", err)
	}

	switch len(candidates) {
	case 0:
		n, err := res.create(ctx, db, canonical, dhcpMac)
		if err != nil {
			return nil, false, err
		}
		return n, true, nil

	case 1:
		n, err := res.updateInPlace(ctx, db, &candidates[0], canonical, dhcpMac)
		if err != nil {
			return nil, false, err
		}
		return n, false, nil

	case 2:
		n, err := res.merge(ctx, db, candidates, canonical)
		if err != nil {
			return nil, false, err
		}
		return n, false, nil

	default:
		return nil, false, res.reject(ctx, db, canonical, candidates)
	}
}

func (res *Resolver) create(ctx context.Context, db dbutils.Queryer, canonical []string, dhcpMac *string) (*models.Node, error) {
	n, err := res.Repo.Create(ctx, db, canonical, dhcpMac)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if res.Config.ProtectNewNodes {
		marker := ProtectedInstallMarker
		now := time.Now().UTC()
		n.Installed = &marker
		n.InstalledAt = &now
		n, err = res.Repo.Save(ctx, db, n)
		if err != nil {
			return nil, fmt.Errorf("failed to protect new node: %w", err)
		}
	}
	return n, nil
}

// updateInPlace handles the size==1 case: the id is preserved; dhcp_mac is overwritten
// when supplied and different; non-fact hw_info entries are overwritten when they
// differ, but fact entries are preserved by concatenation when the incoming descriptor
// carries none.
func (res *Resolver) updateInPlace(ctx context.Context, db dbutils.Queryer, n *models.Node, canonical []string, dhcpMac *string) (*models.Node, error) {
	dirty := false

	if dhcpMac != nil && (n.DHCPMac == nil || *n.DHCPMac != *dhcpMac) {
		n.DHCPMac = dhcpMac
		dirty = true
	}

	incomingNonFact := nonFactEntries(canonical)
	storedNonFact := nonFactEntries(n.HwInfo)
	if !equalEntries(incomingNonFact, storedNonFact) {
		merged := incomingNonFact
		if !hasFactEntries(canonical) {
			merged = append(merged, factEntries(n.HwInfo)...)
		} else {
			merged = append(merged, factEntries(canonical)...)
		}
		merged = sortedUnique(merged)
		n.HwInfo = merged
		dirty = true
	}

	if !dirty {
		return n, nil
	}
	saved, err := res.Repo.Save(ctx, db, n)
	if err != nil {
		return nil, fmt.Errorf("failed to update node in place: %w", err)
	}
	return saved, nil
}

// merge implements the fact/firmware reconciliation: exactly one of the two
// candidates must carry fact_* entries (the "real" node); the other (the "fake",
// firmware-only node) is destroyed after its log history is moved to the real node. Any
// other split (both real, both fake) is ambiguous and rejected; with exactly two
// candidates partitioned by a binary predicate, that is the only way the loop can end
// without having assigned both real and fake.
func (res *Resolver) merge(ctx context.Context, db dbutils.Queryer, candidates []models.Node, canonical []string) (*models.Node, error) {
	var real, fake *models.Node
	for i := range candidates {
		if candidates[i].HasFactEntries() {
			if real != nil {
				return nil, res.reject(ctx, db, canonical, candidates)
			}
			real = &candidates[i]
		} else {
			if fake != nil {
				return nil, res.reject(ctx, db, canonical, candidates)
			}
			fake = &candidates[i]
		}
	}

	if err := res.Repo.ReassignLogEntries(ctx, db, fake.ID, real.ID); err != nil {
		return nil, fmt.Errorf("failed to reassign log entries during merge: %w", err)
	}
	if err := res.Repo.Destroy(ctx, db, fake.ID); err != nil {
		return nil, fmt.Errorf("failed to destroy firmware-only node during merge: %w", err)
	}

	real.HwInfo = canonical
	saved, err := res.Repo.Save(ctx, db, real)
	if err != nil {
		return nil, fmt.Errorf("failed to save merged node: %w", err)
	}
	return saved, nil
}

// reject raises DuplicateNodeError and, per the error handling design, annotates every
// candidate node with a duplicate_node log entry.
func (res *Resolver) reject(ctx context.Context, db dbutils.Queryer, canonical []string, candidates []models.Node) error {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID.String())
		_, logErr := res.Repo.AppendLogEntry(ctx, db, c.ID, map[string]any{
			"severity": string(models.SeverityError),
			"event":    "boot",
			"error":    "duplicate_node",
		}, time.Time{})
		if logErr != nil {
			slog.ErrorContext(ctx, "failed to append duplicate_node log entry", "node_id", c.ID, "error", logErr)
		}
	}
	return typederrors.NewDuplicateNodeError(canonical, ids)
}

// canonicalize builds the canonical hw_info sequence and dhcp_mac for either input
// variant, per §4.3 step 1.
func (res *Resolver) canonicalize(input Input) (canonical []string, dhcpMac *string, err error) {
	haveFacts := len(input.Facts) > 0
	haveHwInfo := len(input.HwInfo) > 0

	switch {
	case haveFacts && !haveHwInfo:
		matched := filterFacts(input.Facts, res.Config.MatchNodesOnFacts)
		canonical = hwinfo.Canonicalize(map[string]any{"facts": matched})
		if raw, ok := input.Facts["macaddress"]; ok {
			mac := normalizeMac(fmt.Sprintf("%v", raw))
			dhcpMac = &mac
		}
		return canonical, dhcpMac, nil

	case haveHwInfo && !haveFacts:
		descriptor := map[string]any{}
		for k, v := range input.HwInfo {
			if k == "dhcp_mac" {
				continue
			}
			descriptor[k] = v
		}
		canonical = hwinfo.Canonicalize(descriptor)
		if raw, ok := input.HwInfo["dhcp_mac"]; ok {
			mac := normalizeMac(fmt.Sprintf("%v", raw))
			dhcpMac = &mac
		}
		return canonical, dhcpMac, nil

	default:
		return nil, nil, typederrors.NewInvalidArgumentError(nil, "exactly one of facts or hw_info is required")
	}
}

func normalizeMac(mac string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), ":", "-"))
}

// filterFacts returns the subset of facts whose name matches one of the configured
// match_nodes_on_facts regex patterns.
func filterFacts(facts map[string]any, patterns []string) map[string]any {
	out := map[string]any{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		for k, v := range facts {
			if re.MatchString(k) {
				out[k] = v
			}
		}
	}
	return out
}

// matchEligible returns the entries of hw_info whose bare key is either in
// matchNodesOn or carries the fact_ prefix.
func matchEligible(hwInfo []string, matchNodesOn []string) []string {
	allowed := make(map[string]bool, len(matchNodesOn))
	for _, k := range matchNodesOn {
		allowed[k] = true
	}
	var out []string
	for _, entry := range hwInfo {
		key := entry[:strings.Index(entry, "=")]
		if allowed[key] || strings.HasPrefix(key, hwinfo.FactPrefix) {
			out = append(out, entry)
		}
	}
	return out
}

func nonFactEntries(entries []string) []string {
	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e, hwinfo.FactPrefix) {
			out = append(out, e)
		}
	}
	return out
}

func factEntries(entries []string) []string {
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e, hwinfo.FactPrefix) {
			out = append(out, e)
		}
	}
	return out
}

func hasFactEntries(entries []string) bool {
	return len(factEntries(entries)) > 0
}

func equalEntries(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	am := map[string]bool{}
	for _, e := range a {
		am[e] = true
	}
	for _, e := range b {
		if !am[e] {
			return false
		}
	}
	return true
}

func sortedUnique(entries []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}
