/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package models defines the persisted entities of the node identity, matching, and
// lifecycle core: Node, NodeLogEntry, and the transactional outbox Signal.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nodecore/provisioner/internal/dbutils"
)

// PowerState is the tri-state power value used for both desired and last-known power.
type PowerState string

const (
	PowerStateUnknown PowerState = ""
	PowerStateOn      PowerState = "on"
	PowerStateOff     PowerState = "off"
)

// Node is the central entity of the core: a physical machine identified by a canonical
// hardware fingerprint, tracked through discovery, checkin, policy binding, and power
// reconciliation.
type Node struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`

	// HwInfo is the canonical fingerprint: an ordered sequence of "key=value" strings
	// produced by the hwinfo package. Stored as a postgres text[] column.
	HwInfo []string `db:"hw_info"`

	// DHCPMac is the lowercase hyphen-form MAC observed at DHCP time, if any.
	DHCPMac *string `db:"dhcp_mac"`

	Facts    map[string]any `db:"facts"`
	Metadata map[string]any `db:"metadata"`

	PolicyID   *uuid.UUID `db:"policy_id"`
	PolicyName *string    `db:"policy_name"`

	// Installed is nil when the node has never finished installation; otherwise it
	// holds the name of the policy under which installation finished.
	Installed *string `db:"installed"`
	// InstalledAt is non-nil iff Installed is non-nil.
	InstalledAt *time.Time `db:"installed_at"`

	Hostname     string `db:"hostname"`
	RootPassword string `db:"root_password"`

	BootCount int `db:"boot_count"`

	LastCheckin            *time.Time `db:"last_checkin"`
	LastPowerStateUpdateAt *time.Time `db:"last_power_state_update_at"`

	DesiredPowerState   PowerState `db:"desired_power_state"`
	LastKnownPowerState PowerState `db:"last_known_power_state"`

	IPMIHostname *string `db:"ipmi_hostname"`
	IPMIUsername *string `db:"ipmi_username"`
	IPMIPassword *string `db:"ipmi_password"`

	Tags []string `db:"tags"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

var _ dbutils.Model = (*Node)(nil)

func (n Node) TableName() string  { return "nodes" }
func (n Node) PrimaryKey() string { return "id" }

// HasFactEntries reports whether hw_info carries at least one fact_* entry. Used by the
// fact/firmware merge to tell the "real" node from the "fake" one.
func (n Node) HasFactEntries() bool {
	for _, entry := range n.HwInfo {
		if len(entry) >= 5 && entry[:5] == "fact_" {
			return true
		}
	}
	return false
}

// Validate checks the cross-entity invariants from the data model section: installed
// XOR installed_at, IPMI credentials implying an IPMI hostname, and no duplicate
// hw_info entries. Validation is pure: it never mutates the node.
func (n Node) Validate() error {
	if (n.Installed == nil) != (n.InstalledAt == nil) {
		return errInstalledInvariant
	}
	if (n.IPMIUsername != nil || n.IPMIPassword != nil) && n.IPMIHostname == nil {
		return errIPMIInvariant
	}
	seen := make(map[string]struct{}, len(n.HwInfo))
	for _, entry := range n.HwInfo {
		if _, ok := seen[entry]; ok {
			return errDuplicateHwInfo
		}
		seen[entry] = struct{}{}
	}
	return nil
}
