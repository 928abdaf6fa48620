/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/nodecore/provisioner/internal/config"
	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/node/models"
	typederrors "github.com/nodecore/provisioner/internal/typed-errors"
)

func TestIdentity(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Identity Resolver Suite")
}

func newTestResolver() *Resolver {
	return &Resolver{
		Config: &config.Config{
			MatchNodesOn:      []string{"mac", "uuid"},
			MatchNodesOnFacts: []string{"serial_number"},
		},
	}
}

var _ = Describe("canonicalize", func() {
	var res *Resolver

	BeforeEach(func() {
		res = newTestResolver()
	})

	It("rejects an input with neither facts nor hw_info", func() {
		_, _, err := res.canonicalize(Input{})
		Expect(typederrors.IsInvalidArgumentError(err)).To(BeTrue())
	})

	It("derives dhcp_mac from the macaddress fact", func() {
		canonical, dhcpMac, err := res.canonicalize(Input{
			Facts: map[string]any{"macaddress": "AA:BB:CC:DD:EE:01", "serial_number": "S1"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(dhcpMac).ToNot(BeNil())
		Expect(*dhcpMac).To(Equal("aa-bb-cc-dd-ee-01"))
		Expect(canonical).To(ConsistOf("fact_serial_number=s1"))
	})

	It("only promotes facts matching match_nodes_on_facts", func() {
		canonical, _, err := res.canonicalize(Input{
			Facts: map[string]any{"serial_number": "S1", "unrelated_fact": "x"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(canonical).To(ConsistOf("fact_serial_number=s1"))
	})

	It("strips dhcp_mac out of a raw hw_info descriptor before canonicalizing", func() {
		canonical, dhcpMac, err := res.canonicalize(Input{
			HwInfo: map[string]any{"uuid": "U-1", "dhcp_mac": "AA:BB:CC:DD:EE:02"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(*dhcpMac).To(Equal("aa-bb-cc-dd-ee-02"))
		Expect(canonical).To(ConsistOf("uuid=u-1"))
	})
})

var _ = Describe("matchEligible", func() {
	It("keeps entries in match_nodes_on and any fact_ entry", func() {
		out := matchEligible([]string{"mac=m1", "serial=s1", "fact_serial_number=s1"}, []string{"mac"})
		Expect(out).To(ConsistOf("mac=m1", "fact_serial_number=s1"))
	})

	It("returns nil when nothing qualifies", func() {
		out := matchEligible([]string{"asset=a1"}, []string{"mac"})
		Expect(out).To(BeEmpty())
	})
})

var _ = Describe("fact/non-fact partitioning", func() {
	It("separates fact_ entries from the rest", func() {
		entries := []string{"mac=m1", "fact_a=1", "fact_b=2"}
		Expect(nonFactEntries(entries)).To(ConsistOf("mac=m1"))
		Expect(factEntries(entries)).To(ConsistOf("fact_a=1", "fact_b=2"))
		Expect(hasFactEntries(entries)).To(BeTrue())
		Expect(hasFactEntries([]string{"mac=m1"})).To(BeFalse())
	})
})

var _ = Describe("equalEntries", func() {
	It("ignores order", func() {
		Expect(equalEntries([]string{"a", "b"}, []string{"b", "a"})).To(BeTrue())
	})

	It("detects a differing set", func() {
		Expect(equalEntries([]string{"a"}, []string{"a", "b"})).To(BeFalse())
	})
})

var _ = Describe("sortedUnique", func() {
	It("dedupes and sorts", func() {
		Expect(sortedUnique([]string{"b=1", "a=1", "b=1"})).To(Equal([]string{"a=1", "b=1"}))
	})
})

var _ = Describe("Lookup input validation", func() {
	It("rejects a descriptor with no match-eligible keys", func() {
		res := &Resolver{
			Config: &config.Config{MatchNodesOn: []string{"mac"}},
		}
		canonical, _, err := res.canonicalize(Input{HwInfo: map[string]any{"asset": "A1"}})
		Expect(err).ToNot(HaveOccurred())
		Expect(matchEligible(canonical, res.Config.MatchNodesOn)).To(BeEmpty())
	})
})

func nodeRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "hw_info", "dhcp_mac", "facts", "metadata", "policy_id", "policy_name",
		"installed", "installed_at", "hostname", "root_password", "boot_count", "last_checkin",
		"last_power_state_update_at", "desired_power_state", "last_known_power_state",
		"ipmi_hostname", "ipmi_username", "ipmi_password", "tags", "created_at", "updated_at",
	})
}

func addNodeRow(rows *pgxmock.Rows, n models.Node) *pgxmock.Rows {
	return rows.AddRow(
		n.ID, n.Name, n.HwInfo, n.DHCPMac, n.Facts, n.Metadata, n.PolicyID, n.PolicyName,
		n.Installed, n.InstalledAt, n.Hostname, n.RootPassword, n.BootCount, n.LastCheckin,
		n.LastPowerStateUpdateAt, string(n.DesiredPowerState), string(n.LastKnownPowerState),
		n.IPMIHostname, n.IPMIUsername, n.IPMIPassword, n.Tags, n.CreatedAt, n.UpdatedAt,
	)
}

// dispatch is the Queryer-driven half of resolveOnce (everything past the
// pgx.BeginFunc wrapping), so every branch of Lookup's decision is exercisable with
// pgxmock the same way repo.Repository's own methods are.
var _ = Describe("dispatch", func() {
	var (
		ctx  context.Context
		mock pgxmock.PgxPoolIface
		res  *Resolver
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mock, err = pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		res = &Resolver{
			Repo:   &repo.Repository{},
			Config: &config.Config{MatchNodesOn: []string{"mac"}},
		}
	})

	AfterEach(func() {
		mock.Close()
	})

	It("creates a new node when no candidate overlaps", func() {
		created := models.Node{ID: uuid.New(), Name: "node-1", HwInfo: []string{"mac=aa-bb-cc-dd-ee-ff"}}
		mock.ExpectQuery(`SELECT .* FROM nodes WHERE hw_info &&`).WillReturnRows(nodeRows())
		mock.ExpectQuery(`INSERT INTO nodes`).WillReturnRows(addNodeRow(nodeRows(), created))

		n, wasCreated, err := res.dispatch(ctx, mock, []string{"mac=aa-bb-cc-dd-ee-ff"}, []string{"mac=aa-bb-cc-dd-ee-ff"}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(wasCreated).To(BeTrue())
		Expect(n.ID).To(Equal(created.ID))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("updates the single overlapping candidate in place", func() {
		existing := models.Node{ID: uuid.New(), Name: "node-1", HwInfo: []string{"mac=aa-bb-cc-dd-ee-ff"}}
		mock.ExpectQuery(`SELECT .* FROM nodes WHERE hw_info &&`).
			WillReturnRows(addNodeRow(nodeRows(), existing))
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(addNodeRow(nodeRows(), existing))

		mac := "aa-bb-cc-dd-ee-ff"
		n, wasCreated, err := res.dispatch(ctx, mock,
			[]string{"mac=aa-bb-cc-dd-ee-ff", "asset=new"}, []string{"mac=aa-bb-cc-dd-ee-ff"}, &mac)

		Expect(err).ToNot(HaveOccurred())
		Expect(wasCreated).To(BeFalse())
		Expect(n.ID).To(Equal(existing.ID))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("merges a real and a fake candidate, reassigning history and destroying the fake", func() {
		real := models.Node{ID: uuid.New(), Name: "node-real", HwInfo: []string{"fact_serial_number=s1"}}
		fake := models.Node{ID: uuid.New(), Name: "node-fake", HwInfo: []string{"mac=aa-bb-cc-dd-ee-ff"}}
		canonical := []string{"mac=aa-bb-cc-dd-ee-ff", "fact_serial_number=s1"}

		mock.ExpectQuery(`SELECT .* FROM nodes WHERE hw_info &&`).
			WillReturnRows(addNodeRow(addNodeRow(nodeRows(), real), fake))
		mock.ExpectExec(`UPDATE node_log_entries`).
			WithArgs(real.ID, fake.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`DELETE FROM nodes`).
			WithArgs(fake.ID).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(addNodeRow(nodeRows(), real))

		n, wasCreated, err := res.dispatch(ctx, mock, canonical, []string{"mac=aa-bb-cc-dd-ee-ff"}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(wasCreated).To(BeFalse())
		Expect(n.ID).To(Equal(real.ID))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("rejects three or more overlapping candidates as a duplicate", func() {
		a := models.Node{ID: uuid.New(), Name: "node-a"}
		b := models.Node{ID: uuid.New(), Name: "node-b"}
		c := models.Node{ID: uuid.New(), Name: "node-c"}

		rows := addNodeRow(addNodeRow(addNodeRow(nodeRows(), a), b), c)
		mock.ExpectQuery(`SELECT .* FROM nodes WHERE hw_info &&`).WillReturnRows(rows)
		for range []models.Node{a, b, c} {
			mock.ExpectQuery(`INSERT INTO node_log_entries`).
				WillReturnRows(pgxmock.NewRows([]string{"id", "node_id", "payload", "timestamp"}).
					AddRow(uuid.New(), a.ID, map[string]any{}, a.ID))
		}

		_, _, err := res.dispatch(ctx, mock, []string{"mac=aa-bb-cc-dd-ee-ff"}, []string{"mac=aa-bb-cc-dd-ee-ff"}, nil)

		Expect(typederrors.IsDuplicateNodeError(err)).To(BeTrue())
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("rejects two candidates that are both fact-bearing", func() {
		a := models.Node{ID: uuid.New(), Name: "node-a", HwInfo: []string{"fact_serial_number=s1"}}
		b := models.Node{ID: uuid.New(), Name: "node-b", HwInfo: []string{"fact_serial_number=s2"}}

		mock.ExpectQuery(`SELECT .* FROM nodes WHERE hw_info &&`).
			WillReturnRows(addNodeRow(addNodeRow(nodeRows(), a), b))
		for range []models.Node{a, b} {
			mock.ExpectQuery(`INSERT INTO node_log_entries`).
				WillReturnRows(pgxmock.NewRows([]string{"id", "node_id", "payload", "timestamp"}).
					AddRow(uuid.New(), a.ID, map[string]any{}, a.ID))
		}

		_, _, err := res.dispatch(ctx, mock, []string{"fact_serial_number=s1"}, []string{"fact_serial_number=s1"}, nil)

		Expect(typederrors.IsDuplicateNodeError(err)).To(BeTrue())
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})
})
