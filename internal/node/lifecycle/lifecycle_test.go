/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package lifecycle_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/node/lifecycle"
	"github.com/nodecore/provisioner/internal/node/models"
)

func TestLifecycle(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Lifecycle Suite")
}

func saveRows(n *models.Node) *pgxmock.Rows {
	installed := ""
	if n.Installed != nil {
		installed = *n.Installed
	}
	policyName := ""
	if n.PolicyName != nil {
		policyName = *n.PolicyName
	}
	return pgxmock.NewRows([]string{
		"id", "name", "hw_info", "dhcp_mac", "facts", "metadata", "policy_id", "policy_name",
		"installed", "installed_at", "hostname", "root_password", "boot_count", "last_checkin",
		"last_power_state_update_at", "desired_power_state", "last_known_power_state",
		"ipmi_hostname", "ipmi_username", "ipmi_password", "tags", "created_at", "updated_at",
	}).AddRow(
		n.ID, n.Name, []string{}, nil, map[string]any{}, n.Metadata, nil, policyName,
		installed, n.InstalledAt, "", "", n.BootCount, nil, nil, "", "",
		nil, nil, nil, []string{}, n.ID, n.ID,
	)
}

var _ = Describe("StageDone", func() {
	It("increments boot_count before sealing installed under the bound policy, in that order", func() {
		ctx := context.Background()
		mock, err := pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		defer mock.Close()

		policyName := "discovery"
		n := &models.Node{ID: uuid.New(), Name: "node-1", PolicyName: &policyName, BootCount: 3}

		logRows := pgxmock.NewRows([]string{"id", "node_id", "payload", "timestamp"}).
			AddRow(uuid.New(), n.ID, map[string]any{"stage": "finished"}, n.ID)
		mock.ExpectQuery(`INSERT INTO node_log_entries`).WillReturnRows(logRows)
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(saveRows(n))

		mgr := &lifecycle.Manager{Repo: &repo.Repository{Db: nil}}
		err = mgr.StageDone(ctx, mock, n, lifecycle.StageFinished)

		Expect(err).ToNot(HaveOccurred())
		Expect(n.BootCount).To(Equal(4))
		Expect(n.Installed).ToNot(BeNil())
		Expect(*n.Installed).To(Equal("discovery"))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("does not seal installed for a non-finished stage", func() {
		ctx := context.Background()
		mock, err := pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		defer mock.Close()

		n := &models.Node{ID: uuid.New(), Name: "node-1"}
		logRows := pgxmock.NewRows([]string{"id", "node_id", "payload", "timestamp"}).
			AddRow(uuid.New(), n.ID, map[string]any{"stage": "partitioning"}, n.ID)
		mock.ExpectQuery(`INSERT INTO node_log_entries`).WillReturnRows(logRows)
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(saveRows(n))

		mgr := &lifecycle.Manager{Repo: &repo.Repository{Db: nil}}
		err = mgr.StageDone(ctx, mock, n, "partitioning")

		Expect(err).ToNot(HaveOccurred())
		Expect(n.Installed).To(BeNil())
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})
})

var _ = Describe("ModifyMetadata", func() {
	var (
		ctx  context.Context
		mock pgxmock.PgxPoolIface
		n    *models.Node
		mgr  *lifecycle.Manager
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mock, err = pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		n = &models.Node{ID: uuid.New(), Name: "node-1", Metadata: map[string]any{"k": "v0"}}
		mgr = &lifecycle.Manager{Repo: &repo.Repository{Db: nil}}
	})

	AfterEach(func() {
		mock.Close()
	})

	It("preserves an existing key under no_replace regardless of the incoming value", func() {
		mock.ExpectQuery(`INSERT INTO node_signals`).WillReturnRows(
			pgxmock.NewRows([]string{"id", "node_id", "kind", "payload", "created_at", "claimed_at"}).
				AddRow(uuid.New(), n.ID, "eval_tags", nil, n.ID, nil))
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(saveRows(n))

		err := mgr.ModifyMetadata(ctx, mock, n, lifecycle.ModifyMetadataInput{
			Update: map[string]any{"k": "v1", "added": "x"}, NoReplace: true,
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(n.Metadata["k"]).To(Equal("v0"))
	})

	It("overwrites the key when no_replace is false", func() {
		mock.ExpectQuery(`INSERT INTO node_signals`).WillReturnRows(
			pgxmock.NewRows([]string{"id", "node_id", "kind", "payload", "created_at", "claimed_at"}).
				AddRow(uuid.New(), n.ID, "eval_tags", nil, n.ID, nil))
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(saveRows(n))

		err := mgr.ModifyMetadata(ctx, mock, n, lifecycle.ModifyMetadataInput{
			Update: map[string]any{"k": "v1"},
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(n.Metadata["k"]).To(Equal("v1"))
	})

	It("clears metadata entirely", func() {
		mock.ExpectQuery(`INSERT INTO node_signals`).WillReturnRows(
			pgxmock.NewRows([]string{"id", "node_id", "kind", "payload", "created_at", "claimed_at"}).
				AddRow(uuid.New(), n.ID, "eval_tags", nil, n.ID, nil))
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(saveRows(n))

		err := mgr.ModifyMetadata(ctx, mock, n, lifecycle.ModifyMetadataInput{Clear: true})

		Expect(err).ToNot(HaveOccurred())
		Expect(n.Metadata).To(BeEmpty())
	})

	It("does not enqueue eval_tags when metadata is unchanged", func() {
		mock.ExpectQuery(`UPDATE nodes`).WillReturnRows(saveRows(n))

		err := mgr.ModifyMetadata(ctx, mock, n, lifecycle.ModifyMetadataInput{
			Update: map[string]any{"k": "v0"}, NoReplace: true,
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})
})
