/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package binder_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodecore/provisioner/internal/node"
	"github.com/nodecore/provisioner/internal/node/binder"
	"github.com/nodecore/provisioner/internal/node/models"
)

func TestBinder(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Policy Binder Suite")
}

// fakeMatcher and fakeCatalogue are hand-written test doubles for the external
// TagMatcher/PolicyCatalogue collaborators, per the corpus's small-interface-fake
// convention.
type fakeMatcher struct {
	tags map[string]struct{}
	err  error
}

func (f *fakeMatcher) Match(context.Context, *models.Node) (map[string]struct{}, error) {
	return f.tags, f.err
}

type fakeCatalogue struct {
	policy *node.Policy
	err    error
}

func (f *fakeCatalogue) Bind(context.Context, *models.Node) (*node.Policy, error) {
	return f.policy, f.err
}

var _ = Describe("MatchAndBind", func() {
	var n *models.Node

	BeforeEach(func() {
		n = &models.Node{ID: uuid.New(), Name: "node-1"}
	})

	It("computes the tag set as the symmetric difference of current and matched tags", func() {
		n.Tags = []string{"stale", "kept"}
		b := &binder.Binder{
			Matcher:   &fakeMatcher{tags: map[string]struct{}{"kept": {}, "fresh": {}}},
			Catalogue: &fakeCatalogue{},
		}
		bound, err := b.MatchAndBind(context.Background(), n)
		Expect(err).ToNot(HaveOccurred())
		Expect(bound).To(BeFalse())
		Expect(n.Tags).To(ConsistOf("stale", "fresh"))
	})

	It("wraps a tag matcher failure without binding", func() {
		b := &binder.Binder{
			Matcher:   &fakeMatcher{err: context.DeadlineExceeded},
			Catalogue: &fakeCatalogue{},
		}
		_, err := b.MatchAndBind(context.Background(), n)
		Expect(err).To(HaveOccurred())
	})

	It("does nothing further when no policy applies", func() {
		b := &binder.Binder{
			Matcher:   &fakeMatcher{tags: map[string]struct{}{}},
			Catalogue: &fakeCatalogue{policy: nil},
		}
		bound, err := b.MatchAndBind(context.Background(), n)
		Expect(err).ToNot(HaveOccurred())
		Expect(bound).To(BeFalse())
		Expect(n.PolicyName).To(BeNil())
	})

	It("binds the chosen policy: reference, boot_count, hostname, and a no-replace metadata merge", func() {
		existingName := "old-policy"
		n.PolicyName = &existingName
		n.Metadata = map[string]any{"kept": "node-value", "untouched": 1}

		policy := &node.Policy{
			Name:            "discovery",
			HostnamePattern: "  ${ id } -worker",
			RootPassword:    "s3cret",
			NodeMetadata:    map[string]any{"kept": "policy-value", "added": "x"},
		}
		b := &binder.Binder{
			Matcher:   &fakeMatcher{tags: map[string]struct{}{}},
			Catalogue: &fakeCatalogue{policy: policy},
		}

		bound, err := b.MatchAndBind(context.Background(), n)
		Expect(err).ToNot(HaveOccurred())
		Expect(bound).To(BeTrue())
		Expect(*n.PolicyName).To(Equal("discovery"))
		Expect(n.BootCount).To(Equal(1))
		Expect(n.Installed).To(BeNil())
		Expect(n.InstalledAt).To(BeNil())
		Expect(n.RootPassword).To(Equal("s3cret"))
		Expect(n.Hostname).To(Equal("  " + n.ID.String() + " -worker"))
		Expect(n.Metadata["kept"]).To(Equal("node-value"))
		Expect(n.Metadata["untouched"]).To(Equal(1))
		Expect(n.Metadata["added"]).To(Equal("x"))
	})
})
