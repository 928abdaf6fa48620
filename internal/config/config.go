/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package config defines the configuration attributes recognised by the node identity,
// matching, and lifecycle core, loaded from the environment via envconfig and
// overridable through CLI flags registered with pflag.
package config

import (
	"fmt"
	"regexp"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"

	"github.com/nodecore/provisioner/internal/node/hwinfo"
)

// DatabaseConfig holds the connection settings for the postgres-backed node store.
type DatabaseConfig struct {
	Host     string `envconfig:"NODECORE_DB_HOST" default:"localhost"`
	Port     string `envconfig:"NODECORE_DB_PORT" default:"5432"`
	User     string `envconfig:"NODECORE_DB_USER" default:"nodecore"`
	Password string `envconfig:"NODECORE_DB_PASSWORD"`
	Database string `envconfig:"NODECORE_DB_NAME" default:"nodecore"`
}

// Config is the concrete form of the "Configuration" table in the specification.
type Config struct {
	// MatchNodesOn is the non-empty subset of hwinfo.Keys used for overlap matching.
	MatchNodesOn []string `envconfig:"NODECORE_MATCH_NODES_ON" default:"mac,uuid"`
	// MatchNodesOnFacts is a list of regex patterns; facts whose name matches one of
	// these become fact_* entries in hw_info.
	MatchNodesOnFacts []string `envconfig:"NODECORE_MATCH_NODES_ON_FACTS" default:"serial_number"`
	// FactsBlacklist is a list of regex-or-literal patterns over fact names that must
	// be dropped from a checkin before it is stored.
	FactsBlacklist []string `envconfig:"NODECORE_FACTS_BLACKLIST"`
	// ProtectNewNodes gates whether newly created nodes are marked installed at
	// creation time, shielding them from unattended re-provisioning.
	ProtectNewNodes bool `envconfig:"NODECORE_PROTECT_NEW_NODES" default:"false"`

	Database DatabaseConfig
}

// LoadFromEnv loads config values from the process environment.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process("nodecore", c); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}
	return nil
}

// SetFlags registers CLI flags that override the environment-loaded configuration.
func SetFlags(flags *pflag.FlagSet, c *Config) {
	flags.StringSliceVar(&c.MatchNodesOn, "match-nodes-on", c.MatchNodesOn,
		"Subset of HW_INFO_KEYS used for node identity overlap matching")
	flags.StringSliceVar(&c.MatchNodesOnFacts, "match-nodes-on-facts", c.MatchNodesOnFacts,
		"Regex patterns; matching facts become fact_* hw_info entries")
	flags.StringSliceVar(&c.FactsBlacklist, "facts-blacklist", c.FactsBlacklist,
		"Regex-or-literal patterns for fact names that must be dropped on checkin")
	flags.BoolVar(&c.ProtectNewNodes, "protect-new-nodes", c.ProtectNewNodes,
		"Mark newly created nodes installed to prevent accidental reimaging")
	flags.StringVar(&c.Database.Host, "db-host", c.Database.Host, "Postgres host")
	flags.StringVar(&c.Database.Port, "db-port", c.Database.Port, "Postgres port")
	flags.StringVar(&c.Database.User, "db-user", c.Database.User, "Postgres user")
	flags.StringVar(&c.Database.Database, "db-name", c.Database.Database, "Postgres database name")
}

// Validate checks the configuration attributes for semantic correctness.
func (c *Config) Validate() error {
	if len(c.MatchNodesOn) == 0 {
		return fmt.Errorf("match_nodes_on must be a non-empty subset of HW_INFO_KEYS")
	}
	for _, key := range c.MatchNodesOn {
		if !hwinfo.Keys[key] {
			return fmt.Errorf("match_nodes_on key %q is not a member of HW_INFO_KEYS", key)
		}
	}
	for _, pattern := range c.MatchNodesOnFacts {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("match_nodes_on_facts pattern %q does not compile: %w", pattern, err)
		}
	}
	for _, pattern := range c.FactsBlacklist {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("facts.blacklist pattern %q does not compile: %w", pattern, err)
		}
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database host and name are required")
	}
	return nil
}
