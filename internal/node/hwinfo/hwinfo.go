/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package hwinfo canonicalizes heterogeneous hardware descriptors reported by the
// microkernel and by in-band agent checkins into a deterministic, order-independent
// fingerprint: a sorted sequence of "key=value" strings.
package hwinfo

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Keys is the closed set of recognised non-fact hardware keys. A descriptor key that
// is not in this set, and that does not carry the fact_ prefix, is dropped.
var Keys = map[string]bool{
	"mac":    true,
	"uuid":   true,
	"serial": true,
	"asset":  true,
}

// FactPrefix is prepended to every fact-derived entry's key.
const FactPrefix = "fact_"

// netPattern matches NIC enumeration keys (net0, net1, ...) that must be collapsed to
// "mac" before sorting, since NIC enumeration order is not semantic.
var netPattern = regexp.MustCompile(`^net[0-9]+$`)

// pair is an intermediate key/value entry before sorting and serialization.
type pair struct {
	key   string
	value string
}

// Canonicalize builds the canonical hw_info sequence from a raw descriptor. The
// descriptor may contain scalar string values, a "mac" entry holding either a single
// MAC string or a slice of MAC strings, and a nested "facts" map. The same input
// always produces the same output sequence, regardless of map iteration order or the
// order of entries within a "mac" slice.
func Canonicalize(descriptor map[string]any) []string {
	pairs := make([]pair, 0, len(descriptor))

	for k, v := range descriptor {
		if k == "facts" {
			continue
		}
		if k == "mac" {
			for _, mac := range macValues(v) {
				pairs = append(pairs, pair{key: "mac", value: strings.ReplaceAll(mac, ":", "-")})
			}
			continue
		}
		pairs = append(pairs, pair{key: k, value: fmt.Sprintf("%v", v)})
	}

	if rawFacts, ok := descriptor["facts"]; ok {
		for k, v := range toStringMap(rawFacts) {
			pairs = append(pairs, pair{key: FactPrefix + k, value: fmt.Sprintf("%v", v)})
		}
	}

	return finalize(pairs)
}

// finalize rewrites net* keys to mac, lowercases and trims, hyphenates MAC values,
// drops empty/unknown entries, sorts by (key, value), and serializes to "key=value"
// strings.
func finalize(pairs []pair) []string {
	out := make([]pair, 0, len(pairs))
	for _, p := range pairs {
		key := strings.ToLower(p.key)
		if netPattern.MatchString(key) {
			key = "mac"
		}
		value := strings.ToLower(strings.TrimSpace(p.value))
		if key == "mac" {
			value = strings.ReplaceAll(value, ":", "-")
		}
		if value == "" {
			continue
		}
		if !Keys[key] && !strings.HasPrefix(key, FactPrefix) {
			continue
		}
		out = append(out, pair{key: key, value: value})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key < out[j].key
		}
		return out[i].value < out[j].value
	})

	result := make([]string, 0, len(out))
	for _, p := range out {
		result = append(result, p.key+"="+p.value)
	}
	return dedupe(result)
}

// dedupe removes adjacent duplicate entries; the incoming slice is already sorted so
// duplicates are always adjacent.
func dedupe(entries []string) []string {
	if len(entries) == 0 {
		return entries
	}
	out := entries[:1]
	for _, e := range entries[1:] {
		if e != out[len(out)-1] {
			out = append(out, e)
		}
	}
	return out
}

// macValues normalises the "mac" descriptor value, which may be a single string or a
// slice of strings, into a slice of strings.
func macValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return nil
	}
}

// toStringMap coerces a facts map of unknown value type to map[string]any.
func toStringMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out
	default:
		return nil
	}
}

// Parse re-derives a descriptor map from a canonical hw_info sequence, accepting both
// "mac" and "fact_*" keys as repeatable. It is the inverse operation used by property
// tests to assert that Canonicalize is idempotent: Canonicalize(Parse(Canonicalize(d)))
// == Canonicalize(d).
func Parse(entries []string) map[string]any {
	descriptor := map[string]any{}
	var macs []string
	facts := map[string]any{}

	for _, entry := range entries {
		idx := strings.Index(entry, "=")
		if idx < 0 {
			continue
		}
		key := entry[:idx]
		value := entry[idx+1:]
		switch {
		case key == "mac":
			macs = append(macs, value)
		case strings.HasPrefix(key, FactPrefix):
			facts[strings.TrimPrefix(key, FactPrefix)] = value
		default:
			descriptor[key] = value
		}
	}

	if len(macs) > 0 {
		descriptor["mac"] = macs
	}
	if len(facts) > 0 {
		descriptor["facts"] = facts
	}
	return descriptor
}

// Entries is a convenience wrapper over Canonicalize for sites that already hold a
// map[string]string rather than map[string]any (e.g. the raw firmware descriptor
// reported by the microkernel, which never nests facts below the top level).
func Entries(descriptor map[string]string) []string {
	generic := make(map[string]any, len(descriptor))
	for k, v := range descriptor {
		generic[k] = v
	}
	return Canonicalize(generic)
}
