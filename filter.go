// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// EntryFilter selects a subset of entries, e.g. for ExtractOptions.Entries.
// Zero value keeps every entry.
type EntryFilter struct {
	// Rules are gitignore-style rules over entry names; hash-only entries
	// match by their placeholder file name. Empty means no rule filtering.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// Prefix keeps named entries under this slash-separated directory.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Kind keeps only named or only hash-only entries when set.
	Kind EntryKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	// MinSize drops entries with smaller decoded size.
	MinSize uint32 `json:"min_size,omitempty" yaml:"min_size,omitempty"`
}

// EntryKind selects entries by identifier form.
type EntryKind string

// Entry kinds for EntryFilter.
const (
	EntryKindAny        EntryKind = ""
	EntryKindNamed      EntryKind = "named"
	EntryKindUnresolved EntryKind = "unresolved"
)

// FilterEntries returns entries accepted by f, preserving order.
func FilterEntries(entries []EntryInfo, f EntryFilter) ([]EntryInfo, error) {
	var matcher *pathrules.Matcher
	if rules := normalizeRules(f.Rules); len(rules) > 0 {
		var err error
		matcher, err = pathrules.NewMatcher(rules, pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		})
		if err != nil {
			return nil, fmt.Errorf("compile filter rules: %w", err)
		}
	}

	switch f.Kind {
	case EntryKindAny, EntryKindNamed, EntryKindUnresolved:
	default:
		return nil, fmt.Errorf("unknown entry kind %q", f.Kind)
	}

	prefix := NormalizePath(f.Prefix)
	out := make([]EntryInfo, 0, len(entries))
	for i := range entries {
		entry := entries[i]
		if entry.Size() < f.MinSize {
			continue
		}
		if f.Kind == EntryKindNamed && !entry.ID.IsNamed() {
			continue
		}
		if f.Kind == EntryKindUnresolved && entry.ID.IsNamed() {
			continue
		}
		if prefix != "" && !hasNamePrefix(entry.ID, prefix) {
			continue
		}
		if matcher != nil && !matcher.Included(NormalizePath(entry.ID.matchName()), false) {
			continue
		}

		out = append(out, entry)
	}

	return out, nil
}

// hasNamePrefix reports whether named identifier lies under directory prefix.
func hasNamePrefix(id Identifier, prefix string) bool {
	name, ok := id.Name()
	if !ok {
		return false
	}

	name = NormalizePath(name)
	return name == prefix || strings.HasPrefix(name, prefix+"/")
}
