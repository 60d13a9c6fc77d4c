// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"fmt"

	"github.com/woozymasta/lzss"
	"github.com/woozymasta/pathrules"
)

// compressPolicy decides which payloads are stored LZSS-compressed.
// A nil policy compresses nothing.
type compressPolicy struct {
	rules   *pathrules.Matcher
	minSize uint32
	maxSize uint32
}

// newCompressPolicy compiles opts.Compress; it returns nil when no usable
// rule is configured. opts must already carry defaults.
func newCompressPolicy(opts PackOptions) (*compressPolicy, error) {
	rules := normalizeRules(opts.Compress)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts.CompressMatcherOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCompressPattern, err)
	}

	return &compressPolicy{
		rules:   matcher,
		minSize: opts.MinCompressSize,
		maxSize: opts.MaxCompressSize,
	}, nil
}

// normalizeRules rewrites patterns to slash form and drops blank ones.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	out := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Pattern = normalizePathForMatching(rule.Pattern); rule.Pattern != "" {
			out = append(out, rule)
		}
	}

	return out
}

// matches reports whether id is selected by the rules. Hash-only
// identifiers match by their placeholder file name.
func (p *compressPolicy) matches(id Identifier) bool {
	if p == nil {
		return false
	}

	name := NormalizePath(id.matchName())
	return name != "" && p.rules.Included(name, false)
}

// fitsSize reports whether a payload of size bytes may be compressed.
func (p *compressPolicy) fitsSize(size uint32) bool {
	return p != nil && size >= p.minSize && size <= p.maxSize
}

// wantsInput reports whether in should be buffered for compression.
// Inputs with unknown size or a size over limit are streamed raw.
func (p *compressPolicy) wantsInput(in Input, limit int64) bool {
	if p == nil || in.SizeHint <= 0 || in.SizeHint > min(limit, int64(p.maxSize)) {
		return false
	}

	return p.fitsSize(uint32(in.SizeHint)) && p.matches(in.ID) //nolint:gosec // bounded by maxSize
}

// encode returns the LZSS form of raw, or ok=false when raw must be stored
// as is (out of size bounds or not smaller once compressed).
func (p *compressPolicy) encode(raw []byte) (packed []byte, ok bool, err error) {
	if uint64(len(raw)) > uint64(^uint32(0)) || !p.fitsSize(uint32(len(raw))) {
		return nil, false, nil
	}

	packed, err = lzss.Compress(raw, lzss.DefaultCompressOptions())
	if err != nil {
		return nil, false, err
	}

	return packed, len(packed) < len(raw), nil
}
