// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/woozymasta/pathrules"
)

// StrategyTag names a name recovery procedure.
type StrategyTag string

// Built-in strategy tags.
const (
	// StrategyMessage recovers names of text archives from a companion ".lst" list.
	StrategyMessage StrategyTag = "message"
)

// ClassifierRule maps archive file name pattern to strategy.
// Pattern uses gitignore-style syntax and is matched case-insensitively
// against the archive base name.
type ClassifierRule struct {
	Pattern  string      `json:"pattern" yaml:"pattern"`
	Strategy StrategyTag `json:"strategy" yaml:"strategy"`
}

// Classifier predicts recovery strategy from an archive file name.
// Rules are tried in order; first match wins.
type Classifier struct {
	rules []compiledRule
}

// compiledRule is one classifier rule with compiled matcher.
type compiledRule struct {
	matcher *pathrules.Matcher
	tag     StrategyTag
}

// defaultClassifier is compiled once from DefaultRules.
var defaultClassifier = sync.OnceValue(func() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("farc: default classifier rules: %v", err))
	}

	return c
})

// DefaultRules returns built-in classifier rules.
func DefaultRules() []ClassifierRule {
	return []ClassifierRule{
		{Pattern: "message*.bin", Strategy: StrategyMessage},
	}
}

// DefaultClassifier returns classifier compiled from DefaultRules.
func DefaultClassifier() *Classifier {
	return defaultClassifier()
}

// NewClassifier compiles ordered classifier rules.
func NewClassifier(rules []ClassifierRule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for i, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" || rule.Strategy == "" {
			return nil, fmt.Errorf("%w: rule %d: empty pattern or strategy", ErrInvalidClassifierRule, i)
		}

		matcher, err := pathrules.NewMatcher(
			[]pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: pattern}},
			pathrules.MatcherOptions{
				CaseInsensitive: true,
				DefaultAction:   pathrules.ActionExclude,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d %q: %w", ErrInvalidClassifierRule, i, rule.Pattern, err)
		}

		c.rules = append(c.rules, compiledRule{matcher: matcher, tag: rule.Strategy})
	}

	return c, nil
}

// PredictStrategy returns strategy for archive file name, or false when no
// rule applies and no automated recovery is available.
func (c *Classifier) PredictStrategy(archiveFileName string) (StrategyTag, bool) {
	if c == nil {
		return "", false
	}

	base := archiveBaseName(archiveFileName)
	if base == "" {
		return "", false
	}

	for _, rule := range c.rules {
		if rule.matcher.Included(base, false) {
			return rule.tag, true
		}
	}

	return "", false
}

// archiveBaseName returns last slash-separated element of archive file name.
func archiveBaseName(name string) string {
	normalized := NormalizePath(name)
	if normalized == "" {
		return ""
	}

	return path.Base(strings.TrimSuffix(normalized, "/"))
}
