// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// utf8BOM may prefix the first candidate line of lists saved by text editors.
const utf8BOM = "\uFEFF"

// Strategy is one name recovery procedure bound to a StrategyTag.
type Strategy interface {
	// Tag returns the tag this strategy is registered under.
	Tag() StrategyTag
	// CompanionListName derives candidate list file name from archive file name.
	CompanionListName(archiveFileName string) (string, bool)
	// Recover tests candidates from list against unresolved hashes of r.
	Recover(r *Reader, list io.Reader) (RecoverResult, error)
}

// RecoverResult reports one recovery pass.
type RecoverResult struct {
	// Candidates is number of candidate names tested.
	Candidates int `json:"candidates" yaml:"candidates"`
	// Promoted is number of entries that received a name.
	Promoted int `json:"promoted" yaml:"promoted"`
	// Remaining is number of hash-only entries after the pass.
	Remaining int `json:"remaining" yaml:"remaining"`
}

var strategies = struct {
	byTag map[StrategyTag]Strategy
	mu    sync.RWMutex
}{
	byTag: map[StrategyTag]Strategy{
		StrategyMessage: MessageStrategy{},
	},
}

// RegisterStrategy adds or replaces strategy under its tag.
func RegisterStrategy(s Strategy) error {
	if s == nil || s.Tag() == "" {
		return fmt.Errorf("%w: strategy without tag", ErrInvalidStrategy)
	}

	strategies.mu.Lock()
	defer strategies.mu.Unlock()

	strategies.byTag[s.Tag()] = s
	return nil
}

// LookupStrategy returns strategy registered under tag.
func LookupStrategy(tag StrategyTag) (Strategy, bool) {
	strategies.mu.RLock()
	defer strategies.mu.RUnlock()

	s, ok := strategies.byTag[tag]
	return s, ok
}

// MessageStrategy recovers names of text-bearing "message" archives.
// Candidates come from a sibling list file with ".lst" in place of ".bin".
type MessageStrategy struct{}

// Tag implements Strategy.
func (MessageStrategy) Tag() StrategyTag {
	return StrategyMessage
}

// CompanionListName implements Strategy.
func (MessageStrategy) CompanionListName(archiveFileName string) (string, bool) {
	ext := filepath.Ext(archiveFileName)
	if !strings.EqualFold(ext, ".bin") || len(archiveFileName) == len(ext) {
		return "", false
	}

	return strings.TrimSuffix(archiveFileName, ext) + ".lst", true
}

// Recover implements Strategy.
func (MessageStrategy) Recover(r *Reader, list io.Reader) (RecoverResult, error) {
	return RecoverCandidates(r, list)
}

// RecoverCandidates reads newline-separated candidate names from list and
// promotes every unresolved entry whose hash equals a candidate hash.
// The first matching candidate in list order wins. On list read failure
// promotions made so far are kept and ErrDehashSource is returned.
func RecoverCandidates(r *Reader, list io.Reader) (RecoverResult, error) {
	var res RecoverResult
	if r == nil {
		return res, ErrNilReader
	}
	if list == nil {
		return res, fmt.Errorf("%w: %w", ErrDehashSource, ErrNilReader)
	}

	br := bufio.NewReader(list)
	for line := 1; ; line++ {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			res.Remaining = r.UnresolvedCount()
			return res, fmt.Errorf("%w: line %d: %w", ErrDehashSource, line, readErr)
		}

		candidate := strings.TrimRight(raw, "\r\n")
		if line == 1 {
			candidate = strings.TrimPrefix(candidate, utf8BOM)
		}

		if candidate != "" {
			res.Candidates++
			promoted, err := promoteCandidate(r, candidate)
			if err != nil {
				res.Remaining = r.UnresolvedCount()
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			if promoted {
				res.Promoted++
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	res.Remaining = r.UnresolvedCount()
	return res, nil
}

// promoteCandidate promotes candidate when its hash is unresolved.
func promoteCandidate(r *Reader, candidate string) (bool, error) {
	hash := HashName(candidate)
	if !r.IsUnresolved(hash) {
		return false, nil
	}
	if validateIdentifier(Named(candidate)) != nil {
		return false, nil
	}

	if err := r.Promote(hash, candidate); err != nil {
		return false, err
	}

	return true, nil
}

// RecoverArchiveFile classifies archivePath, opens the companion candidate
// list next to it and runs the matching strategy against r.
// Nil classifier means DefaultClassifier.
func RecoverArchiveFile(r *Reader, archivePath string, c *Classifier) (RecoverResult, StrategyTag, error) {
	strategy, listPath, err := resolveCompanion(archivePath, c)
	if err != nil {
		if strategy != nil {
			return RecoverResult{}, strategy.Tag(), err
		}

		return RecoverResult{}, "", err
	}

	f, err := os.Open(listPath)
	if err != nil {
		return RecoverResult{}, strategy.Tag(), fmt.Errorf("%w: %w", ErrDehashSource, err)
	}
	defer func() { _ = f.Close() }()

	res, err := strategy.Recover(r, f)
	return res, strategy.Tag(), err
}

// CompanionListPath returns candidate list path for archivePath under classifier c.
func CompanionListPath(archivePath string, c *Classifier) (string, error) {
	_, listPath, err := resolveCompanion(archivePath, c)
	return listPath, err
}

// resolveCompanion finds strategy and companion list path for archivePath.
func resolveCompanion(archivePath string, c *Classifier) (Strategy, string, error) {
	if c == nil {
		c = DefaultClassifier()
	}

	base := filepath.Base(archivePath)
	tag, ok := c.PredictStrategy(base)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNoStrategy, base)
	}

	strategy, ok := LookupStrategy(tag)
	if !ok {
		return nil, "", fmt.Errorf("%w: strategy %q is not registered", ErrNoStrategy, tag)
	}

	listName, ok := strategy.CompanionListName(base)
	if !ok {
		return strategy, "", fmt.Errorf("%w: no candidate list convention for %s", ErrNoStrategy, base)
	}

	return strategy, filepath.Join(filepath.Dir(archivePath), listName), nil
}
