// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	// maxSegmentLen limits one output path segment.
	maxSegmentLen = 240
	// minDigestSegmentLen is the shortest limit that still fits a digest tag.
	minDigestSegmentLen = 18
	// maxCollisionSuffix bounds "~N" collision resolution.
	maxCollisionSuffix = 1000000
)

// forbiddenNameRunes are rejected by at least one common filesystem.
const forbiddenNameRunes = `<>:"/\|?*`

// reservedDeviceNames holds DOS device stems, lower-cased.
var reservedDeviceNames = func() map[string]struct{} {
	names := map[string]struct{}{
		"aux": {}, "con": {}, "nul": {}, "prn": {},
		"clock$": {}, "conin$": {}, "conout$": {},
	}
	for i := 1; i <= 9; i++ {
		names["com"+strconv.Itoa(i)] = struct{}{}
		names["lpt"+strconv.Itoa(i)] = struct{}{}
	}

	return names
}()

// SanitizeName maps a stored entry name to a filesystem-safe relative path.
// The mapping is deterministic but not reversible.
func SanitizeName(name string) (string, error) {
	normalized := NormalizePath(name)
	if normalized == "" {
		return "", ErrInvalidExtractPath
	}

	return normalizeExtractEntryPath(safeRelativePath(normalized))
}

// DisplayName renders an identifier for terminals and logs.
func DisplayName(id Identifier) string {
	s := id.String()
	if strings.IndexFunc(s, isHostileRune) < 0 {
		return s
	}

	return strings.Map(replaceHostileRune, s)
}

// safeRelativePath rewrites every segment of a slash-separated path.
func safeRelativePath(p string) string {
	var b strings.Builder
	b.Grow(len(p))

	for seg := range strings.SplitSeq(p, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." {
			continue
		}

		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(safeSegment(seg))
	}

	if b.Len() == 0 {
		return "_"
	}

	return b.String()
}

// safeSegment rewrites one path segment; the result is never empty.
func safeSegment(seg string) string {
	if seg == ".." {
		return "_"
	}

	out := strings.TrimRight(strings.Map(replaceHostileRune, seg), ". ")
	switch {
	case out == "":
		out = "_"
	case isReservedDeviceName(seg) || isReservedDeviceName(out):
		out = "_" + out
	}

	return shortenSegment(out, maxSegmentLen)
}

func replaceHostileRune(r rune) rune {
	if isHostileRune(r) || strings.ContainsRune(forbiddenNameRunes, r) {
		return '_'
	}

	return r
}

// isHostileRune reports control, format and replacement runes.
func isHostileRune(r rune) bool {
	return unicode.IsControl(r) || unicode.In(r, unicode.Cf) || r == unicode.ReplacementChar
}

// isReservedDeviceName reports whether the stem of name is a DOS device.
func isReservedDeviceName(name string) bool {
	stem, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(name)), ".")
	_, ok := reservedDeviceNames[strings.TrimRight(stem, " :")]
	return ok
}

// outputNames hands out output paths that are unique ignoring case.
type outputNames struct {
	taken map[string]struct{}
	next  map[string]int
}

func newOutputNames(capacity int) *outputNames {
	return &outputNames{
		taken: make(map[string]struct{}, capacity),
		next:  make(map[string]int),
	}
}

// claim returns p, or p with the lowest free "~N" suffix when p is taken.
func (o *outputNames) claim(p string) (string, error) {
	key := strings.ToLower(p)
	if _, taken := o.taken[key]; !taken {
		o.taken[key] = struct{}{}
		return p, nil
	}

	dir, file := path.Split(p)
	for n := max(o.next[key], 2); n < maxCollisionSuffix; n++ {
		candidate := dir + withCollisionSuffix(file, n)
		candidateKey := strings.ToLower(candidate)
		if _, taken := o.taken[candidateKey]; taken {
			continue
		}

		o.taken[candidateKey] = struct{}{}
		o.next[key] = n + 1
		return candidate, nil
	}

	return "", ErrInvalidExtractPath
}

// withCollisionSuffix inserts "~n" before the extension of file.
func withCollisionSuffix(file string, n int) string {
	ext := path.Ext(file)
	suffix := "~" + strconv.Itoa(n)
	stem := shortenSegment(strings.TrimSuffix(file, ext), max(maxSegmentLen-len(ext)-len(suffix), 1))

	return stem + suffix + ext
}

// shortenSegment cuts value to limit bytes, tagging it with an xxhash
// digest of the full value when there is room.
func shortenSegment(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	if limit <= minDigestSegmentLen {
		return value[:limit]
	}

	tag := "~" + strconv.FormatUint(xxhash.Sum64String(value), 16)
	return value[:limit-len(tag)] + tag
}
