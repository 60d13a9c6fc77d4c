// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PlaceholderName returns file name used for extracted hash-only entry.
func PlaceholderName(hash uint32) string {
	return strconv.FormatUint(uint64(hash), 10) + PlaceholderExt
}

// ParsePlaceholderName parses "<decimal hash>.bchunk" file name.
func ParsePlaceholderName(name string) (uint32, bool) {
	if len(name) <= len(PlaceholderExt) {
		return 0, false
	}

	stem, ext := name[:len(name)-len(PlaceholderExt)], name[len(name)-len(PlaceholderExt):]
	if !strings.EqualFold(ext, PlaceholderExt) {
		return 0, false
	}

	for i := 0; i < len(stem); i++ {
		if stem[i] < '0' || stem[i] > '9' {
			return 0, false
		}
	}

	v, err := strconv.ParseUint(stem, 10, 32)
	if err != nil {
		return 0, false
	}

	return uint32(v), true
}

// ImportIdentifier derives destination identifier for an imported file.
// Placeholder file names restore their bare hash. Other names are kept
// literally when retainNames is set and reduced to HashName otherwise.
func ImportIdentifier(fileName string, retainNames bool) Identifier {
	name := NormalizePath(fileName)
	if hash, ok := ParsePlaceholderName(path.Base(name)); ok {
		return Hashed(hash)
	}

	if retainNames {
		return Named(name)
	}

	return Hashed(HashName(name))
}

// ImportDir selects regular files under root matching opts.Pattern and
// returns writer inputs in lexical path order. Entry identifiers follow
// ImportIdentifier over the slash-separated path relative to root.
func ImportDir(root string, opts ImportOptions) ([]Input, error) {
	opts.applyDefaults()

	if !doublestar.ValidatePattern(opts.Pattern) {
		return nil, fmt.Errorf("import pattern %q: %w", opts.Pattern, doublestar.ErrBadPattern)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat import root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("import root %s is not a directory", root)
	}

	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, opts.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", opts.Pattern, err)
	}
	slices.Sort(matches)

	inputs := make([]Input, 0, len(matches))
	for _, rel := range matches {
		fi, err := fs.Stat(fsys, rel)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", rel, err)
		}
		if !fi.Mode().IsRegular() {
			continue
		}

		fullPath := filepath.Join(root, filepath.FromSlash(rel))
		inputs = append(inputs, Input{
			ID:       ImportIdentifier(rel, opts.RetainNames),
			SizeHint: fi.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(fullPath)
			},
		})
	}

	return inputs, nil
}
