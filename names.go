// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an entry name or file path to clean relative
// slash-separated form. "\" is treated as separator; "." and ".." segments
// are resolved and leading or trailing slashes dropped.
func NormalizePath(raw string) string {
	return strings.Trim(path.Clean("/"+normalizePathForMatching(raw)), "/")
}

// normalizePathForMatching prepares rule patterns and names for pathrules.
func normalizePathForMatching(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, `/`)
	return strings.TrimPrefix(p, "./")
}

// validateIdentifier rejects names that cannot be stored in the name table.
func validateIdentifier(id Identifier) error {
	name, ok := id.Name()
	if !ok {
		return nil
	}

	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidName, name, maxNameLen)
	case strings.IndexByte(name, 0) >= 0:
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	}

	return nil
}
