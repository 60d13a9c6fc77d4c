// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import "fmt"

// Identifier is either a literal entry name or a bare 32-bit name hash.
// The zero value is Hashed(0).
type Identifier struct {
	name  string
	hash  uint32
	named bool
}

// Named returns identifier for entry with known name.
func Named(name string) Identifier {
	return Identifier{name: name, hash: HashName(name), named: true}
}

// Hashed returns identifier for entry known only by name hash.
func Hashed(hash uint32) Identifier {
	return Identifier{hash: hash}
}

// IsNamed reports whether identifier carries a literal name.
func (id Identifier) IsNamed() bool {
	return id.named
}

// Name returns literal name and true for named identifiers.
func (id Identifier) Name() (string, bool) {
	return id.name, id.named
}

// Hash returns stored hash; for named identifiers it is HashName(name).
func (id Identifier) Hash() uint32 {
	return id.hash
}

// String returns the name, or the hash as 0x-prefixed hex.
func (id Identifier) String() string {
	if id.named {
		return id.name
	}

	return fmt.Sprintf("0x%08x", id.hash)
}

// MarshalText implements encoding.TextMarshaler.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// matchName returns name used for compression rules and extraction.
func (id Identifier) matchName() string {
	if id.named {
		return id.name
	}

	return PlaceholderName(id.hash)
}
