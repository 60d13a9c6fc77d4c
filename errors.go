// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import "errors"

// Sentinel errors for FARC operations. Use errors.Is in callers.
var (
	// ErrInvalidHeader means the archive has bad magic, version, or header fields.
	ErrInvalidHeader = errors.New("invalid FARC file: missing or bad header")
	// ErrUnexpectedEOF means declared index or data regions exceed available bytes.
	ErrUnexpectedEOF = errors.New("unexpected end of FARC data")
	// ErrCorruptEntry means one index record points outside its region or is inconsistent.
	ErrCorruptEntry = errors.New("corrupt entry record")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrHashMismatch means a name does not hash to the value it was paired with.
	ErrHashMismatch = errors.New("name hash mismatch")
	// ErrAlreadyNamed means the hash or name already belongs to a named entry.
	ErrAlreadyNamed = errors.New("entry already named")
	// ErrDehashSource means the candidate list could not be opened or read.
	ErrDehashSource = errors.New("read candidate list")
	// ErrDuplicateIdentifier means two entries resolve to the same identifier.
	ErrDuplicateIdentifier = errors.New("duplicate entry identifier")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrSizeOverflow means the size exceeds the uint32 or 4 GiB FARC limit.
	ErrSizeOverflow = errors.New("size exceeds uint32 or 4 GiB FARC limit")
	// ErrInvalidName means entry name is empty or cannot be stored.
	ErrInvalidName = errors.New("invalid entry name")
	// ErrWriterConsumed means Serialize was already called on the writer.
	ErrWriterConsumed = errors.New("writer already serialized")
	// ErrNoStrategy means no name recovery strategy applies to the archive.
	ErrNoStrategy = errors.New("no name recovery strategy for archive")
	// ErrInvalidStrategy means a strategy cannot be registered (nil or without tag).
	ErrInvalidStrategy = errors.New("invalid name recovery strategy")
	// ErrInvalidClassifierRule means one or more classifier rules are invalid.
	ErrInvalidClassifierRule = errors.New("invalid classifier rule")
	// ErrInvalidCompressPattern means one or more compression rules are invalid.
	ErrInvalidCompressPattern = errors.New("invalid compress rules")
	// ErrInvalidExtractPath means archive entry name is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
)
