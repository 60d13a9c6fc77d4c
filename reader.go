// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"sync"
)

// Reader provides access to a parsed FARC file.
//
// Entries are split between a name-indexed set and a hash-indexed set.
// The only mutation after parse is Promote, which moves one entry from the
// hash set to the name set. Reader is not safe for concurrent Promote and
// lookups; entry streams opened over an *os.File may be read in parallel.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// entries stores parsed entry metadata in index order.
	entries []EntryInfo
	// named maps entry name to entries index.
	named map[string]int
	// hashed maps bare hash of unresolved entries to entries index.
	hashed map[uint32]int
	// nameOrder keeps iteration order of named set.
	nameOrder []string
	// hashOrder keeps iteration order of hash set.
	hashOrder []uint32
	// size is total source size in bytes.
	size int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// fileHeader is the decoded fixed 32-byte header.
type fileHeader struct {
	version     uint32
	flags       uint32
	entryCount  uint32
	indexOffset uint32
	indexSize   uint32
	dataOffset  uint32
	dataSize    uint32
}

// Open opens FARC file by path and parses header and index.
func Open(path string) (*Reader, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReaderFromReaderAt(f, size)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewReaderFromReaderAt parses FARC from existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	r := &Reader{ra: ra, size: size}
	if err := r.parse(); err != nil {
		return nil, err
	}

	return r, nil
}

// EntryCount returns total number of entries.
func (r *Reader) EntryCount() int {
	return len(r.entries)
}

// NamedCount returns number of entries with known name.
func (r *Reader) NamedCount() int {
	return len(r.named)
}

// UnresolvedCount returns number of hash-only entries.
func (r *Reader) UnresolvedCount() int {
	return len(r.hashed)
}

// Names iterates names of the name-indexed set.
// Promoted names follow index names in promotion order.
func (r *Reader) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range r.nameOrder {
			if !yield(name) {
				return
			}
		}
	}
}

// UnresolvedHashes iterates hashes of the hash-indexed set in index order.
func (r *Reader) UnresolvedHashes() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for _, hash := range r.hashOrder {
			if !yield(hash) {
				return
			}
		}
	}
}

// IsUnresolved reports whether hash belongs to a hash-only entry.
func (r *Reader) IsUnresolved(hash uint32) bool {
	_, ok := r.hashed[hash]
	return ok
}

// Entries returns a copy of parsed entries in index order with current identifiers.
func (r *Reader) Entries() []EntryInfo {
	if r == nil {
		return nil
	}

	return slices.Clone(r.entries)
}

// Lookup returns metadata of entry with identifier id in its current form.
func (r *Reader) Lookup(id Identifier) (EntryInfo, bool) {
	if name, ok := id.Name(); ok {
		return r.LookupName(name)
	}

	return r.LookupHash(id.Hash())
}

// LookupName returns metadata of named entry.
func (r *Reader) LookupName(name string) (EntryInfo, bool) {
	idx, ok := r.named[name]
	if !ok {
		return EntryInfo{}, false
	}

	return r.entries[idx], true
}

// LookupHash returns metadata of hash-only entry.
func (r *Reader) LookupHash(hash uint32) (EntryInfo, bool) {
	idx, ok := r.hashed[hash]
	if !ok {
		return EntryInfo{}, false
	}

	return r.entries[idx], true
}

// Promote names the unresolved entry stored under hash.
// The name must hash to hash and be storable in a name table
// (ErrInvalidName otherwise); the entry then moves to the named set.
func (r *Reader) Promote(hash uint32, name string) error {
	if r == nil {
		return ErrNilReader
	}

	if got := HashName(name); got != hash {
		return fmt.Errorf("%w: %q hashes to 0x%08x, want 0x%08x", ErrHashMismatch, name, got, hash)
	}
	if err := validateIdentifier(Named(name)); err != nil {
		return err
	}

	idx, ok := r.hashed[hash]
	if !ok {
		if _, named := r.named[name]; named {
			return fmt.Errorf("%w: %q", ErrAlreadyNamed, name)
		}

		return fmt.Errorf("%w: hash 0x%08x", ErrEntryNotFound, hash)
	}

	if _, named := r.named[name]; named {
		return fmt.Errorf("%w: %q", ErrAlreadyNamed, name)
	}

	delete(r.hashed, hash)
	if pos := slices.Index(r.hashOrder, hash); pos >= 0 {
		r.hashOrder = slices.Delete(r.hashOrder, pos, pos+1)
	}

	r.entries[idx].ID = Named(name)
	r.named[name] = idx
	r.nameOrder = append(r.nameOrder, name)

	return nil
}

// Close closes the underlying file if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// checkOpen reports ErrClosed after Close.
func (r *Reader) checkOpen() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}

// parse reads and validates FARC structure from ReaderAt.
func (r *Reader) parse() error {
	hdr, err := parseHeader(r.ra, r.size)
	if err != nil {
		return err
	}

	index := make([]byte, hdr.indexSize)
	n, err := r.ra.ReadAt(index, int64(hdr.indexOffset))
	if n < len(index) {
		if err == nil || err == io.EOF {
			return fmt.Errorf("%w: read index (%d/%d bytes)", ErrUnexpectedEOF, n, len(index))
		}

		return fmt.Errorf("read index: %w", err)
	}

	return r.parseIndex(hdr, index)
}

// parseHeader decodes the fixed header and validates region bounds against size.
func parseHeader(ra io.ReaderAt, size int64) (fileHeader, error) {
	var hdr fileHeader
	if size < headerSize {
		return hdr, fmt.Errorf("%w: short header", ErrInvalidHeader)
	}

	var raw [headerSize]byte
	if n, err := ra.ReadAt(raw[:], 0); n < headerSize {
		if err == nil || err == io.EOF {
			return hdr, fmt.Errorf("%w: short header", ErrInvalidHeader)
		}

		return hdr, fmt.Errorf("read header: %w", err)
	}

	if !bytes.Equal(raw[:headerMagicLen], headerMagic[:]) {
		return hdr, fmt.Errorf("%w: bad magic %q", ErrInvalidHeader, raw[:headerMagicLen])
	}

	hdr = fileHeader{
		version:     binary.LittleEndian.Uint32(raw[4:8]),
		flags:       binary.LittleEndian.Uint32(raw[8:12]),
		entryCount:  binary.LittleEndian.Uint32(raw[12:16]),
		indexOffset: binary.LittleEndian.Uint32(raw[16:20]),
		indexSize:   binary.LittleEndian.Uint32(raw[20:24]),
		dataOffset:  binary.LittleEndian.Uint32(raw[24:28]),
		dataSize:    binary.LittleEndian.Uint32(raw[28:32]),
	}

	if hdr.version != formatVersion {
		return hdr, fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, hdr.version)
	}
	if hdr.indexOffset < headerSize {
		return hdr, fmt.Errorf("%w: index offset %d overlaps header", ErrInvalidHeader, hdr.indexOffset)
	}
	if hdr.entryCount > maxEntryCount {
		return hdr, fmt.Errorf("%w: entry count %d exceeds limit", ErrInvalidHeader, hdr.entryCount)
	}

	indexEnd := int64(hdr.indexOffset) + int64(hdr.indexSize)
	dataEnd := int64(hdr.dataOffset) + int64(hdr.dataSize)
	if uint64(hdr.entryCount)*recordSize > uint64(hdr.indexSize) {
		return hdr, fmt.Errorf("%w: %d records do not fit index of %d bytes", ErrUnexpectedEOF, hdr.entryCount, hdr.indexSize)
	}
	if indexEnd > size {
		return hdr, fmt.Errorf("%w: index ends at %d, file size %d", ErrUnexpectedEOF, indexEnd, size)
	}
	if dataEnd > size {
		return hdr, fmt.Errorf("%w: data ends at %d, file size %d", ErrUnexpectedEOF, dataEnd, size)
	}
	if dataEnd > maxFARCData {
		return hdr, fmt.Errorf("%w: data region ends at %d", ErrSizeOverflow, dataEnd)
	}
	if hdr.dataSize > 0 && int64(hdr.dataOffset) < indexEnd {
		return hdr, fmt.Errorf("%w: data region overlaps index", ErrInvalidHeader)
	}

	return hdr, nil
}

// parseIndex decodes index records and builds the name and hash sets.
func (r *Reader) parseIndex(hdr fileHeader, index []byte) error {
	count := int(hdr.entryCount)
	names := index[count*recordSize:]

	r.entries = make([]EntryInfo, 0, count)
	r.named = make(map[string]int, count)
	r.hashed = make(map[uint32]int, count)
	seen := make(map[uint32]struct{}, count)

	for i := range count {
		rec := index[i*recordSize : (i+1)*recordSize]
		nameOffset := binary.LittleEndian.Uint32(rec[0:4])
		hash := binary.LittleEndian.Uint32(rec[4:8])
		offset := binary.LittleEndian.Uint32(rec[8:12])
		dataSize := binary.LittleEndian.Uint32(rec[12:16])
		originalSize := binary.LittleEndian.Uint32(rec[16:20])

		end := uint64(offset) + uint64(dataSize)
		if end > uint64(hdr.dataSize) {
			return fmt.Errorf("%w: record %d payload [%d, %d) outside data region of %d bytes",
				ErrCorruptEntry, i, offset, end, hdr.dataSize)
		}

		if _, dup := seen[hash]; dup {
			return fmt.Errorf("%w: record %d repeats hash 0x%08x", ErrCorruptEntry, i, hash)
		}
		seen[hash] = struct{}{}

		id := Hashed(hash)
		if nameOffset != noNameOffset {
			name, err := readTableName(names, nameOffset)
			if err != nil {
				return fmt.Errorf("%w: record %d: %w", ErrCorruptEntry, i, err)
			}
			if HashName(name) != hash {
				return fmt.Errorf("%w: record %d name %q does not match hash 0x%08x", ErrCorruptEntry, i, name, hash)
			}

			id = Named(name)
		}

		r.entries = append(r.entries, EntryInfo{
			ID:           id,
			Offset:       hdr.dataOffset + offset,
			DataSize:     dataSize,
			OriginalSize: originalSize,
		})

		if name, ok := id.Name(); ok {
			r.named[name] = i
			r.nameOrder = append(r.nameOrder, name)
			continue
		}

		r.hashed[hash] = i
		r.hashOrder = append(r.hashOrder, hash)
	}

	return nil
}

// readTableName reads one NUL-terminated name from the name table.
func readTableName(table []byte, offset uint32) (string, error) {
	if uint64(offset) >= uint64(len(table)) {
		return "", fmt.Errorf("name offset %d outside name table of %d bytes", offset, len(table))
	}

	rest := table[offset:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", fmt.Errorf("name at offset %d is not terminated", offset)
	}
	if end == 0 {
		return "", fmt.Errorf("empty name at offset %d", offset)
	}
	if end > maxNameLen {
		return "", fmt.Errorf("name at offset %d exceeds %d bytes", offset, maxNameLen)
	}

	return string(rest[:end]), nil
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open FARC: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat: %w", err)
	}

	return f, fi.Size(), nil
}
