// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"io"
	"time"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	headerSize     = 32         // fixed FARC header size in bytes
	recordSize     = 20         // fixed index record size in bytes
	formatVersion  = 1          // only supported layout version
	maxNameLen     = 1024       // max entry name length in bytes
	maxFARCData    = 1 << 32    // max addressable size (4 GiB)
	noNameOffset   = 0xFFFFFFFF // name offset marker of hash-only records
	maxEntryCount  = 1 << 24    // sanity bound for declared entry count
	headerMagicLen = 4
)

// headerMagic opens every FARC archive.
var headerMagic = [headerMagicLen]byte{'F', 'A', 'R', 'C'}

// Default packer tuning values.
const (
	DefaultWriteBuffer     = 4 * 1024 * 1024
	DefaultMinCompressSize = 512
	DefaultMaxCompressSize = 16 * 1024 * 1024
)

// PlaceholderExt marks extracted hash-only entries; file stem is the decimal hash.
const PlaceholderExt = ".bchunk"

// EntryInfo describes a single parsed FARC entry.
type EntryInfo struct {
	// ID is the current entry identifier (name or bare hash).
	ID Identifier `json:"id" yaml:"id"`
	// Offset is absolute byte offset of entry payload in the source.
	Offset uint32 `json:"offset" yaml:"offset"`
	// DataSize is stored payload size in bytes.
	DataSize uint32 `json:"data_size" yaml:"data_size"`
	// OriginalSize is decoded size for LZSS-stored entries; zero otherwise.
	OriginalSize uint32 `json:"original_size,omitempty" yaml:"original_size,omitempty"`
}

// IsCompressed reports whether this entry is stored with LZSS compression.
func (e *EntryInfo) IsCompressed() bool {
	return e.OriginalSize != 0
}

// Size returns the decoded content size.
func (e *EntryInfo) Size() uint32 {
	if e.OriginalSize != 0 {
		return e.OriginalSize
	}

	return e.DataSize
}

// Input describes one source stream to be packed into a FARC entry.
type Input struct {
	// Open returns raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// ID is destination identifier inside the archive.
	ID Identifier `json:"id" yaml:"id"`
	// SizeHint is expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// PackEntryProgress contains one completed entry write event from pack flow.
type PackEntryProgress struct {
	// ID is entry identifier written to archive.
	ID Identifier `json:"id" yaml:"id"`
	// Offset is payload offset relative to the data region.
	Offset uint32 `json:"offset" yaml:"offset"`
	// DataSize is stored payload size in bytes.
	DataSize uint32 `json:"data_size" yaml:"data_size"`
	// OriginalSize is original size for compressed entries; zero for raw entries.
	OriginalSize uint32 `json:"original_size,omitempty" yaml:"original_size,omitempty"`
	// Compressed reports whether compressed payload was actually written.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
}

// PackOptions configures pack behavior.
type PackOptions struct {
	// OnEntryDone is called after one entry is fully written to archive payload.
	OnEntryDone func(entry PackEntryProgress) `json:"-" yaml:"-"`
	// Compress defines ordered identifier rules for compression candidate selection.
	// Named entries match by name, hash-only entries by their placeholder name.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
	// MinCompressSize disables compression for entries smaller than this size.
	MinCompressSize uint32 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// MaxCompressSize disables compression for entries larger than this size.
	// It also bounds the in-memory buffer used for compression candidates.
	MaxCompressSize uint32 `json:"max_compress_size,omitempty" yaml:"max_compress_size,omitempty"`
}

// PackResult contains pack output statistics.
type PackResult struct {
	// WrittenEntries is number of entries written to archive.
	WrittenEntries int `json:"written_entries" yaml:"written_entries"`
	// NamedEntries is number of entries written with a literal name.
	NamedEntries int `json:"named_entries" yaml:"named_entries"`
	// DataSize is total payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// IndexSize is total index bytes written (records and name table).
	IndexSize int64 `json:"index_size" yaml:"index_size"`
	// CompressedEntries is number of entries written with compressed payload.
	CompressedEntries int `json:"compressed_entries,omitempty" yaml:"compressed_entries,omitempty"`
	// Duration is end-to-end pack core duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry EntryInfo, written int64, outputPath string) `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Entries limits extraction to selected metadata list; nil means all parsed entries.
	Entries []EntryInfo `json:"-" yaml:"-"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// RawNames disables default name sanitization during extract.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// ImportOptions configures ImportDir behavior.
type ImportOptions struct {
	// Pattern is a doublestar glob selecting files under root; empty means "**".
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	// RetainNames stores literal names instead of bare name hashes.
	RetainNames bool `json:"retain_names,omitempty" yaml:"retain_names,omitempty"`
}

// applyDefaults fills zero-valued pack options with defaults.
func (opts *PackOptions) applyDefaults() {
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}

	if opts.MinCompressSize == 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}

	if opts.MaxCompressSize == 0 || opts.MaxCompressSize <= opts.MinCompressSize {
		opts.MaxCompressSize = DefaultMaxCompressSize
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// applyDefaults fills zero-valued import options with defaults.
func (opts *ImportOptions) applyDefaults() {
	if opts.Pattern == "" {
		opts.Pattern = "**"
	}
}
