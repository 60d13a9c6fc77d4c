// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

var (
	// defaultPackWriterPool reuses default-sized bufio writers between Serialize calls.
	defaultPackWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// defaultPackCopyBufferPool reuses payload copy buffers between Serialize calls.
	defaultPackCopyBufferPool = sync.Pool{
		New: func() any {
			return new([packCopyBufferSize]byte)
		},
	}
)

const (
	// packCopyBufferSize is per-pack temporary buffer used by streaming payload copy.
	packCopyBufferSize = 64 * 1024
)

// Writer accumulates entries and serializes them into a new FARC archive.
// A Writer is consumed by Serialize and must not be reused.
type Writer struct {
	opts     PackOptions
	pending  []pendingEntry
	byHash   map[uint32]Identifier
	consumed bool
}

// pendingEntry describes one payload source for serialize core.
// Exactly one of input and source is set.
type pendingEntry struct {
	id     Identifier
	input  *Input
	source *EntryInfo
	src    io.ReaderAt
}

// writtenEntry stores concrete record values produced during payload write.
type writtenEntry struct {
	offset       uint32
	dataSize     uint32
	originalSize uint32
}

// NewWriter returns empty writer with given pack options.
func NewWriter(opts PackOptions) *Writer {
	opts.applyDefaults()

	return &Writer{
		opts:   opts,
		byHash: make(map[uint32]Identifier),
	}
}

// Len returns number of pending entries.
func (w *Writer) Len() int {
	return len(w.pending)
}

// AddNamed appends entry stored under literal name.
func (w *Writer) AddNamed(name string, data []byte) error {
	return w.Add(bytesInput(Named(name), data))
}

// AddHashed appends entry stored only under name hash.
func (w *Writer) AddHashed(hash uint32, data []byte) error {
	return w.Add(bytesInput(Hashed(hash), data))
}

// Add appends stream-backed entry.
func (w *Writer) Add(in Input) error {
	if w == nil {
		return ErrNilWriter
	}
	if w.consumed {
		return ErrWriterConsumed
	}
	if in.Open == nil {
		return fmt.Errorf("input %s: Open is nil", in.ID)
	}
	if err := validateIdentifier(in.ID); err != nil {
		return err
	}

	if err := w.claim(in.ID); err != nil {
		return err
	}

	w.pending = append(w.pending, pendingEntry{id: in.ID, input: &in})
	return nil
}

// AddFromReader appends every entry of r under its current identifier.
// Stored payloads are copied as is, so names promoted on r are persisted
// without re-encoding content. r must stay open until Serialize returns.
// On error no entry of r is added.
func (w *Writer) AddFromReader(r *Reader) error {
	if w == nil {
		return ErrNilWriter
	}
	if w.consumed {
		return ErrWriterConsumed
	}
	if err := r.checkOpen(); err != nil {
		return err
	}

	entries := r.Entries()
	batch := make(map[uint32]Identifier, len(entries))
	for _, entry := range entries {
		if err := validateIdentifier(entry.ID); err != nil {
			return err
		}
		if err := w.checkFree(entry.ID, batch); err != nil {
			return err
		}

		batch[entry.ID.Hash()] = entry.ID
	}

	for _, entry := range entries {
		w.byHash[entry.ID.Hash()] = entry.ID
		w.pending = append(w.pending, pendingEntry{id: entry.ID, source: &entry, src: r.ra})
	}

	return nil
}

// claim registers final hash of id and rejects collisions.
func (w *Writer) claim(id Identifier) error {
	if err := w.checkFree(id, nil); err != nil {
		return err
	}

	w.byHash[id.Hash()] = id
	return nil
}

// checkFree rejects id when its final hash is already pending or in batch.
func (w *Writer) checkFree(id Identifier, batch map[uint32]Identifier) error {
	existing, ok := w.byHash[id.Hash()]
	if !ok {
		existing, ok = batch[id.Hash()]
	}
	if ok {
		return fmt.Errorf("%w: %s conflicts with %s (hash 0x%08x)", ErrDuplicateIdentifier, id, existing, id.Hash())
	}

	return nil
}

// Pack writes a FARC to out from the given inputs.
func Pack(ctx context.Context, out io.WriteSeeker, inputs []Input, opts PackOptions) (*PackResult, error) {
	w := NewWriter(opts)
	for _, in := range inputs {
		if err := w.Add(in); err != nil {
			return nil, err
		}
	}

	return w.Serialize(ctx, out)
}

// PackFile writes a FARC to outPath from the given inputs.
// Output is written to a temporary sibling file and renamed on success.
func PackFile(ctx context.Context, outPath string, inputs []Input, opts PackOptions) (*PackResult, error) {
	w := NewWriter(opts)
	for _, in := range inputs {
		if err := w.Add(in); err != nil {
			return nil, err
		}
	}

	return w.SerializeFile(ctx, outPath)
}

// SerializeFile serializes pending entries to outPath.
// On failure no file is left at outPath.
func (w *Writer) SerializeFile(ctx context.Context, outPath string) (*PackResult, error) {
	dir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create FARC file: %w", err)
	}

	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	res, err := w.Serialize(ctx, tmp)
	if err != nil {
		return nil, err
	}

	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync FARC file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close FARC file: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, fmt.Errorf("rename FARC file: %w", err)
	}

	committed = true
	return res, nil
}

// Serialize writes header, index, name table and payloads to out.
// Entries are laid out in ascending hash order; index order equals payload order.
func (w *Writer) Serialize(ctx context.Context, out io.WriteSeeker) (*PackResult, error) {
	startedAt := time.Now()

	if w == nil || out == nil {
		return nil, ErrNilWriter
	}
	if w.consumed {
		return nil, ErrWriterConsumed
	}
	w.consumed = true

	if ctx == nil {
		ctx = context.Background()
	}

	plan := slices.Clone(w.pending)
	slices.SortFunc(plan, func(a, b pendingEntry) int {
		switch {
		case a.id.Hash() < b.id.Hash():
			return -1
		case a.id.Hash() > b.id.Hash():
			return 1
		default:
			return 0
		}
	})

	if err := validateUniqueIdentifiers(plan); err != nil {
		return nil, err
	}

	policy, err := newCompressPolicy(w.opts)
	if err != nil {
		return nil, fmt.Errorf("compile compress rules: %w", err)
	}

	nameTable, nameOffsets, err := buildNameTable(plan)
	if err != nil {
		return nil, err
	}

	base, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek archive start: %w", err)
	}

	indexSize := int64(len(plan))*recordSize + int64(len(nameTable))
	dataStart := int64(headerSize) + indexSize
	if dataStart > maxFARCData {
		return nil, fmt.Errorf("%w: index size %d", ErrSizeOverflow, indexSize)
	}

	bw, releaseWriter := acquirePackWriter(out, w.opts.WriterBufferSize)
	defer releaseWriter()

	// Counts and sizes below are bounded by the dataStart check above.
	hdr := fileHeader{
		version:     formatVersion,
		entryCount:  uint32(len(plan)), //nolint:gosec // bounded
		indexOffset: headerSize,
		indexSize:   uint32(indexSize), //nolint:gosec // bounded
		dataOffset:  uint32(dataStart), //nolint:gosec // bounded
	}

	if _, err := bw.Write(encodeHeader(hdr)); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	var placeholder [recordSize]byte
	for range plan {
		if _, err := bw.Write(placeholder[:]); err != nil {
			return nil, fmt.Errorf("write index placeholder: %w", err)
		}
	}

	if _, err := bw.Write(nameTable); err != nil {
		return nil, fmt.Errorf("write name table: %w", err)
	}

	copyBuf, releaseCopyBuffer := acquirePackCopyBuffer()
	defer releaseCopyBuffer()

	written := make([]writtenEntry, 0, len(plan))
	var (
		currentOffset     uint32
		namedEntries      int
		compressedEntries int
	)

	for _, item := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		limit := maxFARCData - dataStart - int64(currentOffset)

		var (
			record writtenEntry
			err    error
		)
		if item.source != nil {
			record, err = writeSourcePackedPayload(bw, item, limit, copyBuf)
		} else {
			record, err = writeInputEntryPayload(bw, item, policy, limit, copyBuf)
		}
		if err != nil {
			return nil, err
		}

		record.offset = currentOffset
		written = append(written, record)

		if item.id.IsNamed() {
			namedEntries++
		}
		if record.originalSize != 0 {
			compressedEntries++
		}

		if w.opts.OnEntryDone != nil {
			w.opts.OnEntryDone(PackEntryProgress{
				ID:           item.id,
				Offset:       currentOffset,
				DataSize:     record.dataSize,
				OriginalSize: record.originalSize,
				Compressed:   record.originalSize != 0,
			})
		}

		currentOffset += record.dataSize
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush payloads: %w", err)
	}

	hdr.dataSize = currentOffset
	if err := patchIndex(out, base, hdr, plan, nameOffsets, written); err != nil {
		return nil, err
	}

	if _, err := out.Seek(base+dataStart+int64(currentOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek archive end: %w", err)
	}

	return &PackResult{
		WrittenEntries:    len(written),
		NamedEntries:      namedEntries,
		DataSize:          int64(currentOffset),
		IndexSize:         indexSize,
		CompressedEntries: compressedEntries,
		Duration:          time.Since(startedAt),
	}, nil
}

// patchIndex rewrites header and index records after payload sizes are known.
func patchIndex(
	out io.WriteSeeker,
	base int64,
	hdr fileHeader,
	plan []pendingEntry,
	nameOffsets []uint32,
	written []writtenEntry,
) error {
	if _, err := out.Seek(base, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}

	buf := make([]byte, 0, headerSize+len(plan)*recordSize)
	buf = append(buf, encodeHeader(hdr)...)
	for i, item := range plan {
		buf = binary.LittleEndian.AppendUint32(buf, nameOffsets[i])
		buf = binary.LittleEndian.AppendUint32(buf, item.id.Hash())
		buf = binary.LittleEndian.AppendUint32(buf, written[i].offset)
		buf = binary.LittleEndian.AppendUint32(buf, written[i].dataSize)
		buf = binary.LittleEndian.AppendUint32(buf, written[i].originalSize)
	}

	if _, err := out.Write(buf); err != nil {
		return fmt.Errorf("patch index: %w", err)
	}

	return nil
}

// encodeHeader returns 32-byte little-endian header.
func encodeHeader(hdr fileHeader) []byte {
	buf := make([]byte, 0, headerSize)
	buf = append(buf, headerMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, hdr.version)
	buf = binary.LittleEndian.AppendUint32(buf, hdr.flags)
	buf = binary.LittleEndian.AppendUint32(buf, hdr.entryCount)
	buf = binary.LittleEndian.AppendUint32(buf, hdr.indexOffset)
	buf = binary.LittleEndian.AppendUint32(buf, hdr.indexSize)
	buf = binary.LittleEndian.AppendUint32(buf, hdr.dataOffset)
	buf = binary.LittleEndian.AppendUint32(buf, hdr.dataSize)

	return buf
}

// buildNameTable lays out NUL-terminated names of named entries in plan order.
func buildNameTable(plan []pendingEntry) ([]byte, []uint32, error) {
	var table bytes.Buffer
	offsets := make([]uint32, len(plan))
	for i, item := range plan {
		name, ok := item.id.Name()
		if !ok {
			offsets[i] = noNameOffset
			continue
		}

		if int64(table.Len())+int64(len(name))+1 >= noNameOffset {
			return nil, nil, fmt.Errorf("%w: name table", ErrSizeOverflow)
		}

		offsets[i] = uint32(table.Len()) //nolint:gosec // bounded above
		table.WriteString(name)
		table.WriteByte(0)
	}

	return table.Bytes(), offsets, nil
}

// acquirePackWriter returns a buffered writer and release callback for Serialize.
func acquirePackWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultPackWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultPackWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// acquirePackCopyBuffer returns reusable payload copy buffer and release callback.
func acquirePackCopyBuffer() ([]byte, func()) {
	arr := defaultPackCopyBufferPool.Get().(*[packCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	buf := arr[:]

	return buf, func() {
		defaultPackCopyBufferPool.Put(arr)
	}
}

// writeInputEntryPayload opens and writes one input-backed entry.
func writeInputEntryPayload(
	dst io.Writer,
	item pendingEntry,
	policy *compressPolicy,
	limit int64,
	copyBuf []byte,
) (writtenEntry, error) {
	in := *item.input
	useCompression := policy.wantsInput(in, limit)

	rc, err := in.Open()
	if err != nil {
		return writtenEntry{}, fmt.Errorf("open input %s: %w", in.ID, err)
	}

	var record writtenEntry
	if useCompression {
		record, err = writeCompressedCandidatePayload(dst, rc, in, policy, limit, copyBuf)
	} else {
		record, err = writeUncompressedPayload(dst, rc, in.ID, limit, copyBuf)
	}

	closeErr := rc.Close()
	if err != nil {
		return writtenEntry{}, err
	}
	if closeErr != nil {
		return writtenEntry{}, fmt.Errorf("close input %s: %w", in.ID, closeErr)
	}

	return record, nil
}

// writeUncompressedPayload streams payload directly into destination.
func writeUncompressedPayload(dst io.Writer, src io.Reader, id Identifier, limit int64, copyBuf []byte) (writtenEntry, error) {
	streamed, err := copyPayloadBounded(dst, src, limit, copyBuf)
	if err != nil {
		return writtenEntry{}, fmt.Errorf("stream input %s: %w", id, err)
	}

	dataSize, err := checkedDataSize(id, streamed, limit)
	if err != nil {
		return writtenEntry{}, err
	}

	return writtenEntry{dataSize: dataSize}, nil
}

// writeCompressedCandidatePayload reads candidate into memory and stores LZSS output when smaller.
func writeCompressedCandidatePayload(
	dst io.Writer,
	src io.Reader,
	in Input,
	policy *compressPolicy,
	limit int64,
	copyBuf []byte,
) (writtenEntry, error) {
	maxBuffered := min(limit, int64(policy.maxSize))
	raw, err := readPayloadBounded(io.LimitReader(src, maxBuffered+1), maxBuffered+1, in.SizeHint, copyBuf)
	if err != nil {
		return writtenEntry{}, fmt.Errorf("stream input %s: %w", in.ID, err)
	}

	originalSize, err := checkedDataSize(in.ID, int64(len(raw)), limit)
	if err != nil {
		return writtenEntry{}, err
	}

	// Source grew past the compression bound after SizeHint was taken.
	if int64(len(raw)) > maxBuffered {
		return writeOversizedCandidate(dst, src, in.ID, raw, limit, copyBuf)
	}

	packed, ok, err := policy.encode(raw)
	if err != nil {
		return writtenEntry{}, fmt.Errorf("compress %s: %w", in.ID, err)
	}

	record := writtenEntry{dataSize: originalSize}
	payload := raw
	if ok {
		record.dataSize = uint32(len(packed)) //nolint:gosec // smaller than originalSize
		record.originalSize = originalSize
		payload = packed
	}

	if _, err := dst.Write(payload); err != nil {
		return writtenEntry{}, fmt.Errorf("write payload %s: %w", in.ID, err)
	}

	return record, nil
}

// writeOversizedCandidate stores an already buffered head and the rest of
// src uncompressed.
func writeOversizedCandidate(dst io.Writer, src io.Reader, id Identifier, head []byte, limit int64, copyBuf []byte) (writtenEntry, error) {
	if _, err := dst.Write(head); err != nil {
		return writtenEntry{}, fmt.Errorf("write payload %s: %w", id, err)
	}

	rest, err := copyPayloadBounded(dst, src, limit-int64(len(head)), copyBuf)
	if err != nil {
		return writtenEntry{}, fmt.Errorf("stream input %s: %w", id, err)
	}

	dataSize, err := checkedDataSize(id, int64(len(head))+rest, limit)
	if err != nil {
		return writtenEntry{}, err
	}

	return writtenEntry{dataSize: dataSize}, nil
}

// writeSourcePackedPayload copies already stored bytes from source archive.
func writeSourcePackedPayload(dst io.Writer, item pendingEntry, limit int64, copyBuf []byte) (writtenEntry, error) {
	entry := *item.source
	size := int64(entry.DataSize)
	dataSize, err := checkedDataSize(item.id, size, limit)
	if err != nil {
		return writtenEntry{}, err
	}

	sr := io.NewSectionReader(item.src, int64(entry.Offset), size)
	written, err := copyPayloadBounded(dst, sr, size, copyBuf)
	if err != nil {
		return writtenEntry{}, fmt.Errorf("copy stored entry %s: %w", item.id, err)
	}
	if written != size {
		return writtenEntry{}, fmt.Errorf("copy stored entry %s: short read (%d/%d)", item.id, written, size)
	}

	return writtenEntry{
		dataSize:     dataSize,
		originalSize: entry.OriginalSize,
	}, nil
}

// readPayloadBounded reads whole payload into memory with strict max-size enforcement.
func readPayloadBounded(src io.Reader, limit int64, sizeHint int64, copyBuf []byte) ([]byte, error) {
	var dst bytes.Buffer
	if sizeHint > 0 && sizeHint <= limit {
		dst.Grow(int(sizeHint))
	}

	if _, err := copyPayloadBounded(&dst, src, limit, copyBuf); err != nil {
		return nil, err
	}

	return dst.Bytes(), nil
}

// copyPayloadBounded streams payload from src to dst and enforces strict size limit.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}
	if limit < 0 {
		return 0, ErrSizeOverflow
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		if remaining := limit - written; int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}

			continue
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return written, readErr
		}
	}

	// Source exactly at the limit is probed for one extra byte.
	if written == limit {
		var probe [1]byte
		n, err := src.Read(probe[:])
		if n > 0 {
			return written, ErrSizeOverflow
		}
		if err != nil && err != io.EOF {
			return written, err
		}
	}

	return written, nil
}

// checkedDataSize validates entry size against uint32 fields and remaining space.
func checkedDataSize(id Identifier, size int64, limit int64) (uint32, error) {
	if size < 0 || size > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: entry %s size %d is out of uint32 range", ErrSizeOverflow, id, size)
	}
	if size > limit {
		return 0, fmt.Errorf("%w: entry %s size would exceed 4 GiB", ErrSizeOverflow, id)
	}

	return uint32(size), nil
}

// validateUniqueIdentifiers ensures sorted plan has no two entries with one final hash.
func validateUniqueIdentifiers(plan []pendingEntry) error {
	for i := 1; i < len(plan); i++ {
		if plan[i].id.Hash() == plan[i-1].id.Hash() {
			return fmt.Errorf("%w: %s conflicts with %s (hash 0x%08x)",
				ErrDuplicateIdentifier, plan[i].id, plan[i-1].id, plan[i].id.Hash())
		}
	}

	return nil
}

// bytesInput wraps in-memory payload as Input.
func bytesInput(id Identifier, data []byte) Input {
	return Input{
		ID:       id,
		SizeHint: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
