// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"fmt"
	"io"
	"math"

	"github.com/woozymasta/lzss"
)

// OpenNamed opens named entry for reading.
// Returned stream yields exactly the entry content (decoded for LZSS entries).
func (r *Reader) OpenNamed(name string) (io.ReadCloser, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	info, ok := r.LookupName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}

	return r.openEntryByInfo(info)
}

// OpenHashed opens hash-only entry for reading.
func (r *Reader) OpenHashed(hash uint32) (io.ReadCloser, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	info, ok := r.LookupHash(hash)
	if !ok {
		return nil, fmt.Errorf("%w: hash 0x%08x", ErrEntryNotFound, hash)
	}

	return r.openEntryByInfo(info)
}

// OpenEntryInfo opens entry stream by already resolved metadata.
func (r *Reader) OpenEntryInfo(info EntryInfo) (io.ReadCloser, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	return r.openEntryByInfo(info)
}

// ReadNamed reads full content of the named entry.
func (r *Reader) ReadNamed(name string) ([]byte, error) {
	rc, err := r.OpenNamed(name)
	if err != nil {
		return nil, err
	}

	return readAllAndClose(rc)
}

// ReadHashed reads full content of the hash-only entry.
func (r *Reader) ReadHashed(hash uint32) ([]byte, error) {
	rc, err := r.OpenHashed(hash)
	if err != nil {
		return nil, err
	}

	return readAllAndClose(rc)
}

// openEntryByInfo opens payload stream for already resolved entry metadata.
func (r *Reader) openEntryByInfo(info EntryInfo) (io.ReadCloser, error) {
	sr := io.NewSectionReader(r.ra, int64(info.Offset), int64(info.DataSize))
	if !info.IsCompressed() {
		return io.NopCloser(sr), nil
	}

	outLen, err := checkedUint32ToInt(info.OriginalSize)
	if err != nil {
		return nil, fmt.Errorf("resolve output size for %s: %w", info.ID, err)
	}

	pr, pw := io.Pipe()
	go streamDecompressEntry(info.ID.String(), pw, sr, outLen)

	return pr, nil
}

// readAllAndClose drains and closes entry stream.
func readAllAndClose(rc io.ReadCloser) ([]byte, error) {
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

// streamDecompressEntry decodes one compressed entry stream into pipe writer.
func streamDecompressEntry(name string, dst *io.PipeWriter, src io.Reader, outLen int) {
	_, err := lzss.DecompressToWriter(dst, src, outLen, nil)
	if err != nil {
		_ = dst.CloseWithError(fmt.Errorf("decompress entry %s: %w", name, err))
		return
	}

	_ = dst.Close()
}

// checkedUint32ToInt converts uint32 to int with platform-safe overflow check.
func checkedUint32ToInt(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, ErrSizeOverflow
	}

	return int(v), nil
}
