// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractCopyBufferPool reuses copy buffers across extraction workers.
var extractCopyBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, extractCopyBufferSize)
		return &buf
	},
}

// extractWorkItem stores one selected entry with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	entry   EntryInfo
}

// Extract writes selected entries to dstDir. Named entries use their
// (sanitized unless RawNames) name, hash-only entries use PlaceholderName.
// Extraction is parallelized by MaxWorkers; the first error cancels the
// remaining work and is returned.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	entries := opts.Entries
	if entries == nil {
		entries = r.Entries()
	}
	if len(entries) == 0 {
		return nil
	}

	fileMode := opts.FileMode
	if fileMode == "" {
		fileMode = ExtractFileModeTruncate
	}

	workItems, err := prepareExtractWorkItems(entries, opts.RawNames)
	if err != nil {
		return err
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := createExtractDirs(dstRootAbs, workItems); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, task := range workItems {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			return r.extractPreparedEntry(gctx, dstRootAbs, task, fileMode, opts.OnEntryDone)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// prepareExtractWorkItems resolves output relative paths for selected entries.
// Hash-only entries claim their placeholder names first, so a named entry
// spelled like a placeholder is the one renamed (or rejected with RawNames).
func prepareExtractWorkItems(entries []EntryInfo, rawNames bool) ([]extractWorkItem, error) {
	var (
		names *outputNames
		seen  map[string]struct{}
	)
	if rawNames {
		seen = make(map[string]struct{}, len(entries))
	} else {
		names = newOutputNames(len(entries))
	}

	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, func(a, b EntryInfo) int {
		return cmp.Compare(namedRank(a.ID), namedRank(b.ID))
	})

	workItems := make([]extractWorkItem, 0, len(ordered))
	for _, entry := range ordered {
		relSlash, err := extractRelativePath(entry.ID, names)
		if err == nil && seen != nil {
			if _, dup := seen[relSlash]; dup {
				err = fmt.Errorf("%w: %q is produced by more than one entry", ErrInvalidExtractPath, relSlash)
			}
			seen[relSlash] = struct{}{}
		}
		if err != nil {
			return nil, fmt.Errorf("output path for %s: %w", DisplayName(entry.ID), err)
		}

		relPath := filepath.FromSlash(relSlash)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			entry:   entry,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return workItems, nil
}

func namedRank(id Identifier) int {
	if id.IsNamed() {
		return 1
	}

	return 0
}

// extractRelativePath returns slash-separated output path for one identifier.
// A nil names set keeps raw names and only rejects unsafe ones.
func extractRelativePath(id Identifier, names *outputNames) (string, error) {
	name := id.matchName()
	if names == nil {
		return normalizeExtractEntryPath(name)
	}

	relative, err := normalizeExtractEntryPath(name)
	if err != nil {
		relative = strings.ReplaceAll(name, `\`, `/`)
	}

	unique, err := names.claim(safeRelativePath(relative))
	if err != nil {
		return "", err
	}

	return normalizeExtractEntryPath(unique)
}

// createExtractDirs creates every distinct parent directory once.
func createExtractDirs(root string, workItems []extractWorkItem) error {
	dirs := make(map[string]struct{})
	for _, task := range workItems {
		if task.relDir != "" {
			dirs[task.relDir] = struct{}{}
		}
	}

	for dir := range dirs {
		full := filepath.Join(root, dir)
		if err := os.MkdirAll(full, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", full, err)
		}
	}

	return nil
}

// extractPreparedEntry writes one prepared work item to destination root.
func (r *Reader) extractPreparedEntry(
	ctx context.Context,
	dstRootAbs string,
	task extractWorkItem,
	fileMode ExtractFileMode,
	onEntryDone func(entry EntryInfo, written int64, outputPath string),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)

	rc, err := r.openEntryByInfo(task.entry)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	file, err := openExtractFile(outPath, fileMode)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.entry.ID, err)
	}

	bufPtr := extractCopyBufferPool.Get().(*[]byte)
	written, copyErr := io.CopyBuffer(file, rc, *bufPtr)
	extractCopyBufferPool.Put(bufPtr)

	closeErr := file.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", task.entry.ID, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", task.entry.ID, closeErr)
	}

	if want := int64(task.entry.Size()); written != want {
		return fmt.Errorf("%w: %s wrote %d bytes, want %d", ErrCorruptEntry, task.entry.ID, written, want)
	}

	if onEntryDone != nil {
		onEntryDone(task.entry, written, outPath)
	}

	return nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	switch mode {
	case ExtractFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// normalizeExtractEntryPath returns p in clean slash form, rejecting
// absolute, drive-rooted and parent-escaping paths.
func normalizeExtractEntryPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, `/`)
	if p == "" || strings.IndexByte(p, 0) >= 0 || p[0] == '/' || hasDriveRoot(p) {
		return "", ErrInvalidExtractPath
	}

	kept := make([]string, 0, strings.Count(p, "/")+1)
	for seg := range strings.SplitSeq(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			return "", ErrInvalidExtractPath
		default:
			kept = append(kept, seg)
		}
	}
	if len(kept) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(kept, "/"), nil
}

// hasDriveRoot reports a "C:/" style prefix.
func hasDriveRoot(p string) bool {
	if len(p) < 3 || p[1] != ':' || p[2] != '/' {
		return false
	}

	c := p[0] | 0x20
	return c >= 'a' && c <= 'z'
}
