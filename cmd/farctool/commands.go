// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/pathrules"

	"github.com/woozymasta/farc"
)

func runInfo(ctx context.Context, env *environment, args []string) error {
	var (
		g      globalFlags
		digest bool
	)
	flagSet := newFlagSet(env, "info", &g)
	flagSet.BoolVar(&digest, "digest", false, "print xxhash64 digest of every entry content")

	positional, err := parseArgs(env, flagSet, &g, args, 1, "info [flags] <archive>")
	if err != nil {
		return err
	}

	r, err := farc.Open(positional[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	fmt.Fprintf(env.stdout, "entries:    %d\n", r.EntryCount())
	fmt.Fprintf(env.stdout, "named:      %d\n", r.NamedCount())
	fmt.Fprintf(env.stdout, "unresolved: %d\n\n", r.UnresolvedCount())

	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	header := "ID\tHASH\tSIZE\tSTORED\tLZSS"
	if digest {
		header += "\tXXH64"
	}
	fmt.Fprintln(tw, header)

	for _, entry := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := fmt.Sprintf("%s\t%08x\t%d\t%d\t%t",
			farc.DisplayName(entry.ID), entry.ID.Hash(), entry.Size(), entry.DataSize, entry.IsCompressed())
		if digest {
			sum, err := entryDigest(r, entry)
			if err != nil {
				return err
			}
			line += "\t" + strconv.FormatUint(sum, 16)
		}
		fmt.Fprintln(tw, line)
	}

	return tw.Flush()
}

// entryDigest returns xxhash64 of decoded entry content.
func entryDigest(r *farc.Reader, entry farc.EntryInfo) (uint64, error) {
	rc, err := r.OpenEntryInfo(entry)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, rc); err != nil {
		return 0, fmt.Errorf("digest %s: %w", entry.ID, err)
	}

	return h.Sum64(), nil
}

func runExtract(ctx context.Context, env *environment, args []string) error {
	var (
		g          globalFlags
		rawNames   bool
		createOnly bool
		dehash     bool
		listPath   string
		workers    int
		include    []string
		prefix     string
		unresolved bool
	)
	flagSet := newFlagSet(env, "extract", &g)
	flagSet.BoolVar(&rawNames, "raw-names", false, "write entry names without sanitization")
	flagSet.BoolVar(&createOnly, "create-only", false, "fail instead of overwriting existing files")
	flagSet.BoolVar(&dehash, "dehash", false, "recover names before extraction")
	flagSet.StringVar(&listPath, "list", "", "candidate name list (implies --dehash)")
	flagSet.IntVarP(&workers, "workers", "j", 0, "extraction workers (0 uses config or GOMAXPROCS)")
	flagSet.StringSliceVar(&include, "include", nil, "extract only entries matching pattern (repeatable)")
	flagSet.StringVar(&prefix, "prefix", "", "extract only named entries under directory")
	flagSet.BoolVar(&unresolved, "unresolved-only", false, "extract only hash-only entries")

	positional, err := parseArgs(env, flagSet, &g, args, 2, "extract [flags] <archive> <dir>")
	if err != nil {
		return err
	}
	archivePath, outDir := positional[0], positional[1]

	r, err := farc.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	if dehash || listPath != "" {
		if _, err := recoverNames(env, r, archivePath, listPath); err != nil {
			if !errors.Is(err, farc.ErrNoStrategy) {
				return err
			}
			env.logger.Warn("name recovery skipped", "archive", archivePath, "reason", err)
		}
	}

	if workers == 0 {
		workers = env.config.Workers
	}

	opts := farc.ExtractOptions{
		MaxWorkers: workers,
		RawNames:   rawNames,
		FileMode:   farc.ExtractFileModeTruncate,
		OnEntryDone: func(entry farc.EntryInfo, written int64, outputPath string) {
			env.logger.Debug("entry extracted", "id", farc.DisplayName(entry.ID), "bytes", written, "path", outputPath)
			if renamed(entry.ID, outputPath) {
				env.logger.Warn("entry renamed on extract", "id", farc.DisplayName(entry.ID), "path", outputPath)
			}
		},
	}
	if createOnly {
		opts.FileMode = farc.ExtractFileModeCreateOnly
	}

	filter := farc.EntryFilter{Prefix: prefix}
	for _, pattern := range include {
		filter.Rules = append(filter.Rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	if unresolved {
		filter.Kind = farc.EntryKindUnresolved
	}
	if len(filter.Rules) > 0 || filter.Prefix != "" || filter.Kind != farc.EntryKindAny {
		opts.Entries, err = farc.FilterEntries(r.Entries(), filter)
		if err != nil {
			return err
		}
		env.logger.Debug("entries selected", "selected", len(opts.Entries), "total", r.EntryCount())
	}

	if err := r.Extract(ctx, outDir, opts); err != nil {
		return err
	}

	env.logger.Info("archive extracted",
		"archive", archivePath,
		"dir", outDir,
		"entries", r.EntryCount(),
		"unresolved", r.UnresolvedCount(),
	)
	return nil
}

func runDehash(ctx context.Context, env *environment, args []string) error {
	var (
		g          globalFlags
		listPath   string
		outputPath string
	)
	flagSet := newFlagSet(env, "dehash", &g)
	flagSet.StringVar(&listPath, "list", "", "candidate name list (default: companion list next to archive)")
	flagSet.StringVarP(&outputPath, "output", "o", "", "write archive with recovered names to this path")

	positional, err := parseArgs(env, flagSet, &g, args, 1, "dehash [flags] <archive>")
	if err != nil {
		return err
	}
	archivePath := positional[0]

	r, err := farc.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	res, err := recoverNames(env, r, archivePath, listPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.stdout, "candidates=%d promoted=%d remaining=%d\n", res.Candidates, res.Promoted, res.Remaining)

	if outputPath == "" {
		return nil
	}

	w := farc.NewWriter(env.config.PackOptions(nil))
	if err := w.AddFromReader(r); err != nil {
		return err
	}

	packed, err := w.SerializeFile(ctx, outputPath)
	if err != nil {
		return err
	}

	env.logger.Info("archive rewritten",
		"output", outputPath,
		"entries", packed.WrittenEntries,
		"named", packed.NamedEntries,
		"duration", packed.Duration,
	)
	return nil
}

// renamed reports whether a named entry was written under a file name other
// than its sanitized one.
func renamed(id farc.Identifier, outputPath string) bool {
	name, ok := id.Name()
	if !ok {
		return false
	}

	want, err := farc.SanitizeName(name)
	return err == nil && path.Base(want) != filepath.Base(outputPath)
}

// recoverNames runs name recovery from explicit list or archive companion list.
func recoverNames(env *environment, r *farc.Reader, archivePath, listPath string) (farc.RecoverResult, error) {
	var (
		res farc.RecoverResult
		tag farc.StrategyTag
		err error
	)

	if listPath != "" {
		f, openErr := os.Open(listPath)
		if openErr != nil {
			return res, fmt.Errorf("%w: %w", farc.ErrDehashSource, openErr)
		}
		defer func() { _ = f.Close() }()

		res, err = farc.RecoverCandidates(r, f)
	} else {
		classifier, classifierErr := env.config.ClassifierFor()
		if classifierErr != nil {
			return res, classifierErr
		}

		res, tag, err = farc.RecoverArchiveFile(r, archivePath, classifier)
	}

	if err != nil {
		if res.Promoted > 0 {
			env.logger.Warn("name recovery interrupted", "promoted", res.Promoted, "error", err)
		}
		return res, err
	}

	env.logger.Info("names recovered",
		"archive", archivePath,
		"strategy", string(tag),
		"candidates", res.Candidates,
		"promoted", res.Promoted,
		"remaining", res.Remaining,
	)
	return res, nil
}

func runPack(ctx context.Context, env *environment, args []string) error {
	var (
		g           globalFlags
		pattern     string
		retainNames bool
		compress    []string
	)
	flagSet := newFlagSet(env, "pack", &g)
	flagSet.StringVar(&pattern, "pattern", "**", "doublestar glob selecting files under dir")
	flagSet.BoolVar(&retainNames, "retain-names", false, "store literal file names instead of name hashes")
	flagSet.StringSliceVar(&compress, "compress", nil, "LZSS compression include pattern (repeatable)")

	positional, err := parseArgs(env, flagSet, &g, args, 2, "pack [flags] <dir> <archive>")
	if err != nil {
		return err
	}
	srcDir, archivePath := positional[0], positional[1]

	inputs, err := farc.ImportDir(srcDir, farc.ImportOptions{Pattern: pattern, RetainNames: retainNames})
	if err != nil {
		return err
	}

	opts := env.config.PackOptions(compress)
	opts.OnEntryDone = func(entry farc.PackEntryProgress) {
		env.logger.Debug("entry packed", "id", farc.DisplayName(entry.ID), "size", entry.DataSize, "lzss", entry.Compressed)
	}

	res, err := farc.PackFile(ctx, archivePath, inputs, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.stdout, "entries=%d named=%d compressed=%d data=%d index=%d\n",
		res.WrittenEntries, res.NamedEntries, res.CompressedEntries, res.DataSize, res.IndexSize)
	return nil
}
