// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

/*
Package farc reads, writes and repairs FARC game archives.

Every FARC entry is identified either by a literal name or by the 32-bit
checksum of a name nobody remembers. HashName computes that checksum
(CRC-32/IEEE over the UTF-16LE encoding of the name). A Reader keeps named
and hash-only entries in two disjoint sets; Promote moves an entry from the
hash set to the name set once a name hashing to its checksum is known.

# Reading

	r, err := farc.Open("message_us.bin")
	if err != nil {
	    return err
	}
	defer r.Close()

	for name := range r.Names() {
	    data, _ := r.ReadNamed(name)
	    _ = data
	}
	for hash := range r.UnresolvedHashes() {
	    data, _ := r.ReadHashed(hash)
	    _ = data
	}

# Recovering names

A Classifier maps archive file names to a recovery strategy. The built-in
"message" strategy reads candidate names from a sibling ".lst" file:

	res, tag, err := farc.RecoverArchiveFile(r, "message_us.bin", nil)
	if err != nil {
	    return err
	}
	fmt.Println(tag, res.Promoted, res.Remaining)

Candidate lists from other sources go through RecoverCandidates directly.
New archive types are added with NewClassifier(append(DefaultRules(), ...))
and RegisterStrategy.

# Writing

	w := farc.NewWriter(farc.PackOptions{})
	_ = w.AddNamed("a.txt", []byte("hello"))
	_ = w.AddHashed(0xDEADBEEF, []byte("world"))
	_, err = w.SerializeFile(ctx, "out.bin")

AddFromReader copies every entry of a parsed archive with its current
identifier, which persists promoted names:

	w := farc.NewWriter(farc.PackOptions{})
	if err := w.AddFromReader(r); err != nil {
	    return err
	}
	_, err = w.SerializeFile(ctx, "message_us.fixed.bin")

SerializeFile and PackFile write a temporary file next to the target and
rename it on success, so a failed write never leaves a truncated archive.

Compression rules (summary):
  - identifier must be included by PackOptions.Compress rules
    (hash-only entries match by their placeholder file name);
  - known size must be within [MinCompressSize, MaxCompressSize];
  - LZSS payload is kept only when smaller than the source.

# Extract and import

Extract writes hash-only entries as "<decimal hash>.bchunk" files.
ImportDir turns such files back into hash-only entries, so extract,
edit and repack round trips keep identifiers:

	_ = r.Extract(ctx, "out", farc.ExtractOptions{})
	inputs, err := farc.ImportDir("out", farc.ImportOptions{RetainNames: true})
	if err != nil {
	    return err
	}
	_, err = farc.PackFile(ctx, "repacked.bin", inputs, farc.PackOptions{})
*/
package farc
