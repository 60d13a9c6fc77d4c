package farc

import (
	"bytes"
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"testing"
)

func TestOpenReadsNamedAndHashedEntries(t *testing.T) {
	t.Parallel()

	r, err := Open(writeSampleArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	if r.EntryCount() != 2 || r.NamedCount() != 1 || r.UnresolvedCount() != 1 {
		t.Fatalf("counts=%d/%d/%d, want 2/1/1", r.EntryCount(), r.NamedCount(), r.UnresolvedCount())
	}

	data, err := r.ReadNamed("a.txt")
	if err != nil {
		t.Fatalf("ReadNamed: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadNamed=%q, want hello", data)
	}

	data, err = r.ReadHashed(0xDEADBEEF)
	if err != nil {
		t.Fatalf("ReadHashed: %v", err)
	}
	if string(data) != "world" {
		t.Fatalf("ReadHashed=%q, want world", data)
	}

	if got := slices.Collect(r.Names()); !slices.Equal(got, []string{"a.txt"}) {
		t.Fatalf("Names=%v, want [a.txt]", got)
	}
	if got := slices.Collect(r.UnresolvedHashes()); !slices.Equal(got, []uint32{0xDEADBEEF}) {
		t.Fatalf("UnresolvedHashes=%x, want [deadbeef]", got)
	}

	// restartable
	if got := slices.Collect(r.Names()); len(got) != 1 {
		t.Fatalf("second Names pass len=%d, want 1", len(got))
	}
}

func TestOpenMissingEntries(t *testing.T) {
	t.Parallel()

	r, err := Open(writeSampleArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	if _, err := r.OpenNamed("missing.txt"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("OpenNamed(missing) err=%v, want ErrEntryNotFound", err)
	}
	if _, err := r.OpenHashed(0x12345678); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("OpenHashed(missing) err=%v, want ErrEntryNotFound", err)
	}
	// named entries are not reachable through the hash set
	if _, err := r.OpenHashed(HashName("a.txt")); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("OpenHashed(named hash) err=%v, want ErrEntryNotFound", err)
	}
}

func TestReaderClosed(t *testing.T) {
	t.Parallel()

	r, err := Open(writeSampleArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := r.ReadNamed("a.txt"); !errors.Is(err, ErrClosed) {
		t.Fatalf("ReadNamed after Close err=%v, want ErrClosed", err)
	}
}

func TestNewReaderFromReaderAtNil(t *testing.T) {
	t.Parallel()

	if _, err := NewReaderFromReaderAt(nil, 0); !errors.Is(err, ErrNilReader) {
		t.Fatalf("err=%v, want ErrNilReader", err)
	}
}

func TestParseEmptyArchive(t *testing.T) {
	t.Parallel()

	raw := rawArchive(nil, nil, nil)
	r, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}
	if r.EntryCount() != 0 {
		t.Fatalf("EntryCount=%d, want 0", r.EntryCount())
	}
}

func TestParseInvalidHeader(t *testing.T) {
	t.Parallel()

	valid := rawArchive(nil, nil, nil)

	badMagic := bytes.Clone(valid)
	copy(badMagic, "FARX")

	badVersion := bytes.Clone(valid)
	badVersion[4] = 2

	overlapping := bytes.Clone(valid)
	overlapping[16] = 8

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short", data: valid[:headerSize-1]},
		{name: "magic", data: badMagic},
		{name: "version", data: badVersion},
		{name: "index offset", data: overlapping},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewReaderFromReaderAt(bytes.NewReader(tc.data), int64(len(tc.data)))
			if !errors.Is(err, ErrInvalidHeader) {
				t.Fatalf("err=%v, want ErrInvalidHeader", err)
			}
		})
	}
}

func TestParseUnexpectedEOF(t *testing.T) {
	t.Parallel()

	valid := rawArchive(
		[]rawRecord{{nameOffset: noNameOffset, hash: 1, dataSize: 4}},
		nil,
		[]byte("data"),
	)

	tooManyRecords := bytes.Clone(valid)
	tooManyRecords[12] = 9

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "truncated data", data: valid[:len(valid)-1]},
		{name: "truncated index", data: valid[:headerSize+recordSize-1]},
		{name: "count beyond index", data: tooManyRecords},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewReaderFromReaderAt(bytes.NewReader(tc.data), int64(len(tc.data)))
			if !errors.Is(err, ErrUnexpectedEOF) {
				t.Fatalf("err=%v, want ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestParseCorruptEntry(t *testing.T) {
	t.Parallel()

	nameHash := HashName("a.txt")
	testCases := []struct {
		name    string
		records []rawRecord
		names   []byte
		data    []byte
	}{
		{
			name:    "payload outside data region",
			records: []rawRecord{{nameOffset: noNameOffset, hash: 1, offset: 2, dataSize: 4}},
			data:    []byte("data"),
		},
		{
			name:    "name offset outside table",
			records: []rawRecord{{nameOffset: 40, hash: nameHash}},
			names:   []byte("a.txt\x00"),
		},
		{
			name:    "unterminated name",
			records: []rawRecord{{nameOffset: 0, hash: nameHash}},
			names:   []byte("a.txt"),
		},
		{
			name: "duplicate hash",
			records: []rawRecord{
				{nameOffset: noNameOffset, hash: 7},
				{nameOffset: noNameOffset, hash: 7},
			},
		},
		{
			name:    "named hash mismatch",
			records: []rawRecord{{nameOffset: 0, hash: nameHash + 1}},
			names:   []byte("a.txt\x00"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			raw := rawArchive(tc.records, tc.names, tc.data)
			_, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
			if !errors.Is(err, ErrCorruptEntry) {
				t.Fatalf("err=%v, want ErrCorruptEntry", err)
			}
		})
	}
}

func TestPromote(t *testing.T) {
	t.Parallel()

	greeting := HashName("greeting")
	raw := rawArchive(
		[]rawRecord{
			{nameOffset: 0, hash: HashName("a.txt"), offset: 0, dataSize: 5},
			{nameOffset: noNameOffset, hash: greeting, offset: 5, dataSize: 2},
			{nameOffset: noNameOffset, hash: 0xDEADBEEF, offset: 7, dataSize: 5},
		},
		[]byte("a.txt\x00"),
		[]byte("hellohiworld"),
	)

	r, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	if err := r.Promote(greeting, "greeting2"); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("mismatch err=%v, want ErrHashMismatch", err)
	}
	if err := r.Promote(HashName("a.txt"), "a.txt"); !errors.Is(err, ErrAlreadyNamed) {
		t.Fatalf("already named err=%v, want ErrAlreadyNamed", err)
	}
	if err := r.Promote(HashName("other"), "other"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("unknown err=%v, want ErrEntryNotFound", err)
	}

	if err := r.Promote(greeting, "greeting"); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if err := r.Promote(greeting, "greeting"); !errors.Is(err, ErrAlreadyNamed) {
		t.Fatalf("second Promote err=%v, want ErrAlreadyNamed", err)
	}

	if r.NamedCount()+r.UnresolvedCount() != r.EntryCount() {
		t.Fatalf("named %d + unresolved %d != total %d", r.NamedCount(), r.UnresolvedCount(), r.EntryCount())
	}
	if got := slices.Collect(r.Names()); !slices.Equal(got, []string{"a.txt", "greeting"}) {
		t.Fatalf("Names=%v, want [a.txt greeting]", got)
	}
	if r.IsUnresolved(greeting) {
		t.Fatal("promoted hash must leave the hash set")
	}

	data, err := r.ReadNamed("greeting")
	if err != nil {
		t.Fatalf("ReadNamed: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("ReadNamed=%q, want hi", data)
	}
	if _, err := r.ReadHashed(greeting); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("ReadHashed(promoted) err=%v, want ErrEntryNotFound", err)
	}
}

func TestPromoteRejectsUnstorableNames(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		candidate string
	}{
		{name: "empty", candidate: ""},
		{name: "nul", candidate: "a\x00b"},
		{name: "too long", candidate: strings.Repeat("n", 2000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			hash := HashName(tc.candidate)
			w := NewWriter(PackOptions{})
			if err := w.AddHashed(hash, []byte("payload")); err != nil {
				t.Fatalf("AddHashed: %v", err)
			}

			var out memWriteSeeker
			if _, err := w.Serialize(t.Context(), &out); err != nil {
				t.Fatalf("Serialize: %v", err)
			}

			r, err := NewReaderFromReaderAt(bytes.NewReader(out.buf), int64(len(out.buf)))
			if err != nil {
				t.Fatalf("NewReaderFromReaderAt: %v", err)
			}

			if err := r.Promote(hash, tc.candidate); !errors.Is(err, ErrInvalidName) {
				t.Fatalf("Promote err=%v, want ErrInvalidName", err)
			}
			if !r.IsUnresolved(hash) || r.NamedCount() != 0 {
				t.Fatal("rejected promotion must leave the entry unresolved")
			}
		})
	}
}

func TestLookupByIdentifier(t *testing.T) {
	t.Parallel()

	r, err := Open(writeSampleArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	info, ok := r.Lookup(Named("a.txt"))
	if !ok || info.Size() != 5 {
		t.Fatalf("Lookup(a.txt)=%+v,%v", info, ok)
	}
	info, ok = r.Lookup(Hashed(0xDEADBEEF))
	if !ok || info.ID != Hashed(0xDEADBEEF) {
		t.Fatalf("Lookup(0xDEADBEEF)=%+v,%v", info, ok)
	}
	if _, ok := r.Lookup(Named("missing")); ok {
		t.Fatal("Lookup(missing) must fail")
	}
	if _, ok := r.Lookup(Hashed(HashName("a.txt"))); ok {
		t.Fatal("named entry must not be reachable through the hash set")
	}
}

func TestOpenEntryStreamIsBounded(t *testing.T) {
	t.Parallel()

	path := writeSampleArchive(t)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	rc, err := r.OpenNamed("a.txt")
	if err != nil {
		t.Fatalf("OpenNamed: %v", err)
	}
	defer func() { _ = rc.Close() }()

	buf := make([]byte, 64)
	n, err := io.ReadFull(rc, buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadFull err=%v, want io.ErrUnexpectedEOF", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("stream=%q, want hello", buf[:n])
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() <= int64(n) {
		t.Fatalf("archive size %d must exceed entry size %d", fi.Size(), n)
	}
}

func TestListEntries(t *testing.T) {
	t.Parallel()

	entries, err := ListEntries(writeSampleArchive(t))
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries)=%d, want 2", len(entries))
	}

	// ascending hash order: a.txt (0x44380c0a) before 0xdeadbeef
	if entries[0].ID != Named("a.txt") || entries[1].ID != Hashed(0xDEADBEEF) {
		t.Fatalf("entries=%v,%v", entries[0].ID, entries[1].ID)
	}
	if entries[0].Size() != 5 || entries[1].Offset != entries[0].Offset+5 {
		t.Fatalf("unexpected layout %+v", entries)
	}
}
