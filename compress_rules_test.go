package farc

import (
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woozymasta/pathrules"
)

// includeRules builds include rules from raw patterns for concise test setup.
func includeRules(patterns ...string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		rules = append(rules, pathrules.Rule{
			Action:  pathrules.ActionInclude,
			Pattern: pattern,
		})
	}

	return rules
}

// memWriteSeeker is an in-memory io.WriteSeeker for Serialize tests.
type memWriteSeeker struct {
	buf []byte
	pos int64
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}

	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = m.pos + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("bad whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}

	m.pos = next
	return next, nil
}

// rawRecord is one index record for hand-built fixtures.
type rawRecord struct {
	nameOffset   uint32
	hash         uint32
	offset       uint32
	dataSize     uint32
	originalSize uint32
}

// rawArchive lays out header, records, name table and data without validation.
func rawArchive(records []rawRecord, names []byte, data []byte) []byte {
	indexSize := len(records)*recordSize + len(names)
	buf := encodeHeader(fileHeader{
		version:     formatVersion,
		entryCount:  uint32(len(records)),
		indexOffset: headerSize,
		indexSize:   uint32(indexSize),
		dataOffset:  uint32(headerSize + indexSize),
		dataSize:    uint32(len(data)),
	})

	for _, rec := range records {
		buf = binary.LittleEndian.AppendUint32(buf, rec.nameOffset)
		buf = binary.LittleEndian.AppendUint32(buf, rec.hash)
		buf = binary.LittleEndian.AppendUint32(buf, rec.offset)
		buf = binary.LittleEndian.AppendUint32(buf, rec.dataSize)
		buf = binary.LittleEndian.AppendUint32(buf, rec.originalSize)
	}

	buf = append(buf, names...)
	return append(buf, data...)
}

// writeSampleArchive writes "a.txt"=hello and 0xDEADBEEF=world to a temp file.
func writeSampleArchive(t *testing.T) string {
	t.Helper()

	w := NewWriter(PackOptions{})
	if err := w.AddNamed("a.txt", []byte("hello")); err != nil {
		t.Fatalf("AddNamed: %v", err)
	}
	if err := w.AddHashed(0xDEADBEEF, []byte("world")); err != nil {
		t.Fatalf("AddHashed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "sample.bin")
	if _, err := w.SerializeFile(t.Context(), path); err != nil {
		t.Fatalf("SerializeFile: %v", err)
	}

	return path
}
