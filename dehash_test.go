package farc

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashOnlyReader builds in-memory reader with hash-only entries named by names.
func hashOnlyReader(t *testing.T, names ...string) *Reader {
	t.Helper()

	w := NewWriter(PackOptions{})
	for _, name := range names {
		require.NoError(t, w.AddHashed(HashName(name), []byte("payload of "+name)))
	}

	var out memWriteSeeker
	_, err := w.Serialize(t.Context(), &out)
	require.NoError(t, err)

	r, err := NewReaderFromReaderAt(bytes.NewReader(out.buf), int64(len(out.buf)))
	require.NoError(t, err)
	return r
}

func TestRecoverCandidates(t *testing.T) {
	t.Parallel()

	r := hashOnlyReader(t, "greeting", "greeting2", "other")

	res, err := RecoverCandidates(r, strings.NewReader("greeting\r\n\nunknown\ngreeting2\n"))
	require.NoError(t, err)

	assert.Equal(t, RecoverResult{Candidates: 3, Promoted: 2, Remaining: 1}, res)
	assert.Equal(t, []string{"greeting", "greeting2"}, slices.Collect(r.Names()))
	assert.Equal(t, []uint32{HashName("other")}, slices.Collect(r.UnresolvedHashes()))

	data, err := r.ReadNamed("greeting2")
	require.NoError(t, err)
	assert.Equal(t, "payload of greeting2", string(data))
}

func TestRecoverCandidatesFirstMatchWins(t *testing.T) {
	t.Parallel()

	r := hashOnlyReader(t, "akrpnryykm")

	res, err := RecoverCandidates(r, strings.NewReader("qjtppzjhvo\nakrpnryykm\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)

	_, ok := r.LookupName("qjtppzjhvo")
	assert.True(t, ok, "first colliding candidate must win")
	_, ok = r.LookupName("akrpnryykm")
	assert.False(t, ok)
}

func TestRecoverCandidatesIsMonotonic(t *testing.T) {
	t.Parallel()

	r := hashOnlyReader(t, "greeting", "other")

	_, err := RecoverCandidates(r, strings.NewReader("greeting"))
	require.NoError(t, err)

	// a second pass cannot unname or rename
	res, err := RecoverCandidates(r, strings.NewReader("greeting\nother\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, []string{"greeting", "other"}, slices.Collect(r.Names()))
	assert.Equal(t, r.EntryCount(), r.NamedCount()+r.UnresolvedCount())
}

func TestRecoverCandidatesBOMAndCRLF(t *testing.T) {
	t.Parallel()

	r := hashOnlyReader(t, "greeting")

	res, err := RecoverCandidates(r, strings.NewReader("\uFEFFgreeting\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)
}

func TestRecoverCandidatesSourceError(t *testing.T) {
	t.Parallel()

	r := hashOnlyReader(t, "greeting", "other")
	readErr := errors.New("disk gone")
	list := io.MultiReader(strings.NewReader("greeting\n"), iotest.ErrReader(readErr))

	res, err := RecoverCandidates(r, list)
	require.ErrorIs(t, err, ErrDehashSource)
	require.ErrorIs(t, err, readErr)

	assert.Equal(t, 1, res.Promoted)
	_, ok := r.LookupName("greeting")
	assert.True(t, ok, "promotions before the failure are kept")
}

func TestMessageStrategyCompanionListName(t *testing.T) {
	t.Parallel()

	var s MessageStrategy
	testCases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "message_us.bin", want: "message_us.lst", wantOK: true},
		{in: "message.BIN", want: "message.lst", wantOK: true},
		{in: "message.dat", wantOK: false},
		{in: ".bin", wantOK: false},
	}

	for _, tc := range testCases {
		got, ok := s.CompanionListName(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestRecoverArchiveFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "message_us.bin")

	w := NewWriter(PackOptions{})
	for _, name := range []string{"other", "greeting", "greeting2"} {
		require.NoError(t, w.AddHashed(HashName(name), []byte(name)))
	}
	_, err := w.SerializeFile(t.Context(), archivePath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "message_us.lst"), []byte("greeting\ngreeting2\n"), 0o600))

	r, err := Open(archivePath)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	res, tag, err := RecoverArchiveFile(r, archivePath, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyMessage, tag)
	assert.Equal(t, 2, res.Promoted)
	assert.Equal(t, 1, r.UnresolvedCount())

	for _, name := range []string{"greeting", "greeting2"} {
		data, err := r.ReadNamed(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(data))
	}

	listPath, err := CompanionListPath(archivePath, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "message_us.lst"), listPath)
}

func TestRecoverArchiveFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := hashOnlyReader(t, "greeting")

	_, _, err := RecoverArchiveFile(r, filepath.Join(dir, "pokemon_graphic.bin"), nil)
	require.ErrorIs(t, err, ErrNoStrategy)

	_, tag, err := RecoverArchiveFile(r, filepath.Join(dir, "message_us.bin"), nil)
	require.ErrorIs(t, err, ErrDehashSource)
	assert.Equal(t, StrategyMessage, tag)
	assert.Equal(t, 1, r.UnresolvedCount())
}

// suffixStrategy reads lists named "<archive>.names".
type suffixStrategy struct{}

func (suffixStrategy) Tag() StrategyTag { return "suffix-test" }

func (suffixStrategy) CompanionListName(name string) (string, bool) { return name + ".names", true }

func (suffixStrategy) Recover(r *Reader, list io.Reader) (RecoverResult, error) {
	return RecoverCandidates(r, list)
}

// taglessStrategy cannot be registered.
type taglessStrategy struct{ suffixStrategy }

func (taglessStrategy) Tag() StrategyTag { return "" }

func TestRegisterStrategy(t *testing.T) {
	t.Parallel()

	require.NoError(t, RegisterStrategy(suffixStrategy{}))
	require.ErrorIs(t, RegisterStrategy(nil), ErrInvalidStrategy)
	require.ErrorIs(t, RegisterStrategy(taglessStrategy{}), ErrInvalidStrategy)

	got, ok := LookupStrategy("suffix-test")
	require.True(t, ok)
	assert.Equal(t, StrategyTag("suffix-test"), got.Tag())

	c, err := NewClassifier(append(DefaultRules(), ClassifierRule{Pattern: "*.farc", Strategy: "suffix-test"}))
	require.NoError(t, err)

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "ui.farc")
	require.NoError(t, os.WriteFile(archivePath+".names", []byte("greeting\n"), 0o600))

	r := hashOnlyReader(t, "greeting")
	res, tag, err := RecoverArchiveFile(r, archivePath, c)
	require.NoError(t, err)
	assert.Equal(t, StrategyTag("suffix-test"), tag)
	assert.Equal(t, 1, res.Promoted)
}
