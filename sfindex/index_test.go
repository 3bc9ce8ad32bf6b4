package sfindex

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildSample writes a tiny index with two pages and two users: Hello
// edited by Alice and Bob, World edited by Bob only.
func buildSample(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	helloOffset, err := w.WritePage([]byte("Hello"))
	require.NoError(t, err)
	worldOffset, err := w.WritePage([]byte("World"))
	require.NoError(t, err)

	aliceOffset, err := w.WritePostings([]uint32{uint32(helloOffset)})
	require.NoError(t, err)
	bobOffset, err := w.WritePostings([]uint32{uint32(helloOffset), uint32(worldOffset)})
	require.NoError(t, err)

	entries := []DictEntry{
		{User: "Alice", ListOffset: aliceOffset, EditCount: 1},
		{User: "Bob", ListOffset: bobOffset, EditCount: 2},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].User < entries[j].User })
	dictOffset, err := w.WriteDictionary(entries)
	require.NoError(t, err)

	require.NoError(t, w.WriteFooter(dictOffset))
	return buf.Bytes()
}

func TestWriteAndOpen(t *testing.T) {
	data := buildSample(t)
	require.Equal(t, byte('S'), data[0])
	require.Equal(t, byte('F'), data[1])

	r, err := Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer r.Close()

	aliceOffset, aliceCount, ok, err := r.Lookup([]byte("Alice"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), aliceCount)

	postings, err := r.ReadPostings(aliceOffset, aliceCount)
	require.NoError(t, err)
	require.Len(t, postings, 1)

	name, err := r.ReadPageName(uint64(postings[0]))
	require.NoError(t, err)
	require.Equal(t, "Hello", string(name))

	_, _, ok, err = r.Lookup([]byte("Ghost"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLayoutInvariant(t *testing.T) {
	data := buildSample(t)
	r, err := Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer r.Close()

	layout, err := r.Layout()
	require.NoError(t, err)
	require.True(t, layout.PageNamesOffset == HeaderSize)
	require.True(t, layout.PageNamesOffset <= layout.UserContribOffset)
	require.True(t, layout.UserContribOffset <= layout.DictStartOffset)
	require.Equal(t, layout.Size-FooterSize, layout.DictEndOffset)
}

func TestEachIsLexicographic(t *testing.T) {
	data := buildSample(t)
	r, err := Open(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer r.Close()

	var users []string
	require.NoError(t, r.Each(func(user []byte, _ uint64, _ uint32) error {
		users = append(users, string(user))
		return nil
	}))
	require.True(t, sort.StringsAreSorted(users))
	require.Equal(t, []string{"Alice", "Bob"}, users)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := buildSample(t)
	corrupted := append([]byte(nil), data...)
	corrupted[0] = 'X'
	_, err := Open(bytes.NewReader(corrupted), int64(len(corrupted)))
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte{1, 2, 3}), 3)
	require.ErrorIs(t, err, ErrCorruptIndex)
}
