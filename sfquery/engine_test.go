package sfquery

import (
	"bytes"
	"sort"
	"testing"

	"github.com/Arkanosis/socksfinder/sfindex"
	"github.com/stretchr/testify/require"
)

// buildIndex writes a sealed index from a page->editors map, in the style of
// sfindex's own tests, so these tests exercise sfquery against a real
// sfindex.Reader rather than a hand-rolled fake.
func buildIndex(t *testing.T, pages []string, edits map[string][]string) *sfindex.Reader {
	t.Helper()
	var buf bytes.Buffer
	w, err := sfindex.NewWriter(&buf)
	require.NoError(t, err)

	pageOffsets := make(map[string]uint64, len(pages))
	for _, p := range pages {
		off, err := w.WritePage([]byte(p))
		require.NoError(t, err)
		pageOffsets[p] = off
	}

	postingsByUser := make(map[string][]uint32)
	for page, users := range edits {
		for _, u := range users {
			postingsByUser[u] = append(postingsByUser[u], uint32(pageOffsets[page]))
		}
	}

	var users []string
	for u := range postingsByUser {
		users = append(users, u)
	}
	sort.Strings(users)

	var entries []sfindex.DictEntry
	for _, u := range users {
		offsets := postingsByUser[u]
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
		listOffset, err := w.WritePostings(offsets)
		require.NoError(t, err)
		entries = append(entries, sfindex.DictEntry{User: u, ListOffset: listOffset, EditCount: uint32(len(offsets))})
	}

	dictOffset, err := w.WriteDictionary(entries)
	require.NoError(t, err)
	require.NoError(t, w.WriteFooter(dictOffset))

	r, err := sfindex.Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// Scenario 1: a single page edited by two requested users.
func TestRunSinglePageTwoEditors(t *testing.T) {
	r := buildIndex(t, []string{"Hello"}, map[string][]string{
		"Hello": {"Alice", "Bob"},
	})
	var out bytes.Buffer
	res, err := Run(r, Options{Users: []string{"Alice", "Bob"}}, &out)
	require.NoError(t, err)
	require.True(t, res.AllUsersFound)
	require.Equal(t, "Hello: 2 (Alice, Bob)\n", out.String())
}

// Scenario 2: consecutive edits by the same user on the same page are
// deduplicated at build time, so a query sees only one contribution.
func TestRunDedupedContribution(t *testing.T) {
	r := buildIndex(t, []string{"Hello"}, map[string][]string{
		"Hello": {"Alice"},
	})
	var out bytes.Buffer
	_, err := Run(r, Options{Users: []string{"Alice"}}, &out)
	require.NoError(t, err)
	require.Equal(t, "Hello: 1 (Alice)\n", out.String())
}

// Scenario 3: requested users never co-edited anything, so nothing matches
// the default threshold of len(users).
func TestRunNoOverlapProducesNoOutput(t *testing.T) {
	r := buildIndex(t, []string{"Hello", "World"}, map[string][]string{
		"Hello": {"Alice"},
		"World": {"Bob"},
	})
	var out bytes.Buffer
	res, err := Run(r, Options{Users: []string{"Alice", "Bob"}}, &out)
	require.NoError(t, err)
	require.True(t, res.AllUsersFound)
	require.Equal(t, "", out.String())
}

// Scenario 4: an explicit threshold below len(users) matches pages edited by
// at least that many of the requested users, ordered by page offset.
func TestRunThresholdBelowUserCount(t *testing.T) {
	r := buildIndex(t, []string{"X", "Y", "Z"}, map[string][]string{
		"X": {"Alice", "Bob"},
		"Y": {"Bob", "Carol"},
		"Z": {"Alice"},
	})
	var out bytes.Buffer
	res, err := Run(r, Options{Users: []string{"Alice", "Bob", "Carol"}, Threshold: 2}, &out)
	require.NoError(t, err)
	require.True(t, res.AllUsersFound)
	require.Equal(t, "X: 2 (Alice, Bob)\nY: 2 (Bob, Carol)\n", out.String())
}

// Scenario 5: one requested user doesn't exist; the query still resolves
// the others and reports partial success via Result.AllUsersFound.
func TestRunUnknownUserPartialSuccess(t *testing.T) {
	r := buildIndex(t, []string{"Hello"}, map[string][]string{
		"Hello": {"Alice"},
	})
	var out bytes.Buffer
	res, err := Run(r, Options{Users: []string{"Alice", "Ghost"}, Threshold: 1}, &out)
	require.NoError(t, err)
	require.False(t, res.AllUsersFound)
	lines := out.String()
	require.Contains(t, lines, "Error: User 'Ghost' does not exist or has no edits\n")
	require.Contains(t, lines, "Hello: 1 (Alice)\n")
}

// Scenario 6: co-occurrence mode forces threshold to 0 and builds the full
// pairwise matrix regardless of any Threshold the caller passed in.
func TestRunCooccurrenceMatrix(t *testing.T) {
	r := buildIndex(t, []string{"A", "B"}, map[string][]string{
		"A": {"Alice", "Bob"},
		"B": {"Bob", "Carol"},
	})
	var out bytes.Buffer
	_, err := Run(r, Options{
		Users:         []string{"Alice", "Bob", "Carol"},
		Threshold:     3,
		Cooccurrences: true,
		Order:         OrderAlphabetical,
	}, &out)
	require.NoError(t, err)

	lines := splitLines(out.String())
	require.Equal(t, []string{"", "Alice", "Bob", "Carol"}, splitTabs(lines[0]))
	require.Equal(t, []string{"Alice", "", "1", "0"}, splitTabs(lines[1]))
	require.Equal(t, []string{"Bob", "1", "", "1"}, splitTabs(lines[2]))
	require.Equal(t, []string{"Carol", "0", "1", ""}, splitTabs(lines[3]))
}

func TestDedupeTrim(t *testing.T) {
	got := dedupeTrim([]string{" Alice ", "Alice", "", "Bob", "  "})
	require.Equal(t, []string{"Alice", "Bob"}, got)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func splitTabs(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\t' {
			out = append(out, s[start:i])
			start = i
			start++
		}
	}
	out = append(out, s[start:])
	return out
}
