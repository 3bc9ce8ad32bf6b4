// Package sfquery implements the multi-list merge query engine: it resolves
// a set of users against an index's term dictionary, then walks their
// postings lists in lock-step through a min-heap to compute threshold
// intersections or pairwise co-occurrence counts.
package sfquery

import (
	"container/heap"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Arkanosis/socksfinder/sfindex"
)

// OrderMode selects how matched pages (or, in co-occurrence mode, users)
// are ordered in the output.
type OrderMode int

const (
	OrderNone OrderMode = iota
	OrderAlphabetical
	OrderCountDecreasing
	OrderCountIncreasing
)

// Options configures one query run.
type Options struct {
	Users         []string
	Threshold     int // 0 means "all users"
	Order         OrderMode
	Cooccurrences bool
}

// Result reports whether every requested user was found; CLI and HTTP
// callers use it to decide exit codes / partial-failure reporting.
type Result struct {
	AllUsersFound bool
}

// invertedList is a user's postings list plus a cursor into it, used while
// merging.
type invertedList struct {
	user     string
	offsets  []uint32
	position int
}

func (l *invertedList) current() (uint32, bool) {
	if l.position >= len(l.offsets) {
		return 0, false
	}
	return l.offsets[l.position], true
}

// offsetHeap is a min-heap of page offsets awaiting processing. seedHeap
// dedupes the initial offsets so that two lists sharing a first offset
// don't produce two heap entries.
type offsetHeap []uint32

func (h offsetHeap) Len() int            { return len(h) }
func (h offsetHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h offsetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *offsetHeap) Push(x interface{}) { *h = append(*h, x.(uint32)) }
func (h *offsetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type pageResult struct {
	offset  uint64
	name    string
	editors []string
}

// Run resolves opts.Users against r's term dictionary and writes the
// query's result to w as plain text: one "name: count (editors)" line per
// page, or a tab-separated table in co-occurrence mode. It returns
// a Result describing whether every requested user was found; a non-nil
// error means the index itself could not be read (sfindex.ErrBadFormat /
// ErrCorruptIndex), not a per-user miss.
func Run(r *sfindex.Reader, opts Options, w io.Writer) (Result, error) {
	users := dedupeTrim(opts.Users)
	if len(users) == 0 {
		return Result{AllUsersFound: true}, nil
	}

	threshold := opts.Threshold
	if opts.Cooccurrences {
		// Co-occurrence mode walks every matched page regardless of
		// threshold; it must never hit the listCount<threshold
		// short-circuit below, so threshold stays 0.
		threshold = 0
	} else if threshold == 0 {
		threshold = len(users)
	}

	lists, allFound, err := resolveUsers(r, users, w)
	if err != nil {
		return Result{}, err
	}
	if len(lists) == 0 {
		return Result{AllUsersFound: allFound}, nil
	}

	if opts.Cooccurrences {
		if err := runCooccurrence(r, lists, opts.Order, w); err != nil {
			return Result{}, err
		}
		return Result{AllUsersFound: allFound}, nil
	}

	if err := runIntersection(r, lists, threshold, opts.Order, w); err != nil {
		return Result{}, err
	}
	return Result{AllUsersFound: allFound}, nil
}

// dedupeTrim trims whitespace and removes duplicate/empty user names while
// preserving first-seen order.
func dedupeTrim(users []string) []string {
	seen := make(map[string]bool, len(users))
	var out []string
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// resolveUsers looks up each user in the dictionary, reads their full
// postings list, and writes a warning line for any user not found. It
// never aborts on an unknown user — that's a per-request partial failure,
// not an index-level error.
func resolveUsers(r *sfindex.Reader, users []string, w io.Writer) ([]*invertedList, bool, error) {
	allFound := true
	var lists []*invertedList
	for _, user := range users {
		listOffset, editCount, ok, err := r.Lookup([]byte(user))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			allFound = false
			if _, err := fmt.Fprintf(w, "Error: User '%s' does not exist or has no edits\n", user); err != nil {
				return nil, false, nil // write failure: stop producing output, but this isn't an index error
			}
			continue
		}
		offsets, err := r.ReadPostings(listOffset, editCount)
		if err != nil {
			return nil, false, err
		}
		lists = append(lists, &invertedList{user: user, offsets: offsets})
	}
	return lists, allFound, nil
}

// runIntersection performs a k-way merge of lists' ascending page offsets,
// collecting every page reached by at least threshold of them, and writes
// the matching pages to w.
func runIntersection(r *sfindex.Reader, lists []*invertedList, threshold int, order OrderMode, w io.Writer) error {
	h, listCount := seedHeap(lists)

	var accum []pageResult
	for h.Len() > 0 && listCount >= threshold {
		p := heap.Pop(h).(uint32)

		var editors []string
		for _, l := range lists {
			cur, ok := l.current()
			if !ok || cur != p {
				continue
			}
			editors = append(editors, l.user)
			l.position++
			if next, ok := l.current(); ok {
				heap.Push(h, next)
			} else {
				listCount--
			}
		}

		if len(editors) < threshold {
			continue
		}

		name, err := r.ReadPageName(uint64(p))
		if err != nil {
			return err
		}
		pr := pageResult{offset: uint64(p), name: string(name), editors: editors}
		if order == OrderNone {
			if err := writePageLine(w, pr); err != nil {
				return nil
			}
		} else {
			accum = append(accum, pr)
		}
	}

	if order != OrderNone {
		sortPageResults(accum, order)
		for _, pr := range accum {
			if err := writePageLine(w, pr); err != nil {
				return nil
			}
		}
	}
	return nil
}

// runCooccurrence walks every page reachable from any of lists (threshold
// is always 0 here, so the merge never short-circuits) and builds the
// pairwise co-occurrence matrix, then renders it as a table.
func runCooccurrence(r *sfindex.Reader, lists []*invertedList, order OrderMode, w io.Writer) error {
	h, listCount := seedHeap(lists)
	_ = listCount // co-occurrence mode's threshold of 0 never short-circuits

	matrix := make(map[string]map[string]int)
	for _, l := range lists {
		matrix[l.user] = make(map[string]int)
	}

	for h.Len() > 0 {
		p := heap.Pop(h).(uint32)

		var editors []string
		for _, l := range lists {
			cur, ok := l.current()
			if !ok || cur != p {
				continue
			}
			editors = append(editors, l.user)
			l.position++
			if next, ok := l.current(); ok {
				heap.Push(h, next)
			} else {
				listCount--
			}
		}

		if len(editors) >= 2 {
			for _, u := range editors {
				for _, v := range editors {
					matrix[u][v]++
				}
			}
		}
	}

	users := make([]string, 0, len(lists))
	for _, l := range lists {
		users = append(users, l.user)
	}
	orderUsersForCooccurrence(users, matrix, order)

	return renderCooccurrenceTable(w, users, matrix)
}

// orderUsersForCooccurrence sorts users in place per order: alphabetical by
// name, or by the row-sum over off-diagonal cells for count modes.
func orderUsersForCooccurrence(users []string, matrix map[string]map[string]int, order OrderMode) {
	rowSum := func(u string) int {
		sum := 0
		for v, n := range matrix[u] {
			if v != u {
				sum += n
			}
		}
		return sum
	}
	switch order {
	case OrderAlphabetical:
		sort.Strings(users)
	case OrderCountDecreasing:
		sort.SliceStable(users, func(i, j int) bool { return rowSum(users[i]) > rowSum(users[j]) })
	case OrderCountIncreasing:
		sort.SliceStable(users, func(i, j int) bool { return rowSum(users[i]) < rowSum(users[j]) })
	}
}

func renderCooccurrenceTable(w io.Writer, users []string, matrix map[string]map[string]int) error {
	if _, err := fmt.Fprintf(w, "\t%s\n", strings.Join(users, "\t")); err != nil {
		return nil
	}
	for _, u := range users {
		cells := make([]string, len(users))
		for i, v := range users {
			if u == v {
				cells[i] = ""
			} else {
				cells[i] = fmt.Sprintf("%d", matrix[u][v])
			}
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", u, strings.Join(cells, "\t")); err != nil {
			return nil
		}
	}
	return nil
}

// seedHeap builds a min-heap from the first offset of each list, de-duped
// so two lists sharing a first page don't produce two heap entries, and
// returns the number of lists that still have offsets remaining.
func seedHeap(lists []*invertedList) (*offsetHeap, int) {
	h := &offsetHeap{}
	heap.Init(h)
	seen := make(map[uint32]bool)
	listCount := 0
	for _, l := range lists {
		if cur, ok := l.current(); ok {
			listCount++
			if !seen[cur] {
				seen[cur] = true
				heap.Push(h, cur)
			}
		}
	}
	return h, listCount
}

func writePageLine(w io.Writer, pr pageResult) error {
	_, err := fmt.Fprintf(w, "%s: %d (%s)\n", pr.name, len(pr.editors), strings.Join(pr.editors, ", "))
	return err
}

func sortPageResults(results []pageResult, order OrderMode) {
	switch order {
	case OrderAlphabetical:
		sort.SliceStable(results, func(i, j int) bool { return results[i].name < results[j].name })
	case OrderCountDecreasing:
		sort.SliceStable(results, func(i, j int) bool { return len(results[i].editors) > len(results[j].editors) })
	case OrderCountIncreasing:
		sort.SliceStable(results, func(i, j int) bool { return len(results[i].editors) < len(results[j].editors) })
	}
}
