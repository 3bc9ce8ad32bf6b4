// Package sfbuild implements the single-pass streaming builder that turns a
// MediaWiki-style XML dump into a sealed sfindex file.
package sfbuild

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Arkanosis/socksfinder/sfindex"
	"github.com/cespare/xxhash/v2"
	"k8s.io/klog/v2"
)

// Stats summarizes one build run, reported by the `build` CLI command.
type Stats struct {
	DistinctUsers int
	DistinctPages int
	TotalPostings int
	Elapsed       time.Duration
}

// tagMarker tracks which of the three text-bearing elements the decoder is
// currently inside.
type tagMarker int

const (
	tagOther tagMarker = iota
	tagTitle
	tagUser
)

// userPostings accumulates one user's page offsets in ingest order. Offsets
// are appended ascending (pages are numbered in the order their titles are
// written), so the accumulator only needs to compare against the last
// entry to dedupe consecutive edits of the same page.
type userPostings struct {
	offsets []uint32
}

func (u *userPostings) append(pageOffset uint32) {
	if n := len(u.offsets); n > 0 && u.offsets[n-1] == pageOffset {
		return
	}
	u.offsets = append(u.offsets, pageOffset)
}

// warnOnDuplicateTitle is a non-load-bearing sanity check: dumps are not
// expected to repeat a page title, so a repeat is worth a log line, not
// a build failure. Hashing with xxhash instead of keying the map by the
// title string directly keeps the detector cheap on dumps with very
// long titles; a false-positive collision would only cost a spurious
// warning, never incorrect index output.
func warnOnDuplicateTitle(seen map[uint64]string, title string) {
	h := xxhash.Sum64String(title)
	if prev, ok := seen[h]; ok && prev == title {
		klog.Warningf("sfbuild: duplicate page title %q", title)
		return
	}
	seen[h] = title
}

// Build consumes the XML dump read from r and writes a sealed index to w.
// It performs a single pass: page titles are written to the index as soon
// as they're seen, and a per-user map of page offsets is kept in memory
// until the postings and dictionary sections are emitted, in sorted user
// order, at the end.
func Build(r io.Reader, w io.Writer) (*Stats, error) {
	start := time.Now()
	iw, err := sfindex.NewWriter(w)
	if err != nil {
		return nil, err
	}

	users := make(map[string]*userPostings)
	var userOrder []string // first-seen order; sorted once at emission time

	decoder := xml.NewDecoder(sanitizeEntities(r))
	marker := tagOther
	var currentPageOffset uint64
	havePage := false
	pageCount := 0
	seenTitleHashes := make(map[uint64]string)

	recordEdit := func(user string) {
		up, ok := users[user]
		if !ok {
			up = &userPostings{}
			users[user] = up
			userOrder = append(userOrder, user)
		}
		up.append(uint32(currentPageOffset))
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed character references never reach here: sanitizeEntities
			// rewrites them upstream so a bad reference in one edit comment
			// can't poison the rest of the dump. Anything that does surface
			// here is either a structural break in the document itself
			// (unbalanced tags, truncated input) or a text node holding
			// invalid UTF-8 or a character outside the XML range; both stop
			// ingest after the flush below, so that text node is not skipped
			// on its own.
			klog.Errorf("sfbuild: XML parse error at byte offset %d: %v", decoder.InputOffset(), err)
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "title":
				marker = tagTitle
			case "username", "ip":
				marker = tagUser
			default:
				marker = tagOther
			}
		case xml.EndElement:
			marker = tagOther
		case xml.CharData:
			switch marker {
			case tagTitle:
				offset, err := iw.WritePage([]byte(t))
				if err != nil {
					return nil, fmt.Errorf("sfbuild: writing page title: %w", err)
				}
				currentPageOffset = offset
				havePage = true
				pageCount++
				warnOnDuplicateTitle(seenTitleHashes, string(t))
			case tagUser:
				if !havePage {
					// Username text before any title has been seen; nothing
					// to attribute it to.
					continue
				}
				recordEdit(string(t))
			}
		}
	}

	sort.Strings(userOrder)

	var entries []sfindex.DictEntry
	totalPostings := 0
	for _, user := range userOrder {
		up := users[user]
		listOffset, err := iw.WritePostings(up.offsets)
		if err != nil {
			return nil, fmt.Errorf("sfbuild: writing postings for %q: %w", user, err)
		}
		entries = append(entries, sfindex.DictEntry{
			User:       user,
			ListOffset: listOffset,
			EditCount:  uint32(len(up.offsets)),
		})
		totalPostings += len(up.offsets)
	}

	dictOffset, err := iw.WriteDictionary(entries)
	if err != nil {
		return nil, fmt.Errorf("sfbuild: writing dictionary: %w", err)
	}
	if err := iw.WriteFooter(dictOffset); err != nil {
		return nil, fmt.Errorf("sfbuild: writing footer: %w", err)
	}

	return &Stats{
		DistinctUsers: len(userOrder),
		DistinctPages: pageCount,
		TotalPostings: totalPostings,
		Elapsed:       time.Since(start),
	}, nil
}
