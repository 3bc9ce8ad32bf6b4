package sfindex

import (
	"fmt"
	"io"

	"github.com/couchbase/vellum"
)

// DictEntry is one term-dictionary record: a user key and the payload that
// describes where their postings list lives.
type DictEntry struct {
	User       string
	ListOffset uint64
	EditCount  uint32
}

// Writer emits a sealed index file section by section: header (written by
// NewWriter), page names, postings, term dictionary, footer (WriteFooter).
// Sections must be written in that order; Writer does not buffer anything
// itself, it only tracks the current write position.
type Writer struct {
	w      io.Writer
	pos    uint64
	sealed bool
}

// NewWriter writes the 4-byte header and returns a Writer positioned at the
// start of the page-name section.
func NewWriter(w io.Writer) (*Writer, error) {
	header := make([]byte, 0, HeaderSize)
	header = append(header, magicByte0, magicByte1)
	header = append(header, Uint16tob(FormatVersion)...)
	if _, err := w.Write(header); err != nil {
		return nil, fmt.Errorf("sfindex: writing header: %w", err)
	}
	return &Writer{w: w, pos: HeaderSize}, nil
}

// WritePage writes a single LF-terminated page title and returns its
// offset, the canonical page identifier used throughout the index.
func (w *Writer) WritePage(title []byte) (offset uint64, err error) {
	if w.sealed {
		return 0, ErrSealed
	}
	offset = w.pos
	n, err := w.w.Write(title)
	w.pos += uint64(n)
	if err != nil {
		return 0, fmt.Errorf("sfindex: writing page title: %w", err)
	}
	if _, err := w.w.Write([]byte{titleTerminator}); err != nil {
		return 0, fmt.Errorf("sfindex: writing page terminator: %w", err)
	}
	w.pos++
	return offset, nil
}

// WritePostings writes one user's postings list — a packed array of
// little-endian u32 page offsets, already deduplicated and sorted by the
// caller — and returns the list's starting offset.
func (w *Writer) WritePostings(offsets []uint32) (listOffset uint64, err error) {
	if w.sealed {
		return 0, ErrSealed
	}
	listOffset = w.pos
	buf := make([]byte, 4*len(offsets))
	for i, o := range offsets {
		copy(buf[i*4:], Uint32tob(o))
	}
	n, err := w.w.Write(buf)
	w.pos += uint64(n)
	if err != nil {
		return 0, fmt.Errorf("sfindex: writing postings: %w", err)
	}
	return listOffset, nil
}

// WriteDictionary builds and writes the FST term dictionary from entries,
// which must already be in non-decreasing key order (vellum requires it;
// the builder sorts its user keys before emission for exactly this
// reason). It returns the dictionary's starting offset.
func (w *Writer) WriteDictionary(entries []DictEntry) (dictOffset uint64, err error) {
	if w.sealed {
		return 0, ErrSealed
	}
	dictOffset = w.pos
	cw := &countingWriter{w: w.w}
	builder, err := vellum.New(cw, nil)
	if err != nil {
		return 0, fmt.Errorf("sfindex: creating FST builder: %w", err)
	}
	for _, e := range entries {
		payload := packPayload(e.ListOffset, e.EditCount)
		if err := builder.Insert([]byte(e.User), payload); err != nil {
			return 0, fmt.Errorf("sfindex: inserting %q into FST: %w", e.User, err)
		}
	}
	if err := builder.Close(); err != nil {
		return 0, fmt.Errorf("sfindex: closing FST builder: %w", err)
	}
	w.pos += cw.n
	return dictOffset, nil
}

// WriteFooter writes the final 4 bytes of the file: the little-endian
// offset of the term dictionary's first byte. After this call the Writer
// is sealed and rejects further writes.
func (w *Writer) WriteFooter(dictOffset uint64) error {
	if w.sealed {
		return ErrSealed
	}
	if _, err := w.w.Write(Uint32tob(uint32(dictOffset))); err != nil {
		return fmt.Errorf("sfindex: writing footer: %w", err)
	}
	w.pos += FooterSize
	w.sealed = true
	return nil
}

// Pos returns the writer's current byte position (the size of the file
// written so far).
func (w *Writer) Pos() uint64 { return w.pos }

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
