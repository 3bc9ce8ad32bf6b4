package sfindex

import (
	"bytes"
	"fmt"
	"io"

	"github.com/couchbase/vellum"
)

// ReaderAt is the minimal interface Reader needs from its backing storage:
// an *os.File, an golang.org/x/exp/mmap.ReaderAt, or an in-memory buffer
// all satisfy it.
type ReaderAt interface {
	io.ReaderAt
}

// Reader opens a sealed index file for random-access lookup. It holds the
// term dictionary's FST in memory; postings and page names are read on
// demand from the backing ReaderAt.
type Reader struct {
	ra         ReaderAt
	size       int64
	fst        *vellum.FST
	dictOffset int64
}

// Open parses the header and footer of a sealed index and loads its term
// dictionary into memory.
func Open(ra ReaderAt, size int64) (*Reader, error) {
	if size < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file of size %d too small", ErrCorruptIndex, size)
	}

	header := make([]byte, HeaderSize)
	if _, err := ra.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrBadFormat, err)
	}
	if header[0] != magicByte0 || header[1] != magicByte1 {
		return nil, fmt.Errorf("%w: bad magic bytes", ErrBadFormat)
	}
	if version := BtoUint16(header[2:4]); version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrBadFormat, version)
	}

	footer := make([]byte, FooterSize)
	if _, err := ra.ReadAt(footer, size-FooterSize); err != nil {
		return nil, fmt.Errorf("%w: reading footer: %v", ErrCorruptIndex, err)
	}
	dictOffset := int64(BtoUint32(footer))
	if dictOffset < HeaderSize || dictOffset > size-FooterSize {
		return nil, fmt.Errorf("%w: dictionary offset %d out of range [%d, %d]", ErrCorruptIndex, dictOffset, HeaderSize, size-FooterSize)
	}

	dictBytes := make([]byte, size-FooterSize-dictOffset)
	if len(dictBytes) > 0 {
		if _, err := ra.ReadAt(dictBytes, dictOffset); err != nil {
			return nil, fmt.Errorf("%w: reading dictionary blob: %v", ErrCorruptIndex, err)
		}
	}
	fst, err := vellum.Load(dictBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing FST: %v", ErrCorruptIndex, err)
	}

	return &Reader{ra: ra, size: size, fst: fst, dictOffset: dictOffset}, nil
}

// Lookup resolves a user key to its postings-list offset and edit count.
// ok is false, with no error, when the user isn't in the dictionary.
func (r *Reader) Lookup(user []byte) (listOffset uint64, editCount uint32, ok bool, err error) {
	payload, exists, err := r.fst.Get(user)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: FST lookup for %q: %v", ErrCorruptIndex, user, err)
	}
	if !exists {
		return 0, 0, false, nil
	}
	listOffset, editCount = unpackPayload(payload)
	return listOffset, editCount, true, nil
}

// ReadPostings reads a user's full postings list given the offset and
// count returned by Lookup.
func (r *Reader) ReadPostings(listOffset uint64, editCount uint32) ([]uint32, error) {
	if editCount == 0 {
		return nil, nil
	}
	buf := make([]byte, 4*int(editCount))
	if _, err := r.ra.ReadAt(buf, int64(listOffset)); err != nil {
		return nil, fmt.Errorf("%w: reading postings at %d: %v", ErrCorruptIndex, listOffset, err)
	}
	out := make([]uint32, editCount)
	for i := range out {
		out[i] = BtoUint32(buf[i*4:])
	}
	return out, nil
}

// ReadPageName reads the LF-terminated page title starting at offset.
func (r *Reader) ReadPageName(offset uint64) ([]byte, error) {
	const chunkSize = 256
	var name []byte
	pos := int64(offset)
	for {
		chunk := make([]byte, chunkSize)
		n, err := r.ra.ReadAt(chunk, pos)
		if idx := bytes.IndexByte(chunk[:n], titleTerminator); idx >= 0 {
			name = append(name, chunk[:idx]...)
			return name, nil
		}
		name = append(name, chunk[:n]...)
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated page title at %d: %v", ErrCorruptIndex, offset, err)
		}
		pos += int64(n)
	}
}

// Each calls fn for every entry in the term dictionary, in the FST's
// lexicographic key order. Used by the stats command; ordinary queries use
// Lookup instead.
func (r *Reader) Each(fn func(user []byte, listOffset uint64, editCount uint32) error) error {
	itr, err := r.fst.Iterator(nil, nil)
	for err == nil {
		key, payload := itr.Current()
		listOffset, editCount := unpackPayload(payload)
		if cbErr := fn(key, listOffset, editCount); cbErr != nil {
			return cbErr
		}
		err = itr.Next()
	}
	if err != nil && err != vellum.ErrIteratorDone {
		return fmt.Errorf("%w: iterating FST: %v", ErrCorruptIndex, err)
	}
	return nil
}

// Layout reports the file's section boundaries, reconstructing the
// user-postings start offset (not itself stored in the format) as the
// minimum postings-list offset across all dictionary entries.
func (r *Reader) Layout() (Layout, error) {
	userContribOffset := uint64(r.dictOffset)
	if err := r.Each(func(_ []byte, listOffset uint64, _ uint32) error {
		if listOffset < userContribOffset {
			userContribOffset = listOffset
		}
		return nil
	}); err != nil {
		return Layout{}, err
	}
	return Layout{
		Size:              r.size,
		PageNamesOffset:   pageNamesStart,
		UserContribOffset: int64(userContribOffset),
		DictStartOffset:   r.dictOffset,
		DictEndOffset:     r.size - FooterSize,
	}, nil
}

// Close releases the in-memory FST. It does not close the backing
// ReaderAt, which the caller owns.
func (r *Reader) Close() error {
	return r.fst.Close()
}
