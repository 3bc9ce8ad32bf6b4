// Package sfserver implements the HTTP serving shell around a loaded
// sfindex: a small landing page, a badge endpoint, a query endpoint, and a
// reload endpoint that swaps the in-memory index for a freshly read one.
package sfserver

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/Arkanosis/socksfinder/sfindex"
	"golang.org/x/exp/mmap"
)

// cell holds the currently-served index plus the file path it was loaded
// from, guarded by a mutex so /reload can swap both atomically while
// /query runs concurrently. Grounded on MultiEpoch's RWMutex-guarded
// epoch map, simplified to a single slot since socksfinder serves one
// index at a time.
type cell struct {
	mu      sync.RWMutex
	reader  *sfindex.Reader
	closer  func() error
	path    string
	useMmap bool
}

func newCell(useMmap bool) *cell {
	return &cell{useMmap: useMmap}
}

// load opens path and, on success, replaces the currently served index.
// The previous reader and its backing file are closed only after the
// swap succeeds, so a failed reload never drops a working index.
func (c *cell) load(path string) error {
	ra, size, closer, err := openIndexFile(path, c.useMmap)
	if err != nil {
		return fmt.Errorf("sfserver: opening index %q: %w", path, err)
	}
	r, err := sfindex.Open(ra, size)
	if err != nil {
		closer()
		return fmt.Errorf("sfserver: loading index %q: %w", path, err)
	}

	c.mu.Lock()
	prevReader, prevCloser := c.reader, c.closer
	c.reader = r
	c.closer = closer
	c.path = path
	c.mu.Unlock()

	if prevReader != nil {
		prevReader.Close()
	}
	if prevCloser != nil {
		prevCloser()
	}
	return nil
}

// current returns the reader currently being served, or nil if no index
// has been loaded yet.
func (c *cell) current() (*sfindex.Reader, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reader, c.path
}

// openIndexFile opens a local index file via mmap when requested, falling
// back to reading it fully into a byte slice otherwise. Grounded on
// storage.go's openMMapFile: mmap.Open for random-access reads without
// paging the whole file into the process; the non-mmap path reads the
// whole file up front so query latency under concurrent requests never
// depends on page faults against the backing file, and so a reload can
// safely remove or replace the file on disk without affecting readers
// already served from the old cell.
func openIndexFile(path string, useMmap bool) (sfindex.ReaderAt, int64, func() error, error) {
	if useMmap {
		ra, err := mmap.Open(path)
		if err != nil {
			return nil, 0, nil, err
		}
		return ra, int64(ra.Len()), ra.Close, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, nil, err
	}
	return bytes.NewReader(buf), int64(len(buf)), func() error { return nil }, nil
}
