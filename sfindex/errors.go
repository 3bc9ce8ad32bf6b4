package sfindex

import "errors"

// ErrBadFormat is returned when the header magic or version doesn't match
// what this build of socksfinder understands.
var ErrBadFormat = errors.New("sfindex: bad index format")

// ErrCorruptIndex is returned when the footer, dictionary, or a postings
// list can't be parsed even though the header looked fine.
var ErrCorruptIndex = errors.New("sfindex: corrupt index")

// ErrSealed is returned by Writer methods once the writer has already
// written its footer.
var ErrSealed = errors.New("sfindex: writer already sealed")
