package sfbuild

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// maxEntityRefLen bounds how far sanitizeEntities looks ahead of an '&' for
// a terminating ';'. Long enough for any predefined or numeric character
// reference; anything longer is almost certainly a bare '&' in running text.
const maxEntityRefLen = 32

// sanitizeEntities wraps r so that every character reference encoding/xml
// would refuse to decode is rewritten, ahead of time, into literal text.
// encoding/xml.Decoder treats an unescape failure as a permanent error: once
// Token() returns it, every subsequent call returns the same cached error,
// so there is no way to skip past one bad reference and keep tokenizing.
// Rewriting the offending '&' before the decoder ever sees it avoids that
// failure entirely, so a single malformed reference in one user's edit
// comment never aborts the rest of the dump.
func sanitizeEntities(r io.Reader) io.Reader {
	return &entityFilter{src: bufio.NewReader(r)}
}

type entityFilter struct {
	src     *bufio.Reader
	pending bytes.Buffer
}

func (f *entityFilter) Read(p []byte) (int, error) {
	for f.pending.Len() == 0 {
		b, err := f.src.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != '&' {
			f.pending.WriteByte(b)
			continue
		}
		ref, recognized := f.consumeEntityRef()
		if recognized {
			f.pending.WriteByte('&')
			f.pending.WriteString(ref)
		} else {
			// Not a reference encoding/xml would accept: escape the '&' so
			// it and whatever follows are read back as ordinary text.
			f.pending.WriteString("&amp;")
			f.pending.WriteString(ref)
		}
	}
	n, _ := f.pending.Read(p)
	return n, nil
}

// consumeEntityRef looks at the bytes following an '&' already consumed
// from src. If they form a recognized predefined or numeric character
// reference terminated by ';', it consumes and returns them with
// recognized=true. Otherwise it consumes nothing and returns an empty
// string, leaving the bytes for the next Read call to process normally.
func (f *entityFilter) consumeEntityRef() (ref string, recognized bool) {
	peek, _ := f.src.Peek(maxEntityRefLen)
	idx := bytes.IndexByte(peek, ';')
	if idx < 0 {
		return "", false
	}
	name := peek[:idx]
	if !isValidEntityName(name) {
		return "", false
	}
	f.src.Discard(idx + 1)
	return string(name) + ";", true
}

func isValidEntityName(name []byte) bool {
	switch string(name) {
	case "amp", "lt", "gt", "apos", "quot":
		return true
	}
	if len(name) < 2 || name[0] != '#' {
		return false
	}
	digits, base := name[1:], 10
	if name[1] == 'x' {
		if !isHexDigits(name[2:]) {
			return false
		}
		digits, base = name[2:], 16
	} else if !isDecimalDigits(name[1:]) {
		return false
	}
	// encoding/xml maps surrogates to U+FFFD but rejects any other code
	// point outside the XML character range.
	n, err := strconv.ParseUint(string(digits), base, 32)
	r := rune(n)
	return err == nil && (r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xFFFD || r >= 0x10000 && r <= 0x10FFFF)
}

func isHexDigits(b []byte) bool {
	for _, c := range b {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return len(b) > 0
}

func isDecimalDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}
