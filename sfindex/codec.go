// Package sfindex implements the socksfinder binary index format: a
// page-name section, a per-user postings section, an FST term dictionary,
// and a fixed footer. See format.go for the section layout.
package sfindex

import "encoding/binary"

// Uint16tob encodes v as a 2-byte little-endian slice.
func Uint16tob(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}

// BtoUint16 decodes a 2-byte little-endian slice.
func BtoUint16(buf []byte) uint16 {
	_ = buf[1] // bounds check hint to compiler
	return binary.LittleEndian.Uint16(buf)
}

// Uint32tob encodes v as a 4-byte little-endian slice.
func Uint32tob(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// BtoUint32 decodes a 4-byte little-endian slice.
func BtoUint32(buf []byte) uint32 {
	_ = buf[3] // bounds check hint to compiler
	return binary.LittleEndian.Uint32(buf)
}

// Uint64tob encodes v as an 8-byte little-endian slice.
func Uint64tob(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// BtoUint64 decodes an 8-byte little-endian slice.
func BtoUint64(buf []byte) uint64 {
	_ = buf[7] // bounds check hint to compiler
	return binary.LittleEndian.Uint64(buf)
}

// packPayload packs a postings-list offset and edit count into the
// dictionary's u64 payload: high 32 bits offset, low 32 bits count.
func packPayload(listOffset uint64, editCount uint32) uint64 {
	return (listOffset << 32) | uint64(editCount)
}

// unpackPayload reverses packPayload.
func unpackPayload(payload uint64) (listOffset uint64, editCount uint32) {
	return payload >> 32, uint32(payload & 0xffffffff)
}
