// Package encoding provides the fixed-width, little-endian binary encoding
// primitives shared by every store-version codec: metadata pages, slab
// labels, and records are all packed as fixed-width little-endian fields
// plus null-padded fixed-width strings, followed by length-prefixed
// variable-width trailing fields whose lengths are carried as fixed-width
// integers earlier in the same record.
//
// None of the on-disk formats in this module use varints; every integer
// field has a fixed byte width declared by its struct layout, so this
// package only needs fixed-width helpers.
package encoding

import "encoding/binary"

// EncodeFixed16 encodes a uint16 into a 2-byte little-endian buffer.
// REQUIRES: dst has at least 2 bytes.
func EncodeFixed16(dst []byte, value uint16) {
	binary.LittleEndian.PutUint16(dst, value)
}

// DecodeFixed16 decodes a uint16 from a 2-byte little-endian buffer.
// REQUIRES: src has at least 2 bytes.
func DecodeFixed16(src []byte) uint16 {
	return binary.LittleEndian.Uint16(src)
}

// EncodeFixed32 encodes a uint32 into a 4-byte little-endian buffer.
// REQUIRES: dst has at least 4 bytes.
func EncodeFixed32(dst []byte, value uint32) {
	binary.LittleEndian.PutUint32(dst, value)
}

// DecodeFixed32 decodes a uint32 from a 4-byte little-endian buffer.
// REQUIRES: src has at least 4 bytes.
func DecodeFixed32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// EncodeFixed64 encodes a uint64 into an 8-byte little-endian buffer.
// REQUIRES: dst has at least 8 bytes.
func EncodeFixed64(dst []byte, value uint64) {
	binary.LittleEndian.PutUint64(dst, value)
}

// DecodeFixed64 decodes a uint64 from an 8-byte little-endian buffer.
// REQUIRES: src has at least 8 bytes.
func DecodeFixed64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// AppendFixed16 appends a little-endian uint16 to dst and returns the extended slice.
func AppendFixed16(dst []byte, value uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, value)
}

// AppendFixed32 appends a little-endian uint32 to dst and returns the extended slice.
func AppendFixed32(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}

// AppendFixed64 appends a little-endian uint64 to dst and returns the extended slice.
func AppendFixed64(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}

// PutNullPadded writes s into dst, left-justified and zero-padded to
// len(dst). s is truncated if it is longer than dst.
func PutNullPadded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// AppendNullPadded appends s to dst, zero-padded to width bytes total.
func AppendNullPadded(dst []byte, s string, width int) []byte {
	buf := make([]byte, width)
	PutNullPadded(buf, s)
	return append(dst, buf...)
}

// TrimNullPadded returns s with everything from the first NUL byte onward
// removed.
func TrimNullPadded(s []byte) string {
	i := 0
	for i < len(s) && s[i] != 0 {
		i++
	}
	return string(s[:i])
}

// Slice is a cursor over a read-only byte buffer, used to pull fixed-width
// fields and variable-width trailing fields off a record in canonical
// order without manual offset bookkeeping.
type Slice struct {
	data []byte
	pos  int
}

// NewSlice creates a new Slice starting at the beginning of data.
func NewSlice(data []byte) *Slice {
	return &Slice{data: data}
}

// Remaining returns the number of unread bytes.
func (s *Slice) Remaining() int {
	return len(s.data) - s.pos
}

// Pos returns the current read offset.
func (s *Slice) Pos() int {
	return s.pos
}

// Advance skips n bytes.
func (s *Slice) Advance(n int) {
	s.pos += n
}

// GetFixed16 reads a fixed 16-bit value, or reports false on short read.
func (s *Slice) GetFixed16() (uint16, bool) {
	if s.Remaining() < 2 {
		return 0, false
	}
	v := DecodeFixed16(s.data[s.pos:])
	s.pos += 2
	return v, true
}

// GetFixed32 reads a fixed 32-bit value, or reports false on short read.
func (s *Slice) GetFixed32() (uint32, bool) {
	if s.Remaining() < 4 {
		return 0, false
	}
	v := DecodeFixed32(s.data[s.pos:])
	s.pos += 4
	return v, true
}

// GetFixed64 reads a fixed 64-bit value, or reports false on short read.
func (s *Slice) GetFixed64() (uint64, bool) {
	if s.Remaining() < 8 {
		return 0, false
	}
	v := DecodeFixed64(s.data[s.pos:])
	s.pos += 8
	return v, true
}

// GetBytes reads exactly n bytes, or reports false on short read.
func (s *Slice) GetBytes(n int) ([]byte, bool) {
	if n < 0 || s.Remaining() < n {
		return nil, false
	}
	v := s.data[s.pos : s.pos+n]
	s.pos += n
	return v, true
}
