package journal

import (
	"github.com/aalhour/ampsfile/internal/crc32"
	"github.com/aalhour/ampsfile/internal/encoding"
)

// FileHeader is the store-version-independent shape of the metadata
// block every journal file opens with.
type FileHeader struct {
	Version            Version
	InstanceID         uint32
	VersionString      string
	CompressionType    string // version 7+; empty otherwise
	CompressionOptions uint64 // version 7+
	Flags              uint64 // version 7+
}

// Extents is the store-version-independent shape of the second block,
// tracking the transaction-id and timestamp range a journal file covers.
type Extents struct {
	FirstTxID     uint64
	FirstTimestamp uint64 // version 7+; 0 otherwise
	LastTxID      uint64
	LastTimestamp  uint64 // version 7+; 0 otherwise
}

func decodeHeader(buf []byte, v Version) FileHeader {
	s := encoding.NewSlice(buf)
	s.Advance(4) // magic, already matched by detectVersion
	_, _ = s.GetFixed32()
	instanceID, _ := s.GetFixed32()
	versionStringBytes, _ := s.GetBytes(32)
	h := FileHeader{
		Version:       v,
		InstanceID:    instanceID,
		VersionString: encoding.TrimNullPadded(versionStringBytes),
	}
	if v >= V7 {
		ctBytes, _ := s.GetBytes(8)
		h.CompressionType = encoding.TrimNullPadded(ctBytes)
		h.CompressionOptions, _ = s.GetFixed64()
		h.Flags, _ = s.GetFixed64()
	}
	return h
}

// packHeader packs h into a metadataPageSize-byte buffer, version and
// layout matching writeVersion (always Latest for Writer).
func packHeader(h FileHeader, writeVersion Version) []byte {
	buf := make([]byte, metadataPageSize)
	copy(buf[0:4], magic)
	encoding.EncodeFixed32(buf[4:8], uint32(writeVersion))
	encoding.EncodeFixed32(buf[8:12], h.InstanceID)
	encoding.PutNullPadded(buf[12:44], h.VersionString)
	end := 44
	if writeVersion >= V7 {
		encoding.PutNullPadded(buf[44:52], h.CompressionType)
		encoding.EncodeFixed64(buf[52:60], h.CompressionOptions)
		encoding.EncodeFixed64(buf[60:68], h.Flags)
		end = 68
	}
	crc := crc32.Value(buf, 0xFFFFFFFF, 0, end)
	encoding.EncodeFixed32(buf[end:end+4], crc)
	return buf
}

func decodeExtents(buf []byte, v Version) Extents {
	s := encoding.NewSlice(buf)
	var e Extents
	e.FirstTxID, _ = s.GetFixed64()
	if v >= V7 {
		e.FirstTimestamp, _ = s.GetFixed64()
	}
	e.LastTxID, _ = s.GetFixed64()
	if v >= V7 {
		e.LastTimestamp, _ = s.GetFixed64()
	}
	return e
}

// packExtents packs e into an extentsPageSize-byte buffer using
// writeVersion's layout (always Latest for Writer).
func packExtents(e Extents, writeVersion Version) []byte {
	buf := make([]byte, extentsPageSize)
	off := 0
	putU64 := func(v uint64) {
		encoding.EncodeFixed64(buf[off:off+8], v)
		off += 8
	}
	putU64(e.FirstTxID)
	if writeVersion >= V7 {
		putU64(e.FirstTimestamp)
	}
	putU64(e.LastTxID)
	if writeVersion >= V7 {
		putU64(e.LastTimestamp)
	}
	crc := crc32.Value(buf, 0xFFFFFFFF, 0, off)
	encoding.EncodeFixed32(buf[off:off+4], crc)
	return buf
}
