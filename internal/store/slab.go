package store

import (
	"encoding/binary"
	"fmt"

	"github.com/aalhour/ampsfile/internal/crc32"
)

// Layout constants shared by every slab-based store (SOW and the v4.0
// ack format). Values are grounded in amps_sow.py's Writer.
const (
	PageSize      = 4096
	PageSizeMask  = PageSize - 1
	AlignSize     = 128
	AlignSizeMask = AlignSize - 1
	SlabLabelSize = 128

	// SlabMagic marks the start of every slab.
	SlabMagic = "AMPSSLAB"

	// labelPackedSize is the size of the magic+size+offset+crc fields;
	// the remaining bytes up to SlabLabelSize are zero padding.
	labelPackedSize = 8 + 8 + 8 + 4
)

// Label is the 128-byte header written at the start of every slab.
type Label struct {
	Magic  string // always SlabMagic once packed
	Size   uint64 // total slab size in bytes, including this label
	Offset uint64 // file offset of this slab
	CRC    uint32 // CRC32 over Pack()'s first labelPackedSize-4 bytes, seed 0
}

// Pack serializes l into a SlabLabelSize-byte buffer, magic/size/offset/crc
// followed by zero padding.
func (l Label) Pack() []byte {
	buf := make([]byte, SlabLabelSize)
	copy(buf[0:8], []byte(SlabMagic))
	binary.LittleEndian.PutUint64(buf[8:16], l.Size)
	binary.LittleEndian.PutUint64(buf[16:24], l.Offset)
	binary.LittleEndian.PutUint32(buf[24:28], l.CRC)
	return buf
}

// PackWithCRC packs l after computing its CRC over the magic/size/offset
// fields, seeded with 0 as amps_sow.py's Writer._close_slab does.
func (l Label) PackWithCRC() []byte {
	l.CRC = 0
	buf := l.Pack()
	l.CRC = crc32.Value(buf, 0, 0, labelPackedSize-4)
	return l.Pack()
}

// UnpackLabel parses a SlabLabelSize-byte buffer written by PackWithCRC.
func UnpackLabel(buf []byte) (Label, error) {
	if len(buf) < SlabLabelSize {
		return Label{}, fmt.Errorf("store: slab label short read: got %d bytes, want %d", len(buf), SlabLabelSize)
	}
	magic := string(buf[0:8])
	if magic != SlabMagic {
		return Label{}, fmt.Errorf("store: bad slab magic %q", magic)
	}
	l := Label{
		Magic:  magic,
		Size:   binary.LittleEndian.Uint64(buf[8:16]),
		Offset: binary.LittleEndian.Uint64(buf[16:24]),
		CRC:    binary.LittleEndian.Uint32(buf[24:28]),
	}
	want := crc32.Value(buf, 0, 0, labelPackedSize-4)
	if want != l.CRC {
		return l, fmt.Errorf("store: slab label crc mismatch at offset %d: got %#x want %#x", l.Offset, l.CRC, want)
	}
	return l, nil
}

// ComputeAllocated returns the AlignSize-aligned allocation size for a record
// whose variable payload occupies dataSize bytes, given the store's fixed
// record header size and a small trailing pad the original always reserves.
func ComputeAllocated(headerSize, dataSize int) int {
	const defaultPadding = 16
	minSize := headerSize + dataSize + defaultPadding
	return (minSize + AlignSizeMask) &^ AlignSizeMask
}
