package ack

import (
	"fmt"

	"github.com/aalhour/ampsfile/internal/crc32"
	"github.com/aalhour/ampsfile/internal/encoding"
	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/vfs"
)

const (
	writeVersionString = "amps-store-v1.0"
	writeIncrementSize = 512
	slabMaxSize        = 144 * 1024
	minSlabSize        = 144 * 1024
)

// Writer produces a v4.0 client-ack store. Records must be written in
// the order they should appear; Writer never reorders or merges them.
type Writer struct {
	f          vfs.WritableFile
	recordSize uint64

	fileSize           uint64
	metaGenerationCnt  uint64
	label              store.Label
	slabWritten        uint64
	slabCount          uint64
}

// CreateWriter creates path and prepares it to receive records. recordSize
// is stored in the metadata page; every slab opens with a
// store.SlabLabelSize-byte label reservation.
func CreateWriter(fs vfs.FS, path string, recordSize uint64) (*Writer, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ack: create %s: %w", path, err)
	}
	w := &Writer{
		f:          f,
		recordSize: recordSize,
		label:      store.Label{Offset: metadataPageSize},
	}
	if err := w.fillGap(metadataPageSize); err != nil {
		return nil, err
	}
	if err := w.fillGap(store.SlabLabelSize); err != nil {
		return nil, err
	}
	w.slabWritten = store.SlabLabelSize
	w.fileSize += metadataPageSize + store.SlabLabelSize
	return w, nil
}

func (w *Writer) fillGap(n uint64) error {
	if n == 0 {
		return nil
	}
	return w.f.Append(make([]byte, n))
}

// Write appends rec to the store, opening a new slab first if rec would
// overflow the current one.
func (w *Writer) Write(rec Record) error {
	allocated := store.ComputeAllocated(recordHeaderSize40, len(rec.Data))

	if w.slabWritten+uint64(allocated) > slabMaxSize {
		if err := w.closeSlab(); err != nil {
			return err
		}
		if err := w.fillGap(store.SlabLabelSize); err != nil {
			return err
		}
		w.slabWritten = store.SlabLabelSize
		w.fileSize += store.SlabLabelSize
	}

	body := packRecord40(rec, uint64(allocated), w.label.Offset, 0)
	crc := crc32.Value(body, 0xFFFFFFFF, 4, len(body))
	body = packRecord40(rec, uint64(allocated), w.label.Offset, crc)

	if err := w.f.Append(body); err != nil {
		return err
	}
	if pad := uint64(allocated) - uint64(len(body)); pad > 0 {
		if err := w.fillGap(pad); err != nil {
			return err
		}
	}
	w.slabWritten += uint64(allocated)
	w.fileSize += uint64(allocated)
	return nil
}

// packRecord40 packs the fixed header followed by rec.Data, matching
// struct 'IIIIQQQQQ{data}s'.
func packRecord40(rec Record, allocated, slabOffset uint64, crc uint32) []byte {
	buf := make([]byte, recordHeaderSize40+len(rec.Data))
	encoding.EncodeFixed32(buf[0:4], crc)
	encoding.EncodeFixed32(buf[4:8], rec.Flags)
	encoding.EncodeFixed32(buf[8:12], uint32(len(rec.Data)))
	encoding.EncodeFixed32(buf[12:16], uint32(allocated))
	encoding.EncodeFixed64(buf[16:24], slabOffset)
	encoding.EncodeFixed64(buf[24:32], rec.GenerationCount)
	encoding.EncodeFixed64(buf[32:40], rec.ClientNameHash)
	encoding.EncodeFixed64(buf[40:48], rec.ClientSeq)
	encoding.EncodeFixed64(buf[48:56], rec.LocalTxID)
	copy(buf[recordHeaderSize40:], rec.Data)
	return buf
}

func (w *Writer) closeSlab() error {
	if w.slabWritten < minSlabSize {
		pad := minSlabSize - w.slabWritten
		if err := w.fillGap(pad); err != nil {
			return err
		}
		w.slabWritten += pad
		w.fileSize += pad
	} else if w.slabWritten%store.PageSize != 0 {
		pad := store.PageSize - (w.slabWritten % store.PageSize)
		if err := w.fillGap(pad); err != nil {
			return err
		}
		w.slabWritten += pad
		w.fileSize += pad
	}

	w.label.Size = w.slabWritten
	labelBuf := w.label.PackWithCRC()
	if _, err := w.f.WriteAt(labelBuf[:28], int64(w.label.Offset)); err != nil {
		return fmt.Errorf("ack: write slab label at %d: %w", w.label.Offset, err)
	}

	w.slabCount++
	// A PageSize gap separates consecutive slabs; advance the append
	// cursor across it before the next slab's header reservation.
	gap := store.PageSize
	if err := w.fillGap(uint64(gap)); err != nil {
		return err
	}
	w.fileSize += uint64(gap)
	w.label.Offset = w.fileSize
	w.label.Size = 0
	w.slabWritten = 0
	return nil
}

// Close finalizes the store: closes the last slab, writes the metadata
// page, and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.closeSlab(); err != nil {
		return err
	}
	if err := w.writeMetadata(); err != nil {
		return err
	}
	return w.f.Close()
}

func (w *Writer) writeMetadata() error {
	buf := make([]byte, 52)
	encoding.PutNullPadded(buf[0:16], writeVersionString)
	encoding.EncodeFixed64(buf[16:24], w.fileSize)
	encoding.EncodeFixed64(buf[24:32], w.recordSize)
	encoding.EncodeFixed64(buf[32:40], writeIncrementSize)
	encoding.EncodeFixed64(buf[40:48], w.metaGenerationCnt)
	crc := crc32.Value(buf, 0, 0, 48)
	encoding.EncodeFixed32(buf[48:52], crc)
	_, err := w.f.WriteAt(buf, 0)
	return err
}
