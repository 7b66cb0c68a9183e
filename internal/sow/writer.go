package sow

import (
	"fmt"

	"github.com/aalhour/ampsfile/internal/crc32"
	"github.com/aalhour/ampsfile/internal/encoding"
	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/vfs"
)

const (
	writeVersionString      = "amps-sow-v3.0"
	writeCompressionType    = "gz"
	writeCompressionOptions = 9

	recordHeaderSize = 64

	minIncrementPageCount = 256
)

// Writer produces a v6.0 (on-disk magic "amps-sow-v3.0") SOW store.
// Records must already reflect latest-value-per-key semantics; Writer
// never deduplicates or merges by key.
type Writer struct {
	f          vfs.WritableFile
	recordSize uint64

	fileSize          uint64
	slabMaxSize       uint64
	slabWritten       uint64
	slabCount         uint64
	metaGenerationCnt uint64
	label             store.Label
}

// CreateWriter creates path and prepares it to receive records. recordSize
// and incrementSize are clamped and aligned the way open_writer does:
// recordSize to [128,16384] rounded up to a multiple of 128, incrementSize
// (a record count) to [128,1000000], and the resulting slab size floored
// at 256 pages.
func CreateWriter(fs vfs.FS, path string, recordSize, incrementSize uint64) (*Writer, error) {
	if recordSize < 128 {
		recordSize = 128
	} else if recordSize > 16384 {
		recordSize = 16384
	}
	if incrementSize < 128 {
		incrementSize = 128
	} else if incrementSize > 1000000 {
		incrementSize = 1000000
	}
	recordSize = (recordSize + store.AlignSizeMask) &^ store.AlignSizeMask
	slabSize := recordSize*incrementSize + store.SlabLabelSize
	minSize := uint64(minIncrementPageCount * store.PageSize)
	if slabSize < minSize {
		slabSize = minSize
	}

	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sow: create %s: %w", path, err)
	}
	w := &Writer{
		f:           f,
		recordSize:  recordSize,
		slabMaxSize: slabSize,
		label:       store.Label{Offset: metadataPageSize},
	}
	if err := w.fillGap(metadataPageSize); err != nil {
		return nil, err
	}
	if err := w.writeHeader(); err != nil {
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
	allocated := uint64(store.ComputeAllocated(recordHeaderSize, len(rec.Data)+len(rec.StringKey)+len(rec.CorrelationID)))
	if w.slabWritten+allocated > w.slabMaxSize {
		if err := w.closeSlab(); err != nil {
			return err
		}
		if err := w.fillGap(store.SlabLabelSize); err != nil {
			return err
		}
		w.slabWritten = store.SlabLabelSize
		w.fileSize += store.SlabLabelSize
	}

	body := packRecord(rec, uint32(allocated), w.label.Offset, 0)
	crc := crc32.Value(body, 0xFFFFFFFF, 4, len(body))
	body = packRecord(rec, uint32(allocated), w.label.Offset, crc)

	if err := w.f.Append(body); err != nil {
		return err
	}
	if pad := allocated - uint64(len(body)); pad > 0 {
		if err := w.fillGap(pad); err != nil {
			return err
		}
	}
	w.slabWritten += allocated
	w.fileSize += allocated
	return nil
}

// packRecord packs the fixed 64-byte header followed by string_key,
// correlation_id, and data, matching struct
// 'IIIIQQQIIQQ{string_key_len}s{correlation_id_len}s{data_size}s'.
func packRecord(rec Record, allocated uint32, slabOffset uint64, crc uint32) []byte {
	stringKeyLen := len(rec.StringKey)
	correlationIDLen := len(rec.CorrelationID)
	dataSize := len(rec.Data)

	buf := make([]byte, recordHeaderSize+stringKeyLen+correlationIDLen+dataSize)
	encoding.EncodeFixed32(buf[0:4], crc)
	encoding.EncodeFixed32(buf[4:8], rec.Flags)
	encoding.EncodeFixed32(buf[8:12], uint32(dataSize))
	encoding.EncodeFixed32(buf[12:16], allocated)
	encoding.EncodeFixed64(buf[16:24], slabOffset)
	encoding.EncodeFixed64(buf[24:32], rec.ExpirationTime)
	encoding.EncodeFixed64(buf[32:40], rec.UpdateTime)
	encoding.EncodeFixed32(buf[40:44], uint32(correlationIDLen))
	encoding.EncodeFixed32(buf[44:48], uint32(stringKeyLen))
	encoding.EncodeFixed64(buf[48:56], rec.Key)
	encoding.EncodeFixed64(buf[56:64], rec.TxID)
	off := recordHeaderSize
	off += copy(buf[off:], rec.StringKey)
	off += copy(buf[off:], rec.CorrelationID)
	copy(buf[off:], rec.Data)
	return buf
}

func (w *Writer) closeSlab() error {
	if w.slabWritten < w.slabMaxSize {
		pad := w.slabMaxSize - w.slabWritten
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
		return fmt.Errorf("sow: write slab label at %d: %w", w.label.Offset, err)
	}

	w.slabCount++
	w.label.Offset = w.fileSize + store.PageSize
	w.label.Size = 0
	w.slabWritten = 0
	return nil
}

// Close finalizes the store: closes the last slab, rewrites the
// metadata header with the final file size, and closes the underlying
// file.
func (w *Writer) Close() error {
	if err := w.closeSlab(); err != nil {
		return err
	}
	if err := w.writeHeader(); err != nil {
		return err
	}
	return w.f.Close()
}

// WriteLastSyncTxID patches the struct 'QQQ' (crc, sow_key, local_txid)
// sync marker at byte 128, the offset versions 5 and 6 use.
func (w *Writer) WriteLastSyncTxID(txid uint64) error {
	buf := make([]byte, 24)
	encoding.EncodeFixed64(buf[16:24], txid)
	_, err := w.f.WriteAt(buf, 128)
	return err
}

func (w *Writer) writeHeader() error {
	buf := make([]byte, 68)
	encoding.PutNullPadded(buf[0:16], writeVersionString)
	encoding.PutNullPadded(buf[16:24], writeCompressionType)
	encoding.EncodeFixed64(buf[24:32], writeCompressionOptions)
	encoding.EncodeFixed64(buf[32:40], w.fileSize)
	encoding.EncodeFixed64(buf[40:48], w.recordSize)
	encoding.EncodeFixed64(buf[48:56], w.slabMaxSize)
	encoding.EncodeFixed64(buf[56:64], w.metaGenerationCnt)
	crc := crc32.Value(buf, 0, 0, 64)
	encoding.EncodeFixed32(buf[64:68], crc)
	_, err := w.f.WriteAt(buf, 0)
	return err
}
