package ack

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aalhour/ampsfile/internal/crc32"
	"github.com/aalhour/ampsfile/internal/encoding"
	"github.com/aalhour/ampsfile/internal/logging"
	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/vfs"
)

// Reader decodes records from an open client-ack store of any supported
// version. Reader is a single-pass, forward-only iterator: records
// already returned by Next cannot be revisited.
type Reader struct {
	f    vfs.RandomAccessFile
	path string
	opts store.Options

	version    Version
	recordSize uint64

	// offset is the read cursor, advanced by Next.
	offset int64

	// v4.0 slab-walk state. nextSlab is where to look for the following
	// slab's label once the current one is exhausted.
	nextSlab      int64
	slabRemaining int64
	sawAnySlab    bool
}

// OpenReader opens path and reads its metadata header, selecting the
// correct decode path for whichever version wrote it.
func OpenReader(fs vfs.FS, path string) (*Reader, error) {
	return OpenReaderWithOptions(fs, path, store.Options{})
}

// OpenReaderWithOptions is OpenReader with explicit Options.
func OpenReaderWithOptions(fs vfs.FS, path string, opts store.Options) (*Reader, error) {
	f, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, fmt.Errorf("ack: open %s: %w", path, err)
	}
	header := make([]byte, metadataPageSize)
	if _, err := f.ReadAt(header, 0); err != nil && err != io.EOF {
		_ = f.Close()
		return nil, fmt.Errorf("ack: read header of %s: %w", path, err)
	}
	v, err := detectVersion(header)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ack: %s: %w", path, err)
	}
	if v == V40 {
		got := binary.LittleEndian.Uint32(header[48:52])
		want := crc32.Value(header, 0, 0, 48)
		if got != want {
			opts.Log().Warnf(logging.NSAck+"metadata page crc mismatch in %s: got %#x want %#x", path, got, want)
			_ = f.Close()
			return nil, fmt.Errorf("ack: %s: metadata crc mismatch: got %#x want %#x", path, got, want)
		}
	}
	r := &Reader{f: f, path: path, opts: opts, version: v, offset: metadataPageSize}
	switch v {
	case V21:
		s := encoding.NewSlice(header)
		s.Advance(32)
		r.recordSize, _ = s.GetFixed64()
	case V40:
		s := encoding.NewSlice(header)
		s.Advance(16)
		_, _ = s.GetFixed64() // size
		r.recordSize, _ = s.GetFixed64()
	}
	if r.recordSize == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("ack: %s: record_size is zero", path)
	}
	return r, nil
}

// Version reports the on-disk version of the opened file.
func (r *Reader) Version() Version { return r.version }

// RecordSize reports the store's declared record_size, used by Writer
// when upgrading a file in place.
func (r *Reader) RecordSize() uint64 { return r.recordSize }

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Next returns the next record, or io.EOF when the store is exhausted.
func (r *Reader) Next() (Record, error) {
	switch r.version {
	case V21:
		return r.nextV21()
	case V40:
		return r.nextV40()
	default:
		return Record{}, fmt.Errorf("ack: unsupported version %s", r.version)
	}
}

func (r *Reader) nextV21() (Record, error) {
	buf := make([]byte, r.recordSize)
	n, err := r.f.ReadAt(buf, r.offset)
	if n == 0 {
		if err == nil || err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	buf = buf[:n]
	if len(buf) < recordHeaderSize21 {
		return Record{}, io.EOF
	}
	crc := binary.LittleEndian.Uint32(buf[0:4])
	numRecords := binary.LittleEndian.Uint32(buf[4:8])
	clientNameHash := binary.LittleEndian.Uint64(buf[8:16])
	clientSeq := binary.LittleEndian.Uint64(buf[16:24])
	localTxID := binary.LittleEndian.Uint64(buf[24:32])

	span := int64(1)
	if numRecords > 1 {
		span = int64(numRecords)
	}
	r.offset += span * int64(r.recordSize)

	if crc == 0 && numRecords == 0 {
		// Padding/invalid slot; skip it and decode the next one.
		return r.nextV21()
	}

	return Record{
		ClientNameHash: clientNameHash,
		ClientSeq:      clientSeq,
		LocalTxID:      localTxID,
		NumRecords:     numRecords,
	}, nil
}

func (r *Reader) nextV40() (Record, error) {
	for {
		if r.slabRemaining <= 0 {
			if err := r.enterNextSlab(); err != nil {
				return Record{}, err
			}
		}

		const readSize = 128
		head := make([]byte, readSize)
		n, err := r.f.ReadAt(head, r.offset)
		if n < recordHeaderSize40 {
			if err == nil || err == io.EOF {
				r.slabRemaining = 0
				continue
			}
			return Record{}, err
		}

		crc := binary.LittleEndian.Uint32(head[0:4])
		flags := binary.LittleEndian.Uint32(head[4:8])
		dataSize := binary.LittleEndian.Uint32(head[8:12])
		allocated := binary.LittleEndian.Uint32(head[12:16])
		slabOffset := binary.LittleEndian.Uint64(head[16:24])
		generationCount := binary.LittleEndian.Uint64(head[24:32])
		clientNameHash := binary.LittleEndian.Uint64(head[32:40])
		clientSeq := binary.LittleEndian.Uint64(head[40:48])
		localTxID := binary.LittleEndian.Uint64(head[48:56])

		if flags > 1 || dataSize > allocated || crc == 0 {
			r.opts.Log().Warnf(logging.NSAck+"malformed record cell at offset %d in slab: flags=%#x data_size=%d allocated=%d crc=%#x",
				r.offset, flags, dataSize, allocated, crc)
			r.offset += readSize
			r.slabRemaining -= readSize
			continue
		}

		recordStart := r.offset
		r.offset += int64(allocated)
		r.slabRemaining -= int64(allocated)

		if dataSize == 0 && flags == 1 {
			continue
		}
		if r.opts.Upgrade && clientSeq == 0 {
			continue
		}

		data := make([]byte, dataSize)
		if dataSize > 0 {
			if _, err := r.f.ReadAt(data, recordStart+recordHeaderSize40); err != nil && err != io.EOF {
				return Record{}, fmt.Errorf("ack: read record data at %d: %w", recordStart, err)
			}
		}
		body := make([]byte, recordHeaderSize40+len(data))
		copy(body, head[:recordHeaderSize40])
		copy(body[recordHeaderSize40:], data)
		if want := crc32.Value(body, 0xFFFFFFFF, 4, len(body)); want != crc {
			r.opts.Log().Warnf(logging.NSAck+"record crc mismatch at offset %d: got %#x want %#x", recordStart, crc, want)
			continue
		}

		// slab_offset is positional (Writer recomputes it from the slab a
		// record is placed in) and carries no normalized Record field.
		_ = slabOffset

		return Record{
			ClientNameHash:  clientNameHash,
			ClientSeq:       clientSeq,
			LocalTxID:       localTxID,
			Flags:           flags,
			GenerationCount: generationCount,
			Data:            data,
			NumRecords:      1,
		}, nil
	}
}

func (r *Reader) enterNextSlab() error {
	if !r.sawAnySlab {
		r.nextSlab = r.offset
	}
	label := make([]byte, store.SlabLabelSize)
	n, err := r.f.ReadAt(label, r.nextSlab)
	if n < store.SlabLabelSize {
		if err == nil || err == io.EOF {
			return io.EOF
		}
		return err
	}
	l, err := store.UnpackLabel(label)
	if err != nil {
		r.opts.Log().Warnf(logging.NSAck+"slab label at offset %d: %v", r.nextSlab, err)
		return io.EOF
	}
	r.sawAnySlab = true
	// Content begins right after the label's reserved read_size area;
	// the label struct itself is read_size bytes for label purposes.
	r.offset = r.nextSlab + 128
	r.slabRemaining = int64(l.Size)
	r.nextSlab = int64(l.Offset) + int64(l.Size)
	return nil
}
