package sow

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

// Reader decodes records from an open SOW store of any supported
// version. Reader is a single-pass, forward-only iterator.
type Reader struct {
	f    vfs.RandomAccessFile
	opts store.Options

	version    Version
	recordSize uint64

	// offset is the read cursor, advanced by Next.
	offset int64

	// v4.0/v5.0/v6.0 slab-walk state. nextSlab is where to look for the
	// following slab's label once the current one is exhausted.
	nextSlab      int64
	slabRemaining int64
	sawAnySlab    bool

	invalidRecords int
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
		return nil, fmt.Errorf("sow: open %s: %w", path, err)
	}
	header := make([]byte, metadataPageSize)
	if _, err := f.ReadAt(header, 0); err != nil && err != io.EOF {
		_ = f.Close()
		return nil, fmt.Errorf("sow: read header of %s: %w", path, err)
	}
	v, err := detectVersion(header)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sow: %s: %w", path, err)
	}
	if v == V4 || v == V5 || v == V6 {
		got := binary.LittleEndian.Uint32(header[64:68])
		want := crc32.Value(header, 0, 0, 64)
		if got != want {
			opts.Log().Warnf(logging.NSSOW+"metadata page crc mismatch in %s: got %#x want %#x", path, got, want)
			_ = f.Close()
			return nil, fmt.Errorf("sow: %s: metadata crc mismatch: got %#x want %#x", path, got, want)
		}
	}
	r := &Reader{f: f, opts: opts, version: v, offset: metadataPageSize}

	s := encoding.NewSlice(header)
	switch v {
	case V1:
		s.Advance(21 + 1)
		r.recordSize, _ = s.GetFixed64()
	case V2, V21, V3:
		s.Advance(32)
		r.recordSize, _ = s.GetFixed64()
	case V4, V5:
		s.Advance(16)
		_, _ = s.GetFixed64() // size
		r.recordSize, _ = s.GetFixed64()
	case V6:
		s.Advance(16 + 8)
		_, _ = s.GetFixed64() // compression_options
		_, _ = s.GetFixed64() // size
		r.recordSize, _ = s.GetFixed64()
	}
	if r.recordSize == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("sow: %s: record_size is zero", path)
	}
	return r, nil
}

// Version reports the on-disk version of the opened file.
func (r *Reader) Version() Version { return r.version }

// RecordSize reports the store's declared record_size.
func (r *Reader) RecordSize() uint64 { return r.recordSize }

// InvalidRecords reports how many records were skipped since the reader
// was opened for a record CRC mismatch, for being deleted (invalid flag,
// no data), or as invalid legacy slots. Malformed cells, which are
// skipped 128 bytes at a time, are not counted.
func (r *Reader) InvalidRecords() int { return r.invalidRecords }

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// LastSyncTxID reads the sync marker written at the fixed offset every
// version reserves just past its metadata struct, used by the upgrade
// driver to decide how far replay already reached. Versions 1 through
// 4 place the struct 'QQQ' (crc, sow_key, local_txid) at byte 64;
// versions 5 and 6 moved it to byte 128 to make room for the wider
// metadata struct.
func (r *Reader) LastSyncTxID() (uint64, error) {
	off := int64(64)
	if r.version == V5 || r.version == V6 {
		off = 128
	}
	buf := make([]byte, 24)
	if _, err := r.f.ReadAt(buf, off); err != nil && err != io.EOF {
		return 0, fmt.Errorf("sow: read sync marker: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[16:24]), nil
}

// Metadata returns the raw 4096-byte metadata page, used by the upgrade
// driver to carry it forward unchanged when replay reached the source's
// last sync point.
func (r *Reader) Metadata() ([]byte, error) {
	buf := make([]byte, metadataPageSize)
	if _, err := r.f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// Next returns the next record, or io.EOF when the store is exhausted.
func (r *Reader) Next() (Record, error) {
	switch r.version {
	case V1:
		return r.nextV1()
	case V2:
		return r.nextFlatV2(true)
	case V21:
		return r.nextFlatV2(false)
	case V3:
		return r.nextFlatV3()
	case V4:
		return r.nextSlabV4()
	case V5:
		return r.nextSlabV5(MaxFlagsV5)
	case V6:
		return r.nextSlabV5(MaxFlagsV6)
	default:
		return Record{}, fmt.Errorf("sow: unsupported version %s", r.version)
	}
}

// nextV1 decodes the oldest flat layout: struct 'QQQQQQQ' (crc, flags,
// node_size, header_size, data_size, key, seq), an opaque per-record
// header of header_size bytes, then data_size bytes of data.
func (r *Reader) nextV1() (Record, error) {
	buf := make([]byte, r.recordSize)
	n, err := r.f.ReadAt(buf, r.offset)
	if n == 0 {
		if err == nil || err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	buf = buf[:n]
	if len(buf) < 56 {
		return Record{}, io.EOF
	}
	s := encoding.NewSlice(buf)
	_, _ = s.GetFixed64() // crc
	_, _ = s.GetFixed64() // flags
	nodeSize, _ := s.GetFixed64()
	headerSize, _ := s.GetFixed64()
	dataSize, _ := s.GetFixed64()
	key, _ := s.GetFixed64()
	seq, _ := s.GetFixed64()

	span := int64(1)
	if r.recordSize > 0 && nodeSize/r.recordSize > 1 {
		span = int64(nodeSize / r.recordSize)
	}
	r.offset += span * int64(r.recordSize)

	var data []byte
	start := 56 + int(headerSize)
	end := start + int(dataSize)
	if start >= 0 && end <= len(buf) && start <= end {
		data = append([]byte(nil), buf[start:end]...)
	}

	return Record{Key: key, TxID: seq, DataSize: uint32(dataSize), Data: data}, nil
}

// nextFlatV2 decodes the v2/v2.1 layout: struct 'IIIIIQQ'
// (crc, valid, num_records, data_size, header_size, key, seq).
// checkValidMarker is true only for v2, which additionally requires
// the fixed "valid" marker 2779096485 on every record.
func (r *Reader) nextFlatV2(checkValidMarker bool) (Record, error) {
	for {
		buf := make([]byte, r.recordSize)
		n, err := r.f.ReadAt(buf, r.offset)
		if n == 0 {
			if err == nil || err == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		buf = buf[:n]
		if len(buf) < 36 {
			return Record{}, io.EOF
		}
		crc := binary.LittleEndian.Uint32(buf[0:4])
		valid := binary.LittleEndian.Uint32(buf[4:8])
		numRecords := binary.LittleEndian.Uint32(buf[8:12])
		dataSize := binary.LittleEndian.Uint32(buf[12:16])
		headerSize := binary.LittleEndian.Uint32(buf[16:20])
		key := binary.LittleEndian.Uint64(buf[20:28])
		seq := binary.LittleEndian.Uint64(buf[28:36])

		span := int64(1)
		if numRecords > 1 {
			span = int64(numRecords)
		}
		r.offset += span * int64(r.recordSize)

		if checkValidMarker && valid != 2779096485 {
			r.invalidRecords++
			continue
		}
		if !checkValidMarker && crc == 0 && numRecords == 0 {
			r.invalidRecords++
			continue
		}

		start := 36 + int(headerSize)
		end := start + int(dataSize)
		var data []byte
		if start >= 0 && end <= len(buf) && start <= end {
			data = append([]byte(nil), buf[start:end]...)
		}
		return Record{Key: key, TxID: seq, DataSize: dataSize, Data: data}, nil
	}
}

// nextFlatV3 decodes the v3.0 layout: struct 'IIIIQQQ'
// (crc, valid, num_records, data_size, expiration, key, seq), data
// immediately following with no opaque per-record header.
func (r *Reader) nextFlatV3() (Record, error) {
	for {
		buf := make([]byte, r.recordSize)
		n, err := r.f.ReadAt(buf, r.offset)
		if n == 0 {
			if err == nil || err == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		buf = buf[:n]
		if len(buf) < 40 {
			return Record{}, io.EOF
		}
		crc := binary.LittleEndian.Uint32(buf[0:4])
		numRecords := binary.LittleEndian.Uint32(buf[8:12])
		dataSize := binary.LittleEndian.Uint32(buf[12:16])
		expiration := binary.LittleEndian.Uint64(buf[16:24])
		key := binary.LittleEndian.Uint64(buf[24:32])
		seq := binary.LittleEndian.Uint64(buf[32:40])

		span := int64(1)
		if numRecords > 1 {
			span = int64(numRecords)
		}
		r.offset += span * int64(r.recordSize)

		if crc == 0 && numRecords == 0 {
			r.invalidRecords++
			continue
		}

		end := min(len(buf), 40+int(dataSize))
		data := append([]byte(nil), buf[40:end]...)
		return Record{Key: key, TxID: seq, DataSize: dataSize, ExpirationTime: expiration, Data: data}, nil
	}
}

const readSize = 128

// nextSlabV4 decodes the v4.0 slab record layout: struct
// 'IIIIQQQQQQ' (crc, flags, data_size, allocated, slab_offset,
// expiration_time, update_time, generation_count, key, seq), 64 bytes,
// no string_key/correlation_id fields.
func (r *Reader) nextSlabV4() (Record, error) {
	for {
		if r.slabRemaining <= 0 {
			if err := r.enterNextSlab(); err != nil {
				return Record{}, err
			}
		}

		head := make([]byte, readSize)
		n, err := r.f.ReadAt(head, r.offset)
		if n < 64 {
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
		_ = binary.LittleEndian.Uint64(head[16:24]) // slab_offset
		expirationTime := binary.LittleEndian.Uint64(head[24:32])
		updateTime := binary.LittleEndian.Uint64(head[32:40])
		generationCount := binary.LittleEndian.Uint64(head[40:48])
		key := binary.LittleEndian.Uint64(head[48:56])
		seq := binary.LittleEndian.Uint64(head[56:64])

		if flags > MaxFlagsV4 || dataSize > allocated || crc == 0 {
			r.opts.Log().Warnf(logging.NSSOW+"malformed record cell at offset %d in slab: flags=%#x data_size=%d allocated=%d crc=%#x",
				r.offset, flags, dataSize, allocated, crc)
			r.offset += readSize
			r.slabRemaining -= readSize
			continue
		}

		recordStart := r.offset
		r.offset += int64(allocated)
		r.slabRemaining -= int64(allocated)

		if int(allocated) > readSize {
			tail := make([]byte, int(allocated)-readSize)
			if _, err := r.f.ReadAt(tail, recordStart+readSize); err != nil && err != io.EOF {
				return Record{}, err
			}
			head = append(head, tail...)
		}
		wantCRC := crc32.Value(head, 0xFFFFFFFF, 4, min(len(head), 64+int(dataSize)))
		if wantCRC != crc {
			r.opts.Log().Warnf(logging.NSSOW+"record crc mismatch at offset %d: got %#x want %#x", recordStart, crc, wantCRC)
			r.invalidRecords++
			continue
		}
		if dataSize == 0 && flags&FlagInvalid != 0 {
			r.invalidRecords++
			continue
		}

		data := append([]byte(nil), head[64:min(len(head), 64+int(dataSize))]...)
		return Record{
			Key: key, TxID: seq, Flags: flags, DataSize: dataSize,
			ExpirationTime: expirationTime, UpdateTime: updateTime,
			GenerationCount: generationCount, Data: data,
		}, nil
	}
}

// nextSlabV5 decodes the v5.0/v6.0 slab record layout: struct
// 'IIIIQQQIIQQ' (crc, flags, data_size, allocated, slab_offset,
// expiration_time, update_time, correlation_id_len, string_key_len,
// key, txid), 64 bytes, followed by string_key | correlation_id | data.
func (r *Reader) nextSlabV5(maxFlags uint32) (Record, error) {
	for {
		if r.slabRemaining <= 0 {
			if err := r.enterNextSlab(); err != nil {
				return Record{}, err
			}
		}

		head := make([]byte, readSize)
		n, err := r.f.ReadAt(head, r.offset)
		if n < 64 {
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
		_ = binary.LittleEndian.Uint64(head[16:24]) // slab_offset
		expirationTime := binary.LittleEndian.Uint64(head[24:32])
		updateTime := binary.LittleEndian.Uint64(head[32:40])
		correlationIDLen := binary.LittleEndian.Uint32(head[40:44])
		stringKeyLen := binary.LittleEndian.Uint32(head[44:48])
		key := binary.LittleEndian.Uint64(head[48:56])
		txid := binary.LittleEndian.Uint64(head[56:64])

		if flags > maxFlags || dataSize > allocated || crc == 0 {
			r.opts.Log().Warnf(logging.NSSOW+"malformed record cell at offset %d in slab: flags=%#x data_size=%d allocated=%d crc=%#x",
				r.offset, flags, dataSize, allocated, crc)
			r.offset += readSize
			r.slabRemaining -= readSize
			continue
		}

		recordStart := r.offset
		r.offset += int64(allocated)
		r.slabRemaining -= int64(allocated)

		if int(allocated) > readSize {
			tail := make([]byte, int(allocated)-readSize)
			if _, err := r.f.ReadAt(tail, recordStart+readSize); err != nil && err != io.EOF {
				return Record{}, err
			}
			head = append(head, tail...)
		}

		varTotal := int(stringKeyLen) + int(correlationIDLen) + int(dataSize)
		wantCRC := crc32.Value(head, 0xFFFFFFFF, 4, min(len(head), 64+varTotal))
		if wantCRC != crc {
			r.opts.Log().Warnf(logging.NSSOW+"record crc mismatch at offset %d: got %#x want %#x", recordStart, crc, wantCRC)
			r.invalidRecords++
			continue
		}
		if dataSize == 0 && flags&FlagInvalid != 0 {
			r.invalidRecords++
			continue
		}

		stringKey := string(head[64 : 64+int(stringKeyLen)])
		correlationID := string(head[64+int(stringKeyLen) : 64+int(stringKeyLen)+int(correlationIDLen)])
		dataStart := 64 + int(stringKeyLen) + int(correlationIDLen)
		data := append([]byte(nil), head[dataStart:min(len(head), dataStart+int(dataSize))]...)

		return Record{
			Key: key, TxID: txid, Flags: flags, DataSize: dataSize,
			ExpirationTime: expirationTime, UpdateTime: updateTime,
			StringKey: stringKey, CorrelationID: correlationID, Data: data,
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
	l, lerr := store.UnpackLabel(label)
	if lerr != nil {
		r.opts.Log().Warnf(logging.NSSOW+"slab label at offset %d: %v", r.nextSlab, lerr)
		return io.EOF
	}
	r.sawAnySlab = true
	r.offset = r.nextSlab + readSize
	r.slabRemaining = int64(l.Size)
	r.nextSlab = int64(l.Offset) + int64(l.Size)
	return nil
}
