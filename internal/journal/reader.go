package journal

import (
	"fmt"
	"io"

	"github.com/aalhour/ampsfile/internal/crc32"
	"github.com/aalhour/ampsfile/internal/encoding"
	"github.com/aalhour/ampsfile/internal/logging"
	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/vfs"
)

// Reader decodes records from an open journal file of any supported
// version. Reader is a single-pass, forward-only iterator: records
// already returned by Next cannot be revisited.
type Reader struct {
	f    vfs.RandomAccessFile
	path string
	opts store.Options

	version Version
	header  FileHeader
	extents Extents

	// offset is the read cursor, advanced by Next.
	offset int64
}

// OpenReader opens path and reads its metadata and extents blocks,
// selecting the correct decode path for whichever version wrote it.
func OpenReader(fs vfs.FS, path string) (*Reader, error) {
	return OpenReaderWithOptions(fs, path, store.Options{})
}

// OpenReaderWithOptions is OpenReader with explicit Options.
func OpenReaderWithOptions(fs vfs.FS, path string, opts store.Options) (*Reader, error) {
	f, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	metaBuf := make([]byte, metadataPageSize)
	if _, err := f.ReadAt(metaBuf, 0); err != nil && err != io.EOF {
		_ = f.Close()
		return nil, fmt.Errorf("journal: read header of %s: %w", path, err)
	}
	v, err := detectVersion(metaBuf)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("journal: %s: %w", path, err)
	}

	metaEnd := 44
	if v >= V7 {
		metaEnd = 68
	}
	if got, want := encoding.DecodeFixed32(metaBuf[metaEnd:metaEnd+4]), crc32.Value(metaBuf, 0xFFFFFFFF, 0, metaEnd); got != want {
		opts.Log().Warnf(logging.NSJournal+"metadata page crc mismatch in %s: got %#x want %#x", path, got, want)
		_ = f.Close()
		return nil, fmt.Errorf("journal: %s: metadata crc mismatch: got %#x want %#x", path, got, want)
	}

	extBuf := make([]byte, extentsPageSize)
	if _, err := f.ReadAt(extBuf, metadataPageSize); err != nil && err != io.EOF {
		_ = f.Close()
		return nil, fmt.Errorf("journal: read extents of %s: %w", path, err)
	}
	extEnd := 16
	if v >= V7 {
		extEnd = 32
	}
	if got, want := encoding.DecodeFixed32(extBuf[extEnd:extEnd+4]), crc32.Value(extBuf, 0xFFFFFFFF, 0, extEnd); got != want {
		opts.Log().Warnf(logging.NSJournal+"extents page crc mismatch in %s: got %#x want %#x", path, got, want)
		_ = f.Close()
		return nil, fmt.Errorf("journal: %s: extents crc mismatch: got %#x want %#x", path, got, want)
	}

	r := &Reader{
		f:       f,
		path:    path,
		opts:    opts,
		version: v,
		header:  decodeHeader(metaBuf, v),
		extents: decodeExtents(extBuf, v),
		offset:  firstOffsetFor(v),
	}
	return r, nil
}

// Version reports the on-disk version of the opened file.
func (r *Reader) Version() Version { return r.version }

// Header reports the decoded metadata block.
func (r *Reader) Header() FileHeader { return r.header }

// Extents reports the decoded transaction-id/timestamp range.
func (r *Reader) Extents() Extents { return r.extents }

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Next returns the next record, or io.EOF when the store is exhausted.
func (r *Reader) Next() (Record, error) {
	for {
		rec, err := r.next()
		if err != nil {
			return Record{}, err
		}
		if r.opts.Upgrade && rec.Type == TypeNoop {
			continue
		}
		return rec, nil
	}
}

func (r *Reader) next() (Record, error) {
	hsz := headerSize(r.version)
	head := make([]byte, minTxSize)
	n, err := r.f.ReadAt(head, r.offset)
	if n < hsz {
		if err == nil || err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	head = head[:n]

	fx := decodeFixed(head, r.version)
	if fx.crc == 0 && fx.size == 0 {
		return Record{}, io.EOF
	}
	size := fx.size
	if size == 0 {
		size = uint32(minTxSize)
	}
	// Round up to a multiple of minTxSize, matching the writer's own
	// rounding; tolerates a truncated trailing partial block.
	rounded := (size + minTxSize - 1) / minTxSize * minTxSize

	recordStart := r.offset
	buf := head
	if int64(rounded) > int64(len(head)) {
		buf = make([]byte, rounded)
		nn, rerr := r.f.ReadAt(buf, r.offset)
		if nn < hsz {
			if rerr == nil || rerr == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, rerr
		}
		buf = buf[:nn]
	}
	r.offset += int64(rounded)

	varStart := hsz
	get := func(length uint32) string {
		end := varStart + int(length)
		if end > len(buf) {
			end = len(buf)
		}
		s := string(buf[varStart:end])
		varStart = end
		return s
	}
	getBytes := func(length uint32) []byte {
		end := varStart + int(length)
		if end > len(buf) {
			end = len(buf)
		}
		b := append([]byte(nil), buf[varStart:end]...)
		varStart = end
		return b
	}

	rec := Record{
		Size:              size,
		Type:              fx.typ,
		Flags:             fx.flags,
		MessageTypeHash:   fx.messageTypeHash,
		LocalTxID:         fx.localTxID,
		PreviousLocalTxID: fx.previousLocalTxID,
		SourceTxID:        fx.sourceTxID,
		SourceNameHash:    fx.sourceNameHash,
		ClientNameHash:    fx.clientNameHash,
		ClientSeq:         fx.clientSeq,
		TopicHash:         fx.topicHash,
		SOWKey:            fx.sowKey,
		SOWExpiration:     fx.sowExpiration,
		Timestamp:         fx.timestamp,
		PreviousSize:      fx.previousSize,
		Offset:            recordStart,
	}

	// Variable-width trailing fields. The original packs these in the
	// order topic, auth_id, key, correlation_id, replication_path, data;
	// this reader follows the field order this package's format
	// documents instead: topic, auth_id, correlation_id,
	// replication_path, key, message_data (see DESIGN.md for why the two
	// orders differ).
	rec.Topic = get(fx.topicLen)
	rec.AuthID = get(fx.authIDLen)
	rec.CorrelationID = get(fx.correlationIDLen)
	rec.ReplicationPath = get(fx.replicationPathLen)
	rec.Key = get(fx.keyLen)
	rec.Data = getBytes(fx.messageLen)

	return rec, nil
}

// fixedFields holds every value a header layout can populate, before
// variable-field extraction. Fields a version's layout does not carry
// are left at their zero value.
type fixedFields struct {
	crc               uint32
	size              uint32
	typ               RecordType
	flags             uint32
	messageLen        uint32
	messageTypeHash   uint64
	localTxID         uint64
	previousLocalTxID uint64
	sourceTxID        uint64
	sourceNameHash    uint64
	clientNameHash    uint64
	clientSeq         uint64
	topicHash         uint64
	sowKey            uint64
	sowExpiration     uint64
	timestamp         uint64
	previousSize      uint32
	topicLen          uint32
	authIDLen         uint32
	keyLen            uint32
	correlationIDLen  uint32
	replicationPathLen uint32
}

func decodeFixed(buf []byte, v Version) fixedFields {
	s := encoding.NewSlice(buf)
	var f fixedFields

	switch {
	case v == V1:
		f.crc, _ = s.GetFixed32()
		sz, _ := s.GetFixed32()
		f.size = sz
		typ, _ := s.GetFixed32()
		f.typ = RecordType(typ)
		f.messageLen, _ = s.GetFixed32()
		f.messageTypeHash, _ = s.GetFixed64()
		f.localTxID, _ = s.GetFixed64()
		f.sourceTxID, _ = s.GetFixed64()
		f.sourceNameHash, _ = s.GetFixed64()
		f.clientNameHash, _ = s.GetFixed64()
		f.clientSeq, _ = s.GetFixed64()
		f.topicHash, _ = s.GetFixed64()
		f.sowKey, _ = s.GetFixed64()
		f.timestamp, _ = s.GetFixed64()
		flags, _ := s.GetFixed32()
		f.flags = flags
		f.topicLen, _ = s.GetFixed32()

	case v >= V2 && v <= V4:
		f.crc, _ = s.GetFixed32()
		f.size, _ = s.GetFixed32()
		typ, _ := s.GetFixed32()
		f.typ = RecordType(typ)
		f.messageLen, _ = s.GetFixed32()
		f.messageTypeHash, _ = s.GetFixed64()
		f.localTxID, _ = s.GetFixed64()
		f.sourceTxID, _ = s.GetFixed64()
		f.sourceNameHash, _ = s.GetFixed64()
		f.clientNameHash, _ = s.GetFixed64()
		f.clientSeq, _ = s.GetFixed64()
		f.topicHash, _ = s.GetFixed64()
		f.sowKey, _ = s.GetFixed64()
		f.timestamp, _ = s.GetFixed64()
		flags, _ := s.GetFixed32()
		f.flags = flags
		f.topicLen, _ = s.GetFixed32()
		f.authIDLen, _ = s.GetFixed32()
		f.replicationPathLen, _ = s.GetFixed32()

	case v == V5:
		f.crc, _ = s.GetFixed32()
		f.size, _ = s.GetFixed32()
		typ, _ := s.GetFixed32()
		f.typ = RecordType(typ)
		f.messageLen, _ = s.GetFixed32()
		f.messageTypeHash, _ = s.GetFixed64()
		f.localTxID, _ = s.GetFixed64()
		f.previousLocalTxID, _ = s.GetFixed64()
		f.sourceTxID, _ = s.GetFixed64()
		f.sourceNameHash, _ = s.GetFixed64()
		f.clientNameHash, _ = s.GetFixed64()
		f.clientSeq, _ = s.GetFixed64()
		f.topicHash, _ = s.GetFixed64()
		f.sowExpiration, _ = s.GetFixed64()
		f.timestamp, _ = s.GetFixed64()
		f.previousSize, _ = s.GetFixed32()
		f.topicLen, _ = s.GetFixed32()
		f.authIDLen, _ = s.GetFixed32()
		f.replicationPathLen, _ = s.GetFixed32()

	case v == V6:
		f.crc, _ = s.GetFixed32()
		f.size, _ = s.GetFixed32()
		typ, _ := s.GetFixed32()
		f.typ = RecordType(typ)
		f.messageLen, _ = s.GetFixed32()
		f.messageTypeHash, _ = s.GetFixed64()
		f.localTxID, _ = s.GetFixed64()
		f.previousLocalTxID, _ = s.GetFixed64()
		f.sourceTxID, _ = s.GetFixed64()
		f.sourceNameHash, _ = s.GetFixed64()
		f.clientNameHash, _ = s.GetFixed64()
		f.clientSeq, _ = s.GetFixed64()
		f.topicHash, _ = s.GetFixed64()
		f.sowExpiration, _ = s.GetFixed64()
		f.timestamp, _ = s.GetFixed64()
		f.previousSize, _ = s.GetFixed32()
		f.topicLen, _ = s.GetFixed32()
		f.authIDLen, _ = s.GetFixed32()
		f.correlationIDLen, _ = s.GetFixed32()
		f.replicationPathLen, _ = s.GetFixed32()
		s.Advance(4) // padding word, no successor field in this version

	default: // V7, V8 (Latest)
		f.crc, _ = s.GetFixed32()
		f.size, _ = s.GetFixed32()
		typ, _ := s.GetFixed16()
		f.typ = RecordType(typ)
		flags, _ := s.GetFixed16()
		f.flags = uint32(flags)
		f.messageLen, _ = s.GetFixed32()
		f.messageTypeHash, _ = s.GetFixed64()
		f.localTxID, _ = s.GetFixed64()
		f.previousLocalTxID, _ = s.GetFixed64()
		f.sourceTxID, _ = s.GetFixed64()
		f.sourceNameHash, _ = s.GetFixed64()
		f.clientNameHash, _ = s.GetFixed64()
		f.clientSeq, _ = s.GetFixed64()
		f.topicHash, _ = s.GetFixed64()
		f.sowExpiration, _ = s.GetFixed64()
		f.timestamp, _ = s.GetFixed64()
		f.previousSize, _ = s.GetFixed32()
		f.topicLen, _ = s.GetFixed32()
		f.authIDLen, _ = s.GetFixed32()
		f.correlationIDLen, _ = s.GetFixed32()
		f.replicationPathLen, _ = s.GetFixed32()
		f.keyLen, _ = s.GetFixed32()
	}
	return f
}
