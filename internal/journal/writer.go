package journal

import (
	"fmt"

	"github.com/aalhour/ampsfile/internal/crc32"
	"github.com/aalhour/ampsfile/internal/encoding"
	"github.com/aalhour/ampsfile/internal/vfs"
)

const writeVersionString = "amps::txlog/v8"

// Writer produces a version-8 journal file. Unlike ack and sow, whose
// writers carry forward a single sync marker, a journal writer's
// extents (the transaction-id and timestamp range the file covers) are
// seeded from the source file's own header at upgrade time and then
// refined incrementally as records are written, so CreateWriter takes
// them as an argument rather than Writer reconstructing them itself.
type Writer struct {
	f          vfs.WritableFile
	instanceID uint32
	fileSize   int64
	extents    Extents
	sawAny     bool
}

// CreateWriter creates path and prepares it to receive records. extents
// should be the caller's best-known starting range (typically the
// source file's own Extents, when upgrading); Write refines FirstTxID,
// LastTxID, and their timestamps as records are appended, and Close
// persists the final values.
func CreateWriter(fs vfs.FS, path string, instanceID uint32, extents Extents) (*Writer, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("journal: create %s: %w", path, err)
	}
	w := &Writer{f: f, instanceID: instanceID, extents: extents, sawAny: extents != (Extents{})}
	if err := w.f.Append(make([]byte, firstRecordOffset)); err != nil {
		return nil, err
	}
	if err := w.writeHeaders(); err != nil {
		return nil, err
	}
	w.fileSize = firstRecordOffset
	return w, nil
}

func (w *Writer) writeHeaders() error {
	h := FileHeader{Version: Latest, InstanceID: w.instanceID, VersionString: writeVersionString}
	if _, err := w.f.WriteAt(packHeader(h, Latest), 0); err != nil {
		return fmt.Errorf("journal: write header: %w", err)
	}
	if _, err := w.f.WriteAt(packExtents(w.extents, Latest), metadataPageSize); err != nil {
		return fmt.Errorf("journal: write extents: %w", err)
	}
	return nil
}

// Write appends rec, rounding its on-disk size up to a multiple of
// minTxSize and updating the tracked extents.
func (w *Writer) Write(rec Record) error {
	hsz := headerSize(Latest)
	varLen := len(rec.Topic) + len(rec.AuthID) + len(rec.CorrelationID) + len(rec.ReplicationPath) + len(rec.Key) + len(rec.Data)
	structSize := hsz + varLen
	rounded := (structSize + minTxSize - 1) / minTxSize * minTxSize

	rec.Size = uint32(structSize)
	body := packRecord(rec, 0)
	crc := crc32.Value(body, 0xFFFFFFFF, 4, len(body))
	body = packRecord(rec, crc)

	if err := w.f.Append(body); err != nil {
		return err
	}
	if pad := rounded - len(body); pad > 0 {
		if err := w.f.Append(make([]byte, pad)); err != nil {
			return err
		}
	}
	w.fileSize += int64(rounded)
	w.trackExtents(rec)
	return nil
}

func (w *Writer) trackExtents(rec Record) {
	if rec.Type == TypeNoop {
		return
	}
	if !w.sawAny || rec.LocalTxID < w.extents.FirstTxID {
		w.extents.FirstTxID = rec.LocalTxID
		w.extents.FirstTimestamp = rec.Timestamp
	}
	if !w.sawAny || rec.LocalTxID > w.extents.LastTxID {
		w.extents.LastTxID = rec.LocalTxID
		w.extents.LastTimestamp = rec.Timestamp
	}
	w.sawAny = true
}

// packRecord packs rec using the version-8 (Latest) header layout,
// followed by topic, auth_id, correlation_id, replication_path, key,
// and message_data in that order.
func packRecord(rec Record, crc uint32) []byte {
	hsz := headerSize(Latest)
	varLen := len(rec.Topic) + len(rec.AuthID) + len(rec.CorrelationID) + len(rec.ReplicationPath) + len(rec.Key) + len(rec.Data)
	buf := make([]byte, hsz+varLen)

	encoding.EncodeFixed32(buf[0:4], crc)
	encoding.EncodeFixed32(buf[4:8], rec.Size)
	encoding.EncodeFixed16(buf[8:10], uint16(rec.Type))
	encoding.EncodeFixed16(buf[10:12], uint16(rec.Flags))
	encoding.EncodeFixed32(buf[12:16], uint32(len(rec.Data)))
	encoding.EncodeFixed64(buf[16:24], rec.MessageTypeHash)
	encoding.EncodeFixed64(buf[24:32], rec.LocalTxID)
	encoding.EncodeFixed64(buf[32:40], rec.PreviousLocalTxID)
	encoding.EncodeFixed64(buf[40:48], rec.SourceTxID)
	encoding.EncodeFixed64(buf[48:56], rec.SourceNameHash)
	encoding.EncodeFixed64(buf[56:64], rec.ClientNameHash)
	encoding.EncodeFixed64(buf[64:72], rec.ClientSeq)
	encoding.EncodeFixed64(buf[72:80], rec.TopicHash)
	encoding.EncodeFixed64(buf[80:88], rec.SOWExpiration)
	encoding.EncodeFixed64(buf[88:96], rec.Timestamp)
	encoding.EncodeFixed32(buf[96:100], rec.PreviousSize)
	encoding.EncodeFixed32(buf[100:104], uint32(len(rec.Topic)))
	encoding.EncodeFixed32(buf[104:108], uint32(len(rec.AuthID)))
	encoding.EncodeFixed32(buf[108:112], uint32(len(rec.CorrelationID)))
	encoding.EncodeFixed32(buf[112:116], uint32(len(rec.ReplicationPath)))
	encoding.EncodeFixed32(buf[116:120], uint32(len(rec.Key)))

	off := hsz
	off += copy(buf[off:], rec.Topic)
	off += copy(buf[off:], rec.AuthID)
	off += copy(buf[off:], rec.CorrelationID)
	off += copy(buf[off:], rec.ReplicationPath)
	off += copy(buf[off:], rec.Key)
	copy(buf[off:], rec.Data)
	return buf
}

// Close pads the file to the next firstRecordOffset-aligned boundary
// with a single noop record when the last record left it misaligned,
// rewrites the header and extents with their final values, and closes
// the underlying file.
func (w *Writer) Close() error {
	if gap := w.fileSize % firstRecordOffset; gap != 0 {
		pad := firstRecordOffset - gap
		hsz := int64(headerSize(Latest))
		if pad >= hsz {
			noop := Record{Type: TypeNoop, Size: uint32(pad)}
			body := packRecord(noop, 0)
			crc := crc32.Value(body, 0xFFFFFFFF, 4, len(body))
			body = packRecord(noop, crc)
			if err := w.f.Append(body); err != nil {
				return err
			}
			if extra := pad - int64(len(body)); extra > 0 {
				if err := w.f.Append(make([]byte, extra)); err != nil {
					return err
				}
			}
		} else if err := w.f.Append(make([]byte, pad)); err != nil {
			return err
		}
		w.fileSize += pad
	}
	if err := w.writeHeaders(); err != nil {
		return err
	}
	return w.f.Close()
}
