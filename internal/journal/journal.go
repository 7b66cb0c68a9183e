// Package journal implements the transaction log: an append-only record
// of every publish, SOW delete, duplicate, ack, and transfer the server
// processed, used to replay state after a restart or to recover a SOW.
//
// Eight on-disk versions exist (1 through 8). Unlike the ack and SOW
// stores, a journal file carries its version as an explicit numeric
// field rather than encoding it in the magic string, so detectVersion
// reads that field directly instead of matching a prefix. Writer only
// ever produces the current version (8).
package journal

import (
	"fmt"

	"github.com/aalhour/ampsfile/internal/vfs"
)

// Version identifies an on-disk journal format.
type Version int

const (
	VersionUnknown Version = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
)

// Latest is the version Writer always produces.
const Latest = V8

func (v Version) String() string {
	switch v {
	case V1, V2, V3, V4, V5, V6, V7, V8:
		return fmt.Sprintf("%d", int(v))
	default:
		return "unknown"
	}
}

const magic = "AMPS"

// metadataPageSize and extentsPageSize are both one disk block; the
// fixed header always occupies the first two blocks of the file
// regardless of version.
const (
	metadataPageSize = 512
	extentsPageSize  = 512
)

// firstRecordOffset is where the first record begins. Versions below 4
// packed records immediately after the extents page (offset 1024);
// version 4 onward reserves a full 4096-byte block for the header pair.
const (
	legacyFirstRecordOffset = metadataPageSize + extentsPageSize
	firstRecordOffset       = 4096
)

func firstOffsetFor(v Version) int64 {
	if v < V4 {
		return legacyFirstRecordOffset
	}
	return firstRecordOffset
}

// detectVersion reads the version field out of a freshly-read metadata
// page. Every version's header starts "AMPS" followed by a uint32
// version number, so detection never needs a version-specific prefix
// table the way ack and sow's magic-string formats do.
func detectVersion(header []byte) (Version, error) {
	if len(header) < 8 || string(header[0:4]) != magic {
		end := min(len(header), 20)
		return VersionUnknown, fmt.Errorf("journal: unrecognized store header %q", header[:end])
	}
	n := int(uint32(header[4]) | uint32(header[5])<<8 | uint32(header[6])<<16 | uint32(header[7])<<24)
	v := Version(n)
	if v < V1 || v > V8 {
		return VersionUnknown, fmt.Errorf("journal: unsupported version %d", n)
	}
	return v, nil
}

// FileVersion opens path and reports its on-disk version without reading
// any records.
func FileVersion(fs vfs.FS, path string) (Version, error) {
	r, err := OpenReader(fs, path)
	if err != nil {
		return VersionUnknown, err
	}
	defer r.Close()
	return r.Version(), nil
}

// IsUpToDate reports whether path is already stored in the Latest version.
func IsUpToDate(fs vfs.FS, path string) (bool, error) {
	v, err := FileVersion(fs, path)
	if err != nil {
		return false, err
	}
	return v == Latest, nil
}
