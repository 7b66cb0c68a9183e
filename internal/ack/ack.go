// Package ack implements the client-ack store: one record per
// (client, sequence) delivery cursor, used by the server to resume
// publishing to a client after a restart.
//
// Two on-disk versions exist: the legacy flat-array format (2.1, also
// written by the still older "persist::gpstore/1.1" and
// "persist::gpstore/3.0" stores) and the current slab-based format
// (4.0, magic "amps-store-v1.0"). Writer writes only the 4.0 format;
// Reader decodes both.
package ack

import (
	"fmt"

	"github.com/aalhour/ampsfile/internal/vfs"
)

// Version identifies an on-disk client-ack store format.
type Version int

const (
	// VersionUnknown is returned when the header magic is unrecognized.
	VersionUnknown Version = iota
	// V21 is the legacy flat fixed-array format.
	V21
	// V40 is the current slab-based format.
	V40
)

// Latest is the version Writer always produces.
const Latest = V40

func (v Version) String() string {
	switch v {
	case V21:
		return "2.1"
	case V40:
		return "4.0"
	default:
		return "unknown"
	}
}

const (
	metadataPageSize = 4096

	legacyMagicGPStore11 = "persist::gpstore/1.1"
	legacyMagicGPStore30 = "persist::gpstore/3.0"
	magicV40             = "amps-store-v1.0"
)

// detectVersion inspects the first metadataPageSize bytes of a store file
// and reports which version produced it.
func detectVersion(header []byte) (Version, error) {
	switch {
	case hasPrefix(header, legacyMagicGPStore11), hasPrefix(header, legacyMagicGPStore30):
		return V21, nil
	case hasPrefix(header, magicV40):
		return V40, nil
	default:
		end := min(len(header), 20)
		return VersionUnknown, fmt.Errorf("ack: unrecognized store header %q", header[:end])
	}
}

func hasPrefix(b []byte, s string) bool {
	return len(b) >= len(s) && string(b[:len(s)]) == s
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
