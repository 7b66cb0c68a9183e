// Package sow implements the state-of-the-world store: one record per
// key holding the latest published value for that key.
//
// Seven on-disk versions exist. The oldest four (1, 2, 2.1, 3.0) are flat
// fixed-record arrays; the newest two (4.0, 5.0) plus the current
// version (6.0, internally "v3.0" in its own header string — the
// store-version number and the on-disk magic's trailing digit diverge,
// a quirk of the original's naming that this package's Version enum
// hides behind symbolic names) are slab-allocated. Writer only ever
// produces the current version.
package sow

import (
	"fmt"

	"github.com/aalhour/ampsfile/internal/vfs"
)

// Version identifies an on-disk SOW store format.
type Version int

const (
	VersionUnknown Version = iota
	V1
	V2
	V21
	V3
	V4
	V5
	V6
)

// Latest is the version Writer always produces.
const Latest = V6

func (v Version) String() string {
	switch v {
	case V1:
		return "1.0"
	case V2:
		return "2.0"
	case V21:
		return "2.1"
	case V3:
		return "3.0"
	case V4:
		return "4.0"
	case V5:
		return "5.0"
	case V6:
		return "6.0"
	default:
		return "unknown"
	}
}

const metadataPageSize = 4096

const (
	magicV1  = "amps::amps_pstore/1.0"
	magicV2  = "persist::gpstore/1.0"
	magicV21 = "persist::gpstore/1.1"
	magicV3  = "persist::gpstore/3.0"
	magicV4  = "amps-sow-v1.0"
	magicV5  = "amps-sow-v2.0"
	magicV6  = "amps-sow-v3.0"
)

func detectVersion(header []byte) (Version, error) {
	switch {
	case hasPrefix(header, magicV1):
		return V1, nil
	case hasPrefix(header, magicV2):
		return V2, nil
	case hasPrefix(header, magicV21):
		return V21, nil
	case hasPrefix(header, magicV3):
		return V3, nil
	case hasPrefix(header, magicV4):
		return V4, nil
	case hasPrefix(header, magicV5):
		return V5, nil
	case hasPrefix(header, magicV6):
		return V6, nil
	default:
		end := min(len(header), 20)
		return VersionUnknown, fmt.Errorf("sow: unrecognized store header %q", header[:end])
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
