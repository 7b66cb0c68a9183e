// Package crc32 computes the reflected CRC-32 (IEEE polynomial, 0xEDB88320)
// used to checksum every metadata page, slab label, and record across the
// journal, ack, and SOW store formats.
//
// Unlike a block-storage checksum, nothing here is masked before being
// stored on disk: the store formats write the raw CRC-32 into the record
// itself, with the seed convention (0 or 0xFFFFFFFF) fixed per field by the
// writer/reader pair, not by this package.
//
// Reference: AMPS 5.3.0.258 bin/lib/amps_common.py (Crc32.crc32)
package crc32

import "hash/crc32"

// table is the standard reflected IEEE polynomial table, built once and
// never mutated; this is the process-wide CRC table required by the
// concurrency model.
var table = crc32.IEEETable

// Value returns the CRC-32 of data, seeded with seed. Passing seed 0
// matches the convention used by slab labels and legacy ack records;
// passing 0xFFFFFFFF matches the convention used by SOW, journal, and
// latest-version ack records. offset and end restrict the checksum to
// data[offset:end]; passing offset=0, end=len(data) covers the whole
// buffer.
func Value(data []byte, seed uint32, offset, end int) uint32 {
	return Extend(seed, data[offset:end])
}

// Extend returns the CRC-32 of data, continuing from the partial checksum
// init. Extend(0, data) is the plain one-shot checksum of data.
func Extend(init uint32, data []byte) uint32 {
	return crc32.Update(init, table, data)
}
