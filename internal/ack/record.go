package ack

// Record is the store-version-independent shape produced by Reader and
// consumed by Writer. Fields that a given on-disk version doesn't carry
// are left at their zero value.
type Record struct {
	ClientNameHash  uint64
	ClientSeq       uint64
	LocalTxID       uint64
	Flags           uint32
	GenerationCount uint64
	Data            []byte

	// NumRecords is the legacy 2.1 "span" count; always 1 for v4.0 records.
	NumRecords uint32
}

// recordHeaderSize40 is the size of the fixed v4.0 record header
// (crc, flags, data_size, allocated, slab_offset, generation_count,
// client_name_hash, client_seq, local_txid), matching struct 'IIIIQQQQQ'.
const recordHeaderSize40 = 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 8

// recordHeaderSize21 matches struct 'IIQQQ' (crc, num_records,
// client_name_hash, client_seq, local_txid).
const recordHeaderSize21 = 4 + 4 + 8 + 8 + 8
