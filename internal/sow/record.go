package sow

// Flag bits for the slab-based versions (4.0, 5.0, 6.0).
const (
	FlagInvalid          uint32 = 1
	FlagHistorical       uint32 = 2
	FlagHistoricalDelete uint32 = 4
	FlagCompressed       uint32 = 8
	FlagStringKey        uint32 = 16
)

// MaxFlagsV4, MaxFlagsV5, and MaxFlagsV6 are the per-version upper
// bounds a decoded flags field must not exceed to be considered
// well-formed; each later version widened the valid range as new flag
// bits were assigned.
const (
	MaxFlagsV4 = 15
	MaxFlagsV5 = 7
	MaxFlagsV6 = 31
)

// Record is the store-version-independent shape produced by Reader and
// consumed by Writer.
type Record struct {
	Key             uint64
	TxID            uint64 // "seq" in the original
	Flags           uint32
	DataSize        uint32
	ExpirationTime  uint64
	UpdateTime      uint64
	GenerationCount uint64
	StringKey       string
	CorrelationID   string
	Data            []byte
}
