// Package msgtype resolves the 64-bit message-type hash a journal
// record stores back to the human-readable wire-format name it was
// computed from.
package msgtype

import "fmt"

// names maps the fixed hash of each known message type to its name.
// The hashes themselves are a closed, historical set baked into every
// AMPS journal file; there is no algorithm to derive them from the
// name, only this table.
var names = map[uint64]string{
	11366176381677217403: "fix",
	2827704697691937455:  "nvfix",
	10107872178429970057: "xml",
	9900685383425431138:  "json",
	8442027542746405716:  "bson",
	10020990295791775699: "binary",
	5817622476697324896:  "bflat",
	698723037243269950:   "protobuf",
}

// Name returns the message-type name for hash, or "<hash> (unknown)" if
// hash is not one of the known types.
func Name(hash uint64) string {
	if name, ok := names[hash]; ok {
		return name
	}
	return fmt.Sprintf("%d (unknown)", hash)
}
