// Package store holds the pieces shared by the journal, ack, and SOW
// codecs: the slab-label layout common to the slab-based formats, and
// the Options struct every reader, writer, and upgrade call takes.
//
// The original implementation drove equivalent behavior through a set
// of process-wide globals (UPGRADE, IS_LOCALTIME, OMIT_DATA). A global
// flag makes two callers in the same process fight over one setting,
// so here each call site gets its own Options value instead.
package store

import "github.com/aalhour/ampsfile/internal/logging"

// Options configures a reader, writer, or upgrade operation. The zero
// value is a valid, conservative default (no upgrade-time record
// skipping, UTC timestamps, data retained, warn-level logging).
type Options struct {
	// Upgrade enables upgrade-time record skipping: ack records with
	// client_seq == 0 and journal noop records are dropped rather than
	// carried into the rewritten file.
	Upgrade bool

	// IsLocalTime renders Dump timestamps in local time instead of UTC.
	IsLocalTime bool

	// OmitData excludes message payload bytes from Dump output, printing
	// only the fixed fields and the payload length.
	OmitData bool

	// Logger receives diagnostic output. A nil Logger is replaced with a
	// default WARN-level logger by OrDefault.
	Logger logging.Logger
}

// Log returns o.Logger, or a default logger if unset.
func (o Options) Log() logging.Logger {
	return logging.OrDefault(o.Logger)
}
