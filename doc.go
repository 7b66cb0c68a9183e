/*
Package ampsfile implements the on-disk file formats and upgrade engine for
a persistent messaging server's durability substrate: the journal
(append-only transaction log), the client-ack store (per-client delivery
cursors), and the SOW store (state-of-the-world, latest-value-per-key).

Each store kind has passed through several on-disk versions. This module
decodes every historical version and re-encodes into the latest version,
computing and verifying CRCs along the way. It does not load server
configuration, stage files on disk, run a messaging server, or cache,
index, or query records in memory; those concerns live above this layer.

# Usage

The per-store-kind packages (journal, ack, sow) each expose OpenReader,
CreateWriter, FileVersion, IsUpToDate and Dump. The upgrade package pairs an
old-version reader with a latest-version writer and streams records
through.

# Concurrency

A single open file is owned exclusively by its reader or writer; there is
no concurrent mutation of one file. Concurrent upgrades of distinct files
are safe, since the only shared state is the process-wide, immutable CRC
table in internal/crc32.

Reference: AMPS 5.3.0.258 bin/lib/amps_sow.py, amps_journal.py, amps_ack.py
*/
package ampsfile
