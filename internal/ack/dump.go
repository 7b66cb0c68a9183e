package ack

import (
	"fmt"
	"io"

	"github.com/aalhour/ampsfile/internal/vfs"
)

// Dump writes a human-readable rendering of path's records to w, stopping
// after limit records (0 means unlimited). Used by operators inspecting a
// store file without a full upgrade.
func Dump(fs vfs.FS, path string, limit int, w io.Writer) error {
	r, err := OpenReader(fs, path)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintf(w, "ack store %s\n", path)
	fmt.Fprintf(w, "version: %s\n", r.Version())
	fmt.Fprintf(w, "record_size: %d\n", r.RecordSize())

	count := 0
	for limit == 0 || count < limit {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "client_name_hash=%#x client_seq=%d local_tx_id=%d flags=%d data_size=%d\n",
			rec.ClientNameHash, rec.ClientSeq, rec.LocalTxID, rec.Flags, len(rec.Data))
		count++
	}
	fmt.Fprintf(w, "records: %d\n", count)
	return nil
}
