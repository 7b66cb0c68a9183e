package sow

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

	fmt.Fprintf(w, "sow store %s\n", path)
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
		fmt.Fprintf(w, "key=%#x tx_id=%d flags=%d data_size=%d string_key=%q correlation_id=%q\n",
			rec.Key, rec.TxID, rec.Flags, rec.DataSize, rec.StringKey, rec.CorrelationID)
		count++
	}
	fmt.Fprintf(w, "records: %d invalid: %d\n", count, r.InvalidRecords())
	return nil
}
