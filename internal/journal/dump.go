package journal

import (
	"fmt"
	"io"

	"github.com/aalhour/ampsfile/internal/msgtype"
	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/timeutil"
	"github.com/aalhour/ampsfile/internal/vfs"
)

// Dump writes a human-readable rendering of path's records to w, stopping
// after limit records (0 means unlimited). opts.OmitData suppresses the
// message payload in the output. Used by operators inspecting a journal
// file without a full upgrade.
func Dump(fs vfs.FS, path string, limit int, opts store.Options, w io.Writer) error {
	r, err := OpenReaderWithOptions(fs, path, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintf(w, "journal %s\n", path)
	fmt.Fprintf(w, "version: %s\n", r.Version())
	fmt.Fprintf(w, "instance_id: %d\n", r.Header().InstanceID)
	e := r.Extents()
	fmt.Fprintf(w, "extents: first_tx=%d last_tx=%d\n", e.FirstTxID, e.LastTxID)

	count := 0
	for limit == 0 || count < limit {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		ts := timeutil.ISO8601(rec.Timestamp, opts.IsLocalTime)
		if opts.OmitData {
			fmt.Fprintf(w, "type=%s local_tx_id=%d timestamp=%s topic=%q key=%q data_size=%d\n",
				rec.Type, rec.LocalTxID, ts, rec.Topic, rec.Key, len(rec.Data))
		} else {
			fmt.Fprintf(w, "type=%s local_tx_id=%d timestamp=%s topic=%q key=%q message_type=%s data=%q\n",
				rec.Type, rec.LocalTxID, ts, rec.Topic, rec.Key, msgtype.Name(rec.MessageTypeHash), rec.Data)
		}
		count++
	}
	fmt.Fprintf(w, "records: %d\n", count)
	return nil
}
