package sow

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aalhour/ampsfile/internal/vfs"
)

func writeSample(t *testing.T, path string, recs ...Record) {
	t.Helper()
	w, err := CreateWriter(vfs.Default(), path, 256, 128)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.sow")
	want := []Record{
		{Key: 0x1111, TxID: 42, Data: []byte("hello")},
		{Key: 0x2222, TxID: 43, StringKey: "topic/key", CorrelationID: "corr-1", Data: []byte("world")},
	}
	writeSample(t, path, want...)

	r, err := OpenReader(vfs.Default(), path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if r.Version() != Latest {
		t.Fatalf("Version() = %s, want %s", r.Version(), Latest)
	}

	var got []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key != want[i].Key || got[i].TxID != want[i].TxID || string(got[i].Data) != string(want[i].Data) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
		if got[i].StringKey != want[i].StringKey || got[i].CorrelationID != want[i].CorrelationID {
			t.Errorf("record %d variable fields = %+v, want %+v", i, got[i], want[i])
		}
	}
	if r.InvalidRecords() != 0 {
		t.Errorf("InvalidRecords() = %d, want 0", r.InvalidRecords())
	}
}

func TestIsUpToDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.sow")
	writeSample(t, path, Record{Key: 1, TxID: 1})

	up, err := IsUpToDate(vfs.Default(), path)
	if err != nil {
		t.Fatalf("IsUpToDate: %v", err)
	}
	if !up {
		t.Error("IsUpToDate = false, want true for a freshly written store")
	}
}

func TestLastSyncTxIDRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.sow")
	w, err := CreateWriter(vfs.Default(), path, 256, 128)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	if err := w.Write(Record{Key: 1, TxID: 7}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.WriteLastSyncTxID(7); err != nil {
		t.Fatalf("WriteLastSyncTxID: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(vfs.Default(), path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	got, err := r.LastSyncTxID()
	if err != nil {
		t.Fatalf("LastSyncTxID: %v", err)
	}
	if got != 7 {
		t.Errorf("LastSyncTxID() = %d, want 7", got)
	}
}

func TestUnrecognizedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.sow")
	f, err := vfs.Default().Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write(make([]byte, metadataPageSize)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := OpenReader(vfs.Default(), path); err == nil {
		t.Error("OpenReader succeeded on an all-zero header, want error")
	}
}

func TestBoundaryExactSlabFit(t *testing.T) {
	// A record whose allocated size exactly equals the remaining slab
	// bytes must not trigger a new slab (spec.md §8 boundary behavior).
	// With recordSize=128 and incrementSize=128 the slab size is floored
	// at 256 pages; each 40-byte record allocates 128 bytes, so the
	// records below fill the slab after its label exactly.
	path := filepath.Join(t.TempDir(), "exact.sow")
	w, err := CreateWriter(vfs.Default(), path, 128, 128)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	data := make([]byte, 40)
	n := int((w.slabMaxSize - w.slabWritten) / 128)
	for i := 0; i < n; i++ {
		if err := w.Write(Record{Key: uint64(i + 1), TxID: uint64(i + 1), Data: data}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if w.slabWritten != w.slabMaxSize || w.slabCount != 0 {
		t.Fatalf("slabWritten = %d of %d, slabCount = %d; want the first slab exactly full and still open",
			w.slabWritten, w.slabMaxSize, w.slabCount)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(vfs.Default(), path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(rec.Data) != 40 {
		t.Errorf("Data length = %d, want 40", len(rec.Data))
	}
}

func TestCorruptRecordCRCSkipped(t *testing.T) {
	// spec.md §8 scenario 4: flip one byte in a record's data; the
	// reader must skip the corrupted record, count it invalid, and
	// continue emitting the records around it.
	path := filepath.Join(t.TempDir(), "corrupt.sow")
	writeSample(t, path,
		Record{Key: 0x1111, TxID: 42, Data: []byte("hello")},
		Record{Key: 0x2222, TxID: 43, Data: []byte("world")},
	)

	// Slab starts right after the 4096-byte metadata page and the
	// 128-byte slab label; the first record's data begins 64 bytes
	// into that slab.
	dataOffset := int64(4096 + 128 + 64)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, dataOffset+2); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	buf[0] ^= 0xFF
	if _, err := f.WriteAt(buf, dataOffset+2); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(vfs.Default(), path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	var got []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != 1 || got[0].Key != 0x2222 {
		t.Fatalf("got %+v, want exactly the uncorrupted key=0x2222 record", got)
	}
	if r.InvalidRecords() != 1 {
		t.Errorf("InvalidRecords() = %d, want 1", r.InvalidRecords())
	}
}

func TestTruncatedSlabTail(t *testing.T) {
	// spec.md §8 scenario 5: truncating mid-record terminates iteration
	// gracefully without error once the file's readable records are
	// exhausted.
	path := filepath.Join(t.TempDir(), "truncated.sow")
	writeSample(t, path,
		Record{Key: 1, TxID: 1, Data: []byte("aaaa")},
		Record{Key: 2, TxID: 2, Data: []byte("bbbb")},
	)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	// Truncate partway into the second record: the metadata page, the
	// slab label and the first 128-byte record stay whole, and 40 bytes
	// of the second record's header remain.
	truncated := int64(4096 + 128 + 128 + 40)
	if truncated >= info.Size() {
		t.Fatalf("file size %d, want more than %d", info.Size(), truncated)
	}
	if err := os.Truncate(path, truncated); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	r, err := OpenReader(vfs.Default(), path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next returned a non-EOF error on a truncated file: %v", err)
		}
		count++
	}
	if count < 1 {
		t.Error("expected at least the first, untouched record to be emitted")
	}
}
