package journal

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/vfs"
)

func writeSample(t *testing.T, path string, extents Extents, recs ...Record) {
	t.Helper()
	w, err := CreateWriter(vfs.Default(), path, 7, extents)
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
	path := filepath.Join(t.TempDir(), "store.journal")
	want := []Record{
		{Type: TypePublish, LocalTxID: 1000, Topic: "orders", Key: "k1", AuthID: "alice", Data: []byte("payload-1")},
		{Type: TypePublish, LocalTxID: 1001, Topic: "orders", Key: "k2", CorrelationID: "corr-2", Data: []byte("payload-2")},
	}
	writeSample(t, path, Extents{}, want...)

	// Upgrade hides the noop record Close appends to align the file.
	r, err := OpenReaderWithOptions(vfs.Default(), path, store.Options{Upgrade: true})
	if err != nil {
		t.Fatalf("OpenReaderWithOptions: %v", err)
	}
	defer r.Close()

	if r.Version() != Latest {
		t.Fatalf("Version() = %s, want %s", r.Version(), Latest)
	}
	if r.Header().InstanceID != 7 {
		t.Errorf("InstanceID = %d, want 7", r.Header().InstanceID)
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
		if got[i].Type != want[i].Type || got[i].LocalTxID != want[i].LocalTxID ||
			got[i].Topic != want[i].Topic || got[i].Key != want[i].Key ||
			got[i].AuthID != want[i].AuthID || got[i].CorrelationID != want[i].CorrelationID ||
			string(got[i].Data) != string(want[i].Data) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExtentsTracking(t *testing.T) {
	// End-to-end scenario 2 of spec.md §8: 101 records, local_tx_id in
	// [1000..1100], extents must report the full range, and with the noop
	// filter (Options.Upgrade) the reader emits exactly the 101 records.
	path := filepath.Join(t.TempDir(), "store.journal")
	w, err := CreateWriter(vfs.Default(), path, 1, Extents{})
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	for i := uint64(1000); i <= 1100; i++ {
		rec := Record{Type: TypePublish, LocalTxID: i, Timestamp: i - 999, Topic: "t", Data: []byte("x")}
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReaderWithOptions(vfs.Default(), path, store.Options{Upgrade: true})
	if err != nil {
		t.Fatalf("OpenReaderWithOptions: %v", err)
	}
	defer r.Close()

	e := r.Extents()
	if e.FirstTxID != 1000 || e.LastTxID != 1100 {
		t.Fatalf("Extents = %+v, want first=1000 last=1100", e)
	}

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		count++
	}
	if count != 101 {
		t.Errorf("record count = %d, want 101", count)
	}
}

func TestUpgradeOptionSkipsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.journal")
	writeSample(t, path, Extents{},
		Record{Type: TypePublish, LocalTxID: 1, Topic: "t", Data: []byte("a")},
		Record{Type: TypeNoop, LocalTxID: 2},
		Record{Type: TypePublish, LocalTxID: 3, Topic: "t", Data: []byte("b")},
	)

	r, err := OpenReaderWithOptions(vfs.Default(), path, store.Options{Upgrade: true})
	if err != nil {
		t.Fatalf("OpenReaderWithOptions: %v", err)
	}
	defer r.Close()

	var ids []uint64
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		ids = append(ids, rec.LocalTxID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("ids = %v, want [1 3] (noop record filtered out)", ids)
	}
}

func TestIsUpToDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.journal")
	writeSample(t, path, Extents{}, Record{Type: TypePublish, LocalTxID: 1, Topic: "t"})

	up, err := IsUpToDate(vfs.Default(), path)
	if err != nil {
		t.Fatalf("IsUpToDate: %v", err)
	}
	if !up {
		t.Error("IsUpToDate = false, want true for a freshly written store")
	}
}

func TestUnrecognizedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.journal")
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
