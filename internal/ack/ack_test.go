package ack

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/aalhour/ampsfile/internal/vfs"
)

func writeSample(t *testing.T, path string, recs ...Record) {
	t.Helper()
	w, err := CreateWriter(vfs.Default(), path, 64)
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
	path := filepath.Join(t.TempDir(), "store.ack")
	want := []Record{
		{ClientNameHash: 0xaaaa, ClientSeq: 1, LocalTxID: 100},
		{ClientNameHash: 0xbbbb, ClientSeq: 2, LocalTxID: 101},
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
		if got[i].ClientNameHash != want[i].ClientNameHash ||
			got[i].ClientSeq != want[i].ClientSeq ||
			got[i].LocalTxID != want[i].LocalTxID {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestIsUpToDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.ack")
	writeSample(t, path, Record{ClientNameHash: 1, ClientSeq: 1, LocalTxID: 1})

	up, err := IsUpToDate(vfs.Default(), path)
	if err != nil {
		t.Fatalf("IsUpToDate: %v", err)
	}
	if !up {
		t.Error("IsUpToDate = false, want true for a freshly written store")
	}
}

func TestUnrecognizedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.ack")
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
