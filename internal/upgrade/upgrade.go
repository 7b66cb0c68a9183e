package upgrade

import (
	"io"

	"github.com/aalhour/ampsfile/internal/ack"
	"github.com/aalhour/ampsfile/internal/journal"
	"github.com/aalhour/ampsfile/internal/sow"
	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/vfs"
)

// UpgradeSOW upgrades srcPath to a version-6 SOW store at dstPath.
// recordSize and incrementSize are used only when a new writer must be
// created; an already-latest-version source is copied byte-for-byte.
// Either path may carry a ".gz" suffix.
func UpgradeSOW(fs vfs.FS, opts store.Options, srcPath, dstPath string, recordSize, incrementSize uint64) error {
	return withPlainPaths(fs, srcPath, dstPath, func(plainSrc, plainDst string) error {
		return upgradeSOWPlain(fs, opts, plainSrc, plainDst, recordSize, incrementSize)
	})
}

func upgradeSOWPlain(fs vfs.FS, opts store.Options, srcPath, dstPath string, recordSize, incrementSize uint64) error {
	if up, err := sow.IsUpToDate(fs, srcPath); err != nil {
		return err
	} else if up {
		return copyFile(fs, srcPath, dstPath)
	}

	r, err := sow.OpenReaderWithOptions(fs, srcPath, opts)
	if err != nil {
		return err
	}
	defer r.Close()
	lastSyncTxID, err := r.LastSyncTxID()
	if err != nil {
		return err
	}

	w, err := sow.CreateWriter(fs, dstPath, recordSize, incrementSize)
	if err != nil {
		return err
	}

	var lastTxID uint64
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := w.Write(rec); err != nil {
			return err
		}
		if rec.TxID > lastTxID {
			lastTxID = rec.TxID
		}
	}

	syncMarker := lastSyncTxID
	if syncMarker == 0 {
		syncMarker = lastTxID
	}
	if err := w.WriteLastSyncTxID(syncMarker); err != nil {
		return err
	}
	return w.Close()
}

// UpgradeAck upgrades srcPath to a version-4.0 ack store at dstPath.
// Either path may carry a ".gz" suffix.
func UpgradeAck(fs vfs.FS, opts store.Options, srcPath, dstPath string) error {
	return withPlainPaths(fs, srcPath, dstPath, func(plainSrc, plainDst string) error {
		return upgradeAckPlain(fs, opts, plainSrc, plainDst)
	})
}

func upgradeAckPlain(fs vfs.FS, opts store.Options, srcPath, dstPath string) error {
	if up, err := ack.IsUpToDate(fs, srcPath); err != nil {
		return err
	} else if up {
		return copyFile(fs, srcPath, dstPath)
	}

	r, err := ack.OpenReaderWithOptions(fs, srcPath, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := ack.CreateWriter(fs, dstPath, r.RecordSize())
	if err != nil {
		return err
	}
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if opts.Upgrade && rec.ClientSeq == 0 {
			continue
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Close()
}

// UpgradeJournal upgrades srcPath to a version-8 journal file at
// dstPath. instanceID and extents are taken from the source file's own
// header, matching the original's _upgrade_uncompressed. Either path
// may carry a ".gz" suffix.
func UpgradeJournal(fs vfs.FS, opts store.Options, srcPath, dstPath string) error {
	return withPlainPaths(fs, srcPath, dstPath, func(plainSrc, plainDst string) error {
		return upgradeJournalPlain(fs, opts, plainSrc, plainDst)
	})
}

func upgradeJournalPlain(fs vfs.FS, opts store.Options, srcPath, dstPath string) error {
	if up, err := journal.IsUpToDate(fs, srcPath); err != nil {
		return err
	} else if up {
		return copyFile(fs, srcPath, dstPath)
	}

	r, err := journal.OpenReaderWithOptions(fs, srcPath, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := journal.CreateWriter(fs, dstPath, r.Header().InstanceID, r.Extents())
	if err != nil {
		return err
	}
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if opts.Upgrade && rec.Type == journal.TypeNoop {
			continue
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Close()
}

// withPlainPaths materializes src as a plain (non-gzip) file, invokes
// fn on the plain source and destination paths, and — if dst asks for
// gzip — compresses fn's plain output into dst. Mirrors
// amps_journal.py's _upgrade_compressed/_upgrade_uncompressed split,
// generalized to all three store kinds.
func withPlainPaths(fs vfs.FS, src, dst string, fn func(plainSrc, plainDst string) error) error {
	plainSrc := src
	if isGzipPath(src) {
		plainSrc = stripGzipExt(src)
		if err := decompress(fs, src, plainSrc); err != nil {
			return err
		}
		defer fs.Remove(plainSrc)
	}

	if !isGzipPath(dst) {
		return fn(plainSrc, dst)
	}

	plainDst := stripGzipExt(dst)
	if err := fn(plainSrc, plainDst); err != nil {
		return err
	}
	defer fs.Remove(plainDst)
	return compress(fs, plainDst, dst)
}
