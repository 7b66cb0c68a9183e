// Package upgrade implements the per-store-kind upgrade driver: open a
// source file of any supported on-disk version, stream its records into
// a latest-version writer, and propagate whichever sync state that
// store kind carries forward.
//
// Compression of a whole store file is handled here, at the file-path
// level, by decompressing to a plain-file path before running the
// uncompressed upgrade and recompressing the result if the destination
// path asks for it — the same strategy amps_journal.py's
// _upgrade_compressed uses. This is a different concern from the
// internal/compression package, which compresses individual record
// payloads inside an already-open store file.
package upgrade

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/aalhour/ampsfile/internal/vfs"
)

const gzipExt = ".gz"

func isGzipPath(path string) bool {
	return len(path) > len(gzipExt) && path[len(path)-len(gzipExt):] == gzipExt
}

func stripGzipExt(path string) string {
	return path[:len(path)-len(gzipExt)]
}

// decompress reads the gzip stream at path and writes its decompressed
// content to plainPath.
func decompress(fs vfs.FS, path, plainPath string) error {
	src, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("upgrade: open %s: %w", path, err)
	}
	defer src.Close()

	zr, err := gzip.NewReader(readerOf(src))
	if err != nil {
		return fmt.Errorf("upgrade: gzip reader for %s: %w", path, err)
	}
	defer zr.Close()

	dst, err := fs.Create(plainPath)
	if err != nil {
		return fmt.Errorf("upgrade: create %s: %w", plainPath, err)
	}
	if _, err := io.Copy(dst, zr); err != nil {
		_ = dst.Close()
		return fmt.Errorf("upgrade: decompress %s: %w", path, err)
	}
	return dst.Close()
}

// compress reads the plain file at plainPath and writes a gzip stream
// of its content to path.
func compress(fs vfs.FS, plainPath, path string) error {
	src, err := fs.Open(plainPath)
	if err != nil {
		return fmt.Errorf("upgrade: open %s: %w", plainPath, err)
	}
	defer src.Close()

	dst, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("upgrade: create %s: %w", path, err)
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, readerOf(src)); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		return fmt.Errorf("upgrade: compress %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// readerOf adapts a vfs.SequentialFile, which exposes Skip instead of
// Seek, to the plain io.Reader gzip.NewReader and io.Copy want.
func readerOf(f vfs.SequentialFile) io.Reader { return f }

// copyFile copies src to dst unchanged, used when a store is already at
// its latest version.
func copyFile(fs vfs.FS, src, dst string) error {
	sf, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("upgrade: open %s: %w", src, err)
	}
	defer sf.Close()
	df, err := fs.Create(dst)
	if err != nil {
		return fmt.Errorf("upgrade: create %s: %w", dst, err)
	}
	if _, err := io.Copy(df, sf); err != nil {
		_ = df.Close()
		return fmt.Errorf("upgrade: copy %s to %s: %w", src, dst, err)
	}
	return df.Close()
}
