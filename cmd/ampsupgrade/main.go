// Package main provides the ampsupgrade CLI tool for rewriting a
// journal, client-ack, or SOW store file from any supported historical
// on-disk version into the latest version.
//
// Usage:
//
//	ampsupgrade --kind=journal|ack|sow --old=<path> --new=<path> [options]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/upgrade"
	"github.com/aalhour/ampsfile/internal/vfs"
)

var (
	kind          = flag.String("kind", "", "Store kind: journal, ack, or sow (required)")
	oldPath       = flag.String("old", "", "Path to the source file (required; .gz allowed)")
	newPath       = flag.String("new", "", "Path to the destination file (required; .gz allowed)")
	skipEmpty     = flag.Bool("skip_empty", false, "Drop bookkeeping-only records during upgrade (ack client_seq==0, journal noop)")
	recordSize    = flag.Uint64("record_size", 512, "SOW record size (sow kind only)")
	incrementSize = flag.Uint64("increment_size", 10000, "SOW slab increment size in records (sow kind only)")
)

func main() {
	flag.Parse()

	if *kind == "" || *oldPath == "" || *newPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --kind, --old, and --new are required")
		flag.Usage()
		os.Exit(1)
	}

	opts := store.Options{Upgrade: *skipEmpty}
	fs := vfs.Default()

	var err error
	switch *kind {
	case "journal":
		err = upgrade.UpgradeJournal(fs, opts, *oldPath, *newPath)
	case "ack":
		err = upgrade.UpgradeAck(fs, opts, *oldPath, *newPath)
	case "sow":
		err = upgrade.UpgradeSOW(fs, opts, *oldPath, *newPath, *recordSize, *incrementSize)
	default:
		fmt.Fprintf(os.Stderr, "Unknown kind: %s\n", *kind)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
