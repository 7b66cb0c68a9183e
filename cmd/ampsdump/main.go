// Package main provides the ampsdump CLI tool for inspecting journal,
// client-ack, and SOW store files without upgrading them.
//
// Usage:
//
//	ampsdump --kind=journal|ack|sow --file=<path> [options]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aalhour/ampsfile/internal/ack"
	"github.com/aalhour/ampsfile/internal/journal"
	"github.com/aalhour/ampsfile/internal/sow"
	"github.com/aalhour/ampsfile/internal/store"
	"github.com/aalhour/ampsfile/internal/vfs"
)

var (
	kind        = flag.String("kind", "", "Store kind: journal, ack, or sow (required)")
	filePath    = flag.String("file", "", "Path to the store file (required)")
	limit       = flag.Int("limit", 0, "Limit number of records (0 = unlimited)")
	omitData    = flag.Bool("omit_data", false, "Suppress message payload in output")
	isLocalTime = flag.Bool("localtime", false, "Render timestamps in local time instead of UTC")
)

func main() {
	flag.Parse()

	if *kind == "" || *filePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --kind and --file are required")
		flag.Usage()
		os.Exit(1)
	}

	opts := store.Options{OmitData: *omitData, IsLocalTime: *isLocalTime}
	fs := vfs.Default()

	var err error
	switch *kind {
	case "journal":
		err = journal.Dump(fs, *filePath, *limit, opts, os.Stdout)
	case "ack":
		err = ack.Dump(fs, *filePath, *limit, os.Stdout)
	case "sow":
		err = sow.Dump(fs, *filePath, *limit, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown kind: %s\n", *kind)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
