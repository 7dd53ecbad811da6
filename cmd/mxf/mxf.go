// mxf is a thin front-end over the MXF engine: it dumps file structure
// (info) and writes test files (write).
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-isatty"
)

const usage = `syntax: mxf <command> [options]

commands:
	info	dump partitions, metadata and index tables of MXF files
	write	write an MXF file filled with generated test essence
`

func main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		// keep machine-readable logs when piped
		log.SetFlags(0)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "info":
		err = info(args)
	case "write":
		err = write(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}
