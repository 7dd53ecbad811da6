package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/partition"
	"github.com/distr1/mxf/internal/reader"
)

func info(args []string) error {
	fset := flag.NewFlagSet("info", flag.ExitOnError)
	var (
		showSets  = fset.Bool("sets", false, "list header metadata sets")
		showIndex = fset.Bool("index", false, "list index table segments")
	)
	fset.Parse(args)
	if fset.NArg() == 0 {
		return xerrors.New("syntax: mxf info [-sets] [-index] <file>...")
	}

	var mu sync.Mutex
	reports := make(map[string]string)

	var eg errgroup.Group
	for _, name := range fset.Args() {
		name := name // copy
		eg.Go(func() error {
			report, err := fileReport(name, *showSets, *showIndex)
			if err != nil {
				return xerrors.Errorf("%s: %w", name, err)
			}
			mu.Lock()
			reports[name] = report
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	names := fset.Args()
	sort.Strings(names)
	for _, name := range names {
		os.Stdout.WriteString(reports[name])
	}
	return nil
}

func fileReport(name string, showSets, showIndex bool) (string, error) {
	f, err := mxfio.OpenRead(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := reader.Open(f, nil)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", name)
	if f.RunInLen() > 0 {
		fmt.Fprintf(&b, "  run-in: %d bytes\n", f.RunInLen())
	}
	for _, p := range r.Partitions {
		fmt.Fprintf(&b, "  partition %s at %d: kag=%d header=%d index=%d bodySID=%d indexSID=%d\n",
			partitionKind(p), p.ThisPartition, p.KAGSize, p.HeaderByteCount, p.IndexByteCount, p.BodySID, p.IndexSID)
	}
	if r.RIP != nil {
		fmt.Fprintf(&b, "  rip: %d entries\n", len(r.RIP.Entries))
	}
	if r.Metadata != nil {
		fmt.Fprintf(&b, "  header metadata: %d sets\n", len(r.Metadata.Sets()))
		if showSets {
			for _, set := range r.Metadata.Sets() {
				fmt.Fprintf(&b, "    set %s instance %s\n", set.Key, set.InstanceUID())
			}
		}
	}
	for i, seg := range r.Segments {
		if !showIndex && i > 0 {
			fmt.Fprintf(&b, "  ... %d more index segments\n", len(r.Segments)-1)
			break
		}
		mode := "VBE"
		if seg.EditUnitByteCount > 0 {
			mode = fmt.Sprintf("CBE %d bytes/unit", seg.EditUnitByteCount)
		}
		fmt.Fprintf(&b, "  index segment: sid=%d start=%d duration=%d %s entries=%d\n",
			seg.IndexSID, seg.IndexStartPosition, seg.IndexDuration, mode, len(seg.Entries))
	}
	return b.String(), nil
}

func partitionKind(p *partition.Partition) string {
	var kind string
	switch {
	case partition.IsHeader(&p.Key):
		kind = "header"
	case partition.IsFooter(&p.Key):
		kind = "footer"
	case partition.IsGenericStream(&p.Key):
		kind = "generic-stream"
	default:
		kind = "body"
	}
	switch {
	case partition.IsClosed(&p.Key) && partition.IsComplete(&p.Key):
		kind += " (closed, complete)"
	case partition.IsClosed(&p.Key):
		kind += " (closed, incomplete)"
	case partition.IsComplete(&p.Key):
		kind += " (open, complete)"
	default:
		kind += " (open, incomplete)"
	}
	return kind
}
