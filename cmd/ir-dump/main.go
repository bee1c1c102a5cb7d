// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ir-dump decodes and displays the NEC frames of pulse trace files.
//
// Traces are in the LIRC mode2 format ("pulse 9000", "space 4500", ...).
//
// Usage: ir-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> mode2 -d /dev/lirc0 > remote.trace
//	$> ir-dump -packets ./remote.trace
//	=== ./remote.trace ===
//	frame 12345673 address=0x1234 command=0x5673
//	  Packet{ID: 0x123, Status: Status(4), Command: Command(5), Value: 6, CRC: 0x73}
//	frames: 1, resyncs: 0, errors: 0
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/irlink/nec"
	"github.com/go-lpc/irlink/packet"
	"github.com/go-lpc/irlink/trace"
)

func main() {
	log.SetPrefix("ir-dump: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Printf(`ir-dump decodes and displays the NEC frames of pulse trace files.

Usage: ir-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> ir-dump -packets ./remote.trace
 === ./remote.trace ===
 frame 12345673 address=0x1234 command=0x5673
   Packet{ID: 0x123, Status: Status(4), Command: Command(5), Value: 6, CRC: 0x73}
 frames: 1, resyncs: 0, errors: 0

Options:
`)
		flag.PrintDefaults()
	}

	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	var (
		fset = flag.NewFlagSet("ir-dump", flag.ExitOnError)
		tbl  = fset.String("timing", "canonical", "timing table (canonical, measured)")
		pkts = fset.Bool("packets", false, "decode frames as packets")
	)
	fset.Usage = flag.Usage

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input trace file")
	}

	tm, err := timing(*tbl)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, tm, *pkts)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func timing(name string) (nec.Timing, error) {
	switch name {
	case "canonical":
		return nec.Canonical, nil
	case "measured":
		return nec.Measured, nil
	default:
		return nec.Timing{}, fmt.Errorf("unknown timing table %q", name)
	}
}

func process(w io.Writer, fname string, tm nec.Timing, pkts bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	tr, err := trace.Read(f)
	if err != nil {
		return fmt.Errorf("could not read trace: %w", err)
	}

	var (
		ctx = context.Background()
		rx  = trace.NewPlayer(tr)
		dec = nec.NewDecoder(rx, nec.WithTiming(tm))
	)

	fmt.Fprintf(wbuf, "=== %s ===\n", fname)
loop:
	for {
		frame, err := dec.Decode(ctx, nec.DefaultTimeout)
		switch {
		case errors.Is(err, nec.ErrTimeout):
			if rx.Len() == 0 {
				break loop
			}
			continue
		case err != nil:
			fmt.Fprintf(wbuf, "error: %v\n", err)
			continue
		}

		addr, cmd := packet.UnpackAddressCommand(frame)
		fmt.Fprintf(wbuf, "frame %s address=0x%04x command=0x%04x\n",
			packet.Hex(frame), addr, cmd,
		)
		if !pkts {
			continue
		}
		p, err := packet.Decode(frame)
		if err != nil {
			fmt.Fprintf(wbuf, "  error: %v\n", err)
			continue
		}
		fmt.Fprintf(wbuf, "  %v\n", p)
	}

	st := dec.Stats()
	fmt.Fprintf(wbuf, "frames: %d, resyncs: %d, errors: %d\n",
		st.Frames, st.Resyncs, st.Errors,
	)

	return nil
}
