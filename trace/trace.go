// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace records and replays infrared pulse traces.
//
// Traces use the text format of the LIRC mode2 tool, one pulse per line:
//
//	pulse 9000
//	space 4500
//	pulse 560
//
// Durations are in microseconds.
// Lines holding a signed duration (+9000, -4500) are also accepted,
// as are blank lines and lines starting with '#'.
package trace // import "github.com/go-lpc/irlink/trace"

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/irlink/nec"
)

// Gap is the idle time inserted after each emitted pulse train.
const Gap = 10 * time.Millisecond

// Entry is a single pulse of a trace.
type Entry struct {
	Level    nec.Level
	Duration time.Duration
}

// Trace is a sequence of pulses.
type Trace []Entry

// FromPulses converts a pulse train into a trace.
// Zero-length pulses are dropped.
func FromPulses(train []nec.Pulse) Trace {
	tr := make(Trace, 0, 2*len(train))
	for _, p := range train {
		tr = tr.add(nec.Mark, p.Mark)
		tr = tr.add(nec.Space, p.Space)
	}
	return tr
}

func (tr Trace) add(lvl nec.Level, d time.Duration) Trace {
	if d <= 0 {
		return tr
	}
	if n := len(tr); n > 0 && tr[n-1].Level == lvl {
		tr[n-1].Duration += d
		return tr
	}
	return append(tr, Entry{Level: lvl, Duration: d})
}

// Duration returns the total duration of the trace.
func (tr Trace) Duration() time.Duration {
	var sum time.Duration
	for _, e := range tr {
		sum += e.Duration
	}
	return sum
}

// Read decodes a trace from r.
func Read(r io.Reader) (Trace, error) {
	var (
		tr  Trace
		sc  = bufio.NewScanner(r)
		num = 0
	)
	for sc.Scan() {
		num++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lvl, v, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("trace: could not parse line %d (%q): %w", num, line, err)
		}
		tr = tr.add(lvl, time.Duration(v)*time.Microsecond)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trace: could not read trace: %w", err)
	}

	return tr, nil
}

func parseLine(line string) (nec.Level, int64, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 1:
		v, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if v < 0 {
			return nec.Space, -v, nil
		}
		return nec.Mark, v, nil
	case 2:
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if v < 0 {
			return 0, 0, fmt.Errorf("negative duration %d", v)
		}
		switch fields[0] {
		case "pulse":
			return nec.Mark, v, nil
		case "space", "timeout":
			return nec.Space, v, nil
		default:
			return 0, 0, fmt.Errorf("unknown pulse kind %q", fields[0])
		}
	default:
		return 0, 0, fmt.Errorf("invalid number of fields (%d)", len(fields))
	}
}

// WriteTo writes the trace in mode2 format to w.
func (tr Trace) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, e := range tr {
		kind := "space"
		if e.Level == nec.Mark {
			kind = "pulse"
		}
		nn, err := fmt.Fprintf(bw, "%s %d\n", kind, e.Duration.Microseconds())
		n += int64(nn)
		if err != nil {
			return n, fmt.Errorf("trace: could not write trace: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("trace: could not flush trace: %w", err)
	}
	return n, nil
}
