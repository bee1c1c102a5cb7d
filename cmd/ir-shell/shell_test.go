// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/irlink/ir"
	"github.com/go-lpc/irlink/packet"
	"github.com/go-lpc/irlink/trace"
)

const seed = 0x12345678

func newTestShell() (*shell, *bytes.Buffer) {
	lb := trace.NewLoopback()
	dev := ir.NewDevice(lb, lb,
		ir.WithIDSource(packet.SeedFunc(func() (uint32, error) { return seed, nil })),
		ir.WithMsgStream(log.NewMsgStream("ir", log.LvlError, io.Discard)),
		ir.WithTimeout(100*time.Millisecond),
		ir.WithPause(time.Millisecond),
	)
	out := new(bytes.Buffer)
	return newShell(out, dev), out
}

func (sh *shell) output() string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.w.(*bytes.Buffer).String()
}

func TestShell(t *testing.T) {
	id := packet.UniqueID(seed)
	ack := packet.Packet{ID: id, Status: packet.Ack, Command: packet.IAM, Value: 3}
	ack.CRC = packet.Checksum(ack.Frame())

	for _, tc := range []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name:  "empty",
			lines: []string{"", "   "},
			want:  "",
		},
		{
			name:  "id",
			lines: []string{"id"},
			want:  fmt.Sprintf("id: 0x%03x\n", id),
		},
		{
			name:  "send-read",
			lines: []string{"send 0x1234 0x5678", "read"},
			want:  "sent 12345678\nframe 12345678 address=0x1234 command=0x5678\n",
		},
		{
			name:  "frame-read",
			lines: []string{"frame 0x12345673", "read"},
			want: "sent 12345673\nframe 12345673 address=0x1234 command=0x5673\n" +
				"  Packet{ID: 0x123, Status: Status(4), Command: Command(5), Value: 6, CRC: 0x73}\n",
		},
		{
			name:  "channel-read",
			lines: []string{"channel 7 1", "read"},
			want:  "sent D00D0701\nframe D00D0701 channel=7 group=1\n",
		},
		{
			name:  "packet-read",
			lines: []string{"packet 0 2 1 3", "read"},
			want: fmt.Sprintf("sent %[1]s\nframe %[1]s address=0x%04[2]x command=0x%04[3]x\n  %[4]v\n",
				packet.Hex(packet.Encode(ack)),
				uint16(packet.Encode(ack)>>16), uint16(packet.Encode(ack)),
				ack,
			),
		},
		{
			name:  "stats",
			lines: []string{"send 1 2", "read", "stats"},
			want:  "sent 00010002\nframe 00010002 address=0x0001 command=0x0002\nframes=1, resyncs=0, errors=0, timeouts=0\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sh, out := newTestShell()
			defer sh.close()

			for _, line := range tc.lines {
				err := sh.exec(context.Background(), line)
				if err != nil {
					t.Fatalf("could not run %q: %+v", line, err)
				}
			}

			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

func TestShellErrors(t *testing.T) {
	for _, tc := range []struct {
		line string
		err  string
	}{
		{"bogus", `unknown command "bogus"`},
		{"send 1", `invalid number of arguments for "send" (got=1, want=2)`},
		{"read now", `invalid number of arguments for "read" (got=1, want=0)`},
		{"send 0x10000 1", `invalid 16-bit value "0x10000": strconv.ParseUint: parsing "0x10000": value out of range`},
		{"frame zz", `invalid 32-bit value "zz": strconv.ParseUint: parsing "zz": invalid syntax`},
		{"packet 0x1000 0 0 0", `invalid 12-bit value "0x1000": strconv.ParseUint: parsing "0x1000": value out of range`},
		{"channel 256 0", `invalid 8-bit value "256": strconv.ParseUint: parsing "256": value out of range`},
		{"stop", "not listening"},
	} {
		t.Run(tc.line, func(t *testing.T) {
			sh, _ := newTestShell()
			defer sh.close()

			err := sh.exec(context.Background(), tc.line)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.err; got != want {
				t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
			}
		})
	}

	sh, out := newTestShell()
	defer sh.close()

	err := sh.exec(context.Background(), "read")
	if err == nil {
		t.Fatalf("expected a timeout")
	}
	err = sh.exec(context.Background(), "stats")
	if err != nil {
		t.Fatalf("could not display stats: %+v", err)
	}
	if got, want := out.String(), "last error: ir: could not read frame: nec: timeout waiting for frame header"; !strings.Contains(got, want) {
		t.Fatalf("invalid stats output:\ngot= %q\nwant=%q", got, want)
	}

	for _, line := range []string{"quit", "exit"} {
		err := sh.exec(context.Background(), line)
		if !errors.Is(err, errQuit) {
			t.Fatalf("invalid error for %q: %+v", line, err)
		}
	}
}

func TestShellListen(t *testing.T) {
	sh, _ := newTestShell()
	defer sh.close()

	ctx := context.Background()
	for _, line := range []string{"listen", "send 0x1234 0xabcd"} {
		err := sh.exec(ctx, line)
		if err != nil {
			t.Fatalf("could not run %q: %+v", line, err)
		}
	}

	err := sh.exec(ctx, "listen")
	if err == nil || err.Error() != "already listening" {
		t.Fatalf("invalid error: %+v", err)
	}

	err = sh.exec(ctx, "read")
	if !errors.Is(err, ir.ErrBusy) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ir.ErrBusy)
	}

	const frame = "frame 1234ABCD address=0x1234 command=0xabcd\n"
	timeout := time.After(5 * time.Second)
	for !strings.Contains(sh.output(), frame) {
		select {
		case <-timeout:
			t.Fatalf("timeout waiting for frame:\n%s", sh.output())
		case <-time.After(time.Millisecond):
		}
	}

	err = sh.exec(ctx, "stop")
	if err != nil {
		t.Fatalf("could not stop listening: %+v", err)
	}

	want := "listening...\nsent 1234ABCD\n" + frame + "stopped: handled=1, rejected=0\n"
	if got := sh.output(); got != want && got != strings.Replace(want, "sent 1234ABCD\n"+frame, frame+"sent 1234ABCD\n", 1) {
		t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestComplete(t *testing.T) {
	sh, _ := newTestShell()
	for _, tc := range []struct {
		line string
		want []string
	}{
		{"s", []string{"send", "stats", "stop"}},
		{"re", []string{"read"}},
		{"x", nil},
	} {
		t.Run(tc.line, func(t *testing.T) {
			got := sh.complete(tc.line)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid completion: got=%q, want=%q", got, tc.want)
			}
		})
	}

	if err := sh.exec(context.Background(), "help"); err != nil {
		t.Fatalf("could not display help: %+v", err)
	}
	if got, want := strings.Count(sh.output(), "\n"), len(commands); got != want {
		t.Fatalf("invalid help output: got=%d lines, want=%d", got, want)
	}
}
