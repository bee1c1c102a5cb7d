// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-lpc/irlink/ir"
	"github.com/go-lpc/irlink/packet"
)

var errQuit = errors.New("quit")

type shell struct {
	dev *ir.Device

	mu sync.Mutex
	w  io.Writer

	lst *ir.Listener
}

func newShell(w io.Writer, dev *ir.Device) *shell {
	return &shell{dev: dev, w: w}
}

func (sh *shell) printf(format string, args ...interface{}) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.w, format, args...)
}

type command struct {
	help string
	args int
	run  func(sh *shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {"help                      display this help", 0, (*shell).cmdHelp},
		"id":      {"id                        display the device id", 0, (*shell).cmdID},
		"send":    {"send ADDR CMD             send an address/command frame", 2, (*shell).cmdSend},
		"frame":   {"frame FRAME               send a raw 32-bit frame", 1, (*shell).cmdFrame},
		"packet":  {"packet ID STATUS CMD VAL  send a packet (ID=0: device id)", 4, (*shell).cmdPacket},
		"channel": {"channel CHAN GROUP        announce a radio channel and group", 2, (*shell).cmdChannel},
		"read":    {"read                      wait for the next frame", 0, (*shell).cmdRead},
		"listen":  {"listen                    display received frames in the background", 0, (*shell).cmdListen},
		"stop":    {"stop                      stop listening", 0, (*shell).cmdStop},
		"stats":   {"stats                     display decoding counters", 0, (*shell).cmdStats},
		"quit":    {"quit                      leave the shell", 0, (*shell).cmdQuit},
	}
}

func (sh *shell) names() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sh *shell) complete(line string) []string {
	var out []string
	for _, name := range sh.names() {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	return out
}

// exec runs a single command line.
func (sh *shell) exec(ctx context.Context, line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}

	name := toks[0]
	if name == "exit" {
		name = "quit"
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", toks[0])
	}
	args := toks[1:]
	if len(args) != cmd.args {
		return fmt.Errorf("invalid number of arguments for %q (got=%d, want=%d)",
			name, len(args), cmd.args,
		)
	}
	return cmd.run(sh, ctx, args)
}

func (sh *shell) close() {
	if sh.lst != nil {
		sh.lst.Stop()
		sh.lst = nil
	}
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %d-bit value %q: %w", bits, s, err)
	}
	return v, nil
}

func (sh *shell) cmdHelp(ctx context.Context, args []string) error {
	for _, name := range sh.names() {
		sh.printf("  %s\n", commands[name].help)
	}
	return nil
}

func (sh *shell) cmdID(ctx context.Context, args []string) error {
	id, err := sh.dev.ID()
	if err != nil {
		return err
	}
	sh.printf("id: 0x%03x\n", id)
	return nil
}

func (sh *shell) cmdSend(ctx context.Context, args []string) error {
	addr, err := parseUint(args[0], 16)
	if err != nil {
		return err
	}
	cmd, err := parseUint(args[1], 16)
	if err != nil {
		return err
	}
	return sh.sendAddressCommand(uint16(addr), uint16(cmd))
}

func (sh *shell) sendAddressCommand(addr, cmd uint16) error {
	err := sh.dev.SendAddressCommand(addr, cmd)
	if err != nil {
		return err
	}
	sh.printf("sent %s\n", packet.Hex(packet.PackAddressCommand(addr, cmd)))
	return nil
}

func (sh *shell) cmdFrame(ctx context.Context, args []string) error {
	frame, err := parseUint(args[0], 32)
	if err != nil {
		return err
	}
	err = sh.dev.SendFrame(uint32(frame))
	if err != nil {
		return err
	}
	sh.printf("sent %s\n", packet.Hex(uint32(frame)))
	return nil
}

func (sh *shell) cmdPacket(ctx context.Context, args []string) error {
	var vs [4]uint64
	for i, bits := range []int{12, 4, 4, 4} {
		v, err := parseUint(args[i], bits)
		if err != nil {
			return err
		}
		vs[i] = v
	}

	p := packet.Packet{
		ID:      uint16(vs[0]),
		Status:  packet.Status(vs[1]),
		Command: packet.Command(vs[2]),
		Value:   uint8(vs[3]),
	}
	if p.ID == 0 {
		id, err := sh.dev.ID()
		if err != nil {
			return err
		}
		p.ID = id
	}

	err := sh.dev.SendPacket(p)
	if err != nil {
		return err
	}
	sh.printf("sent %s\n", packet.Hex(packet.Encode(p)))
	return nil
}

func (sh *shell) cmdChannel(ctx context.Context, args []string) error {
	ch, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	grp, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	return sh.sendAddressCommand(packet.AddrRadioChannel, uint16(ch<<8|grp))
}

func (sh *shell) cmdRead(ctx context.Context, args []string) error {
	frame, err := sh.dev.ReadFrame(ctx)
	if err != nil {
		return err
	}
	sh.display(frame)
	return nil
}

func (sh *shell) display(frame uint32) {
	addr, cmd := packet.UnpackAddressCommand(frame)
	if addr == packet.AddrRadioChannel {
		sh.printf("frame %s channel=%d group=%d\n", packet.Hex(frame), cmd>>8, cmd&0xff)
		return
	}
	sh.printf("frame %s address=0x%04x command=0x%04x\n", packet.Hex(frame), addr, cmd)
	if p, err := packet.Decode(frame); err == nil {
		sh.printf("  %v\n", p)
	}
}

func (sh *shell) cmdListen(ctx context.Context, args []string) error {
	if sh.lst != nil {
		return fmt.Errorf("already listening")
	}
	lst := sh.dev.OnFrameReceived(context.Background(), func(addr, cmd uint16) {
		sh.display(packet.PackAddressCommand(addr, cmd))
	})
	select {
	case <-lst.Done():
		return lst.Err()
	default:
	}
	sh.lst = lst
	sh.printf("listening...\n")
	return nil
}

func (sh *shell) cmdStop(ctx context.Context, args []string) error {
	if sh.lst == nil {
		return fmt.Errorf("not listening")
	}
	sh.lst.Stop()
	st := sh.lst.Stats()
	sh.lst = nil
	sh.printf("stopped: handled=%d, rejected=%d\n", st.Handled, st.Rejected)
	return nil
}

func (sh *shell) cmdStats(ctx context.Context, args []string) error {
	st := sh.dev.Stats()
	sh.printf("frames=%d, resyncs=%d, errors=%d, timeouts=%d\n",
		st.Frames, st.Resyncs, st.Errors, st.Timeouts,
	)
	if msg := sh.dev.LastError(); msg != "" {
		sh.printf("last error: %s\n", msg)
	}
	return nil
}

func (sh *shell) cmdQuit(ctx context.Context, args []string) error {
	return errQuit
}
