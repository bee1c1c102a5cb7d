// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irconf

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/irlink/gpio"
	"github.com/go-lpc/irlink/nec"
	"github.com/go-lpc/irlink/trace"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %+v", err)
	}

	tm, err := cfg.Timing()
	if err != nil {
		t.Fatalf("could not get timing: %+v", err)
	}
	if tm != nec.Canonical {
		t.Fatalf("invalid default timing: %+v", tm)
	}
	if got, want := time.Duration(cfg.Link.Timeout), time.Second; got != want {
		t.Fatalf("invalid default timeout: got=%v, want=%v", got, want)
	}
	if cfg.Mail.Enabled() {
		t.Fatalf("mail alerts should be disabled by default")
	}
}

func TestParse(t *testing.T) {
	t.Setenv("IRLINK_DB_PWD", "s3cr3t")

	cfg, err := Parse(strings.NewReader(`
device:
  driver: loopback
  carrier: 0s
link:
  timing: measured
  timeout: 250ms
  pause: 5ms
  seed: 0x12345678
db:
  dsn: irlink:${IRLINK_DB_PWD}@tcp(localhost)/irlink?parseTime=true
mail:
  server: smtp.example.org
  port: 587
  user: irlink@example.org
  to: [ops@example.org]
`))
	if err != nil {
		t.Fatalf("could not parse config: %+v", err)
	}

	if got, want := cfg.Device.Driver, "loopback"; got != want {
		t.Fatalf("invalid driver: got=%q, want=%q", got, want)
	}
	if got, want := cfg.Device.Chip, "gpiochip0"; got != want {
		t.Fatalf("invalid chip default: got=%q, want=%q", got, want)
	}
	if got, want := time.Duration(cfg.Device.Carrier), time.Duration(0); got != want {
		t.Fatalf("invalid carrier: got=%v, want=%v", got, want)
	}
	if got, want := time.Duration(cfg.Link.Timeout), 250*time.Millisecond; got != want {
		t.Fatalf("invalid timeout: got=%v, want=%v", got, want)
	}
	if got, want := time.Duration(cfg.Link.Pause), 5*time.Millisecond; got != want {
		t.Fatalf("invalid pause: got=%v, want=%v", got, want)
	}
	if got, want := cfg.DB.DSN, "irlink:s3cr3t@tcp(localhost)/irlink?parseTime=true"; got != want {
		t.Fatalf("invalid dsn: got=%q, want=%q", got, want)
	}
	if !cfg.Mail.Enabled() {
		t.Fatalf("mail alerts should be enabled")
	}

	tm, err := cfg.Timing()
	if err != nil {
		t.Fatalf("could not get timing: %+v", err)
	}
	if tm != nec.Measured {
		t.Fatalf("invalid timing: %+v", tm)
	}

	seed, err := cfg.IDSource().DeviceSeed()
	if err != nil {
		t.Fatalf("could not get seed: %+v", err)
	}
	if got, want := seed, uint32(0x12345678); got != want {
		t.Fatalf("invalid seed: got=0x%x, want=0x%x", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  string
		err  string
	}{
		{
			name: "driver",
			cfg:  "device: {driver: usb}",
			err:  `irconf: unknown device driver "usb"`,
		},
		{
			name: "timing",
			cfg:  "link: {timing: fast}",
			err:  `irconf: unknown timing table "fast"`,
		},
		{
			name: "duration",
			cfg:  "link: {timeout: forever}",
			err:  `irconf: could not decode config: irconf: invalid duration "forever": time: invalid duration "forever"`,
		},
		{
			name: "negative-timeout",
			cfg:  "link: {timeout: -1s}",
			err:  "irconf: negative timeout or pause",
		},
		{
			name: "trace",
			cfg:  "device: {driver: trace}",
			err:  "irconf: trace driver needs a trace file",
		},
		{
			name: "gpiomem",
			cfg:  "device: {driver: gpiomem, rx: 17, tx: 18}",
			err:  "irconf: gpiomem driver needs the same rx and tx pin (rx=17, tx=18)",
		},
		{
			name: "cdev",
			cfg:  "device: {driver: cdev, chip: ''}",
			err:  "irconf: cdev driver needs a chip",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.cfg))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.err; got != want {
				t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	if err == nil {
		t.Fatalf("expected an error")
	}

	fname := filepath.Join(t.TempDir(), "irlink.yaml")
	err = os.WriteFile(fname, []byte("device: {driver: loopback}\n"), 0644)
	if err != nil {
		t.Fatalf("could not write config: %+v", err)
	}

	cfg, err := Load(fname)
	if err != nil {
		t.Fatalf("could not load config: %+v", err)
	}
	if got, want := cfg.Device.Driver, "loopback"; got != want {
		t.Fatalf("invalid driver: got=%q, want=%q", got, want)
	}
}

func TestOpenLoopback(t *testing.T) {
	cfg := Default()
	cfg.Device.Driver = "loopback"
	cfg.Link.Seed = 0x12345678
	cfg.Link.Timeout = Duration(100 * time.Millisecond)

	dev, done, err := cfg.Open()
	if err != nil {
		t.Fatalf("could not open device: %+v", err)
	}
	defer done()

	err = dev.SendAddressCommand(0x1234, 0x5678)
	if err != nil {
		t.Fatalf("could not send: %+v", err)
	}

	addr, cmd, err := dev.ReadAddressCommand(context.Background())
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if addr != 0x1234 || cmd != 0x5678 {
		t.Fatalf("invalid address/command: got=(0x%04x, 0x%04x)", addr, cmd)
	}
}

func TestOpenTrace(t *testing.T) {
	var (
		dir   = t.TempDir()
		fname = filepath.Join(dir, "frame.trace")
		frame = uint32(0x12345673)
	)

	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create trace file: %+v", err)
	}
	_, err = trace.FromPulses(nec.Encode(frame)).WriteTo(f)
	if err != nil {
		t.Fatalf("could not write trace: %+v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("could not close trace file: %+v", err)
	}

	cfg := Default()
	cfg.Device.Driver = "trace"
	cfg.Device.Trace = fname
	cfg.Link.Seed = 1

	dev, done, err := cfg.Open()
	if err != nil {
		t.Fatalf("could not open device: %+v", err)
	}
	defer done()

	p, err := dev.ReadPacket(context.Background())
	if err != nil {
		t.Fatalf("could not read packet: %+v", err)
	}
	if got, want := p.Frame()|uint32(p.CRC), frame; got != want {
		t.Fatalf("invalid frame: got=0x%08x, want=0x%08x", got, want)
	}

	cfg.Device.Trace = filepath.Join(dir, "missing.trace")
	_, _, err = cfg.Open()
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestOpenMem(t *testing.T) {
	const (
		pin     = 23
		bit     = uint32(1) << pin
		gpfsel2 = 0x08
		gpset0  = 0x1c
		gpclr0  = 0x28
		gplev0  = 0x34
	)

	fname := filepath.Join(t.TempDir(), "gpiomem")
	regs := make([]byte, 4096)
	// an idle active-low receiver pulls the line high.
	binary.LittleEndian.PutUint32(regs[gplev0:], bit)
	err := os.WriteFile(fname, regs, 0644)
	if err != nil {
		t.Fatalf("could not create register file: %+v", err)
	}

	cfg := Default()
	cfg.Device.Driver = "gpiomem"
	cfg.Device.Mem = fname
	cfg.Device.RX = pin
	cfg.Device.TX = pin
	cfg.Device.Carrier = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %+v", err)
	}

	rx, tx, done, err := cfg.primitives()
	if err != nil {
		t.Fatalf("could not open gpiomem pin: %+v", err)
	}
	defer done()

	p, ok := rx.(*gpio.MemPin)
	if !ok {
		t.Fatalf("invalid receiver type %T", rx)
	}
	if tx != nec.Emitter(p) {
		t.Fatalf("receiver and emitter should share the pin")
	}

	lvl, err := p.Level()
	if err != nil {
		t.Fatalf("could not read level: %+v", err)
	}
	if lvl != nec.Space {
		t.Fatalf("idle receiver read as %v, want %v", lvl, nec.Space)
	}

	f, err := os.OpenFile(fname, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("could not open register file: %+v", err)
	}
	defer f.Close()

	_, err = f.WriteAt(make([]byte, 4), gplev0)
	if err != nil {
		t.Fatalf("could not pull line low: %+v", err)
	}
	lvl, err = p.Level()
	if err != nil {
		t.Fatalf("could not read level: %+v", err)
	}
	if lvl != nec.Mark {
		t.Fatalf("active receiver read as %v, want %v", lvl, nec.Mark)
	}

	err = tx.Emit([]nec.Pulse{{Mark: 560 * time.Microsecond, Space: 560 * time.Microsecond}})
	if err != nil {
		t.Fatalf("could not emit: %+v", err)
	}

	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read register file: %+v", err)
	}
	if got, want := binary.LittleEndian.Uint32(raw[gpfsel2:])>>9&7, uint32(1); got != want {
		t.Fatalf("invalid pin function: got=%d, want=%d", got, want)
	}
	// the LED is active high: a mark sets the line, a space clears it.
	if got := binary.LittleEndian.Uint32(raw[gpset0:]); got != bit {
		t.Fatalf("invalid set register: got=0x%08x, want=0x%08x", got, bit)
	}
	if got := binary.LittleEndian.Uint32(raw[gpclr0:]); got != bit {
		t.Fatalf("invalid clear register: got=0x%08x, want=0x%08x", got, bit)
	}
}
