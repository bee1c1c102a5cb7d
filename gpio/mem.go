// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-lpc/irlink/internal/mmap"
	"github.com/go-lpc/irlink/nec"
)

// BCM283x GPIO register offsets.
const (
	regGPFSEL0 = 0x00
	regGPSET0  = 0x1c
	regGPCLR0  = 0x28
	regGPLEV0  = 0x34

	memSpan = 4096
	maxPin  = 53
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// MemPin is a single BCM283x GPIO pin driven through the /dev/gpiomem
// register window.
//
// A MemPin can both emit and measure pulses, switching the pin function
// to output or input as needed.
// Emissions and measurements are mutually exclusive: the pin is half-duplex.
// The receive polarity is set with WithActiveLow, the emit polarity with
// WithEmitActiveLow.
type MemPin struct {
	f   *os.File
	mem *mmap.Handle
	rw  rwer

	pin         int
	rxActiveLow bool
	txActiveLow bool
	carrier     time.Duration
	gap         time.Duration
	clk         clock

	mu  sync.Mutex // guards buf, err and the pin function
	buf []byte
	err error
}

// OpenMem maps the GPIO registers from fname (usually /dev/gpiomem) and
// returns the given BCM pin.
func OpenMem(fname string, pin int, opts ...Option) (*MemPin, error) {
	if pin < 0 || pin > maxPin {
		return nil, fmt.Errorf("gpio: invalid BCM pin %d", pin)
	}

	f, err := os.OpenFile(fname, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("gpio: could not open %q: %w", fname, err)
	}

	mem, err := mmap.Map(f, 0, memSpan)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("gpio: could not map GPIO registers: %w", err)
	}

	p := newMemPin(mem, pin, opts...)
	p.f = f
	p.mem = mem
	return p, nil
}

func newMemPin(rw rwer, pin int, opts ...Option) *MemPin {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemPin{
		rw:          rw,
		pin:         pin,
		rxActiveLow: cfg.activeLow,
		txActiveLow: cfg.emitActiveLow,
		carrier:     cfg.carrier,
		gap:         cfg.gap,
		clk:         monotonic{},
		buf:         make([]byte, 4),
	}
}

func (p *MemPin) readU32(off int64) uint32 {
	if p.err != nil {
		return 0
	}
	_, p.err = p.rw.ReadAt(p.buf[:4], off)
	if p.err != nil {
		p.err = fmt.Errorf("gpio: could not read register 0x%x: %w", off, p.err)
		return 0
	}
	return binary.LittleEndian.Uint32(p.buf[:4])
}

func (p *MemPin) writeU32(off int64, v uint32) {
	if p.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(p.buf[:4], v)
	_, p.err = p.rw.WriteAt(p.buf[:4], off)
	if p.err != nil {
		p.err = fmt.Errorf("gpio: could not write register 0x%x: %w", off, p.err)
	}
}

// setFunc selects the function of the pin: 0 for input, 1 for output.
func (p *MemPin) setFunc(fn uint32) error {
	var (
		off   = int64(regGPFSEL0 + 4*(p.pin/10))
		shift = uint(3 * (p.pin % 10))
	)
	v := p.readU32(off)
	v = v&^(7<<shift) | fn<<shift
	p.writeU32(off, v)
	return p.err
}

func (p *MemPin) bank() (int64, uint32) {
	return int64(4 * (p.pin / 32)), 1 << uint(p.pin%32)
}

func (p *MemPin) write(v int) error {
	if p.txActiveLow {
		v ^= 1
	}
	bank, bit := p.bank()
	reg := int64(regGPCLR0)
	if v != 0 {
		reg = regGPSET0
	}
	p.writeU32(reg+bank, bit)
	return p.err
}

func (p *MemPin) level() nec.Level {
	bank, bit := p.bank()
	high := p.readU32(regGPLEV0+bank)&bit != 0
	if high != p.rxActiveLow {
		return nec.Mark
	}
	return nec.Space
}

// Level returns the logical level currently read on the pin.
func (p *MemPin) Level() (nec.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.setFunc(0); err != nil {
		return nec.Space, fmt.Errorf("gpio: could not set pin %d as input: %w", p.pin, err)
	}
	lvl := p.level()
	return lvl, p.err
}

// Emit plays train on the pin.
// It waits for any measurement in progress.
func (p *MemPin) Emit(train []nec.Pulse) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.setFunc(1)
	if err != nil {
		return fmt.Errorf("gpio: could not set pin %d as output: %w", p.pin, err)
	}
	return emit(p, p.clk, train, p.carrier, p.gap)
}

// MeasurePulse polls the pin until it reaches lvl, then until it leaves it.
// Both the wait and the pulse are bounded by timeout.
func (p *MemPin) MeasurePulse(lvl nec.Level, timeout time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.setFunc(0); err != nil {
		return 0
	}

	deadline := p.clk.now() + timeout
	for p.level() != lvl {
		if p.err != nil || p.clk.now() > deadline {
			return 0
		}
	}

	start := p.clk.now()
	for p.level() == lvl {
		if p.err != nil || p.clk.now()-start > timeout {
			return 0
		}
	}
	return p.clk.now() - start
}

// Err returns the first register access error, if any.
func (p *MemPin) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close unmaps the registers and closes the device file.
func (p *MemPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem == nil {
		return nil
	}
	err := p.mem.Close()
	if err != nil {
		_ = p.f.Close()
		return fmt.Errorf("gpio: could not unmap GPIO registers: %w", err)
	}
	p.mem = nil

	err = p.f.Close()
	if err != nil {
		return fmt.Errorf("gpio: could not close GPIO device: %w", err)
	}
	return nil
}

var (
	_ nec.Measurer = (*MemPin)(nil)
	_ nec.Emitter  = (*MemPin)(nil)
)
