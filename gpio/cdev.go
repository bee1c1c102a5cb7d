// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-lpc/irlink/nec"
	"github.com/warthog618/go-gpiocdev"
)

type edge struct {
	lvl nec.Level     // level after the edge
	ts  time.Duration // kernel timestamp
}

// Receiver measures pulses on an input line of a GPIO character device,
// from the timestamps of its edge events.
type Receiver struct {
	line  *gpiocdev.Line
	edges chan edge
	slack time.Duration

	lvl   nec.Level
	since time.Duration
	known bool

	dropped atomic.Uint64
}

// OpenReceiver requests offset on chip (e.g. "gpiochip0") as an input
// line reporting both edges.
func OpenReceiver(chip string, offset int, opts ...Option) (*Receiver, error) {
	cfg := newConfig()
	cfg.activeLow = true
	for _, opt := range opts {
		opt(&cfg)
	}

	rx := newReceiver(cfg)
	lopts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(cfg.consumer),
		gpiocdev.WithEventHandler(rx.handle),
	}
	if cfg.activeLow {
		lopts = append(lopts, gpiocdev.AsActiveLow)
	}
	if cfg.pullUp {
		lopts = append(lopts, gpiocdev.WithPullUp)
	}

	line, err := gpiocdev.RequestLine(chip, offset, lopts...)
	if err != nil {
		return nil, fmt.Errorf("gpio: could not request input line %s:%d: %w", chip, offset, err)
	}
	rx.line = line

	return rx, nil
}

func newReceiver(cfg config) *Receiver {
	return &Receiver{
		edges: make(chan edge, cfg.events),
		slack: cfg.latency,
	}
}

func (rx *Receiver) handle(evt gpiocdev.LineEvent) {
	lvl := nec.Space
	if evt.Type == gpiocdev.LineEventRisingEdge {
		lvl = nec.Mark
	}
	select {
	case rx.edges <- edge{lvl: lvl, ts: evt.Timestamp}:
	default:
		rx.dropped.Add(1)
	}
}

func (rx *Receiver) update(e edge) bool {
	if rx.known && e.lvl == rx.lvl {
		return false
	}
	rx.lvl = e.lvl
	rx.since = e.ts
	rx.known = true
	return true
}

// MeasurePulse returns the duration of the pulse at lvl, measured between
// two edge timestamps.
// A pulse already in progress is measured from its starting edge.
func (rx *Receiver) MeasurePulse(lvl nec.Level, timeout time.Duration) time.Duration {
	timer := time.NewTimer(timeout + rx.slack)
	defer timer.Stop()

	for !rx.known || rx.lvl != lvl {
		select {
		case e := <-rx.edges:
			rx.update(e)
		case <-timer.C:
			return 0
		}
	}

	for {
		select {
		case e := <-rx.edges:
			start := rx.since
			if !rx.update(e) {
				continue
			}
			d := e.ts - start
			if d > timeout {
				return 0
			}
			return d
		case <-timer.C:
			return 0
		}
	}
}

// Dropped returns the number of edge events lost because the buffer was full.
func (rx *Receiver) Dropped() uint64 { return rx.dropped.Load() }

// Close releases the line.
func (rx *Receiver) Close() error {
	if rx.line == nil {
		return nil
	}
	err := rx.line.Close()
	rx.line = nil
	if err != nil {
		return fmt.Errorf("gpio: could not close input line: %w", err)
	}
	return nil
}

// Emitter drives an infrared LED on an output line of a GPIO character device.
type Emitter struct {
	line    *gpiocdev.Line
	clk     clock
	carrier time.Duration
	gap     time.Duration
}

// OpenEmitter requests offset on chip as an output line, initially off.
func OpenEmitter(chip string, offset int, opts ...Option) (*Emitter, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	lopts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(cfg.consumer),
	}
	if cfg.activeLow {
		lopts = append(lopts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, offset, lopts...)
	if err != nil {
		return nil, fmt.Errorf("gpio: could not request output line %s:%d: %w", chip, offset, err)
	}

	return &Emitter{
		line:    line,
		clk:     monotonic{},
		carrier: cfg.carrier,
		gap:     cfg.gap,
	}, nil
}

func (tx *Emitter) write(v int) error { return tx.line.SetValue(v) }

// Emit plays train on the line.
func (tx *Emitter) Emit(train []nec.Pulse) error {
	if tx.line == nil {
		return fmt.Errorf("gpio: emitter closed")
	}
	return emit(tx, tx.clk, train, tx.carrier, tx.gap)
}

// Close turns the LED off and releases the line.
func (tx *Emitter) Close() error {
	if tx.line == nil {
		return nil
	}
	defer func() { tx.line = nil }()

	err := tx.line.SetValue(0)
	if err != nil {
		_ = tx.line.Close()
		return fmt.Errorf("gpio: could not reset output line: %w", err)
	}

	err = tx.line.Close()
	if err != nil {
		return fmt.Errorf("gpio: could not close output line: %w", err)
	}
	return nil
}

var (
	_ nec.Measurer = (*Receiver)(nil)
	_ nec.Emitter  = (*Emitter)(nil)
)
