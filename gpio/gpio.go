// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gpio drives infrared LEDs and reads infrared receiver modules
// connected to Linux GPIO lines.
//
// Two backends are provided:
//   - the GPIO character device (/dev/gpiochipN), with kernel-timestamped
//     edge events, through Receiver and Emitter,
//   - the BCM283x register window (/dev/gpiomem) of Raspberry Pi boards,
//     through MemPin, which polls and toggles the line directly.
package gpio // import "github.com/go-lpc/irlink/gpio"

import (
	"time"
)

const (
	// DefaultCarrier is the period of the 38kHz carrier.
	DefaultCarrier = 26 * time.Microsecond

	// DefaultGap is the idle time enforced after each pulse train.
	DefaultGap = 10 * time.Millisecond
)

type config struct {
	consumer  string
	activeLow bool
	pullUp    bool
	carrier   time.Duration
	gap       time.Duration
	latency   time.Duration
	events    int

	emitActiveLow bool // MemPin only
}

func newConfig() config {
	return config{
		consumer: "irlink",
		carrier:  DefaultCarrier,
		gap:      DefaultGap,
		latency:  2 * time.Millisecond,
		events:   256,
	}
}

// Option configures a GPIO line.
type Option func(*config)

// WithConsumer sets the consumer label of the requested line.
func WithConsumer(name string) Option {
	return func(cfg *config) {
		cfg.consumer = name
	}
}

// WithActiveLow sets whether a low line level means carrier present.
// Receivers are active low by default, emitters active high.
func WithActiveLow(v bool) Option {
	return func(cfg *config) {
		cfg.activeLow = v
	}
}

// WithEmitActiveLow sets whether a MemPin lights its LED with a low level.
// A MemPin emits active high by default, whatever its receive polarity.
func WithEmitActiveLow(v bool) Option {
	return func(cfg *config) {
		cfg.emitActiveLow = v
	}
}

// WithPullUp enables the internal pull-up bias of an input line.
func WithPullUp() Option {
	return func(cfg *config) {
		cfg.pullUp = true
	}
}

// WithCarrier sets the period of the carrier modulating marks.
// A zero period drives the line steadily during marks, for LEDs behind
// an external modulator.
func WithCarrier(period time.Duration) Option {
	return func(cfg *config) {
		cfg.carrier = period
	}
}

// WithGap sets the idle time enforced after each pulse train.
func WithGap(gap time.Duration) Option {
	return func(cfg *config) {
		cfg.gap = gap
	}
}

// WithLatency sets the delivery slack allowed for edge events.
func WithLatency(d time.Duration) Option {
	return func(cfg *config) {
		cfg.latency = d
	}
}

// WithEventBuffer sets the number of edge events buffered by a receiver.
func WithEventBuffer(n int) Option {
	return func(cfg *config) {
		cfg.events = n
	}
}
