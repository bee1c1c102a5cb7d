// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir exposes an infrared link as a device that reads and sends
// NEC frames, address/command pairs and CRC-8 packets, and runs
// background receive loops.
package ir // import "github.com/go-lpc/irlink/ir"

import (
	"errors"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/irlink/nec"
	"github.com/go-lpc/irlink/packet"
)

var (
	ErrNoReceiver = errors.New("ir: device has no receiver")
	ErrNoEmitter  = errors.New("ir: device has no emitter")
	ErrBusy       = errors.New("ir: receiver already in use")
)

type config struct {
	timeout time.Duration
	pause   time.Duration
	timing  nec.Timing
	ids     packet.IDSource
	msg     log.MsgStream
}

func newConfig() config {
	return config{
		timeout: nec.DefaultTimeout,
		pause:   10 * time.Millisecond,
		timing:  nec.Canonical,
		ids:     packet.DefaultMachineID,
		msg:     log.NewMsgStream("ir", log.LvlInfo, os.Stdout),
	}
}

// Option configures a Device.
type Option func(*config)

// WithTimeout sets the deadline used to find a frame header.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
	}
}

// WithPause sets the pause between two iterations of a receive loop.
func WithPause(pause time.Duration) Option {
	return func(cfg *config) {
		cfg.pause = pause
	}
}

// WithTiming sets the tolerance windows used to decode and encode frames.
func WithTiming(tm nec.Timing) Option {
	return func(cfg *config) {
		cfg.timing = tm
	}
}

// WithIDSource sets the source of the seed the device id is derived from.
func WithIDSource(src packet.IDSource) Option {
	return func(cfg *config) {
		cfg.ids = src
	}
}

// WithMsgStream sets the message stream of the device.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}
