// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq/log"
)

// DefaultTimeout is the overall deadline used to find a frame header
// when Decode is called with a non-positive timeout.
const DefaultTimeout = 1 * time.Second

var (
	ErrTimeout        = errors.New("nec: timeout waiting for frame header")
	ErrInvalidBit     = errors.New("nec: invalid bit")
	ErrInvalidStopBit = errors.New("nec: invalid stop bit")
)

// BitError describes a mark or space that could not be decoded as part of
// a data bit.
type BitError struct {
	Index    int           // bit position, 0 is the most significant bit
	Level    Level         // level of the rejected pulse
	Duration time.Duration // measured duration, zero on timeout
}

func (e *BitError) Error() string {
	if NoSignal(e.Duration) {
		return fmt.Sprintf("nec: invalid bit %d: no %s", e.Index, e.Level)
	}
	return fmt.Sprintf("nec: invalid bit %d: %s of %v", e.Index, e.Level, e.Duration)
}

func (e *BitError) Is(target error) bool { return target == ErrInvalidBit }

// StopBitError describes a stop mark outside of its tolerance window.
type StopBitError struct {
	Duration time.Duration
}

func (e *StopBitError) Error() string {
	if NoSignal(e.Duration) {
		return "nec: invalid stop bit: no mark"
	}
	return fmt.Sprintf("nec: invalid stop bit: mark of %v", e.Duration)
}

func (e *StopBitError) Is(target error) bool { return target == ErrInvalidStopBit }

// Stats holds the decoding counters of a Decoder.
type Stats struct {
	Frames   uint64 // frames successfully decoded
	Resyncs  uint64 // header candidates discarded while searching for a frame
	Errors   uint64 // frames aborted on an invalid bit or stop bit
	Timeouts uint64 // calls to Decode that found no header in time
}

// Decoder reads NEC frames from a Measurer.
type Decoder struct {
	m   Measurer
	tm  Timing
	msg log.MsgStream
	now func() time.Time

	frames   atomic.Uint64
	resyncs  atomic.Uint64
	errs     atomic.Uint64
	timeouts atomic.Uint64
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithTiming sets the tolerance windows used to classify pulses.
func WithTiming(tm Timing) DecoderOption {
	return func(dec *Decoder) {
		dec.tm = tm
	}
}

// WithMsgStream sets the message stream used to report resyncs and errors.
func WithMsgStream(msg log.MsgStream) DecoderOption {
	return func(dec *Decoder) {
		dec.msg = msg
	}
}

// WithClock sets the time source used to evaluate decode deadlines.
func WithClock(now func() time.Time) DecoderOption {
	return func(dec *Decoder) {
		dec.now = now
	}
}

// NewDecoder returns a decoder reading pulses from m.
// If m implements Clock, its time base is used for deadlines.
func NewDecoder(m Measurer, opts ...DecoderOption) *Decoder {
	dec := &Decoder{
		m:   m,
		tm:  Canonical,
		msg: log.NewMsgStream("nec", log.LvlInfo, io.Discard),
		now: time.Now,
	}
	if clk, ok := m.(Clock); ok {
		dec.now = clk.Now
	}
	for _, opt := range opts {
		opt(dec)
	}
	return dec
}

// Timing returns the tolerance windows of the decoder.
func (dec *Decoder) Timing() Timing { return dec.tm }

// Stats returns a snapshot of the decoder counters.
func (dec *Decoder) Stats() Stats {
	return Stats{
		Frames:   dec.frames.Load(),
		Resyncs:  dec.resyncs.Load(),
		Errors:   dec.errs.Load(),
		Timeouts: dec.timeouts.Load(),
	}
}

// Decode waits for the next frame and returns its 32-bit value.
//
// Pulses that do not form a valid header are skipped until a header is
// found or timeout elapses, in which case ErrTimeout is returned.
// Once a header has been seen, any invalid bit or stop mark aborts the
// frame with a *BitError or a *StopBitError.
func (dec *Decoder) Decode(ctx context.Context, timeout time.Duration) (uint32, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := dec.now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if !dec.now().Before(deadline) {
			dec.timeouts.Add(1)
			return 0, ErrTimeout
		}

		d := dec.m.MeasurePulse(Mark, dec.tm.HeaderMark.Max)
		if sym := dec.tm.Classify(Mark, d); sym != HeaderMark {
			dec.resync(Mark, sym, d)
			continue
		}

		d = dec.m.MeasurePulse(Space, dec.tm.HeaderSpace.Max)
		if sym := dec.tm.Classify(Space, d); sym != HeaderSpace {
			dec.resync(Space, sym, d)
			continue
		}

		frame, err := dec.readFrame()
		if err != nil {
			dec.errs.Add(1)
			dec.msg.Debugf("frame aborted: %+v", err)
			return 0, err
		}
		dec.frames.Add(1)
		return frame, nil
	}
}

func (dec *Decoder) resync(lvl Level, sym Symbol, d time.Duration) {
	if NoSignal(d) {
		return
	}
	dec.resyncs.Add(1)
	dec.msg.Debugf("resync: %s of %v (%s) while searching for header", lvl, d, sym)
}

func (dec *Decoder) readFrame() (uint32, error) {
	var frame uint32
	for i := 0; i < 32; i++ {
		d := dec.m.MeasurePulse(Mark, dec.tm.BitMark.Max)
		if dec.tm.Classify(Mark, d) != BitMark {
			return 0, &BitError{Index: i, Level: Mark, Duration: d}
		}

		d = dec.m.MeasurePulse(Space, dec.tm.OneSpace.Max)
		switch dec.tm.Classify(Space, d) {
		case ZeroSpace:
		case OneSpace:
			frame |= 1 << (31 - i)
		default:
			return 0, &BitError{Index: i, Level: Space, Duration: d}
		}
	}

	d := dec.m.MeasurePulse(Mark, dec.tm.Stop.Max)
	if !dec.tm.Stop.Contains(d) {
		return 0, &StopBitError{Duration: d}
	}

	return frame, nil
}
