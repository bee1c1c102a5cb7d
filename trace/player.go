// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"sync"
	"time"

	"github.com/go-lpc/irlink/nec"
)

// Player replays a trace as a nec.Measurer.
//
// Player keeps a virtual clock advanced by the replayed pulses and by
// timeouts, so decoding a trace does not depend on wall-clock time.
type Player struct {
	mu  sync.Mutex
	tr  Trace
	pos int
	now time.Time
}

// NewPlayer returns a player replaying tr.
func NewPlayer(tr Trace) *Player {
	return &Player{
		tr:  tr,
		now: time.Unix(0, 0),
	}
}

// Append queues more pulses at the end of the trace.
func (p *Player) Append(tr Trace) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tr = append(p.tr, tr...)
}

// Len returns the number of pulses left to replay.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tr) - p.pos
}

// Now returns the current time of the virtual clock.
func (p *Player) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// MeasurePulse skips pulses at the other level and returns the duration
// of the next pulse at lvl.
// It returns zero when the wait or the pulse itself exceeds timeout, or
// when the trace is exhausted.
func (p *Player) MeasurePulse(lvl nec.Level, timeout time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	var wait time.Duration
	for p.pos < len(p.tr) && p.tr[p.pos].Level != lvl {
		wait += p.tr[p.pos].Duration
		p.pos++
		if wait > timeout {
			p.now = p.now.Add(wait)
			return 0
		}
	}

	if p.pos >= len(p.tr) {
		p.now = p.now.Add(timeout)
		return 0
	}

	e := p.tr[p.pos]
	p.pos++
	p.now = p.now.Add(wait + e.Duration)
	if e.Duration > timeout {
		return 0
	}
	return e.Duration
}

// Recorder is a nec.Emitter keeping every emitted train.
type Recorder struct {
	mu     sync.Mutex
	trains [][]nec.Pulse
}

// Emit records a copy of train.
func (r *Recorder) Emit(train []nec.Pulse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trains = append(r.trains, append([]nec.Pulse(nil), train...))
	return nil
}

// Trains returns the emitted trains.
func (r *Recorder) Trains() [][]nec.Pulse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]nec.Pulse(nil), r.trains...)
}

// Trace returns the emitted trains as a single trace, each train
// followed by Gap.
func (r *Recorder) Trace() Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tr Trace
	for _, train := range r.trains {
		tr = append(tr, FromPulses(train)...)
		tr = tr.add(nec.Space, Gap)
	}
	return tr
}

// Loopback connects an emitter to a measurer: every emitted train can be
// measured back, as if the LED was facing its own receiver.
type Loopback struct {
	Recorder
	*Player
}

// NewLoopback returns an empty loopback.
func NewLoopback() *Loopback {
	return &Loopback{Player: NewPlayer(nil)}
}

// Emit records train and queues it for measurement.
func (lb *Loopback) Emit(train []nec.Pulse) error {
	err := lb.Recorder.Emit(train)
	if err != nil {
		return err
	}
	lb.Player.Append(FromPulses(train).add(nec.Space, Gap))
	return nil
}

var (
	_ nec.Measurer = (*Player)(nil)
	_ nec.Clock    = (*Player)(nil)
	_ nec.Emitter  = (*Recorder)(nil)
	_ nec.Emitter  = (*Loopback)(nil)
	_ nec.Measurer = (*Loopback)(nil)
	_ nec.Clock    = (*Loopback)(nil)
)
