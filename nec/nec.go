// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nec decodes and encodes 32-bit NEC infrared frames.
//
// A frame is an AGC header (9ms mark, 4.5ms space), 32 data bits sent
// most-significant bit first and a final stop mark.
// Each bit is a 560µs mark followed by a 560µs space (0) or a 1690µs space (1).
//
// Hardware access goes through two narrow primitives: a Measurer that
// reports how long the line stays at a given level, and an Emitter that
// plays a train of mark/space pulses.
package nec // import "github.com/go-lpc/irlink/nec"

import (
	"fmt"
	"time"
)

// Level is the logical state of the infrared line.
type Level uint8

const (
	Space Level = iota // carrier absent
	Mark               // carrier present
)

func (lvl Level) String() string {
	switch lvl {
	case Space:
		return "space"
	case Mark:
		return "mark"
	default:
		return fmt.Sprintf("Level(%d)", uint8(lvl))
	}
}

// Pulse is one mark followed by one space.
type Pulse struct {
	Mark  time.Duration
	Space time.Duration
}

// Measurer measures the duration of the next pulse at the given level.
//
// MeasurePulse waits for the line to be at lvl and returns how long it
// stays there.
// A zero (or negative) duration means no complete pulse was seen within
// timeout.
type Measurer interface {
	MeasurePulse(lvl Level, timeout time.Duration) time.Duration
}

// Emitter plays a pulse train on the infrared line.
type Emitter interface {
	Emit(train []Pulse) error
}

// Clock is implemented by measurers that run on their own time base,
// such as recorded traces.
// Decoders use it to evaluate their deadlines.
type Clock interface {
	Now() time.Time
}
