// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nec

import "time"

// FrameLen is the number of pulses in an encoded frame:
// header, 32 data bits and the stop mark.
const FrameLen = 1 + 32 + 1

// Encode returns the pulse train of frame, using the Canonical timing table.
func Encode(frame uint32) []Pulse {
	return Canonical.Encode(frame)
}

// Encode returns the pulse train of frame, most significant bit first,
// using the nominal durations of tm.
// The last pulse is the stop mark, with a zero space.
func (tm Timing) Encode(frame uint32) []Pulse {
	train := make([]Pulse, 0, FrameLen)
	train = append(train, Pulse{Mark: tm.HeaderMark.Nominal, Space: tm.HeaderSpace.Nominal})
	for i := 31; i >= 0; i-- {
		space := tm.ZeroSpace.Nominal
		if (frame>>i)&1 == 1 {
			space = tm.OneSpace.Nominal
		}
		train = append(train, Pulse{Mark: tm.BitMark.Nominal, Space: space})
	}
	return append(train, Pulse{Mark: tm.Stop.Nominal})
}

// Duration returns the air time of a pulse train.
func Duration(train []Pulse) time.Duration {
	var sum time.Duration
	for _, p := range train {
		sum += p.Mark + p.Space
	}
	return sum
}
