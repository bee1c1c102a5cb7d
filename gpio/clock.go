// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"time"

	"golang.org/x/sys/unix"
)

// clock is a microsecond-accurate time base.
type clock interface {
	now() time.Duration
	sleepUntil(t time.Duration)
}

// monotonic reads CLOCK_MONOTONIC, the time base of GPIO edge events.
type monotonic struct{}

// spinWindow is the part of a wait that is busy-waited rather than slept,
// as the scheduler cannot wake a goroutine with microsecond accuracy.
const spinWindow = 200 * time.Microsecond

func (monotonic) now() time.Duration {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return time.Duration(ts.Nano())
}

func (clk monotonic) sleepUntil(t time.Duration) {
	if d := t - clk.now(); d > spinWindow {
		time.Sleep(d - spinWindow)
	}
	for clk.now() < t {
	}
}
