// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-lpc/irlink/nec"
)

// pinWriter sets the logical value of an output line.
type pinWriter interface {
	write(v int) error
}

// emit plays train on w.
// Marks are modulated with a carrier of the given period, or driven
// steadily if the period is zero.
// The line is left low for at least gap once the train is done.
func emit(w pinWriter, clk clock, train []nec.Pulse, carrier, gap time.Duration) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t := clk.now()
	for i, p := range train {
		err := mark(w, clk, t, p.Mark, carrier)
		if err != nil {
			return fmt.Errorf("gpio: could not emit mark %d: %w", i, err)
		}
		t += p.Mark

		err = w.write(0)
		if err != nil {
			return fmt.Errorf("gpio: could not emit space %d: %w", i, err)
		}
		t += p.Space
		clk.sleepUntil(t)
	}
	clk.sleepUntil(t + gap)
	return nil
}

func mark(w pinWriter, clk clock, start, d, carrier time.Duration) error {
	end := start + d
	if carrier <= 0 {
		err := w.write(1)
		if err != nil {
			return err
		}
		clk.sleepUntil(end)
		return nil
	}

	half := carrier / 2
	for t := start; t < end; t += carrier {
		err := w.write(1)
		if err != nil {
			return err
		}
		clk.sleepUntil(min(t+half, end))

		err = w.write(0)
		if err != nil {
			return err
		}
		clk.sleepUntil(min(t+carrier, end))
	}
	return nil
}
