// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nec

import (
	"fmt"
	"time"
)

// Window is a tolerance window around a nominal pulse duration.
// Both bounds are inclusive.
type Window struct {
	Nominal time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Contains returns whether d falls within [Min, Max].
func (w Window) Contains(d time.Duration) bool {
	return w.Min <= d && d <= w.Max
}

func (w Window) overlaps(o Window) bool {
	return w.Min <= o.Max && o.Min <= w.Max
}

func (w Window) String() string {
	return fmt.Sprintf("%v [%v, %v]", w.Nominal, w.Min, w.Max)
}

// Timing holds the tolerance windows used to classify and emit pulses.
type Timing struct {
	HeaderMark  Window
	HeaderSpace Window
	BitMark     Window
	ZeroSpace   Window
	OneSpace    Window
	Stop        Window
}

const us = time.Microsecond

// Canonical is the default NEC timing table.
var Canonical = Timing{
	HeaderMark:  Window{Nominal: 9000 * us, Min: 8500 * us, Max: 9500 * us},
	HeaderSpace: Window{Nominal: 4500 * us, Min: 4000 * us, Max: 5000 * us},
	BitMark:     Window{Nominal: 560 * us, Min: 440 * us, Max: 635 * us},
	ZeroSpace:   Window{Nominal: 560 * us, Min: 390 * us, Max: 710 * us},
	OneSpace:    Window{Nominal: 1690 * us, Min: 1490 * us, Max: 1840 * us},
	Stop:        Window{Nominal: 560 * us, Min: 360 * us, Max: 760 * us},
}

// Measured is a timing table built from the 1st and 99th percentiles of
// pulses recorded on real receivers.
// It accepts the slower, wider marks of cheap receiver modules.
var Measured = Timing{
	HeaderMark:  Window{Nominal: 9000 * us, Min: 8800 * us, Max: 9200 * us},
	HeaderSpace: Window{Nominal: 4500 * us, Min: 4300 * us, Max: 4600 * us},
	BitMark:     Window{Nominal: 560 * us, Min: 420 * us, Max: 860 * us},
	ZeroSpace:   Window{Nominal: 560 * us, Min: 390 * us, Max: 710 * us},
	OneSpace:    Window{Nominal: 1690 * us, Min: 1100 * us, Max: 1900 * us},
	Stop:        Window{Nominal: 560 * us, Min: 360 * us, Max: 760 * us},
}

// Validate checks that every window contains its nominal duration and
// that windows competing for the same level do not overlap.
func (tm Timing) Validate() error {
	for _, w := range []struct {
		name string
		win  Window
	}{
		{"header mark", tm.HeaderMark},
		{"header space", tm.HeaderSpace},
		{"bit mark", tm.BitMark},
		{"zero space", tm.ZeroSpace},
		{"one space", tm.OneSpace},
		{"stop mark", tm.Stop},
	} {
		if w.win.Min <= 0 || !w.win.Contains(w.win.Nominal) {
			return fmt.Errorf("nec: invalid %s window %v", w.name, w.win)
		}
	}

	switch {
	case tm.HeaderMark.overlaps(tm.BitMark):
		return fmt.Errorf("nec: header mark window %v overlaps bit mark window %v", tm.HeaderMark, tm.BitMark)
	case tm.HeaderSpace.overlaps(tm.OneSpace):
		return fmt.Errorf("nec: header space window %v overlaps one space window %v", tm.HeaderSpace, tm.OneSpace)
	case tm.HeaderSpace.overlaps(tm.ZeroSpace):
		return fmt.Errorf("nec: header space window %v overlaps zero space window %v", tm.HeaderSpace, tm.ZeroSpace)
	case tm.ZeroSpace.overlaps(tm.OneSpace):
		return fmt.Errorf("nec: zero space window %v overlaps one space window %v", tm.ZeroSpace, tm.OneSpace)
	}
	return nil
}

// Symbol is the meaning of a measured pulse.
type Symbol uint8

const (
	Invalid Symbol = iota
	HeaderMark
	HeaderSpace
	BitMark
	ZeroSpace
	OneSpace
)

func (s Symbol) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case HeaderMark:
		return "header-mark"
	case HeaderSpace:
		return "header-space"
	case BitMark:
		return "bit-mark"
	case ZeroSpace:
		return "zero-space"
	case OneSpace:
		return "one-space"
	default:
		return fmt.Sprintf("Symbol(%d)", uint8(s))
	}
}

// Classify returns the symbol a pulse of duration d at level lvl stands for.
//
// Marks are matched against the header and bit mark windows, spaces
// against the header, zero and one space windows.
// A duration of zero or less is a timeout and is always Invalid.
func (tm Timing) Classify(lvl Level, d time.Duration) Symbol {
	if NoSignal(d) {
		return Invalid
	}

	switch lvl {
	case Mark:
		switch {
		case tm.HeaderMark.Contains(d):
			return HeaderMark
		case tm.BitMark.Contains(d):
			return BitMark
		}
	case Space:
		switch {
		case tm.HeaderSpace.Contains(d):
			return HeaderSpace
		case tm.ZeroSpace.Contains(d):
			return ZeroSpace
		case tm.OneSpace.Contains(d):
			return OneSpace
		}
	}
	return Invalid
}

// NoSignal reports whether d is the timeout value of a Measurer.
func NoSignal(d time.Duration) bool { return d <= 0 }
