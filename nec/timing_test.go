// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nec

import (
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tm := Canonical
	for _, tc := range []struct {
		lvl  Level
		d    time.Duration
		want Symbol
	}{
		{Mark, 9000 * us, HeaderMark},
		{Mark, tm.HeaderMark.Min, HeaderMark},
		{Mark, tm.HeaderMark.Max, HeaderMark},
		{Mark, tm.HeaderMark.Max + us, Invalid},
		{Mark, 560 * us, BitMark},
		{Mark, tm.BitMark.Min, BitMark},
		{Mark, tm.BitMark.Min - us, Invalid},
		{Mark, tm.BitMark.Max, BitMark},
		{Mark, tm.BitMark.Max + us, Invalid},
		{Mark, 1690 * us, Invalid},
		{Mark, 4500 * us, Invalid},
		{Space, 4500 * us, HeaderSpace},
		{Space, 560 * us, ZeroSpace},
		{Space, tm.ZeroSpace.Min, ZeroSpace},
		{Space, tm.ZeroSpace.Min - us, Invalid},
		{Space, 1690 * us, OneSpace},
		{Space, tm.OneSpace.Max, OneSpace},
		{Space, tm.OneSpace.Max + us, Invalid},
		{Space, 1000 * us, Invalid},
		{Space, 9000 * us, Invalid},
		{Mark, 0, Invalid},
		{Space, 0, Invalid},
		{Mark, -1, Invalid},
	} {
		t.Run(fmt.Sprintf("%s-%v", tc.lvl, tc.d), func(t *testing.T) {
			if got, want := tm.Classify(tc.lvl, tc.d), tc.want; got != want {
				t.Fatalf("invalid symbol: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestNoSignal(t *testing.T) {
	for _, tc := range []struct {
		d    time.Duration
		want bool
	}{
		{-1, true},
		{0, true},
		{1, false},
		{Canonical.BitMark.Min - us, false},
	} {
		if got, want := NoSignal(tc.d), tc.want; got != want {
			t.Fatalf("invalid no-signal(%v): got=%v, want=%v", tc.d, got, want)
		}
	}
}

func TestTimingValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		tm   Timing
		err  string
	}{
		{
			name: "canonical",
			tm:   Canonical,
		},
		{
			name: "measured",
			tm:   Measured,
		},
		{
			name: "nominal-outside",
			tm: func() Timing {
				tm := Canonical
				tm.Stop.Nominal = 800 * us
				return tm
			}(),
			err: "nec: invalid stop mark window 800µs [360µs, 760µs]",
		},
		{
			name: "zero-one-overlap",
			tm: func() Timing {
				tm := Canonical
				tm.ZeroSpace.Max = 1500 * us
				return tm
			}(),
			err: "nec: zero space window 560µs [390µs, 1.5ms] overlaps one space window 1.69ms [1.49ms, 1.84ms]",
		},
		{
			name: "header-bit-overlap",
			tm: func() Timing {
				tm := Canonical
				tm.HeaderMark.Min = 600 * us
				return tm
			}(),
			err: "nec: header mark window 9ms [600µs, 9.5ms] overlaps bit mark window 560µs [440µs, 635µs]",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tm.Validate()
			switch {
			case err == nil && tc.err == "":
				// ok
			case err == nil && tc.err != "":
				t.Fatalf("expected an error (%s)", tc.err)
			case err != nil && tc.err == "":
				t.Fatalf("could not validate timing: %+v", err)
			default:
				if got, want := err.Error(), tc.err; got != want {
					t.Fatalf("invalid error:\ngot= %s\nwant=%s", got, want)
				}
			}
		})
	}
}

func TestSymbolString(t *testing.T) {
	for _, tc := range []struct {
		sym  Symbol
		want string
	}{
		{Invalid, "invalid"},
		{HeaderMark, "header-mark"},
		{HeaderSpace, "header-space"},
		{BitMark, "bit-mark"},
		{ZeroSpace, "zero-space"},
		{OneSpace, "one-space"},
		{Symbol(42), "Symbol(42)"},
	} {
		if got, want := tc.sym.String(), tc.want; got != want {
			t.Fatalf("invalid symbol name: got=%q, want=%q", got, want)
		}
	}
}
