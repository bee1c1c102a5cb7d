// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crc8_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/go-lpc/irlink/internal/crc8"
	sigurn "github.com/sigurn/crc8"
	"pgregory.net/rapid"
)

func TestCRC8(t *testing.T) {
	for _, tc := range []struct {
		raw  []byte
		want uint8
	}{
		{
			raw:  nil,
			want: 0x00,
		},
		{
			raw:  []byte("123456789"),
			want: 0xf4,
		},
		{
			raw:  []byte{0x12, 0x34, 0x56, 0x00},
			want: 0x73,
		},
		{
			raw:  []byte{0xff, 0xff, 0xff, 0x00},
			want: 0x2d,
		},
		{
			raw:  []byte{0x00, 0x10, 0x00, 0x00},
			want: 0xa2,
		},
		{
			raw:  []byte{0xab, 0xc1, 0x23, 0x00},
			want: 0x02,
		},
	} {
		t.Run(fmt.Sprintf("0x%02x", tc.want), func(t *testing.T) {
			crc := crc8.New(nil)
			if got, want := crc.BlockSize(), 1; got != want {
				t.Fatalf("invalid crc8 block size: got=%d, want=%d", got, want)
			}
			if got, want := crc.Size(), crc8.Size; got != want {
				t.Fatalf("invalid crc8 size: got=%d, want=%d", got, want)
			}

			crc.Reset()

			_, err := crc.Write(tc.raw)
			if err != nil {
				t.Fatalf("could not write crc8 hash: %+v", err)
			}

			if got, want := crc.Sum8(), tc.want; got != want {
				t.Fatalf("invalid crc8 checksum: got=0x%02x, want=0x%02x", got, want)
			}

			if got, want := crc.Sum(nil), []byte{tc.want}; !bytes.Equal(got, want) {
				t.Fatalf("invalid crc8 checksum: got=0x%x, want=0x%x", got, want)
			}

			if got, want := crc8.Checksum(tc.raw), tc.want; got != want {
				t.Fatalf("invalid crc8 checksum: got=0x%02x, want=0x%02x", got, want)
			}
		})
	}
}

func TestMakeTable(t *testing.T) {
	tab := crc8.MakeTable(crc8.ATM)
	for _, tc := range []struct {
		i    int
		want uint8
	}{
		{0, 0x00},
		{1, 0x07},
		{2, 0x0e},
		{3, 0x09},
		{4, 0x1c},
		{255, 0xf3},
	} {
		if got, want := tab[tc.i], tc.want; got != want {
			t.Fatalf("invalid table[%d]: got=0x%02x, want=0x%02x", tc.i, got, want)
		}
	}
}

func TestUpdateSplit(t *testing.T) {
	tab := crc8.MakeTable(crc8.ATM)
	raw := []byte("123456789")
	crc := crc8.Update(0, tab, raw[:4])
	crc = crc8.Update(crc, tab, raw[4:])
	if got, want := crc, uint8(0xf4); got != want {
		t.Fatalf("invalid split checksum: got=0x%02x, want=0x%02x", got, want)
	}
}

func TestCRC8Reference(t *testing.T) {
	ref := sigurn.MakeTable(sigurn.CRC8)
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOf(rapid.Byte()).Draw(t, "raw")
		if got, want := crc8.Checksum(raw), sigurn.Checksum(raw, ref); got != want {
			t.Fatalf("invalid crc8 checksum for %x: got=0x%02x, want=0x%02x", raw, got, want)
		}
	})
}
