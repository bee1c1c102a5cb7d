// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc8 implements the 8-bit cyclic redundancy check, or CRC-8,
// checksum, MSB-first, with no reflection and no final XOR.
package crc8 // import "github.com/go-lpc/irlink/internal/crc8"

import "hash"

// The size of a CRC-8 checksum in bytes.
const Size = 1

// ATM is the x^8 + x^2 + x + 1 polynomial, as used by ATM HEC and SMBus.
const ATM = 0x07

// Table is a 256-word table representing the polynomial for efficient processing.
type Table [256]uint8

var atmTable = MakeTable(ATM)

// MakeTable returns a Table constructed from the specified polynomial.
func MakeTable(poly uint8) *Table {
	t := new(Table)
	for i := range t {
		crc := uint8(i)
		for j := 0; j < 8; j++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Update returns the result of adding the bytes in p to the crc.
func Update(crc uint8, tab *Table, p []byte) uint8 {
	for _, v := range p {
		crc = tab[crc^v]
	}
	return crc
}

// Checksum returns the CRC-8 checksum of data using the ATM polynomial
// and a zero initial value.
func Checksum(data []byte) uint8 { return Update(0, atmTable, data) }

// Hash8 is the common interface implemented by all 8-bit hash functions.
type Hash8 interface {
	hash.Hash
	Sum8() uint8
}

type digest struct {
	crc uint8
	tab *Table
}

// New creates a new Hash8 computing the CRC-8 checksum using the
// polynomial represented by the Table.
// New uses the ATM polynomial if tab is nil.
func New(tab *Table) Hash8 {
	if tab == nil {
		tab = atmTable
	}
	return &digest{tab: tab}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0 }

func (d *digest) Write(p []byte) (n int, err error) {
	d.crc = Update(d.crc, d.tab, p)
	return len(p), nil
}

func (d *digest) Sum8() uint8 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	return append(in, d.crc)
}

var (
	_ Hash8 = (*digest)(nil)
)
