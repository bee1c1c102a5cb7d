// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"os"
	"strings"
)

// Scramble mixes the bits of k with one round of the MurmurHash3 key mix.
func Scramble(k uint32) uint32 {
	k *= 0xcc9e2d51
	k = bits.RotateLeft32(k, 15)
	k *= 0x1b873593
	return k
}

// UniqueID derives a 12-bit device id from a device seed.
func UniqueID(seed uint32) uint16 {
	return uint16(Scramble(seed) & idMask)
}

// IDSource provides the seed a device id is derived from.
type IDSource interface {
	DeviceSeed() (uint32, error)
}

// SeedFunc adapts a function to the IDSource interface.
type SeedFunc func() (uint32, error)

func (f SeedFunc) DeviceSeed() (uint32, error) { return f() }

// MachineID is an IDSource reading the systemd machine-id file at the
// given path.
// The 128-bit identifier is folded into 32 bits by XOR.
type MachineID string

// DefaultMachineID is the machine-id file of the host.
const DefaultMachineID MachineID = "/etc/machine-id"

func (fname MachineID) DeviceSeed() (uint32, error) {
	raw, err := os.ReadFile(string(fname))
	if err != nil {
		return 0, fmt.Errorf("packet: could not read machine-id: %w", err)
	}

	txt := strings.TrimSpace(string(raw))
	id, err := hex.DecodeString(txt)
	if err != nil {
		return 0, fmt.Errorf("packet: could not decode machine-id %q: %w", txt, err)
	}
	if len(id) == 0 || len(id)%4 != 0 {
		return 0, fmt.Errorf("packet: invalid machine-id length (%d bytes)", len(id))
	}

	var seed uint32
	for i := 0; i < len(id); i += 4 {
		seed ^= binary.BigEndian.Uint32(id[i:])
	}
	return seed, nil
}

var (
	_ IDSource = SeedFunc(nil)
	_ IDSource = MachineID("")
)
