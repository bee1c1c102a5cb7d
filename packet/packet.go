// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet packs control messages into 32-bit NEC frames.
//
// Two layouts are supported.
// The simple layout carries a 16-bit address and a 16-bit command:
//
//	address[31:16] | command[15:0]
//
// The packet layout carries a device id, a status, a command and a value,
// protected by a CRC-8 (polynomial 0x07) of the upper 24 bits:
//
//	id[31:20] | status[19:16] | command[15:12] | value[11:8] | crc8[7:0]
package packet // import "github.com/go-lpc/irlink/packet"

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-lpc/irlink/internal/crc8"
)

// AddrRadioChannel is the reserved address used to announce a radio
// channel (high byte of the command) and group (low byte).
const AddrRadioChannel uint16 = 0xd00d

// PackAddressCommand returns the frame holding address and command.
func PackAddressCommand(address, command uint16) uint32 {
	return uint32(address)<<16 | uint32(command)
}

// UnpackAddressCommand splits a frame into its address and command.
func UnpackAddressCommand(frame uint32) (address, command uint16) {
	return uint16(frame >> 16), uint16(frame)
}

// Status is the 4-bit status field of a packet.
type Status uint8

const (
	Hello   Status = 0
	Request Status = 1
	Ack     Status = 2
	Nack    Status = 3

	None = Hello
)

func (st Status) String() string {
	switch st {
	case Hello:
		return "hello"
	case Request:
		return "request"
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	default:
		return fmt.Sprintf("Status(%d)", uint8(st))
	}
}

// Command is the 4-bit command field of a packet.
type Command uint8

const (
	Pair Command = 0 // ask a peer to pair
	IAM  Command = 1 // announce our own id
)

func (cmd Command) String() string {
	switch cmd {
	case Pair:
		return "pair"
	case IAM:
		return "iam"
	default:
		return fmt.Sprintf("Command(%d)", uint8(cmd))
	}
}

const (
	idShift      = 20
	statusShift  = 16
	commandShift = 12
	valueShift   = 8

	idMask     = 0xfff
	fieldMask  = 0xf
	crcMask    = 0xff
	headerMask = 0xffffff00
)

// Packet is a structured control message.
//
// Fields wider than their slot in the frame are truncated on encoding.
type Packet struct {
	ID      uint16 // 12 bits; zero on send means the device id
	Status  Status
	Command Command
	Value   uint8 // 4 bits
	CRC     uint8
}

// Frame returns the frame of p with a zero CRC byte.
func (p Packet) Frame() uint32 {
	return uint32(p.ID&idMask)<<idShift |
		uint32(p.Status&fieldMask)<<statusShift |
		uint32(p.Command&fieldMask)<<commandShift |
		uint32(p.Value&fieldMask)<<valueShift
}

func (p Packet) String() string {
	return fmt.Sprintf(
		"Packet{ID: 0x%03x, Status: %v, Command: %v, Value: %d, CRC: 0x%02x}",
		p.ID, p.Status, p.Command, p.Value, p.CRC,
	)
}

// Checksum returns the CRC-8 of the upper 24 bits of frame.
// The four bytes of frame, with the CRC byte cleared, are fed most
// significant byte first.
func Checksum(frame uint32) uint8 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], frame&headerMask)
	return crc8.Checksum(buf[:])
}

// Encode returns the frame of p, with its CRC.
// The CRC field of p is ignored.
func Encode(p Packet) uint32 {
	frame := p.Frame()
	return frame | uint32(Checksum(frame))
}

var ErrCRCMismatch = errors.New("packet: crc mismatch")

// CRCError describes a frame whose CRC byte does not match its content.
type CRCError struct {
	Frame    uint32
	Expected uint8 // CRC computed from the frame content
	Got      uint8 // CRC carried by the frame
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("packet: crc mismatch for frame %s (expected=0x%02x, got=0x%02x)",
		Hex(e.Frame), e.Expected, e.Got,
	)
}

func (e *CRCError) Is(target error) bool { return target == ErrCRCMismatch }

// Decode extracts a packet from frame.
// Decode returns a *CRCError if the CRC byte does not match.
func Decode(frame uint32) (Packet, error) {
	var (
		got  = uint8(frame & crcMask)
		want = Checksum(frame)
	)
	if got != want {
		return Packet{}, &CRCError{Frame: frame, Expected: want, Got: got}
	}

	return Packet{
		ID:      uint16(frame>>idShift) & idMask,
		Status:  Status(frame>>statusShift) & fieldMask,
		Command: Command(frame>>commandShift) & fieldMask,
		Value:   uint8(frame>>valueShift) & fieldMask,
		CRC:     got,
	}, nil
}

// Hex formats v as 8 upper-case hexadecimal digits.
func Hex(v uint32) string {
	return fmt.Sprintf("%08X", v)
}
