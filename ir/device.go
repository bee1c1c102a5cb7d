// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-lpc/irlink/nec"
	"github.com/go-lpc/irlink/packet"
)

// Device is an infrared link on one receiver and one emitter.
//
// At most one reader may use the receiver at a time: a running listener
// owns it until it is stopped.
// Sends are serialized.
type Device struct {
	rx  nec.Measurer
	tx  nec.Emitter
	cfg config
	dec *nec.Decoder

	sem  chan struct{} // receiver ownership
	txmu sync.Mutex

	mu  sync.Mutex
	err error // last error
	id  struct {
		ok  bool
		val uint16
	}
}

// NewDevice creates a device reading pulses from rx and emitting pulse
// trains on tx.
// Either of rx or tx may be nil for a send-only or receive-only device.
func NewDevice(rx nec.Measurer, tx nec.Emitter, opts ...Option) *Device {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dev := &Device{
		rx:  rx,
		tx:  tx,
		cfg: cfg,
		sem: make(chan struct{}, 1),
	}
	if rx != nil {
		dev.dec = nec.NewDecoder(rx,
			nec.WithTiming(cfg.timing),
			nec.WithMsgStream(cfg.msg),
		)
	}
	return dev
}

func (dev *Device) acquire() bool {
	select {
	case dev.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (dev *Device) release() { <-dev.sem }

// ReadFrame waits for the next NEC frame.
func (dev *Device) ReadFrame(ctx context.Context) (uint32, error) {
	if dev.dec == nil {
		return 0, dev.fail(ErrNoReceiver)
	}
	if !dev.acquire() {
		return 0, dev.fail(ErrBusy)
	}
	defer dev.release()

	frame, err := dev.dec.Decode(ctx, dev.cfg.timeout)
	if err != nil {
		return 0, dev.fail(fmt.Errorf("ir: could not read frame: %w", err))
	}
	return frame, nil
}

// ReadAddressCommand waits for the next frame and splits it into an
// address and a command.
func (dev *Device) ReadAddressCommand(ctx context.Context) (address, command uint16, err error) {
	frame, err := dev.ReadFrame(ctx)
	if err != nil {
		return 0, 0, err
	}
	address, command = packet.UnpackAddressCommand(frame)
	return address, command, nil
}

// ReadPacket waits for the next frame and decodes it as a packet.
func (dev *Device) ReadPacket(ctx context.Context) (packet.Packet, error) {
	frame, err := dev.ReadFrame(ctx)
	if err != nil {
		return packet.Packet{}, err
	}

	p, err := packet.Decode(frame)
	if err != nil {
		return p, dev.fail(fmt.Errorf("ir: could not decode packet: %w", err))
	}
	return p, nil
}

// SendFrame emits frame.
func (dev *Device) SendFrame(frame uint32) error {
	if dev.tx == nil {
		return dev.fail(ErrNoEmitter)
	}

	dev.txmu.Lock()
	defer dev.txmu.Unlock()

	err := dev.tx.Emit(dev.cfg.timing.Encode(frame))
	if err != nil {
		return dev.fail(fmt.Errorf("ir: could not send frame %s: %w", packet.Hex(frame), err))
	}
	return nil
}

// SendAddressCommand emits the frame holding address and command.
func (dev *Device) SendAddressCommand(address, command uint16) error {
	return dev.SendFrame(packet.PackAddressCommand(address, command))
}

// SendPacket emits p, with its CRC.
// A zero p.ID is replaced by the device id.
func (dev *Device) SendPacket(p packet.Packet) error {
	if p.ID == 0 {
		id, err := dev.ID()
		if err != nil {
			return dev.fail(fmt.Errorf("ir: could not derive packet id: %w", err))
		}
		p.ID = id
	}
	return dev.SendFrame(packet.Encode(p))
}

// ID returns the 12-bit id of the device, derived from its id source.
func (dev *Device) ID() (uint16, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.id.ok {
		return dev.id.val, nil
	}
	if dev.cfg.ids == nil {
		return 0, fmt.Errorf("ir: no device id source")
	}

	seed, err := dev.cfg.ids.DeviceSeed()
	if err != nil {
		return 0, fmt.Errorf("ir: could not retrieve device seed: %w", err)
	}
	dev.id.val = packet.UniqueID(seed)
	dev.id.ok = true
	return dev.id.val, nil
}

// Stats returns the decoding counters of the device.
func (dev *Device) Stats() nec.Stats {
	if dev.dec == nil {
		return nec.Stats{}
	}
	return dev.dec.Stats()
}

func (dev *Device) fail(err error) error {
	dev.mu.Lock()
	dev.err = err
	dev.mu.Unlock()
	return err
}

// Err returns the last error encountered by the device.
func (dev *Device) Err() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.err
}

// LastError returns the message of the last error encountered by the
// device, or an empty string.
func (dev *Device) LastError() string {
	err := dev.Err()
	if err == nil {
		return ""
	}
	return err.Error()
}

// ClearLastError resets the last error of the device.
func (dev *Device) ClearLastError() {
	dev.mu.Lock()
	dev.err = nil
	dev.mu.Unlock()
}
