// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-lpc/irlink/nec"
	"github.com/go-lpc/irlink/packet"
)

// Listener is a background receive loop.
type Listener struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	err   error
	stats ListenerStats
}

// ListenerStats holds the counters of a Listener.
type ListenerStats struct {
	Handled  uint64 // frames passed to the handler
	Rejected uint64 // frames dropped on a decoding or CRC error
}

// Stop cancels the loop and waits for it to return.
// The handler runs on the loop goroutine: it must call Cancel, not Stop.
func (l *Listener) Stop() {
	l.cancel()
	<-l.done
}

// Cancel asks the loop to return, without waiting for it.
// The frame being handled, if any, is the last one.
func (l *Listener) Cancel() { l.cancel() }

// Done returns a channel closed once the loop has returned.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Err returns the last error seen by the loop.
// Idle periods without any frame are not errors.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns a snapshot of the loop counters.
func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Listener) handled() {
	l.mu.Lock()
	l.stats.Handled++
	l.mu.Unlock()
}

func (l *Listener) reject(err error) {
	l.mu.Lock()
	l.err = err
	l.stats.Rejected++
	l.mu.Unlock()
}

// OnFrameReceived starts a loop calling h with the address and command of
// every received frame.
// The loop runs until ctx is done or the listener is stopped.
func (dev *Device) OnFrameReceived(ctx context.Context, h func(address, command uint16)) *Listener {
	return dev.listen(ctx, "frame", func(frame uint32) error {
		h(packet.UnpackAddressCommand(frame))
		return nil
	})
}

// OnPacketReceived starts a loop calling h with every received packet
// whose CRC is valid.
// The loop runs until ctx is done or the listener is stopped.
// h is called synchronously from the loop.
func (dev *Device) OnPacketReceived(ctx context.Context, h func(p packet.Packet)) *Listener {
	return dev.listen(ctx, "packet", func(frame uint32) error {
		p, err := packet.Decode(frame)
		if err != nil {
			return err
		}
		h(p)
		return nil
	})
}

func (dev *Device) listen(ctx context.Context, name string, recv func(frame uint32) error) *Listener {
	ctx, cancel := context.WithCancel(ctx)
	l := &Listener{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var err error
	switch {
	case dev.dec == nil:
		err = ErrNoReceiver
	case !dev.acquire():
		err = ErrBusy
	}
	if err != nil {
		l.err = err
		cancel()
		close(l.done)
		return l
	}

	go dev.loop(ctx, l, name, recv)
	return l
}

func (dev *Device) loop(ctx context.Context, l *Listener, name string, recv func(frame uint32) error) {
	defer close(l.done)
	defer dev.release()

	msg := dev.cfg.msg
	msg.Infof("%s listener started", name)
	defer msg.Infof("%s listener stopped", name)

	for {
		frame, err := dev.dec.Decode(ctx, dev.cfg.timeout)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, nec.ErrTimeout):
			// idle line.
		case err != nil:
			err = dev.fail(fmt.Errorf("ir: could not read frame: %w", err))
			l.reject(err)
			msg.Debugf("%+v", err)
		default:
			err = recv(frame)
			if err != nil {
				err = dev.fail(fmt.Errorf("ir: could not decode frame %s: %w", packet.Hex(frame), err))
				l.reject(err)
				msg.Warnf("%+v", err)
				break
			}
			l.handled()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(dev.cfg.pause):
		}
	}
}
