// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node exposes an infrared link as a TDAQ process.
//
// The node answers the usual run-control commands (/config, /init,
// /reset, /start, /stop, /quit) plus /status, publishes received packets
// on its /packets output and sends the frames it reads from its /send
// input.
package node // import "github.com/go-lpc/irlink/node"

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/irlink/ir"
	"github.com/go-lpc/irlink/packet"
)

// Opener opens the infrared device driven by a node.
type Opener func(opts ...ir.Option) (*ir.Device, func() error, error)

// Server is a TDAQ process driving an infrared device.
type Server struct {
	open Opener

	mu   sync.Mutex
	dev  *ir.Device
	done func() error

	pkts    chan packet.Packet
	dropped uint64
	sent    uint64
}

// New returns a server opening its device with open on /config.
func New(open Opener) *Server {
	return &Server{open: open}
}

func (srv *Server) device() (*ir.Device, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.dev == nil {
		return nil, fmt.Errorf("node: device not configured")
	}
	return srv.dev, nil
}

func (srv *Server) close() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.done == nil {
		return nil
	}
	err := srv.done()
	srv.dev = nil
	srv.done = nil
	return err
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	err := srv.close()
	if err != nil {
		ctx.Msg.Warnf("could not close previous device: %+v", err)
	}

	dev, done, err := srv.open(ir.WithMsgStream(ctx.Msg))
	if err != nil {
		ctx.Msg.Errorf("could not open device: %+v", err)
		return fmt.Errorf("could not open device: %w", err)
	}

	srv.mu.Lock()
	srv.dev = dev
	srv.done = done
	srv.mu.Unlock()

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	dev, err := srv.device()
	if err != nil {
		return err
	}

	id, err := dev.ID()
	if err != nil {
		ctx.Msg.Errorf("could not compute device id: %+v", err)
		return fmt.Errorf("could not compute device id: %w", err)
	}
	ctx.Msg.Infof("device id: 0x%03x", id)

	srv.reset()
	return nil
}

func (srv *Server) reset() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.pkts = make(chan packet.Packet, 1024)
	srv.dropped = 0
	srv.sent = 0
	if srv.dev != nil {
		srv.dev.ClearLastError()
	}
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.reset()
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	_, err := srv.device()
	if err != nil {
		return err
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.pkts == nil {
		return fmt.Errorf("node: device not initialized")
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev, err := srv.device()
	if err != nil {
		return err
	}
	st := dev.Stats()
	srv.mu.Lock()
	dropped, sent := srv.dropped, srv.sent
	srv.mu.Unlock()
	ctx.Msg.Debugf(
		"received /stop command... -> frames=%d, resyncs=%d, errors=%d, dropped=%d, sent=%d",
		st.Frames, st.Resyncs, st.Errors, dropped, sent,
	)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close device: %+v", err)
		return fmt.Errorf("could not close device: %w", err)
	}
	return nil
}

// OnStatus replies with the device id, its decoder counters and its
// last error.
func (srv *Server) OnStatus(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev, err := srv.device()
	if err != nil {
		return err
	}

	id, err := dev.ID()
	if err != nil {
		return fmt.Errorf("could not compute device id: %w", err)
	}

	var (
		st  = dev.Stats()
		buf = new(bytes.Buffer)
		enc = tdaq.NewEncoder(buf)
	)
	enc.WriteU32(uint32(id))
	enc.WriteU32(uint32(st.Frames))
	enc.WriteU32(uint32(st.Resyncs))
	enc.WriteU32(uint32(st.Errors))
	enc.WriteU32(uint32(st.Timeouts))
	enc.WriteStr(dev.LastError())
	if err := enc.Err(); err != nil {
		return fmt.Errorf("could not encode status: %w", err)
	}

	resp.Body = buf.Bytes()
	return nil
}

// Packets publishes received packets, one frame per packet.
func (srv *Server) Packets(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	pkts := srv.pkts
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case p := <-pkts:
		buf := new(bytes.Buffer)
		enc := tdaq.NewEncoder(buf)
		enc.WriteU32(p.Frame() | uint32(p.CRC))
		if err := enc.Err(); err != nil {
			return fmt.Errorf("could not encode packet %v: %w", p, err)
		}
		dst.Body = buf.Bytes()
	}
	return nil
}

// Send emits the packet frames carried by src.
func (srv *Server) Send(ctx tdaq.Context, src tdaq.Frame) error {
	dev, err := srv.device()
	if err != nil {
		return err
	}

	dec := tdaq.NewDecoder(bytes.NewReader(src.Body))
	frame := dec.ReadU32()
	if err := dec.Err(); err != nil {
		return fmt.Errorf("could not decode frame: %w", err)
	}

	p, err := packet.Decode(frame)
	if err != nil {
		ctx.Msg.Warnf("rejecting frame %s: %+v", packet.Hex(frame), err)
		return fmt.Errorf("could not send frame %s: %w", packet.Hex(frame), err)
	}

	err = dev.SendPacket(p)
	if err != nil {
		return fmt.Errorf("could not send packet %v: %w", p, err)
	}

	srv.mu.Lock()
	srv.sent++
	srv.mu.Unlock()
	return nil
}

// Run listens for packets until the run is stopped.
func (srv *Server) Run(ctx tdaq.Context) error {
	dev, err := srv.device()
	if err != nil {
		return err
	}

	srv.mu.Lock()
	pkts := srv.pkts
	srv.mu.Unlock()

	l := dev.OnPacketReceived(ctx.Ctx, func(p packet.Packet) {
		select {
		case pkts <- p:
		default:
			srv.mu.Lock()
			srv.dropped++
			srv.mu.Unlock()
			ctx.Msg.Warnf("dropping packet %v", p)
		}
	})
	<-l.Done()

	st := l.Stats()
	ctx.Msg.Infof("listener done: handled=%d, rejected=%d", st.Handled, st.Rejected)

	err = l.Err()
	if errors.Is(err, ir.ErrBusy) || errors.Is(err, ir.ErrNoReceiver) {
		return fmt.Errorf("could not listen for packets: %w", err)
	}
	return nil
}

// Register installs the handlers of srv on the TDAQ process p.
func (srv *Server) Register(p *tdaq.Server) {
	p.CmdHandle("/config", srv.OnConfig)
	p.CmdHandle("/init", srv.OnInit)
	p.CmdHandle("/reset", srv.OnReset)
	p.CmdHandle("/start", srv.OnStart)
	p.CmdHandle("/stop", srv.OnStop)
	p.CmdHandle("/quit", srv.OnQuit)
	p.CmdHandle("/status", srv.OnStatus)

	p.OutputHandle("/packets", srv.Packets)
	p.InputHandle("/send", srv.Send)

	p.RunHandle(srv.Run)
}
