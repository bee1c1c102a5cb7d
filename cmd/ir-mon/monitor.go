// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-lpc/irlink/internal/irconf"
	"github.com/go-lpc/irlink/ir"
	"github.com/go-lpc/irlink/packet"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

type recorder interface {
	RecordPacket(ctx context.Context, p packet.Packet, at time.Time) error
}

type alerter interface {
	alert(subject, body string) error
}

type monitor struct {
	dev *ir.Device
	id  uint16
	db  recorder // may be nil
	ntf alerter

	silence time.Duration
	freq    time.Duration
	now     func() time.Time

	mu     sync.Mutex
	seen   map[uint16]time.Time
	lost   map[uint16]bool
	alerts int
}

func newMonitor(dev *ir.Device, db recorder, ntf alerter, silence, freq time.Duration) (*monitor, error) {
	id, err := dev.ID()
	if err != nil {
		return nil, fmt.Errorf("could not compute device id: %w", err)
	}
	return &monitor{
		dev:     dev,
		id:      id,
		db:      db,
		ntf:     ntf,
		silence: silence,
		freq:    freq,
		now:     time.Now,
		seen:    make(map[uint16]time.Time),
		lost:    make(map[uint16]bool),
	}, nil
}

// run listens for packets and checks for silent peers until ctx is done.
func (mon *monitor) run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		l := mon.dev.OnPacketReceived(ctx, func(p packet.Packet) {
			mon.handle(ctx, p)
		})
		<-l.Done()
		st := l.Stats()
		log.Printf("listener done: handled=%d, rejected=%d", st.Handled, st.Rejected)
		if ctx.Err() == nil {
			return fmt.Errorf("listener stopped: %w", l.Err())
		}
		return nil
	})

	grp.Go(func() error {
		tick := time.NewTicker(mon.freq)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tick.C:
				mon.check()
			}
		}
	})

	return grp.Wait()
}

func (mon *monitor) handle(ctx context.Context, p packet.Packet) {
	if p.ID == mon.id {
		// our own reply, reflected back.
		return
	}

	now := mon.now()
	log.Printf("received %v", p)

	mon.mu.Lock()
	mon.seen[p.ID] = now
	back := mon.lost[p.ID]
	delete(mon.lost, p.ID)
	mon.mu.Unlock()

	if back {
		mon.notify(
			fmt.Sprintf("[ir-mon] peer 0x%03x is back", p.ID),
			fmt.Sprintf("peer: 0x%03x\nseen: %s\npacket: %v", p.ID, now.Format(time.RFC3339), p),
		)
	}

	if mon.db != nil {
		err := mon.db.RecordPacket(ctx, p, now)
		if err != nil {
			log.Printf("could not record packet: %+v", err)
		}
	}

	if !needsReply(p) {
		return
	}

	reply := packet.Packet{
		ID:      mon.id,
		Status:  packet.Ack,
		Command: packet.IAM,
		Value:   p.Value,
	}
	err := mon.dev.SendPacket(reply)
	if err != nil {
		log.Printf("could not reply to peer 0x%03x: %+v", p.ID, err)
	}
}

func needsReply(p packet.Packet) bool {
	switch {
	case p.Status == packet.Request:
		return true
	case p.Status == packet.Hello && p.Command == packet.Pair:
		return true
	default:
		return false
	}
}

// check raises an alert for every peer silent for longer than the
// configured duration.
// A peer is reported once until it is seen again.
func (mon *monitor) check() {
	now := mon.now()

	mon.mu.Lock()
	var ids []uint16
	for id, last := range mon.seen {
		if mon.lost[id] || now.Sub(last) <= mon.silence {
			continue
		}
		mon.lost[id] = true
		ids = append(ids, id)
	}
	mon.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		mon.mu.Lock()
		last := mon.seen[id]
		mon.mu.Unlock()
		log.Printf("peer 0x%03x silent since %v", id, last.Format(time.RFC3339))
		mon.notify(
			fmt.Sprintf("[ir-mon] peer 0x%03x lost", id),
			fmt.Sprintf("peer: 0x%03x\nlast seen: %s\nsilence: %v", id, last.Format(time.RFC3339), mon.silence),
		)
	}
}

func (mon *monitor) notify(subject, body string) {
	const maxAlerts = 20

	mon.mu.Lock()
	mon.alerts++
	n := mon.alerts
	mon.mu.Unlock()

	if mon.ntf == nil || n > maxAlerts {
		return
	}

	err := mon.ntf.alert(subject, body)
	if err != nil {
		log.Printf("could not send alert: %+v", err)
	}
}

type mailer struct {
	cfg irconf.Mail
}

func (m mailer) alert(subject, body string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.User)
	msg.SetHeader("Bcc", m.cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(m.cfg.Server, m.cfg.Port, m.cfg.User, m.cfg.Password)
	dial.TLSConfig = &tls.Config{
		ServerName: m.cfg.Server,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		return fmt.Errorf("could not send mail %q to %s: %w",
			subject, strings.Join(m.cfg.To, ","), err,
		)
	}
	return nil
}

type logger struct{}

func (logger) alert(subject, body string) error {
	log.Printf("alert: %s\n%s", subject, body)
	return nil
}
