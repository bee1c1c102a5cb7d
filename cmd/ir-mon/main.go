// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ir-mon monitors the peers of an infrared link.
//
// ir-mon records every received packet in the peers database, answers
// pairing requests with its own id and sends an alert mail when a peer
// stays silent for too long.
//
// Usage: ir-mon [OPTIONS]
//
// Example:
//
//	$> ir-mon -cfg /etc/irlink.yaml -silence=5m
package main // import "github.com/go-lpc/irlink/cmd/ir-mon"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/go-lpc/irlink/internal/irconf"
	"github.com/go-lpc/irlink/peerdb"
)

func main() {
	log.SetPrefix("ir-mon: ")
	log.SetFlags(0)

	var (
		fname   = flag.String("cfg", "", "path to YAML configuration file")
		silence = flag.Duration("silence", 5*time.Minute, "silence duration before a peer is reported as lost")
		freq    = flag.Duration("freq", 30*time.Second, "probing interval for silent peers")
	)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, *fname, *silence, *freq)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, fname string, silence, freq time.Duration) error {
	cfg := irconf.Default()
	if fname != "" {
		var err error
		cfg, err = irconf.Load(fname)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
	}

	dev, done, err := cfg.Open()
	if err != nil {
		return fmt.Errorf("could not open device: %w", err)
	}
	defer done()

	var db recorder
	if cfg.DB.DSN != "" {
		pdb, err := peerdb.Open(cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("could not open peers db: %w", err)
		}
		defer pdb.Close()

		err = pdb.CreateTables(ctx)
		if err != nil {
			return fmt.Errorf("could not create peers tables: %w", err)
		}
		db = pdb
	}

	var ntf alerter = logger{}
	if cfg.Mail.Enabled() {
		ntf = mailer{cfg: cfg.Mail}
	}

	mon, err := newMonitor(dev, db, ntf, silence, freq)
	if err != nil {
		return err
	}
	log.Printf("monitoring peers as 0x%03x...", mon.id)

	err = mon.run(ctx)
	if err != nil {
		return fmt.Errorf("could not monitor peers: %w", err)
	}
	return nil
}
