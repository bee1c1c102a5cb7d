// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ir-node starts a TDAQ server driving an infrared link.
//
// The link is described by the YAML file named by the IRLINK_CONFIG
// environment variable, or by the default configuration when unset.
package main // import "github.com/go-lpc/irlink/cmd/ir-node"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/irlink/internal/irconf"
	"github.com/go-lpc/irlink/node"
)

func main() {
	log.SetPrefix("ir-node: ")
	log.SetFlags(0)

	cmd := flags.New()

	cfg, err := config(os.Getenv("IRLINK_CONFIG"))
	if err != nil {
		log.Fatalf("%+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	node.New(cfg.Open).Register(srv)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func config(fname string) (irconf.Config, error) {
	if fname == "" {
		return irconf.Default(), nil
	}
	return irconf.Load(fname)
}
