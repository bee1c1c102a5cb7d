// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ir-shell is an interactive shell to send and receive NEC frames
// and packets.
//
// Usage: ir-shell [OPTIONS]
//
// Example:
//
//	$> ir-shell -loop
//	ir> send 0x1234 0x5678
//	sent 12345678
//	ir> read
//	frame 12345678 address=0x1234 command=0x5678
//	ir> channel 7 1
//	sent D00D0701
//	ir> read
//	frame D00D0701 channel=7 group=1
//	ir> quit
package main // import "github.com/go-lpc/irlink/cmd/ir-shell"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/irlink/internal/irconf"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("ir-shell: ")
	log.SetFlags(0)

	var (
		fname = flag.String("cfg", "", "path to YAML configuration file")
		loop  = flag.Bool("loop", false, "use a loopback device")
	)

	flag.Parse()

	err := run(*fname, *loop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(fname string, loop bool) error {
	cfg := irconf.Default()
	if fname != "" {
		var err error
		cfg, err = irconf.Load(fname)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
	}
	if loop {
		cfg.Device.Driver = "loopback"
	}

	dev, done, err := cfg.Open()
	if err != nil {
		return fmt.Errorf("could not open device: %w", err)
	}
	defer done()

	sh := newShell(os.Stdout, dev)
	defer sh.close()

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(sh.complete)

	hist := historyFile()
	if f, err := os.Open(hist); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = line.WriteHistory(f)
	}()

	ctx := context.Background()
	for {
		o, err := line.Prompt("ir> ")
		switch {
		case err == nil:
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			fmt.Println()
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}

		line.AppendHistory(o)
		err = sh.exec(ctx, o)
		switch {
		case err == nil:
		case errors.Is(err, errQuit):
			return nil
		default:
			log.Printf("%+v", err)
		}
	}
}

func historyFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".ir-shell_history")
}
