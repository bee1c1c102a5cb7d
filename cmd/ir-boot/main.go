// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ir-boot (re)starts the infrared link processes.
//
// Each argument is a command line, started with its output redirected to
// a log file under $IRLINK_LOGDIR (default: /var/log/irlink).
// The irlink configuration files of the commands (their -cfg flag, or
// $IRLINK_CONFIG) are validated before any process is (re)started.
//
// Usage: ir-boot [OPTIONS] [CMD1 [CMD2 [...]]]
//
// Example:
//
//	$> ir-boot -pmon "ir-node -id ir-node-01" "ir-mon -cfg /etc/irlink.yaml"
package main // import "github.com/go-lpc/irlink/cmd/ir-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-lpc/irlink/internal/irconf"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	dir = os.Getenv("IRLINK_LOGDIR")

	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	doKill = flag.Bool("kill", true, "kill stale processes before starting")

	stop = make(chan os.Signal, 1)
)

func main() {
	flag.Parse()

	log.SetPrefix("ir-boot: ")
	log.SetFlags(0)

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ir-mon"}
	}

	cmds, err := commands(args)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	err = run(*doMon, *doFreq, *doKill, cmds, dir, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func commands(args []string) ([]*exec.Cmd, error) {
	cmds := make([]*exec.Cmd, 0, len(args))
	for _, arg := range args {
		toks := strings.Fields(arg)
		if len(toks) == 0 {
			return nil, fmt.Errorf("invalid empty command")
		}
		cmds = append(cmds, exec.Command(toks[0], toks[1:]...))
	}
	return cmds, nil
}

// configs returns the irlink configuration files used by cmds.
func configs(cmds []*exec.Cmd) map[string][]string {
	cfgs := make(map[string][]string)
	for _, cmd := range cmds {
		name := filepath.Base(cmd.Path)
		env := os.Getenv("IRLINK_CONFIG")
		for _, kv := range cmd.Env {
			if v, ok := strings.CutPrefix(kv, "IRLINK_CONFIG="); ok {
				env = v
			}
		}
		args := cmd.Args[1:]
		for i, arg := range args {
			opt := strings.TrimLeft(arg, "-")
			switch {
			case arg == opt:
			case opt == "cfg" && i+1 < len(args):
				cfgs[args[i+1]] = append(cfgs[args[i+1]], name)
			case strings.HasPrefix(opt, "cfg="):
				v := strings.TrimPrefix(opt, "cfg=")
				cfgs[v] = append(cfgs[v], name)
			}
		}
		if name == "ir-node" && env != "" {
			cfgs[env] = append(cfgs[env], name)
		}
	}
	return cfgs
}

func validate(cmds []*exec.Cmd) error {
	for fname, names := range configs(cmds) {
		_, err := irconf.Load(fname)
		if err != nil {
			return fmt.Errorf("invalid configuration for %q: %w", names, err)
		}
	}
	return nil
}

func run(doMon bool, freq time.Duration, doKill bool, cmds []*exec.Cmd, dir string, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	err := validate(cmds)
	if err != nil {
		return fmt.Errorf("could not boot irlink: %w", err)
	}

	if doKill {
		for _, cmd := range cmds {
			killall(filepath.Base(cmd.Path))
		}
	}

	if dir == "" {
		dir = "/var/log/irlink"
	}

	var (
		grp  errgroup.Group
		kill = make(chan int)
	)
	for i := range cmds {
		p := proc{cmd: cmds[i], dir: dir}
		if doMon {
			p.freq = freq
		}
		grp.Go(func() error {
			return p.run(kill)
		})
	}

	go func() {
		<-stop
		close(kill)
	}()

	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot irlink: %w", err)
	}
	return nil
}

func killall(name string) {
	kill := exec.Command("killall", name)
	kill.Stderr = os.Stderr
	kill.Stdout = os.Stdout
	err := kill.Run()
	if err != nil {
		log.Printf("could not kill %q: %+v", name, err)
	}
}

// proc is a managed irlink process.
type proc struct {
	cmd  *exec.Cmd
	dir  string
	freq time.Duration // pmon sampling period, zero to disable
}

func (p proc) name() string { return filepath.Base(p.cmd.Path) }

func (p proc) create(suffix string) (*os.File, error) {
	return os.Create(filepath.Join(p.dir, p.name()+suffix+".log"))
}

// run starts the process and waits until it exits, or until kill is
// closed.
func (p proc) run(kill <-chan int) error {
	name := p.name()
	out, err := p.create("")
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	p.cmd.Stdout = out
	p.cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = p.cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if p.freq > 0 {
		unwatch, err := p.watch()
		if err != nil {
			_ = p.cmd.Process.Kill()
			_ = p.cmd.Wait()
			return err
		}
		defer unwatch()
	}

	errc := make(chan error, 1)
	go func() {
		errc <- p.cmd.Wait()
	}()

	select {
	case <-kill:
		return p.halt(errc)
	case err = <-errc:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}
	return nil
}

// watch samples the resources used by the process with pmon.
func (p proc) watch() (func(), error) {
	name := p.name()
	mon, err := pmon.Monitor(p.cmd.Process.Pid)
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, p.cmd.Process.Pid, err)
	}
	f, err := p.create("-pmon")
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file for command %q: %w", name, err)
	}
	mon.W = f
	mon.Freq = p.freq

	go func() {
		err := mon.Run()
		if err != nil {
			log.Printf("could not monitor %q: %+v", name, err)
		}
	}()

	return func() {
		err := mon.Kill()
		if err != nil {
			log.Printf("could not stop monitoring %q: %+v", name, err)
		}
		_ = f.Close()
	}, nil
}

// halt interrupts the process, and kills it if it is still running after
// a grace period.
// Listeners and the tdaq server release their GPIO lines on interrupt.
func (p proc) halt(errc <-chan error) error {
	name := p.name()
	log.Printf("stopping %q...", name)
	err := p.cmd.Process.Signal(os.Interrupt)
	if err != nil {
		return fmt.Errorf("could not stop %q: %w", name, err)
	}

	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		err = p.cmd.Process.Kill()
		if err != nil {
			return fmt.Errorf("could not kill %q: %w", name, err)
		}
		<-errc
	}
	return nil
}
