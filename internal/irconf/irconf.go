// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package irconf loads the YAML configuration shared by the irlink commands.
//
// A typical configuration file looks like:
//
//	device:
//	  driver: cdev
//	  chip: gpiochip0
//	  rx: 23
//	  tx: 24
//	link:
//	  timing: canonical
//	  timeout: 1s
//	db:
//	  dsn: irlink:${DB_PASSWORD}@tcp(localhost)/irlink
//
// Environment variables are expanded before parsing.
package irconf // import "github.com/go-lpc/irlink/internal/irconf"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-lpc/irlink/gpio"
	"github.com/go-lpc/irlink/ir"
	"github.com/go-lpc/irlink/nec"
	"github.com/go-lpc/irlink/packet"
	"github.com/go-lpc/irlink/trace"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of an infrared link.
type Config struct {
	Device Device `yaml:"device"`
	Link   Link   `yaml:"link"`
	DB     DB     `yaml:"db"`
	Mail   Mail   `yaml:"mail"`
}

// Device describes the hardware backend.
type Device struct {
	Driver      string   `yaml:"driver"` // cdev, gpiomem, loopback or trace
	Chip        string   `yaml:"chip"`
	Mem         string   `yaml:"mem"`
	RX          int      `yaml:"rx"` // receiver line, -1 to disable
	TX          int      `yaml:"tx"` // emitter line, -1 to disable
	RXActiveLow bool     `yaml:"rx-active-low"`
	Carrier     Duration `yaml:"carrier"`
	Trace       string   `yaml:"trace"` // pulse trace replayed by the trace driver
}

// Link describes the decoding parameters.
type Link struct {
	Timing    string   `yaml:"timing"` // canonical or measured
	Timeout   Duration `yaml:"timeout"`
	Pause     Duration `yaml:"pause"`
	MachineID string   `yaml:"machine-id"`
	Seed      uint32   `yaml:"seed"` // fixed device seed, overrides machine-id
}

// DB describes the peer database.
type DB struct {
	DSN string `yaml:"dsn"`
}

// Mail describes the alert mail relay.
type Mail struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
}

// Enabled returns whether alert mails can be sent.
func (m Mail) Enabled() bool {
	return m.Server != "" && m.Port != 0 && m.User != "" && len(m.To) > 0
}

// Duration is a time.Duration read from strings such as "10ms".
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	err := node.Decode(&s)
	if err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("irconf: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration of a Raspberry Pi with a receiver
// module on GPIO23 and an LED on GPIO24.
func Default() Config {
	return Config{
		Device: Device{
			Driver:      "cdev",
			Chip:        "gpiochip0",
			Mem:         "/dev/gpiomem",
			RX:          23,
			TX:          24,
			RXActiveLow: true,
			Carrier:     Duration(gpio.DefaultCarrier),
		},
		Link: Link{
			Timing:    "canonical",
			Timeout:   Duration(nec.DefaultTimeout),
			Pause:     Duration(10 * time.Millisecond),
			MachineID: string(packet.DefaultMachineID),
		},
	}
}

// Load reads the configuration file fname on top of the defaults.
func Load(fname string) (Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Config{}, fmt.Errorf("irconf: could not open config file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a configuration from r on top of the defaults.
func Parse(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("irconf: could not read config: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("irconf: could not decode config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (cfg Config) Validate() error {
	switch cfg.Device.Driver {
	case "cdev":
		if cfg.Device.Chip == "" {
			return fmt.Errorf("irconf: cdev driver needs a chip")
		}
	case "gpiomem":
		if cfg.Device.RX >= 0 && cfg.Device.TX >= 0 && cfg.Device.RX != cfg.Device.TX {
			return fmt.Errorf("irconf: gpiomem driver needs the same rx and tx pin (rx=%d, tx=%d)",
				cfg.Device.RX, cfg.Device.TX,
			)
		}
	case "loopback":
	case "trace":
		if cfg.Device.Trace == "" {
			return fmt.Errorf("irconf: trace driver needs a trace file")
		}
	default:
		return fmt.Errorf("irconf: unknown device driver %q", cfg.Device.Driver)
	}

	if _, err := cfg.Timing(); err != nil {
		return err
	}
	if cfg.Link.Timeout < 0 || cfg.Link.Pause < 0 {
		return fmt.Errorf("irconf: negative timeout or pause")
	}
	return nil
}

// Timing returns the timing table named by the link configuration.
func (cfg Config) Timing() (nec.Timing, error) {
	switch cfg.Link.Timing {
	case "", "canonical":
		return nec.Canonical, nil
	case "measured":
		return nec.Measured, nil
	default:
		return nec.Timing{}, fmt.Errorf("irconf: unknown timing table %q", cfg.Link.Timing)
	}
}

// IDSource returns the source of the device seed.
func (cfg Config) IDSource() packet.IDSource {
	if cfg.Link.Seed != 0 {
		seed := cfg.Link.Seed
		return packet.SeedFunc(func() (uint32, error) { return seed, nil })
	}
	return packet.MachineID(cfg.Link.MachineID)
}

// Open opens the backend described by cfg and returns the device, with
// a function releasing its lines.
func (cfg Config) Open(opts ...ir.Option) (*ir.Device, func() error, error) {
	tm, err := cfg.Timing()
	if err != nil {
		return nil, nil, err
	}

	rx, tx, closeAll, err := cfg.primitives()
	if err != nil {
		return nil, nil, err
	}

	opts = append([]ir.Option{
		ir.WithTiming(tm),
		ir.WithTimeout(time.Duration(cfg.Link.Timeout)),
		ir.WithPause(time.Duration(cfg.Link.Pause)),
		ir.WithIDSource(cfg.IDSource()),
	}, opts...)

	return ir.NewDevice(rx, tx, opts...), closeAll, nil
}

// primitives opens the measurement and emission primitives of the
// device backend.
func (cfg Config) primitives() (nec.Measurer, nec.Emitter, func() error, error) {
	var (
		rx      nec.Measurer
		tx      nec.Emitter
		closers []io.Closer
		dev     = cfg.Device
		gopts   = []gpio.Option{gpio.WithCarrier(time.Duration(dev.Carrier))}
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i].Close())
		}
		return errors.Join(errs...)
	}

	switch dev.Driver {
	case "cdev":
		if dev.RX >= 0 {
			r, err := gpio.OpenReceiver(dev.Chip, dev.RX,
				gpio.WithActiveLow(dev.RXActiveLow), gpio.WithPullUp(),
			)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("irconf: could not open receiver: %w", err)
			}
			rx = r
			closers = append(closers, r)
		}
		if dev.TX >= 0 {
			t, err := gpio.OpenEmitter(dev.Chip, dev.TX, gopts...)
			if err != nil {
				_ = closeAll()
				return nil, nil, nil, fmt.Errorf("irconf: could not open emitter: %w", err)
			}
			tx = t
			closers = append(closers, t)
		}
	case "gpiomem":
		pin := dev.RX
		if pin < 0 {
			pin = dev.TX
		}
		p, err := gpio.OpenMem(dev.Mem, pin,
			gpio.WithCarrier(time.Duration(dev.Carrier)),
			gpio.WithActiveLow(dev.RXActiveLow),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("irconf: could not open gpiomem pin: %w", err)
		}
		closers = append(closers, p)
		if dev.RX >= 0 {
			rx = p
		}
		if dev.TX >= 0 {
			tx = p
		}
	case "loopback":
		lb := trace.NewLoopback()
		rx, tx = lb, lb
	case "trace":
		f, err := os.Open(dev.Trace)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("irconf: could not open trace: %w", err)
		}
		defer f.Close()
		tr, err := trace.Read(f)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("irconf: could not read trace %q: %w", dev.Trace, err)
		}
		rx = trace.NewPlayer(tr)
		tx = new(trace.Recorder)
	default:
		return nil, nil, nil, fmt.Errorf("irconf: unknown device driver %q", dev.Driver)
	}

	return rx, tx, closeAll, nil
}
