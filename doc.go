// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package irlink exchanges short control messages between boards over
// an infrared link, using NEC framing and a CRC-8 protected packet layout.
//
// The sub-packages are layered as follows:
//   - nec decodes and encodes 32-bit NEC frames from mark/space timings,
//   - packet packs address/command pairs and CRC-8 packets into frames,
//   - ir runs per-pin devices with background receive loops,
//   - gpio and trace provide the measurement and emission primitives.
package irlink // import "github.com/go-lpc/irlink"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of irlink and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/irlink"
	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}

	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
