// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rp-sim runs an emulated instrument SCPI server.
//
// Example:
//
//	$> rp-sim -addr :5000 -acq-size 16384
package main // import "github.com/go-lpc/redpitaya/cmd/rp-sim"

import (
	"flag"
	"log"
	"os"

	"github.com/go-lpc/redpitaya/sim"
)

func main() {
	log.SetPrefix("rp-sim: ")
	log.SetFlags(0)

	var (
		addr     = flag.String("addr", ":5000", "[ip]:port to listen on")
		axiStart = flag.Uint64("axi-start", 0x1000000, "start address of the reserved AXI memory")
		axiSize  = flag.Uint64("axi-size", 0x200000, "size of the reserved AXI memory")
		chunk    = flag.Int("chunk", sim.MaxChunk, "largest accepted AXI data message, in samples")
		acqSize  = flag.Int("acq-size", sim.BufferSize, "number of samples of an acquisition buffer")
		latency  = flag.Int("latency", 0, "number of trigger-state polls before a trigger fires")
	)

	flag.Parse()

	err := sim.Serve(*addr,
		sim.WithLogger(log.New(os.Stdout, "rp-sim: ", 0)),
		sim.WithMemory(*axiStart, *axiSize),
		sim.WithMaxChunk(*chunk),
		sim.WithAcqSize(*acqSize),
		sim.WithTriggerLatency(*latency),
	)
	if err != nil {
		log.Fatalf("could not run simulator: %+v", err)
	}
}
