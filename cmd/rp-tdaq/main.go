// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rp-tdaq starts a TDAQ server publishing acquisition buffers of
// a Red Pitaya instrument on its /adc output.
//
// The /config command carries, in order:
//   - the [ip]:port of the instrument SCPI server (string),
//   - the input channel (uint32),
//   - the decimation factor (uint32),
//   - the trigger level in V (float64),
//   - the trigger source (string).
//
// Each /adc frame holds the channel (uint32), the number of samples
// (uint32) and the samples (float64).
package main // import "github.com/go-lpc/redpitaya/cmd/rp-tdaq"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/redpitaya/acq"
	"github.com/go-lpc/redpitaya/scpi"
)

func main() {
	cmd := flags.New()

	dev := newDevice(cmd.Args[0])

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/adc", dev.adc)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type devConfig struct {
	addr string
	ch   acq.Channel
	set  acq.Settings
}

type device struct {
	name string
	cfg  devConfig

	c   *scpi.Client
	acq *acq.Acquirer

	n    int
	data chan []byte
}

func newDevice(name string) *device {
	return &device{
		name: name,
		cfg: devConfig{
			addr: "localhost:5000",
			ch:   acq.CH1,
			set:  acq.Settings{Decimation: 1, Source: acq.Now},
		},
	}
}

func (dev *device) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	cfg, err := parseConfig(req.Body)
	if err != nil {
		ctx.Msg.Errorf("could not decode /config: %+v", err)
		return err
	}
	dev.cfg = cfg
	ctx.Msg.Infof("config: addr=%q ch=%d dec=%d level=%g src=%s",
		cfg.addr, cfg.ch, cfg.set.Decimation, cfg.set.Level, cfg.set.Source,
	)
	return nil
}

func (dev *device) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if dev.c != nil {
		_ = dev.c.Close()
	}
	c, err := scpi.Dial(ctx.Ctx, dev.cfg.addr, scpi.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		ctx.Msg.Errorf("could not dial instrument %q: %+v", dev.cfg.addr, err)
		return err
	}
	dev.c = c
	dev.acq = acq.New(c, acq.WithLogger(log.New(os.Stdout, "rp-tdaq: ", 0)))
	dev.data = make(chan []byte, 1024)
	dev.n = 0
	return nil
}

func (dev *device) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	dev.data = make(chan []byte, 1024)
	dev.n = 0
	if dev.c == nil {
		return nil
	}
	return dev.c.Tx(ctx.Ctx, "ACQ:RST")
}

func (dev *device) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if dev.acq == nil {
		return fmt.Errorf("rp-tdaq: device %q not initialized", dev.name)
	}
	return nil
}

func (dev *device) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	n := dev.n
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (dev *device) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if dev.c == nil {
		return nil
	}
	err := dev.c.Close()
	dev.c = nil
	return err
}

func (dev *device) adc(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *device) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			raw, err := dev.acquire(ctx.Ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				ctx.Msg.Errorf("could not acquire buffer: %+v", err)
				return err
			}
			select {
			case dev.data <- raw:
				dev.n++
			default:
			}
		}
	}
}

// acquire acquires one buffer and encodes it into an /adc frame body.
func (dev *device) acquire(ctx context.Context) ([]byte, error) {
	data, err := dev.acq.Acquire(ctx, dev.cfg.ch, dev.cfg.set)
	if err != nil {
		return nil, err
	}
	return encodeBuffer(dev.cfg.ch, data)
}

func parseConfig(body []byte) (devConfig, error) {
	var (
		cfg devConfig
		dec = tdaq.NewDecoder(bytes.NewReader(body))
	)
	cfg.addr = dec.ReadStr()
	cfg.ch = acq.Channel(dec.ReadU32())
	cfg.set.Decimation = int(dec.ReadU32())
	cfg.set.Level = dec.ReadF64()
	cfg.set.Source = acq.Source(dec.ReadStr())
	if err := dec.Err(); err != nil {
		return cfg, fmt.Errorf("rp-tdaq: could not decode configuration: %w", err)
	}
	if cfg.ch < acq.CH1 || cfg.ch > acq.CH4 {
		return cfg, fmt.Errorf("rp-tdaq: invalid channel %d", cfg.ch)
	}
	if cfg.set.Decimation < 1 {
		return cfg, fmt.Errorf("rp-tdaq: invalid decimation %d", cfg.set.Decimation)
	}
	return cfg, nil
}

func encodeBuffer(ch acq.Channel, data []float64) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(uint32(ch))
	enc.WriteU32(uint32(len(data)))
	for _, v := range data {
		enc.WriteF64(v)
	}
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("rp-tdaq: could not encode buffer: %w", err)
	}
	return buf.Bytes(), nil
}
