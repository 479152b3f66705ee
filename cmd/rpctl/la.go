// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-lpc/redpitaya/la"
	"github.com/spf13/cobra"
)

func (app *app) laCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "la",
		Short: "Capture and decode logic analyzer data",
	}

	var (
		typ  string
		rle  bool
		trig int
	)
	decode := &cobra.Command{
		Use:   "decode <dump> <settings.json>",
		Short: "Decode a logic analyzer capture file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := la.ParseDecoderType(strings.ToUpper(typ))
			if err != nil {
				return err
			}
			settings, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("could not read decoder settings: %w", err)
			}

			ctl := la.NewController(la.WithLogger(app.logger("la: ")))
			err = ctl.LoadFromFile(args[0], rle, trig)
			if err != nil {
				return err
			}
			return decodeAll(cmd.OutOrStdout(), ctl, dt, string(settings))
		},
	}
	flags := decode.Flags()
	flags.StringVar(&typ, "type", "UART", "decoder type (UART, SPI, I2C, CAN)")
	flags.BoolVar(&rle, "rle", false, "capture file is run-length encoded")
	flags.IntVar(&trig, "trigger", 0, "index of the trigger sample")

	var (
		req     la.Request
		edge    string
		out     string
		timeout time.Duration
		decs    []string
	)
	capture := &cobra.Command{
		Use:   "capture <samples> <settings.json>...",
		Short: "Replay a capture with a software trigger on a file of raw samples",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("could not read samples: %w", err)
			}
			e, err := la.ParseEdge(strings.ToUpper(edge))
			if err != nil {
				return err
			}
			if len(decs) != len(args)-1 {
				return fmt.Errorf("decoder types/settings mismatch (types=%d, settings=%d)", len(decs), len(args)-1)
			}

			w := cmd.OutOrStdout()
			ctl := la.NewController(la.WithLogger(app.logger("la: ")))
			ctl.SetDelegate(&status{w: w})
			ctl.SetEnableRLE(req.RLE)
			ctl.SetDecimation(req.Decimation)
			ctl.SetTrigger(req.Line, e)
			ctl.SetPreTriggerSamples(req.Pre)
			ctl.SetPostTriggerSamples(req.Post)

			for i, name := range decs {
				dt, err := la.ParseDecoderType(strings.ToUpper(name))
				if err != nil {
					return err
				}
				settings, err := os.ReadFile(args[i+1])
				if err != nil {
					return fmt.Errorf("could not read decoder settings: %w", err)
				}
				name := fmt.Sprintf("%s-%d", dt, i)
				err = ctl.AddDecoder(name, dt)
				if err != nil {
					return err
				}
				err = ctl.SetDecoderSettings(name, string(settings))
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			err = ctl.RunAsync(ctx, la.NewBufferSource(samples))
			if err != nil {
				return err
			}
			ctl.Wait(0)
			err = ctl.Err()
			if err != nil {
				return err
			}

			if out != "" {
				err = ctl.SaveCaptureDataToFile(out)
				if err != nil {
					return err
				}
			}

			for _, name := range ctl.Decoders() {
				typ, err := ctl.DecoderType(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "decoder %q:\n", name)
				printPackets(w, typ, ctl.DecodedData(name))
			}
			return nil
		},
	}
	flags = capture.Flags()
	flags.BoolVar(&req.RLE, "rle", true, "run-length encode the captured samples")
	flags.IntVar(&req.Decimation, "dec", 1, "decimation factor")
	flags.IntVar(&req.Line, "line", -1, "trigger line index (0-7), -1 to disable")
	flags.StringVar(&edge, "edge", "RISING_OR_FALLING", "trigger condition (RISING, FALLING, RISING_OR_FALLING, HIGH, LOW)")
	flags.IntVar(&req.Pre, "pre", 1000, "number of pre-trigger samples")
	flags.IntVar(&req.Post, "post", 0, "number of post-trigger samples (0: all)")
	flags.StringVarP(&out, "output", "o", "", "file to save the captured data to")
	flags.DurationVar(&timeout, "timeout", time.Second, "capture timeout")
	flags.StringSliceVar(&decs, "type", nil, "decoder types, one per settings file")

	cmd.AddCommand(decode, capture)
	return cmd
}

func decodeAll(w io.Writer, ctl *la.Controller, typ la.DecoderType, settings string) error {
	name := typ.String()
	err := ctl.AddDecoder(name, typ)
	if err != nil {
		return err
	}
	err = ctl.SetDecoderSettings(name, settings)
	if err != nil {
		return err
	}
	cfg, err := ctl.DecoderSettings(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "settings: %s\n", cfg)

	pkts, err := ctl.Decode(name)
	if err != nil {
		return err
	}
	printPackets(w, typ, pkts)
	return nil
}

func printPackets(w io.Writer, typ la.DecoderType, pkts []la.Packet) {
	for _, p := range pkts {
		fmt.Fprintf(w, "%-20s = %v\n", la.Annotation(typ, p.Control), p)
	}
}

type status struct {
	w io.Writer
}

func (st *status) CaptureStatus(c *la.Controller, timeout bool, n, samples, pre, post int) {
	fmt.Fprintf(st.w, "capture: timeout=%v bytes=%d samples=%d pre=%d post=%d\n",
		timeout, n, samples, pre, post,
	)
}

func (st *status) DecodeDone(c *la.Controller, name string) {
	fmt.Fprintf(st.w, "decode done: %s\n", name)
}
