// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/go-lpc/redpitaya/arb"
	"github.com/go-lpc/redpitaya/gen"
	"github.com/spf13/cobra"
)

type waveFlags struct {
	ch      int
	samples int
	dec     int
	fname   string
}

func (wf *waveFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&wf.ch, "ch", 1, "generator channel (1 or 2)")
	flags.IntVar(&wf.samples, "samples", 16384, "number of samples of the default 3-harmonics waveform")
	flags.IntVar(&wf.dec, "dec", 1, "decimation factor")
	flags.StringVar(&wf.fname, "wave", "", "path to a waveform file (one sample in [-1,1] per value)")
}

func (wf *waveFlags) waveform() ([]float32, error) {
	if wf.fname == "" {
		if wf.samples <= 0 {
			return nil, fmt.Errorf("invalid number of samples %d", wf.samples)
		}
		return gen.Sine3(wf.samples), nil
	}
	wave, err := arb.ReadSignal(wf.fname)
	if err != nil {
		return nil, fmt.Errorf("could not read waveform: %w", err)
	}
	return wave, nil
}

func (app *app) burstCmd() *cobra.Command {
	var (
		wf    waveFlags
		burst gen.Burst
	)
	cmd := &cobra.Command{
		Use:   "burst",
		Short: "Generate bursts of a waveform through the AXI DMA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wave, err := wf.waveform()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			g := gen.New(c,
				gen.WithLogger(app.logger("gen: ")),
				gen.WithChunkSize(app.cfg.Chunk),
				gen.WithDecimation(wf.dec),
			)
			err = g.RunBurst(ctx, gen.Channel(wf.ch), wave, burst)
			if err != nil {
				return fmt.Errorf("could not run burst: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "burst: %d samples, %d cycles x %d reps (period=%dus) on CH%d\n",
				len(wave), burst.Cycles, burst.Reps, burst.Period, wf.ch,
			)
			return nil
		},
	}
	wf.register(cmd)
	flags := cmd.Flags()
	flags.IntVar(&burst.Cycles, "cycles", 1, "number of waveform cycles per burst")
	flags.IntVar(&burst.Reps, "reps", 5, "number of bursts")
	flags.IntVar(&burst.Period, "period", 50000, "burst period (us)")
	return cmd
}

func (app *app) continuousCmd() *cobra.Command {
	var wf waveFlags
	cmd := &cobra.Command{
		Use:   "continuous",
		Short: "Generate a waveform continuously through the AXI DMA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wave, err := wf.waveform()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			g := gen.New(c,
				gen.WithLogger(app.logger("gen: ")),
				gen.WithChunkSize(app.cfg.Chunk),
				gen.WithDecimation(wf.dec),
			)
			err = g.RunContinuous(ctx, gen.Channel(wf.ch), wave)
			if err != nil {
				return fmt.Errorf("could not run continuous generation: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "continuous: %d samples on CH%d\n", len(wave), wf.ch)
			return nil
		},
	}
	wf.register(cmd)
	return cmd
}
