// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/redpitaya/acq"
	"github.com/spf13/cobra"
)

type acqFlags struct {
	set   acq.Settings
	src   string
	fname string
}

func (af *acqFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&af.set.Decimation, "dec", 1, "decimation factor")
	flags.Float64Var(&af.set.Level, "level", 0, "trigger level (V)")
	flags.IntVar(&af.set.Delay, "delay", 0, "trigger delay (samples)")
	flags.StringVar(&af.src, "src", string(acq.Now), "trigger source (NOW, CH1_PE, ..., EXT_NE, AWG_PE, AWG_NE)")
	flags.StringVarP(&af.fname, "output", "o", "", "output file (default: stdout)")
}

func (af *acqFlags) settings() acq.Settings {
	s := af.set
	s.Source = acq.Source(strings.ToUpper(af.src))
	return s
}

func (af *acqFlags) output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if af.fname == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(af.fname)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create output file: %w", err)
	}
	return f, f.Close, nil
}

func (app *app) acquireCmd() *cobra.Command {
	var (
		af acqFlags
		ch int
	)
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Acquire a buffer of one channel with a common trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			a := acq.New(c, acq.WithLogger(app.logger("acq: ")))
			data, err := a.Acquire(ctx, acq.Channel(ch), af.settings())
			if err != nil {
				return fmt.Errorf("could not acquire data: %w", err)
			}

			w, done, err := af.output(cmd)
			if err != nil {
				return err
			}
			err = writeColumns(w, [][]float64{data})
			if err != nil {
				_ = done()
				return err
			}
			return done()
		},
	}
	af.register(cmd)
	cmd.Flags().IntVar(&ch, "ch", 1, "input channel (1-4)")
	return cmd
}

func (app *app) splitCmd() *cobra.Command {
	var (
		af  acqFlags
		ids []int
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Acquire buffers of several channels, each with its own trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chans := make(map[acq.Channel]acq.Settings, len(ids))
			for _, id := range ids {
				chans[acq.Channel(id)] = af.settings()
			}

			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			a := acq.New(c, acq.WithLogger(app.logger("acq: ")))
			data, err := a.AcquireSplit(ctx, chans)
			if err != nil {
				return fmt.Errorf("could not acquire data: %w", err)
			}

			cols := make([][]float64, len(ids))
			for i, id := range ids {
				cols[i] = data[acq.Channel(id)]
			}

			w, done, err := af.output(cmd)
			if err != nil {
				return err
			}
			err = writeColumns(w, cols)
			if err != nil {
				_ = done()
				return err
			}
			return done()
		},
	}
	af.register(cmd)
	cmd.Flags().IntSliceVar(&ids, "ch", []int{1, 2}, "input channels (1-4)")
	return cmd
}

// writeColumns writes one line per sample index, one column per buffer.
func writeColumns(w io.Writer, cols [][]float64) error {
	n := 0
	for _, col := range cols {
		if len(col) > n {
			n = len(col)
		}
	}

	o := bufio.NewWriter(w)
	for i := 0; i < n; i++ {
		for j, col := range cols {
			if j > 0 {
				o.WriteByte(' ')
			}
			v := 0.0
			if i < len(col) {
				v = col[i]
			}
			o.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		o.WriteByte('\n')
	}
	err := o.Flush()
	if err != nil {
		return fmt.Errorf("could not write data: %w", err)
	}
	return nil
}
