// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/redpitaya/dio"
	"github.com/spf13/cobra"
)

func (app *app) dioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dio",
		Short: "Read, write and mirror digital I/O pins",
	}

	get := &cobra.Command{
		Use:   "get <pin>",
		Short: "Print the state of a pin (LED0..7, DIO0_N..DIO7_P)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			pin := dio.Pin(strings.ToUpper(args[0]))
			v, err := dio.New(c, dio.WithLogger(app.logger("dio: "))).State(ctx, pin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", pin, v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <pin> <0|1>",
		Short: "Configure a pin as output and set its state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin := dio.Pin(strings.ToUpper(args[0]))
			v, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("could not parse pin state %q: %w", args[1], err)
			}

			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			d := dio.New(c, dio.WithLogger(app.logger("dio: ")))
			err = d.SetDirection(ctx, pin, dio.Out)
			if err != nil {
				return err
			}
			return d.SetState(ctx, pin, v)
		},
	}

	var (
		in, out []string
		period  time.Duration
	)
	mirror := &cobra.Command{
		Use:   "mirror",
		Short: "Copy the states of input pins onto output pins until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			d := dio.New(c, dio.WithLogger(app.logger("dio: ")))
			return d.Mirror(ctx, pins(in), pins(out), period)
		},
	}
	flags := mirror.Flags()
	flags.StringSliceVar(&in, "in", []string{"DIO0_N", "DIO1_N", "DIO2_N", "DIO3_N", "DIO4_N", "DIO5_N", "DIO6_N", "DIO7_N"}, "input pins")
	flags.StringSliceVar(&out, "out", []string{"LED0", "LED1", "LED2", "LED3", "LED4", "LED5", "LED6", "LED7"}, "output pins")
	flags.DurationVar(&period, "period", 100*time.Millisecond, "mirroring period")

	cmd.AddCommand(get, set, mirror)
	return cmd
}

func pins(names []string) []dio.Pin {
	out := make([]dio.Pin, len(names))
	for i, name := range names {
		out[i] = dio.Pin(strings.ToUpper(name))
	}
	return out
}
