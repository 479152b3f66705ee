// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/go-lpc/redpitaya/arb"
	"github.com/spf13/cobra"
)

func (app *app) arbCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "arb",
		Short: "Manage the catalog of arbitrary waveform files",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "ARB directory (overrides configuration)")

	// open opens and loads the catalog.
	open := func(cmd *cobra.Command) (*arb.Catalog, error) {
		var (
			drv = app.cfg.ARB.Driver
			dsn = app.cfg.ARB.DSN
			loc = app.cfg.ARB.Dir
		)
		if dir != "" {
			loc = dir
			if drv == "sqlite3" {
				dsn = filepath.Join(dir, "arb.db")
			}
		}
		c, err := arb.Open(loc, arb.WithDB(drv, dsn), arb.WithLogger(app.logger("arb: ")))
		if err != nil {
			return nil, err
		}
		err = c.Load(cmd.Context())
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}

	// with runs f against a loaded catalog.
	with := func(f func(cmd *cobra.Command, c *arb.Catalog, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			return f(cmd, c, args)
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the ARB files",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			o := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', 0)
			fmt.Fprintf(o, "#\tname\tcolor\tvalid\tfile\n")
			for i, f := range c.Files() {
				fmt.Fprintf(o, "%d\t%s\t#%06x\t%v\t%s\n", i, f.Name, f.Color, f.Valid, f.FileName)
			}
			return o.Flush()
		}),
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Print the samples of a signal",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			buf := make([]float32, arb.MaxSamples)
			n, err := c.SignalByName(args[0], buf)
			if err != nil {
				return err
			}
			o := cmd.OutOrStdout()
			for _, v := range buf[:n] {
				fmt.Fprintf(o, "%g\n", v)
			}
			return nil
		}),
	}

	rename := &cobra.Command{
		Use:   "rename <index> <name>",
		Short: "Rename a signal",
		Args:  cobra.ExactArgs(2),
		RunE: with(func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("could not parse index %q: %w", args[0], err)
			}
			return c.Rename(cmd.Context(), i, args[1])
		}),
	}

	color := &cobra.Command{
		Use:   "color <index> <0xRRGGBB>",
		Short: "Set the display color of a signal",
		Args:  cobra.ExactArgs(2),
		RunE: with(func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("could not parse index %q: %w", args[0], err)
			}
			rgb, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return fmt.Errorf("could not parse color %q: %w", args[1], err)
			}
			return c.SetColor(cmd.Context(), i, uint32(rgb))
		}),
	}

	// gen writes a generated file to args[0] or stdout.
	gen := func(f func(c *arb.Catalog, w io.Writer) error) func(*cobra.Command, *arb.Catalog, []string) error {
		return func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			if len(args) == 0 {
				return f(c, cmd.OutOrStdout())
			}
			o, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("could not create output file: %w", err)
			}
			defer o.Close()
			err = f(c, o)
			if err != nil {
				return err
			}
			return o.Close()
		}
	}

	csv := &cobra.Command{
		Use:   "csv [output]",
		Short: "Generate a CSV file with all the valid signals",
		Args:  cobra.MaximumNArgs(1),
		RunE: with(gen(func(c *arb.Catalog, w io.Writer) error {
			return c.GenFileCSV(w)
		})),
	}

	coe := &cobra.Command{
		Use:   "coe [output]",
		Short: "Generate a COE (FPGA memory initialization) file with all the valid signals",
		Args:  cobra.MaximumNArgs(1),
		RunE: with(gen(func(c *arb.Catalog, w io.Writer) error {
			return c.GenFileCOE(w)
		})),
	}

	var ch int
	load := &cobra.Command{
		Use:   "load <name>",
		Short: "Upload a signal to the arbitrary waveform buffer of a generator channel",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			ctx := cmd.Context()
			cli, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer cli.Close()

			return c.LoadToFPGA(ctx, cli, ch, args[0])
		}),
	}
	load.Flags().IntVar(&ch, "ch", 1, "generator channel (1 or 2)")

	valid := &cobra.Command{
		Use:   "valid <name>",
		Short: "Report whether a signal is valid",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			ok, err := c.IsValid(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid=%v\n", args[0], ok)
			return nil
		}),
	}

	stats := &cobra.Command{
		Use:   "stats <name>",
		Short: "Print summary statistics of a signal",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, c *arb.Catalog, args []string) error {
			buf := make([]float32, arb.MaxSamples)
			n, err := c.SignalByName(args[0], buf)
			if err != nil {
				return err
			}
			st := arb.Stats(buf[:n])
			fmt.Fprintf(cmd.OutOrStdout(), "%s: samples=%d min=%g max=%g mean=%g std=%g\n",
				args[0], n, st.Min, st.Max, st.Mean, st.Std,
			)
			return nil
		}),
	}

	cmd.AddCommand(list, show, rename, color, csv, coe, load, valid, stats)
	return cmd
}
