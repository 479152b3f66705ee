// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/go-lpc/redpitaya/hw"
	"github.com/spf13/cobra"
)

func (app *app) i2cCmd() *cobra.Command {
	var bus int
	cmd := &cobra.Command{
		Use:   "i2c",
		Short: "Read and write registers of an I2C device",
	}
	cmd.PersistentFlags().IntVar(&bus, "bus", -1, "I2C bus number (overrides configuration)")

	open := func(addr string) (*hw.I2C, error) {
		v, err := parseU8(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid I2C address: %w", err)
		}
		if bus < 0 {
			bus = app.cfg.I2C.Bus
		}
		return hw.OpenI2C(bus, v)
	}

	read := &cobra.Command{
		Use:   "read <addr> <reg>",
		Short: "Read a register",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := parseU8(args[1])
			if err != nil {
				return fmt.Errorf("invalid register: %w", err)
			}
			dev, err := open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()

			v, err := dev.ReadReg(reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%02x[0x%02x] = 0x%02x\n", dev.Addr(), reg, v)
			return nil
		},
	}

	write := &cobra.Command{
		Use:   "write <addr> <reg> <byte>...",
		Short: "Write bytes starting at a register",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			block := make([]byte, 0, len(args)-1)
			for _, arg := range args[1:] {
				v, err := parseU8(arg)
				if err != nil {
					return fmt.Errorf("invalid byte %q: %w", arg, err)
				}
				block = append(block, v)
			}
			dev, err := open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()

			err = dev.Write(block)
			if err != nil {
				return err
			}
			return nil
		},
	}

	cmd.AddCommand(read, write)
	return cmd
}

// parseU8 parses a byte written in decimal, hexadecimal (0x), octal (0o)
// or binary (0b) notation.
func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
