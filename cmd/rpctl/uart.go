// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"

	"github.com/go-lpc/redpitaya/hw"
	"github.com/go-lpc/redpitaya/uart"
	"github.com/spf13/cobra"
)

func (app *app) uartCmd() *cobra.Command {
	var (
		dev  string
		baud int
	)
	cmd := &cobra.Command{
		Use:   "uart",
		Short: "Exchange messages over the UART block protocol",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&dev, "dev", "", "serial device (overrides configuration)")
	flags.IntVar(&baud, "baud", 0, "baud rate (overrides configuration)")

	open := func() (*hw.UART, *uart.Protocol, error) {
		cfg := hw.UARTConfig{
			Device:      app.cfg.UART.Device,
			Baud:        app.cfg.UART.Baud,
			Bits:        8,
			StopBits:    1,
			Parity:      hw.ParityNone,
			ReadTimeout: app.cfg.UART.Timeout,
		}
		if dev != "" {
			cfg.Device = dev
		}
		if baud != 0 {
			cfg.Baud = baud
		}
		port, err := hw.OpenUART(cfg)
		if err != nil {
			return nil, nil, err
		}
		p := uart.New(port,
			uart.WithTimeout(app.cfg.UART.Timeout),
			uart.WithLogger(app.logger("uart: ")),
		)
		return port, p, nil
	}

	var reply int
	send := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message and optionally read back a reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, p, err := open()
			if err != nil {
				return err
			}
			defer port.Close()

			ctx := cmd.Context()
			n, err := p.Write(ctx, []byte(args[0]))
			if err != nil {
				return fmt.Errorf("could not send message: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes\n", n)

			if reply <= 0 {
				return nil
			}
			buf := make([]byte, reply)
			_, err = p.Read(ctx, buf)
			if err != nil {
				return fmt.Errorf("could not read reply: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reply: %q\n", buf)
			return nil
		},
	}
	send.Flags().IntVar(&reply, "reply", 0, "number of reply bytes to read")

	var size int
	echo := &cobra.Command{
		Use:   "echo",
		Short: "Send a test pattern and check the echoed message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, p, err := open()
			if err != nil {
				return err
			}
			defer port.Close()

			msg := make([]byte, size)
			for i := range msg {
				msg[i] = byte(i)
			}

			ctx := cmd.Context()
			_, err = p.Write(ctx, msg)
			if err != nil {
				return fmt.Errorf("could not send test pattern: %w", err)
			}
			got := make([]byte, size)
			_, err = p.Read(ctx, got)
			if err != nil {
				return fmt.Errorf("could not read echo: %w", err)
			}
			if !bytes.Equal(got, msg) {
				return fmt.Errorf("echo mismatch:\ngot= %x\nwant=%x", got, msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "echo of %d bytes: OK\n", size)
			return nil
		},
	}
	echo.Flags().IntVar(&size, "size", 64, "size of the test pattern, in bytes")

	cmd.AddCommand(send, echo)
	return cmd
}
