// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tarm/serial"
)

// Parity is the parity mode of a serial line.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// DefaultUARTDevice is the UART of the extension connector.
const DefaultUARTDevice = "/dev/ttyPS1"

// UARTConfig describes a serial line.
type UARTConfig struct {
	Device      string
	Baud        int
	Bits        int // data bits, 5 to 8
	StopBits    int // 1 or 2
	Parity      Parity
	ReadTimeout time.Duration
}

func (cfg UARTConfig) serial() (*serial.Config, error) {
	c := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        serial.DefaultSize,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	if c.Name == "" {
		c.Name = DefaultUARTDevice
	}
	if c.Baud <= 0 {
		return nil, fmt.Errorf("hw: invalid baud rate %d", cfg.Baud)
	}

	switch cfg.Bits {
	case 0:
	case 5, 6, 7, 8:
		c.Size = byte(cfg.Bits)
	default:
		return nil, fmt.Errorf("hw: invalid number of data bits %d", cfg.Bits)
	}

	switch cfg.StopBits {
	case 0, 1:
	case 2:
		c.StopBits = serial.Stop2
	default:
		return nil, fmt.Errorf("hw: invalid number of stop bits %d", cfg.StopBits)
	}

	switch cfg.Parity {
	case ParityNone:
	case ParityEven:
		c.Parity = serial.ParityEven
	case ParityOdd:
		c.Parity = serial.ParityOdd
	default:
		return nil, fmt.Errorf("hw: invalid parity %d", cfg.Parity)
	}
	return c, nil
}

type port interface {
	io.ReadWriteCloser
	Flush() error
}

var serialOpen = func(c *serial.Config) (port, error) {
	return serial.OpenPort(c)
}

// UART is an open serial line.
//
// A read that times out without data returns an error wrapping
// os.ErrDeadlineExceeded.
type UART struct {
	name string
	p    port
}

// OpenUART opens and configures a serial line.
func OpenUART(cfg UARTConfig) (*UART, error) {
	c, err := cfg.serial()
	if err != nil {
		return nil, err
	}
	p, err := serialOpen(c)
	if err != nil {
		return nil, fmt.Errorf("hw: could not open UART %q: %w", c.Name, err)
	}
	err = p.Flush()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("hw: could not flush UART %q: %w", c.Name, err)
	}
	return &UART{name: c.Name, p: p}, nil
}

// Name returns the device name of the serial line.
func (u *UART) Name() string { return u.name }

func (u *UART) Read(p []byte) (int, error) {
	n, err := u.p.Read(p)
	if n == 0 && len(p) > 0 && (err == nil || errors.Is(err, io.EOF)) {
		return 0, fmt.Errorf("hw: no data on %q: %w", u.name, os.ErrDeadlineExceeded)
	}
	return n, err
}

func (u *UART) Write(p []byte) (int, error) {
	return u.p.Write(p)
}

// Flush discards data received but not read.
func (u *UART) Flush() error {
	return u.p.Flush()
}

// Close closes the serial line.
func (u *UART) Close() error {
	return u.p.Close()
}
