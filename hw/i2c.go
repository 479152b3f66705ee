// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"fmt"

	"github.com/go-daq/smbus"
)

type smbusConn interface {
	ReadReg(addr, reg uint8) (uint8, error)
	WriteReg(addr, reg, v uint8) error
	Close() error
}

var smbusOpen = func(bus int, addr uint8) (smbusConn, error) {
	return smbus.Open(bus, addr)
}

// I2C is a device on an I2C bus.
type I2C struct {
	bus  int
	addr uint8
	conn smbusConn
}

// OpenI2C opens the device at addr on the given I2C bus.
func OpenI2C(bus int, addr uint8) (*I2C, error) {
	if addr > 0x7f {
		return nil, fmt.Errorf("hw: invalid I2C address 0x%x", addr)
	}
	conn, err := smbusOpen(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("hw: could not open I2C device 0x%02x on bus %d: %w", addr, bus, err)
	}
	return &I2C{bus: bus, addr: addr, conn: conn}, nil
}

// Addr returns the 7-bit address of the device.
func (dev *I2C) Addr() uint8 { return dev.addr }

// ReadReg reads a register.
func (dev *I2C) ReadReg(reg uint8) (uint8, error) {
	v, err := dev.conn.ReadReg(dev.addr, reg)
	if err != nil {
		return 0, fmt.Errorf("hw: could not read register 0x%02x of I2C device 0x%02x: %w", reg, dev.addr, err)
	}
	return v, nil
}

// WriteReg writes a register.
func (dev *I2C) WriteReg(reg, v uint8) error {
	err := dev.conn.WriteReg(dev.addr, reg, v)
	if err != nil {
		return fmt.Errorf("hw: could not write register 0x%02x of I2C device 0x%02x: %w", reg, dev.addr, err)
	}
	return nil
}

// Write writes block[1:] to consecutive registers, starting at register
// block[0].
func (dev *I2C) Write(block []byte) error {
	if len(block) < 2 {
		return fmt.Errorf("hw: I2C block too short (len=%d)", len(block))
	}
	reg := block[0]
	for i, v := range block[1:] {
		err := dev.WriteReg(reg+uint8(i), v)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the device.
func (dev *I2C) Close() error {
	return dev.conn.Close()
}
