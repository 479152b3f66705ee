// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dio drives the digital pins and LEDs of the instrument.
package dio // import "github.com/go-lpc/redpitaya/dio"

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/redpitaya/scpi"
)

// Pin is a digital pin, as named by the instrument (LED0, DIO3_N, ...).
type Pin string

// LED returns the i-th LED pin.
func LED(i int) Pin { return Pin(fmt.Sprintf("LED%d", i)) }

// DION returns the i-th negative extension connector pin.
func DION(i int) Pin { return Pin(fmt.Sprintf("DIO%d_N", i)) }

// DIOP returns the i-th positive extension connector pin.
func DIOP(i int) Pin { return Pin(fmt.Sprintf("DIO%d_P", i)) }

// Direction is the direction of a digital pin.
type Direction int

const (
	In Direction = iota
	Out
)

func (dir Direction) String() string {
	switch dir {
	case In:
		return "IN"
	case Out:
		return "OUT"
	}
	return fmt.Sprintf("Direction(%d)", int(dir))
}

// DIO sends digital I/O commands to an instrument.
type DIO struct {
	c   *scpi.Client
	msg *log.Logger
}

// Option configures a DIO.
type Option func(*DIO)

// WithLogger sets the logger.
func WithLogger(msg *log.Logger) Option {
	return func(d *DIO) {
		d.msg = msg
	}
}

// New creates a digital I/O driver.
func New(c *scpi.Client, opts ...Option) *DIO {
	d := &DIO{
		c:   c,
		msg: log.New(os.Stdout, "dio: ", 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetDirection sets the direction of pin.
func (d *DIO) SetDirection(ctx context.Context, pin Pin, dir Direction) error {
	switch dir {
	case In, Out:
	default:
		return fmt.Errorf("dio: invalid direction %v", dir)
	}
	err := d.c.Txf(ctx, "DIG:PIN:DIR %v,%s", dir, pin)
	if err != nil {
		return fmt.Errorf("dio: could not set direction of %s: %w", pin, err)
	}
	return nil
}

// State returns the state of pin.
func (d *DIO) State(ctx context.Context, pin Pin) (bool, error) {
	v, err := d.c.QueryBool(ctx, "DIG:PIN? "+string(pin))
	if err != nil {
		return false, fmt.Errorf("dio: could not read state of %s: %w", pin, err)
	}
	return v, nil
}

// SetState sets the state of pin.
func (d *DIO) SetState(ctx context.Context, pin Pin, v bool) error {
	state := 0
	if v {
		state = 1
	}
	err := d.c.Txf(ctx, "DIG:PIN %s,%d", pin, state)
	if err != nil {
		return fmt.Errorf("dio: could not set state of %s: %w", pin, err)
	}
	return nil
}

// Mirror configures the in pins as inputs and copies their states onto
// the out pins every period, until ctx is done.
func (d *DIO) Mirror(ctx context.Context, in, out []Pin, period time.Duration) error {
	if len(in) != len(out) {
		return fmt.Errorf("dio: pin lists size mismatch (in=%d, out=%d)", len(in), len(out))
	}
	if period <= 0 {
		return fmt.Errorf("dio: invalid period %v", period)
	}

	for _, pin := range in {
		err := d.SetDirection(ctx, pin, In)
		if err != nil {
			return err
		}
	}

	tick := time.NewTicker(period)
	defer tick.Stop()

	d.msg.Printf("mirroring %d pins...", len(in))
	defer d.msg.Printf("mirroring %d pins... [done]", len(in))
	for {
		for i := range in {
			v, err := d.State(ctx, in[i])
			if err == nil {
				err = d.SetState(ctx, out[i], v)
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
