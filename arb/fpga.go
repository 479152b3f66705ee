// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Uploader sends commands to an instrument and reads back its error queue.
// *scpi.Client implements Uploader.
type Uploader interface {
	Tx(ctx context.Context, cmd string) error
	CheckError(ctx context.Context) error
}

// LoadToFPGA uploads the named signal to the arbitrary waveform buffer of
// generator channel ch and selects the arbitrary waveform function.
func (c *Catalog) LoadToFPGA(ctx context.Context, up Uploader, ch int, name string) error {
	if ch != 1 && ch != 2 {
		return fmt.Errorf("arb: invalid channel %d", ch)
	}

	buf := make([]float32, MaxSamples)
	n, err := c.SignalByName(name, buf)
	if err != nil {
		return err
	}

	o := new(strings.Builder)
	fmt.Fprintf(o, "SOUR%d:TRAC:DATA:DATA ", ch)
	for i, v := range buf[:n] {
		if i > 0 {
			o.WriteByte(',')
		}
		o.WriteString(strconv.FormatFloat(float64(v), 'f', 6, 32))
	}

	err = up.Tx(ctx, o.String())
	if err != nil {
		return fmt.Errorf("arb: could not upload signal %q: %w", name, err)
	}
	err = up.Tx(ctx, fmt.Sprintf("SOUR%d:FUNC ARBITRARY", ch))
	if err != nil {
		return fmt.Errorf("arb: could not select arbitrary function: %w", err)
	}
	err = up.CheckError(ctx)
	if err != nil {
		return fmt.Errorf("arb: instrument rejected signal %q: %w", name, err)
	}
	c.msg.Printf("loaded %q (%d samples) to channel %d", name, n, ch)
	return nil
}
