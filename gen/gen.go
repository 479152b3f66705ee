// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gen drives the signal generator of the instrument in DMA (AXI)
// mode, where a waveform is streamed into reserved memory and played out
// either as bursts or continuously.
package gen // import "github.com/go-lpc/redpitaya/gen"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-lpc/redpitaya/scpi"
)

// MaxChunk is the largest number of samples the instrument accepts in a
// single AXI data message.
const MaxChunk = 1 << 14

var (
	// ErrChunkTooLarge is returned when a chunk size above MaxChunk is requested.
	ErrChunkTooLarge = errors.New("gen: chunk size too large")

	// ErrRegionTooSmall is returned when a waveform does not fit in the
	// reserved memory region.
	ErrRegionTooSmall = errors.New("gen: memory region too small")
)

// Channel is a generator output channel.
type Channel int

const (
	CH1 Channel = 1
	CH2 Channel = 2
)

func (g *Generator) check(ch Channel) error {
	if g.cfg.err != nil {
		return g.cfg.err
	}
	switch ch {
	case CH1, CH2:
		return nil
	}
	return fmt.Errorf("gen: invalid channel %d", int(ch))
}

// Region is the memory region reserved for DMA generation.
type Region struct {
	Start uint64
	Size  uint64 // in bytes
}

// Burst describes a burst of waveform cycles.
// Zero-valued fields keep the instrument setting.
type Burst struct {
	Cycles int // number of waveform cycles per burst
	Reps   int // number of bursts
	Period int // burst period, in µs
}

type config struct {
	msg   *log.Logger
	chunk int
	dec   int
	err   error
}

// Option configures a Generator.
type Option func(*config)

// WithLogger sets the generator logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithChunkSize sets the number of samples sent per AXI data message.
func WithChunkSize(n int) Option {
	return func(cfg *config) {
		switch {
		case n > MaxChunk:
			cfg.err = fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, n, MaxChunk)
		case n <= 0:
			cfg.err = fmt.Errorf("gen: invalid chunk size %d", n)
		default:
			cfg.chunk = n
		}
	}
}

// WithDecimation sets the decimation applied by RunBurst and RunContinuous.
func WithDecimation(n int) Option {
	return func(cfg *config) {
		cfg.dec = n
	}
}

// Generator sends generator commands to an instrument.
type Generator struct {
	c   *scpi.Client
	msg *log.Logger
	cfg config
}

// New creates a generator driving the instrument behind c.
// An invalid option is reported by every subsequent operation.
func New(c *scpi.Client, opts ...Option) *Generator {
	cfg := config{
		msg:   log.New(os.Stdout, "gen: ", 0),
		chunk: MaxChunk,
		dec:   1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Generator{c: c, msg: cfg.msg, cfg: cfg}
}

// Reset resets the generator state.
func (g *Generator) Reset(ctx context.Context) error {
	if g.cfg.err != nil {
		return g.cfg.err
	}
	err := g.c.Tx(ctx, "GEN:RST")
	if err != nil {
		return fmt.Errorf("gen: could not reset generator: %w", err)
	}
	return nil
}

// MemoryRegion returns the memory region available for DMA generation.
func (g *Generator) MemoryRegion(ctx context.Context) (Region, error) {
	if g.cfg.err != nil {
		return Region{}, g.cfg.err
	}
	start, err := g.c.QueryInt(ctx, "GEN:AXI:START?")
	if err != nil {
		return Region{}, fmt.Errorf("gen: could not query memory start: %w", err)
	}
	size, err := g.c.QueryInt(ctx, "GEN:AXI:SIZE?")
	if err != nil {
		return Region{}, fmt.Errorf("gen: could not query memory size: %w", err)
	}
	if start < 0 || size < 0 {
		return Region{}, fmt.Errorf("gen: invalid memory region (start=%d, size=%d)", start, size)
	}
	return Region{Start: uint64(start), Size: uint64(size)}, nil
}

// Reserve reserves the [start, end) memory range for channel ch.
func (g *Generator) Reserve(ctx context.Context, ch Channel, start, end uint64) error {
	if err := g.check(ch); err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("gen: invalid memory range [0x%x, 0x%x)", start, end)
	}
	err := g.c.Txf(ctx, "SOUR%d:AXI:RESERVE %d,%d", ch, start, end)
	if err != nil {
		return fmt.Errorf("gen: could not reserve memory for channel %d: %w", ch, err)
	}
	g.msg.Printf("CH%d: reserved %s at 0x%x", ch, humanize.IBytes(end-start), start)
	return nil
}

// SetDecimation sets the decimation factor of channel ch.
func (g *Generator) SetDecimation(ctx context.Context, ch Channel, n int) error {
	if err := g.check(ch); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("gen: invalid decimation %d", n)
	}
	err := g.c.Txf(ctx, "SOUR%d:AXI:DEC %d", ch, n)
	if err != nil {
		return fmt.Errorf("gen: could not set decimation of channel %d: %w", ch, err)
	}
	return nil
}

// Enable switches the AXI mode of channel ch.
func (g *Generator) Enable(ctx context.Context, ch Channel, on bool) error {
	if err := g.check(ch); err != nil {
		return err
	}
	err := g.c.Txf(ctx, "SOUR%d:AXI:ENable %s", ch, onOff(on))
	if err != nil {
		return fmt.Errorf("gen: could not switch AXI mode of channel %d: %w", ch, err)
	}
	return nil
}

// WriteWaveform streams samples into the reserved memory of channel ch,
// in contiguous chunks of at most the configured chunk size.
func (g *Generator) WriteWaveform(ctx context.Context, ch Channel, samples []float32) error {
	if err := g.check(ch); err != nil {
		return err
	}
	for _, c := range Chunks(len(samples), g.cfg.chunk) {
		err := g.c.Tx(ctx, FormatChunk(int(ch), c, samples[c.Offset:c.Offset+c.Len]))
		if err != nil {
			return fmt.Errorf("gen: could not write chunk [%d, %d) of channel %d: %w",
				c.Offset, c.Offset+c.Len, ch, err,
			)
		}
	}
	g.msg.Printf("CH%d: wrote %d samples", ch, len(samples))
	return nil
}

// SetBurst switches channel ch to burst mode.
func (g *Generator) SetBurst(ctx context.Context, ch Channel, b Burst) error {
	if err := g.check(ch); err != nil {
		return err
	}

	cmds := []string{fmt.Sprintf("SOUR%d:BURS:STAT BURST", ch)}
	if b.Cycles > 0 {
		cmds = append(cmds, fmt.Sprintf("SOUR%d:BURS:NCYC %d", ch, b.Cycles))
	}
	if b.Reps > 0 {
		cmds = append(cmds, fmt.Sprintf("SOUR%d:BURS:NOR %d", ch, b.Reps))
	}
	if b.Period > 0 {
		cmds = append(cmds, fmt.Sprintf("SOUR%d:BURS:INT:PER %d", ch, b.Period))
	}
	for _, cmd := range cmds {
		err := g.c.Tx(ctx, cmd)
		if err != nil {
			return fmt.Errorf("gen: could not configure burst of channel %d: %w", ch, err)
		}
	}
	return nil
}

// SetContinuous switches channel ch to continuous mode.
func (g *Generator) SetContinuous(ctx context.Context, ch Channel) error {
	if err := g.check(ch); err != nil {
		return err
	}
	err := g.c.Txf(ctx, "SOUR%d:BURS:STAT CONTINUOUS", ch)
	if err != nil {
		return fmt.Errorf("gen: could not switch channel %d to continuous mode: %w", ch, err)
	}
	return nil
}

// Calibrate applies the origin amplitude and offset calibration to channel ch.
func (g *Generator) Calibrate(ctx context.Context, ch Channel) error {
	if err := g.check(ch); err != nil {
		return err
	}
	err := g.c.Txf(ctx, "SOUR%d:AXI:SET:CALIB", ch)
	if err != nil {
		return fmt.Errorf("gen: could not calibrate channel %d: %w", ch, err)
	}
	return nil
}

// Output switches the output of channel ch.
func (g *Generator) Output(ctx context.Context, ch Channel, on bool) error {
	if err := g.check(ch); err != nil {
		return err
	}
	err := g.c.Txf(ctx, "OUTPUT%d:STATE %s", ch, onOff(on))
	if err != nil {
		return fmt.Errorf("gen: could not switch output of channel %d: %w", ch, err)
	}
	return nil
}

// Trigger issues an internal trigger on channel ch.
func (g *Generator) Trigger(ctx context.Context, ch Channel) error {
	if err := g.check(ch); err != nil {
		return err
	}
	err := g.c.Txf(ctx, "SOUR%d:TRIG:INT", ch)
	if err != nil {
		return fmt.Errorf("gen: could not trigger channel %d: %w", ch, err)
	}
	return nil
}

// Release releases the reserved memory of channel ch.
func (g *Generator) Release(ctx context.Context, ch Channel) error {
	if err := g.check(ch); err != nil {
		return err
	}
	err := g.c.Txf(ctx, "SOUR%d:AXI:RELEASE", ch)
	if err != nil {
		return fmt.Errorf("gen: could not release memory of channel %d: %w", ch, err)
	}
	return nil
}

// RunBurst runs the full burst sequence for wave on channel ch: reserve
// memory, upload the waveform, configure the burst, enable the output,
// trigger and release.
func (g *Generator) RunBurst(ctx context.Context, ch Channel, wave []float32, b Burst) error {
	seq := g.sequence(ctx, ch, wave)
	seq.do(func() error { return g.SetBurst(ctx, ch, b) })
	seq.do(func() error { return g.Calibrate(ctx, ch) })
	seq.do(func() error { return g.Output(ctx, ch, true) })
	seq.do(func() error { return g.Trigger(ctx, ch) })
	seq.do(func() error { return g.Release(ctx, ch) })
	seq.do(func() error { return g.checkError(ctx) })
	return seq.err
}

// RunContinuous plays wave continuously on channel ch.
func (g *Generator) RunContinuous(ctx context.Context, ch Channel, wave []float32) error {
	seq := g.sequence(ctx, ch, wave)
	seq.do(func() error { return g.SetContinuous(ctx, ch) })
	seq.do(func() error { return g.Calibrate(ctx, ch) })
	seq.do(func() error { return g.Output(ctx, ch, true) })
	seq.do(func() error { return g.Trigger(ctx, ch) })
	seq.do(func() error { return g.checkError(ctx) })
	return seq.err
}

// checkError reads the instrument error queue once the fire-and-forget
// commands of a sequence have been sent.
func (g *Generator) checkError(ctx context.Context) error {
	err := g.c.CheckError(ctx)
	if err != nil {
		return fmt.Errorf("gen: instrument rejected generation: %w", err)
	}
	return nil
}

// sequence runs the common prelude of a DMA generation: reset, reserve
// and upload.
func (g *Generator) sequence(ctx context.Context, ch Channel, wave []float32) *sequence {
	seq := new(sequence)
	if len(wave) == 0 {
		seq.err = fmt.Errorf("gen: empty waveform")
		return seq
	}

	var reg Region
	seq.do(func() error { return g.Reset(ctx) })
	seq.do(func() error {
		var err error
		reg, err = g.MemoryRegion(ctx)
		if err != nil {
			return err
		}
		if n := SamplesFor(reg, len(wave)); n < len(wave) {
			return fmt.Errorf("%w: %d samples requested, %d available", ErrRegionTooSmall, len(wave), n)
		}
		return nil
	})
	seq.do(func() error {
		return g.Reserve(ctx, ch, reg.Start, reg.Start+2*uint64(len(wave)))
	})
	seq.do(func() error { return g.SetDecimation(ctx, ch, g.cfg.dec) })
	seq.do(func() error { return g.Enable(ctx, ch, true) })
	seq.do(func() error { return g.WriteWaveform(ctx, ch, wave) })
	return seq
}

// sequence runs steps until the first failure.
type sequence struct {
	err error
}

func (seq *sequence) do(f func() error) {
	if seq.err != nil {
		return
	}
	seq.err = f()
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
