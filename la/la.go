// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package la implements the logic analyzer of the instrument: capture of
// the 8 digital lines (optionally run-length encoded) and protocol
// decoding of the captured samples.
//
// Samples are one byte each, bit k holding the level of line k+1.
package la // import "github.com/go-lpc/redpitaya/la"

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-lpc/redpitaya/internal/mmap"
)

// ErrUnknownDecoder is returned when no decoder was registered under a name.
var ErrUnknownDecoder = errors.New("la: unknown decoder")

// DecoderType identifies a protocol decoder.
type DecoderType int

const (
	UART DecoderType = iota
	SPI
	I2C
	CAN
)

func (typ DecoderType) String() string {
	switch typ {
	case UART:
		return "UART"
	case SPI:
		return "SPI"
	case I2C:
		return "I2C"
	case CAN:
		return "CAN"
	}
	return fmt.Sprintf("DecoderType(%d)", int(typ))
}

// ParseDecoderType returns the decoder type named s.
func ParseDecoderType(s string) (DecoderType, error) {
	for _, typ := range []DecoderType{UART, SPI, I2C, CAN} {
		if typ.String() == s {
			return typ, nil
		}
	}
	return 0, fmt.Errorf("la: unknown decoder type %q", s)
}

// Packet is a decoded protocol element.
// SampleStart and Length are expressed in samples.
type Packet struct {
	LineName    string
	Control     uint8
	Data        uint32
	Length      float64
	SampleStart float64
}

type decoder interface {
	settings() interface{}
	validate() error
	decode(samples []byte) []Packet
}

func newDecoder(typ DecoderType) (decoder, error) {
	switch typ {
	case UART:
		return newUARTDecoder(), nil
	case SPI:
		return newSPIDecoder(), nil
	case I2C:
		return newI2CDecoder(), nil
	case CAN:
		return newCANDecoder(), nil
	}
	return nil, fmt.Errorf("la: unknown decoder type %d", int(typ))
}

type entry struct {
	typ  DecoderType
	dec  decoder
	pkts []Packet
}

// Controller holds captured data, capture settings and a set of named
// protocol decoders.
type Controller struct {
	msg *log.Logger

	mu      sync.RWMutex
	raw     *mmap.Handle // captured bytes, RLE encoded if rle is set
	samples []byte       // unpacked samples
	rle     bool
	trigger int // index of the trigger sample

	decs map[string]*entry

	req Request
	cb  Callback
	run *run
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(msg *log.Logger) Option {
	return func(c *Controller) {
		c.msg = msg
	}
}

// NewController creates a new logic analyzer controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		msg:  log.New(os.Stdout, "la: ", 0),
		raw:  mmap.HandleFrom(nil),
		decs: make(map[string]*entry),
		req: Request{
			Decimation: 1,
			Line:       -1,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadFromFile loads captured data from the named file.
// trigger is the index of the trigger sample.
//
// The file stays mapped until another capture replaces it.
func (c *Controller) LoadFromFile(fname string, rle bool, trigger int) error {
	h, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("la: could not open capture file: %w", err)
	}

	err = c.setData(h, rle, trigger)
	if err != nil {
		_ = h.Close()
		return fmt.Errorf("la: could not load %q: %w", fname, err)
	}
	c.msg.Printf("loaded %q: %s, %d samples", fname, humanize.IBytes(uint64(h.Len())), c.CapturedSamples())
	return nil
}

// setData replaces the captured data with raw, releasing the previous capture.
func (c *Controller) setData(raw *mmap.Handle, rle bool, trigger int) error {
	var (
		samples []byte
		err     error
	)
	switch {
	case rle:
		samples, err = unpack(raw)
		if err != nil {
			return err
		}
	default:
		samples = raw.Bytes()
	}
	if trigger < 0 || (trigger > 0 && trigger >= len(samples)) {
		return fmt.Errorf("la: trigger sample %d out of range [0, %d)", trigger, len(samples))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.raw
	c.raw = raw
	c.samples = samples
	c.rle = rle
	c.trigger = trigger
	if old != raw {
		_ = old.Close()
	}
	return nil
}

// SaveCaptureDataToFile writes the captured bytes, as captured, to the named file.
func (c *Controller) SaveCaptureDataToFile(fname string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("la: could not save capture data: %w", err)
	}
	defer f.Close()

	_, err = io.Copy(f, io.NewSectionReader(c.raw, 0, int64(c.raw.Len())))
	if err != nil {
		return fmt.Errorf("la: could not save capture data: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("la: could not save capture data: %w", err)
	}
	return nil
}

// CapturedDataSize returns the number of captured bytes.
func (c *Controller) CapturedDataSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raw.Len()
}

// CapturedSamples returns the number of captured samples.
func (c *Controller) CapturedSamples() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.samples)
}

// Trigger returns the index of the trigger sample.
func (c *Controller) Trigger() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trigger
}

// Data returns a copy of the captured bytes.
func (c *Controller) Data() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]byte, c.raw.Len())
	if len(out) > 0 {
		_, _ = c.raw.ReadAt(out, 0)
	}
	return out
}

// UnpackedData returns a copy of the unpacked samples.
func (c *Controller) UnpackedData() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]byte(nil), c.samples...)
}

// AddDecoder registers a new decoder under the provided name,
// with default settings.
func (c *Controller) AddDecoder(name string, typ DecoderType) error {
	dec, err := newDecoder(typ)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.decs[name]; dup {
		return fmt.Errorf("la: decoder %q already exists", name)
	}
	c.decs[name] = &entry{typ: typ, dec: dec}
	return nil
}

// RemoveDecoder removes the named decoder.
func (c *Controller) RemoveDecoder(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.decs[name]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownDecoder, name)
	}
	delete(c.decs, name)
	return nil
}

// Decoders returns the sorted list of registered decoder names.
func (c *Controller) Decoders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.decs))
	for name := range c.decs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecoderType returns the type of the named decoder.
func (c *Controller) DecoderType(name string) (DecoderType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.decs[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownDecoder, name)
	}
	return e.typ, nil
}

// Decode runs the named decoder over the captured samples.
func (c *Controller) Decode(name string) ([]Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.decs[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDecoder, name)
	}
	err := e.dec.validate()
	if err != nil {
		return nil, fmt.Errorf("la: invalid %v settings for %q: %w", e.typ, name, err)
	}
	e.pkts = e.dec.decode(c.samples)
	return e.pkts, nil
}

// DecodedData returns the packets of the last Decode run of the named decoder.
func (c *Controller) DecodedData(name string) []Packet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.decs[name]
	if !ok {
		return nil
	}
	return e.pkts
}
