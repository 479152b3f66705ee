// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/redpitaya/internal/mmap"
)

// Edge is a trigger condition on a logic line.
type Edge int

const (
	Rising Edge = iota
	Falling
	RisingOrFalling
	High
	Low
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "RISING"
	case Falling:
		return "FALLING"
	case RisingOrFalling:
		return "RISING_OR_FALLING"
	case High:
		return "HIGH"
	case Low:
		return "LOW"
	}
	return fmt.Sprintf("Edge(%d)", int(e))
}

// ParseEdge returns the trigger condition named s.
func ParseEdge(s string) (Edge, error) {
	for e := Rising; e <= Low; e++ {
		if e.String() == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("la: unknown trigger edge %q", s)
}

// Request describes a capture.
type Request struct {
	RLE        bool // run-length encode the captured samples
	Decimation int
	Line       int // trigger line index (0..7), -1 for no trigger
	Edge       Edge
	Pre        int // number of samples before the trigger
	Post       int // number of samples after the trigger, 0 for all
}

func (req Request) validate() error {
	switch {
	case req.Decimation < 1:
		return fmt.Errorf("la: invalid decimation %d", req.Decimation)
	case req.Line < -1 || req.Line > 7:
		return fmt.Errorf("la: invalid trigger line %d", req.Line)
	case req.Edge < Rising || req.Edge > Low:
		return fmt.Errorf("la: invalid trigger edge %d", int(req.Edge))
	case req.Pre < 0 || req.Post < 0:
		return fmt.Errorf("la: invalid trigger window [-%d, %d]", req.Pre, req.Post)
	}
	return nil
}

// Source captures logic samples.
// Capture returns the captured bytes (RLE encoded if requested) and the
// index of the trigger sample.
type Source interface {
	Capture(ctx context.Context, req Request) (raw []byte, trigger int, err error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context, req Request) ([]byte, int, error)

func (f SourceFunc) Capture(ctx context.Context, req Request) ([]byte, int, error) {
	return f(ctx, req)
}

// Callback is notified of the progress of an asynchronous capture.
type Callback interface {
	CaptureStatus(c *Controller, timeout bool, bytes, samples, pre, post int)
	DecodeDone(c *Controller, name string)
}

type run struct {
	done chan struct{}
	err  error
}

func (c *Controller) SetEnableRLE(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req.RLE = v
}

func (c *Controller) SetDecimation(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req.Decimation = n
}

// SetTrigger sets the trigger line index (0..7) and condition.
// A negative line disables the trigger.
func (c *Controller) SetTrigger(line int, edge Edge) {
	if line < 0 {
		line = -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req.Line = line
	c.req.Edge = edge
}

func (c *Controller) SetPreTriggerSamples(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req.Pre = n
}

func (c *Controller) SetPostTriggerSamples(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req.Post = n
}

// SetDelegate sets the callback notified during asynchronous captures.
func (c *Controller) SetDelegate(cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

// RunAsync starts a capture from src in a new goroutine.
// Once captured, the data is unpacked and every registered decoder is run.
func (c *Controller) RunAsync(ctx context.Context, src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		select {
		case <-c.run.done:
		default:
			return errors.New("la: capture already running")
		}
	}

	req := c.req
	err := req.validate()
	if err != nil {
		return err
	}

	r := &run{done: make(chan struct{})}
	c.run = r
	go c.acquire(ctx, src, req, c.cb, r)
	return nil
}

func (c *Controller) acquire(ctx context.Context, src Source, req Request, cb Callback, r *run) {
	defer close(r.done)

	raw, trig, err := src.Capture(ctx, req)
	if err != nil {
		r.err = fmt.Errorf("la: could not capture: %w", err)
		if !errors.Is(err, context.DeadlineExceeded) {
			c.msg.Printf("%+v", r.err)
			return
		}
		_ = c.setData(mmap.HandleFrom(nil), req.RLE, 0)
		if cb != nil {
			cb.CaptureStatus(c, true, 0, 0, 0, 0)
		}
		return
	}

	err = c.setData(mmap.HandleFrom(raw), req.RLE, trig)
	if err != nil {
		r.err = fmt.Errorf("la: invalid captured data: %w", err)
		c.msg.Printf("%+v", r.err)
		return
	}

	n := c.CapturedSamples()
	if cb != nil {
		cb.CaptureStatus(c, false, len(raw), n, trig, n-trig)
	}

	for _, name := range c.Decoders() {
		_, err := c.Decode(name)
		if err != nil {
			c.msg.Printf("could not decode %q: %+v", name, err)
			if r.err == nil {
				r.err = err
			}
			continue
		}
		if cb != nil {
			cb.DecodeDone(c, name)
		}
	}
}

// Wait waits for the current capture to complete.
// Wait returns true if the timeout expired first.
// A non-positive timeout waits forever.
func (c *Controller) Wait(timeout time.Duration) bool {
	c.mu.RLock()
	r := c.run
	c.mu.RUnlock()
	if r == nil {
		return false
	}

	if timeout <= 0 {
		<-r.done
		return false
	}

	tck := time.NewTimer(timeout)
	defer tck.Stop()
	select {
	case <-r.done:
		return false
	case <-tck.C:
		return true
	}
}

// Err returns the error of the last completed capture.
func (c *Controller) Err() error {
	c.mu.RLock()
	r := c.run
	c.mu.RUnlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

type bufferSource struct {
	samples []byte
}

// NewBufferSource returns a Source capturing from a buffer of samples.
// The trigger is applied in software; without a matching trigger
// condition, Capture blocks until the context is done.
func NewBufferSource(samples []byte) Source {
	return &bufferSource{samples: samples}
}

func (src *bufferSource) Capture(ctx context.Context, req Request) ([]byte, int, error) {
	err := ctx.Err()
	if err != nil {
		return nil, 0, err
	}

	data := src.samples
	if req.Decimation > 1 {
		data = make([]byte, 0, len(src.samples)/req.Decimation+1)
		for i := 0; i < len(src.samples); i += req.Decimation {
			data = append(data, src.samples[i])
		}
	}

	trig := 0
	if req.Line >= 0 {
		trig = findTrigger(data, req.Line, req.Edge)
		if trig < 0 {
			<-ctx.Done()
			return nil, 0, ctx.Err()
		}
	}

	beg := trig - req.Pre
	if beg < 0 || req.Line < 0 {
		beg = 0
	}
	end := len(data)
	if req.Post > 0 && trig+req.Post < end {
		end = trig + req.Post
	}

	win := data[beg:end]
	if req.RLE {
		return Pack(win), trig - beg, nil
	}
	return append([]byte(nil), win...), trig - beg, nil
}

func findTrigger(data []byte, line int, edge Edge) int {
	mask := byte(1) << line
	for i := range data {
		cur := data[i]&mask != 0
		switch edge {
		case High:
			if cur {
				return i
			}
			continue
		case Low:
			if !cur {
				return i
			}
			continue
		}
		if i == 0 {
			continue
		}
		prev := data[i-1]&mask != 0
		switch {
		case !prev && cur && (edge == Rising || edge == RisingOrFalling):
			return i
		case prev && !cur && (edge == Falling || edge == RisingOrFalling):
			return i
		}
	}
	return -1
}
