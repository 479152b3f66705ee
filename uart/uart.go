// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uart implements a reliable block transfer protocol on top of a
// raw serial line.
//
// A message is split into blocks of at most 8 bytes. Each block is
// preceded by a header byte:
//
//	bits 7-4: CRC-4 of the block
//	bit    3: set on the first block of a message
//	bits 2-0: block length - 1
//
// The receiver validates the header against the received block and
// echoes it back as an acknowledgement.
package uart // import "github.com/go-lpc/redpitaya/uart"

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/redpitaya/internal/crc4"
	"golang.org/x/xerrors"
)

// BlockSize is the maximum number of payload bytes per block.
const BlockSize = 8

const (
	firstFlag = 0x08
	sizeMask  = 0x07
)

var (
	// ErrCRC is returned when a block does not match its header.
	ErrCRC = errors.New("uart: block does not match its header")

	// ErrBlockOrder is returned when the first-block flag of a header
	// is unexpected.
	ErrBlockOrder = errors.New("uart: invalid block order")

	// ErrBlockSize is returned when a block is larger than expected.
	ErrBlockSize = errors.New("uart: invalid block size")

	// ErrAck is returned when the acknowledgement of a block does not
	// echo its header.
	ErrAck = errors.New("uart: invalid acknowledgement")

	// ErrTimeout is returned when no data arrived within the configured
	// timeout.
	ErrTimeout = errors.New("uart: timeout")
)

type config struct {
	msg     *log.Logger
	timeout time.Duration
}

// Option configures a Protocol.
type Option func(*config)

// WithTimeout sets the maximum time spent waiting for incoming bytes.
// A zero timeout waits until the context is done.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// Protocol transfers framed messages over a serial line.
//
// Reads that fail with an error wrapping os.ErrDeadlineExceeded are
// treated as "no data yet" and retried until the timeout expires.
type Protocol struct {
	rw  io.ReadWriter
	msg *log.Logger
	cfg config

	ctx context.Context
	beg time.Time
	err error
	buf [1]byte
}

// New creates a protocol transferring messages over rw.
func New(rw io.ReadWriter, opts ...Option) *Protocol {
	cfg := config{
		msg: log.New(os.Stdout, "uart: ", 0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Protocol{rw: rw, msg: cfg.msg, cfg: cfg}
}

// Header returns the header byte of a block.
func Header(block []byte, first bool) (byte, error) {
	switch n := len(block); {
	case n == 0:
		return 0, xerrors.Errorf("uart: empty block: %w", ErrBlockSize)
	case n > BlockSize:
		return 0, xerrors.Errorf("uart: block of %d bytes larger than %d: %w", n, BlockSize, ErrBlockSize)
	}
	hdr := crc4.Checksum(block)<<4 | byte(len(block)-1)&sizeMask
	if first {
		hdr |= firstFlag
	}
	return hdr, nil
}

// Write sends msg block by block, waiting for the acknowledgement of each
// block. Write returns the number of acknowledged bytes.
func (p *Protocol) Write(ctx context.Context, msg []byte) (int, error) {
	p.reset(ctx)

	pos := 0
	for first := true; pos < len(msg); first = false {
		end := pos + BlockSize
		if end > len(msg) {
			end = len(msg)
		}
		block := msg[pos:end]

		hdr, err := Header(block, first)
		if err != nil {
			return pos, err
		}
		p.writeU8(hdr)
		p.write(block)
		ack := p.readU8()
		if p.err != nil {
			return pos, xerrors.Errorf("uart: could not send block [%d, %d): %w", pos, end, p.err)
		}
		if ack != hdr {
			return pos, xerrors.Errorf(
				"uart: block [%d, %d) acknowledged with 0x%02x (header=0x%02x): %w",
				pos, end, ack, hdr, ErrAck,
			)
		}
		pos = end
	}
	return pos, nil
}

// Read receives exactly len(buf) bytes, block by block, acknowledging each
// valid block.
func (p *Protocol) Read(ctx context.Context, buf []byte) (int, error) {
	p.reset(ctx)

	pos := 0
	for first := true; pos < len(buf); first = false {
		want := len(buf) - pos
		if want > BlockSize {
			want = BlockSize
		}

		hdr := p.readU8()
		if p.err != nil {
			return pos, xerrors.Errorf("uart: could not read block header: %w", p.err)
		}
		if first != (hdr&firstFlag != 0) {
			p.flush()
			return pos, xerrors.Errorf("uart: header 0x%02x (first=%v): %w", hdr, first, ErrBlockOrder)
		}
		n := int(hdr&sizeMask) + 1
		if n > want {
			return pos, xerrors.Errorf("uart: block of %d bytes larger than %d: %w", n, want, ErrBlockSize)
		}

		block := buf[pos : pos+n]
		p.read(block)
		if p.err != nil {
			return pos, xerrors.Errorf("uart: could not read block of %d bytes: %w", n, p.err)
		}

		got, err := Header(block, first)
		if err != nil {
			return pos, err
		}
		if got != hdr {
			return pos, xerrors.Errorf("uart: header 0x%02x, computed 0x%02x: %w", hdr, got, ErrCRC)
		}

		p.writeU8(hdr)
		if p.err != nil {
			return pos, xerrors.Errorf("uart: could not acknowledge block: %w", p.err)
		}
		pos += n
	}
	return pos, nil
}

func (p *Protocol) reset(ctx context.Context) {
	p.ctx = ctx
	p.beg = time.Now()
	p.err = nil
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

type flusher interface {
	Flush() error
}

func (p *Protocol) flush() {
	f, ok := p.rw.(flusher)
	if !ok {
		return
	}
	err := f.Flush()
	if err != nil {
		p.msg.Printf("could not flush input: %+v", err)
	}
}

func (p *Protocol) deadline() time.Time {
	var dl time.Time
	if p.cfg.timeout > 0 {
		dl = p.beg.Add(p.cfg.timeout)
	}
	if d, ok := p.ctx.Deadline(); ok && (dl.IsZero() || d.Before(dl)) {
		dl = d
	}
	return dl
}

func (p *Protocol) read(buf []byte) {
	if p.err != nil {
		return
	}

	if d, ok := p.rw.(deadliner); ok {
		err := d.SetReadDeadline(p.deadline())
		if err != nil {
			p.err = err
			return
		}
		stop := context.AfterFunc(p.ctx, func() {
			_ = d.SetReadDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	for n := 0; n < len(buf); {
		if err := p.ctx.Err(); err != nil {
			p.err = err
			return
		}
		m, err := p.rw.Read(buf[n:])
		n += m
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			if cerr := p.ctx.Err(); cerr != nil {
				p.err = cerr
				return
			}
			now := time.Now()
			if d, ok := p.ctx.Deadline(); ok && !now.Before(d) {
				p.err = context.DeadlineExceeded
				return
			}
			if p.cfg.timeout > 0 && now.Sub(p.beg) >= p.cfg.timeout {
				p.err = ErrTimeout
				return
			}
		default:
			p.err = err
			return
		}
	}
}

func (p *Protocol) readU8() uint8 {
	p.read(p.buf[:1])
	return p.buf[0]
}

func (p *Protocol) write(buf []byte) {
	if p.err != nil {
		return
	}
	_, p.err = p.rw.Write(buf)
}

func (p *Protocol) writeU8(v uint8) {
	p.buf[0] = v
	p.write(p.buf[:1])
}
