// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim provides an in-process emulation of the instrument SCPI
// server.
//
// The simulator implements the commands used by the gen, acq, dio and arb
// packages with an emulated instrument state.
package sim // import "github.com/go-lpc/redpitaya/sim"

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxChunk is the largest number of samples accepted in a single
	// AXI data message.
	MaxChunk = 16384

	// BufferSize is the default number of samples of an acquisition buffer.
	BufferSize = 16384

	defaultAXIStart = 0x1000000
	defaultAXISize  = 0x200000
)

type config struct {
	msg      *log.Logger
	axiStart uint64
	axiSize  uint64
	maxChunk int
	acqSize  int
	latency  int
}

func newConfig() config {
	return config{
		msg:      log.New(os.Stdout, "rp-sim: ", 0),
		axiStart: defaultAXIStart,
		axiSize:  defaultAXISize,
		maxChunk: MaxChunk,
		acqSize:  BufferSize,
	}
}

// Option configures the simulator.
type Option func(*config)

// WithLogger sets the simulator logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithMemory sets the reserved AXI memory region.
func WithMemory(start, size uint64) Option {
	return func(cfg *config) {
		cfg.axiStart = start
		cfg.axiSize = size
	}
}

// WithMaxChunk sets the largest accepted AXI data message, in samples.
func WithMaxChunk(n int) Option {
	return func(cfg *config) {
		cfg.maxChunk = n
	}
}

// WithAcqSize sets the number of samples of an acquisition buffer.
func WithAcqSize(n int) Option {
	return func(cfg *config) {
		cfg.acqSize = n
	}
}

// WithTriggerLatency sets the number of trigger-state polls answered
// with WAIT before an armed channel reports a trigger.
func WithTriggerLatency(n int) Option {
	return func(cfg *config) {
		cfg.latency = n
	}
}

// Server is a simulated instrument.
type Server struct {
	ctl net.Listener
	msg *log.Logger
	cfg config

	mu   sync.Mutex
	inst *instrument
	cmds []string

	grp  errgroup.Group
	once sync.Once

	cmu    sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// Serve runs a simulator listening on addr until an error occurs.
func Serve(addr string, opts ...Option) error {
	srv, err := New(addr, opts...)
	if err != nil {
		return fmt.Errorf("could not create simulator: %w", err)
	}
	return srv.Serve()
}

// New creates a new simulator listening on addr.
func New(addr string, opts ...Option) (*Server, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sim: could not listen on %q: %w", addr, err)
	}

	srv := &Server{
		ctl:   ctl,
		msg:   cfg.msg,
		cfg:   cfg,
		inst:  newInstrument(cfg),
		conns: make(map[net.Conn]struct{}),
	}
	return srv, nil
}

// Addr returns the address the simulator listens on.
func (srv *Server) Addr() string {
	return srv.ctl.Addr().String()
}

// Serve accepts connections and serves them concurrently.
// Serve returns nil once the simulator has been closed.
func (srv *Server) Serve() error {
	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return srv.grp.Wait()
			}
			return fmt.Errorf("sim: could not accept connection: %w", err)
		}

		if !srv.track(conn) {
			_ = conn.Close()
			continue
		}
		srv.grp.Go(func() error {
			defer srv.untrack(conn)
			srv.handle(conn)
			return nil
		})
	}
}

// Close stops the simulator and closes all client connections.
func (srv *Server) Close() error {
	var err error
	srv.once.Do(func() {
		err = srv.ctl.Close()

		srv.cmu.Lock()
		defer srv.cmu.Unlock()
		srv.closed = true
		for conn := range srv.conns {
			_ = conn.Close()
		}
	})
	return err
}

func (srv *Server) track(conn net.Conn) bool {
	srv.cmu.Lock()
	defer srv.cmu.Unlock()
	if srv.closed {
		return false
	}
	srv.conns[conn] = struct{}{}
	return true
}

func (srv *Server) untrack(conn net.Conn) {
	srv.cmu.Lock()
	defer srv.cmu.Unlock()
	delete(srv.conns, conn)
}

// Commands returns the list of commands received so far.
func (srv *Server) Commands() []string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]string, len(srv.cmds))
	copy(out, srv.cmds)
	return out
}

// Generator returns a snapshot of the state of a generator channel.
func (srv *Server) Generator(ch int) GenState {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	st := srv.inst.gen[ch-1]
	st.Waveform = append([]float32(nil), st.Waveform...)
	st.Arb = append([]float32(nil), st.Arb...)
	return st
}

// SetPin sets the level of a digital input pin.
func (srv *Server) SetPin(pin string, v bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.inst.pins[strings.ToUpper(pin)] = v
}

// Pin returns the level of a digital pin.
func (srv *Server) Pin(pin string) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.inst.pins[strings.ToUpper(pin)]
}

func (srv *Server) handle(conn net.Conn) {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	var (
		r = bufio.NewReader(conn)
		w = bufio.NewWriter(conn)
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				srv.msg.Printf("could not read command: %+v", err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		reply, ok := srv.dispatch(line)
		if !ok {
			continue
		}
		_, err = w.WriteString(reply + "\r\n")
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			srv.msg.Printf("could not send reply: %+v", err)
			return
		}
	}
}

// dispatch runs a command and returns its reply, if any.
func (srv *Server) dispatch(line string) (string, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.cmds = append(srv.cmds, line)

	hdr, args := split(line)
	query := strings.HasSuffix(hdr, "?")

	reply, err := srv.inst.exec(hdr, args)
	if err != nil {
		srv.msg.Printf("command %q failed: %+v", abbrev(line), err)
		srv.inst.push(err)
		if query {
			return "ERR!", true
		}
		return "", false
	}
	return reply, query
}

func split(line string) (hdr, args string) {
	line = strings.TrimSpace(line)
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:i]), strings.TrimSpace(line[i+1:])
}

func abbrev(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
