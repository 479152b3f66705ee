// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scpi implements a client for the line-oriented SCPI text protocol
// served by the instrument on TCP port 5000.
//
// Every command is a single line terminated by "\r\n".
// Queries (commands ending with '?') are answered with a single line.
package scpi // import "github.com/go-lpc/redpitaya/scpi"

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPort is the TCP port of the instrument SCPI server.
	DefaultPort = "5000"

	delim = "\r\n"
)

// ErrReply is returned when the instrument answers a query with its
// generic "ERR!" reply.
var ErrReply = errors.New("scpi: instrument replied ERR!")

// InstrumentError is an entry of the instrument error queue.
type InstrumentError struct {
	Code int
	Msg  string
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("scpi: instrument error %d: %q", e.Code, e.Msg)
}

type config struct {
	timeout time.Duration
	msg     *log.Logger
	trace   bool
}

func newConfig() config {
	return config{
		timeout: 5 * time.Second,
		msg:     log.New(os.Stdout, "scpi: ", 0),
	}
}

// Option configures a Client.
type Option func(*config)

// WithTimeout sets the deadline applied to an exchange when the
// provided context has none.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithLogger sets the logger used for tracing.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithTrace enables logging of every line sent and received.
func WithTrace(v bool) Option {
	return func(cfg *config) {
		cfg.trace = v
	}
}

// Client sends SCPI commands to an instrument.
// Client is safe for concurrent use: queries are atomic.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	cfg  config
}

// Dial connects to the SCPI server at addr.
// The default port is used when addr has none.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("scpi: could not dial %q: %w", addr, err)
	}

	return NewClient(conn, opts...), nil
}

// NewClient creates a client from an already established connection.
func NewClient(conn net.Conn, opts ...Option) *Client {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		cfg:  cfg,
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the address of the instrument.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Tx sends a command to the instrument.
func (c *Client) Tx(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exchange(ctx, func() error { return c.tx(cmd) })
}

// Txf formats and sends a command to the instrument.
func (c *Client) Txf(ctx context.Context, format string, args ...interface{}) error {
	return c.Tx(ctx, fmt.Sprintf(format, args...))
}

// Rx receives one reply line from the instrument.
func (c *Client) Rx(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var reply string
	err := c.exchange(ctx, func() error {
		var err error
		reply, err = c.rx()
		return err
	})
	return reply, err
}

// Query sends a command and waits for its reply.
func (c *Client) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var reply string
	err := c.exchange(ctx, func() error {
		err := c.tx(cmd)
		if err != nil {
			return err
		}
		reply, err = c.rx()
		if err != nil {
			return fmt.Errorf("scpi: could not read reply to %q: %w", cmd, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if reply == "ERR!" {
		return "", fmt.Errorf("scpi: query %q failed: %w", cmd, ErrReply)
	}
	return reply, nil
}

// QueryInt sends a query and decodes its reply as a decimal integer.
func (c *Client) QueryInt(ctx context.Context, cmd string) (int64, error) {
	reply, err := c.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(reply, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("scpi: could not decode integer reply to %q: %w", cmd, err)
	}
	return v, nil
}

// QueryFloat sends a query and decodes its reply as a float.
func (c *Client) QueryFloat(ctx context.Context, cmd string) (float64, error) {
	reply, err := c.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("scpi: could not decode float reply to %q: %w", cmd, err)
	}
	return v, nil
}

// QueryBool sends a query and decodes its reply as a boolean.
// "1" and "ON" are true, "0" and "OFF" are false.
func (c *Client) QueryBool(ctx context.Context, cmd string) (bool, error) {
	reply, err := c.Query(ctx, cmd)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(reply) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("scpi: could not decode boolean reply to %q (got=%q)", cmd, reply)
	}
}

// QueryFloats sends a query and decodes its reply as a list of floats,
// formatted as "{v1,v2,...}".
func (c *Client) QueryFloats(ctx context.Context, cmd string) ([]float64, error) {
	reply, err := c.Query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	vs, err := ParseFloats(reply)
	if err != nil {
		return nil, fmt.Errorf("scpi: could not decode reply to %q: %w", cmd, err)
	}
	return vs, nil
}

// CheckError pops the instrument error queue.
// CheckError returns nil when the queue is empty.
func (c *Client) CheckError(ctx context.Context) error {
	reply, err := c.Query(ctx, "SYST:ERR?")
	if err != nil {
		return err
	}
	ierr, err := parseError(reply)
	if err != nil {
		return err
	}
	if ierr.Code == 0 {
		return nil
	}
	return ierr
}

// ParseFloats decodes a "{v1,v2,...}" list of floats.
// Braces are optional.
func ParseFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil, nil
	}
	toks := strings.Split(s, ",")
	vs := make([]float64, len(toks))
	for i, tok := range toks {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, fmt.Errorf("scpi: invalid value #%d %q: %w", i, tok, err)
		}
		vs[i] = v
	}
	return vs, nil
}

func parseError(reply string) (*InstrumentError, error) {
	i := strings.Index(reply, ",")
	if i < 0 {
		return nil, fmt.Errorf("scpi: invalid error-queue reply %q", reply)
	}
	code, err := strconv.Atoi(strings.TrimSpace(reply[:i]))
	if err != nil {
		return nil, fmt.Errorf("scpi: invalid error-queue code in %q: %w", reply, err)
	}
	msg := strings.TrimSpace(reply[i+1:])
	if v, err := strconv.Unquote(msg); err == nil {
		msg = v
	}
	return &InstrumentError{Code: code, Msg: msg}, nil
}

// exchange runs f with the connection deadline derived from ctx.
// The deadline is reset when the context is canceled so blocked reads
// and writes return early.
func (c *Client) exchange(ctx context.Context, f func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scpi: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.cfg.timeout > 0 {
		deadline = time.Now().Add(c.cfg.timeout)
	}
	err := c.conn.SetDeadline(deadline)
	if err != nil {
		return fmt.Errorf("scpi: could not set deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	err = f()
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("scpi: %w", cerr)
	}
	if d, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(d) {
		return fmt.Errorf("scpi: %w", context.DeadlineExceeded)
	}
	return err
}

func (c *Client) tx(cmd string) error {
	if c.cfg.trace {
		c.cfg.msg.Printf(">>> %s", abbrev(cmd))
	}
	_, err := io.WriteString(c.conn, cmd+delim)
	if err != nil {
		return fmt.Errorf("scpi: could not send %q: %w", abbrev(cmd), err)
	}
	return nil
}

func (c *Client) rx() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("scpi: could not receive reply: %w", err)
	}
	line = strings.TrimRight(line, delim)
	if c.cfg.trace {
		c.cfg.msg.Printf("<<< %s", abbrev(line))
	}
	return line, nil
}

// abbrev shortens long data lines for logs and error messages.
func abbrev(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("...(%d bytes)", len(s))
}
