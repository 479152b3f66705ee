// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acq acquires buffers from the fast analog inputs of the
// instrument, either with a common trigger or with one trigger per
// channel (split trigger mode).
package acq // import "github.com/go-lpc/redpitaya/acq"

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-lpc/redpitaya/scpi"
	"golang.org/x/sync/errgroup"
)

// Channel is a fast analog input.
type Channel int

const (
	CH1 Channel = 1
	CH2 Channel = 2
	CH3 Channel = 3
	CH4 Channel = 4
)

func (ch Channel) valid() error {
	if ch < CH1 || ch > CH4 {
		return fmt.Errorf("acq: invalid channel %d", int(ch))
	}
	return nil
}

// Source is a trigger source.
type Source string

const (
	Disabled Source = "DISABLED"
	Now      Source = "NOW"
	CH1PE    Source = "CH1_PE"
	CH1NE    Source = "CH1_NE"
	CH2PE    Source = "CH2_PE"
	CH2NE    Source = "CH2_NE"
	CH3PE    Source = "CH3_PE"
	CH3NE    Source = "CH3_NE"
	CH4PE    Source = "CH4_PE"
	CH4NE    Source = "CH4_NE"
	ExtPE    Source = "EXT_PE"
	ExtNE    Source = "EXT_NE"
	AwgPE    Source = "AWG_PE"
	AwgNE    Source = "AWG_NE"
)

// Settings holds the acquisition settings of a channel.
type Settings struct {
	Decimation int
	Level      float64 // trigger level, in V
	Delay      int     // trigger delay, in samples
	Source     Source
}

func (s Settings) validate() error {
	if s.Decimation < 1 {
		return fmt.Errorf("acq: invalid decimation %d", s.Decimation)
	}
	if s.Source == "" {
		return fmt.Errorf("acq: missing trigger source")
	}
	return nil
}

type config struct {
	msg  *log.Logger
	poll time.Duration
}

// Option configures an Acquirer.
type Option func(*config)

// WithLogger sets the acquirer logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithPollInterval sets the interval between two trigger-state polls.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll = d
	}
}

// Acquirer acquires data from the instrument behind a SCPI client.
type Acquirer struct {
	c   *scpi.Client
	msg *log.Logger
	cfg config
}

// New creates a new acquirer.
func New(c *scpi.Client, opts ...Option) *Acquirer {
	cfg := config{
		msg:  log.New(os.Stdout, "acq: ", 0),
		poll: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Acquirer{c: c, msg: cfg.msg, cfg: cfg}
}

// Acquire arms all channels with a common trigger, waits for the trigger
// and the buffer to fill up, and returns the buffer of channel ch.
func (a *Acquirer) Acquire(ctx context.Context, ch Channel, s Settings) ([]float64, error) {
	if err := ch.valid(); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	for _, cmd := range []string{
		"ACQ:RST",
		fmt.Sprintf("ACQ:DEC %d", s.Decimation),
		fmt.Sprintf("ACQ:TRig:LEV %g", s.Level),
		fmt.Sprintf("ACQ:TRig:DLY %d", s.Delay),
		"ACQ:START",
		fmt.Sprintf("ACQ:TRig %s", s.Source),
	} {
		err := a.c.Tx(ctx, cmd)
		if err != nil {
			return nil, fmt.Errorf("acq: could not arm acquisition: %w", err)
		}
	}
	err := a.c.CheckError(ctx)
	if err != nil {
		return nil, fmt.Errorf("acq: instrument rejected acquisition settings: %w", err)
	}

	err = a.wait(ctx, "ACQ:TRig:STAT?", "TD")
	if err != nil {
		return nil, fmt.Errorf("acq: could not wait for trigger: %w", err)
	}
	err = a.wait(ctx, "ACQ:TRig:FILL?", "1")
	if err != nil {
		return nil, fmt.Errorf("acq: could not wait for buffer: %w", err)
	}

	pos, err := a.c.QueryInt(ctx, "ACQ:TPOS?")
	if err != nil {
		return nil, fmt.Errorf("acq: could not query trigger position: %w", err)
	}
	a.msg.Printf("CH%d: triggered at %d", ch, pos)

	data, err := a.c.QueryFloats(ctx, fmt.Sprintf("ACQ:SOUR%d:DATA?", ch))
	if err != nil {
		return nil, fmt.Errorf("acq: could not read data of channel %d: %w", ch, err)
	}

	err = a.c.Tx(ctx, "ACQ:STOP")
	if err != nil {
		return nil, fmt.Errorf("acq: could not stop acquisition: %w", err)
	}
	err = a.c.CheckError(ctx)
	if err != nil {
		return nil, fmt.Errorf("acq: instrument rejected acquisition stop: %w", err)
	}
	return data, nil
}

// AcquireSplit arms every channel of chans with its own trigger, then
// waits concurrently for each channel to trigger and fill up.
func (a *Acquirer) AcquireSplit(ctx context.Context, chans map[Channel]Settings) (map[Channel][]float64, error) {
	if len(chans) == 0 {
		return nil, fmt.Errorf("acq: no channel to acquire")
	}

	ids := make([]Channel, 0, len(chans))
	for ch, s := range chans {
		if err := ch.valid(); err != nil {
			return nil, err
		}
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("acq: invalid settings for channel %d: %w", ch, err)
		}
		ids = append(ids, ch)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cmds := []string{"ACQ:RST", "ACQ:SPLIT:TRig ON"}
	for _, ch := range ids {
		s := chans[ch]
		cmds = append(cmds,
			fmt.Sprintf("ACQ:DEC:Factor:CH%d %d", ch, s.Decimation),
			fmt.Sprintf("ACQ:TRig:LEV:CH%d %g", ch, s.Level),
			fmt.Sprintf("ACQ:TRig:DLY:CH%d %d", ch, s.Delay),
			fmt.Sprintf("ACQ:START:CH%d", ch),
			fmt.Sprintf("ACQ:TRig:CH%d %s", ch, s.Source),
		)
	}
	for _, cmd := range cmds {
		err := a.c.Tx(ctx, cmd)
		if err != nil {
			return nil, fmt.Errorf("acq: could not arm split acquisition: %w", err)
		}
	}
	err := a.c.CheckError(ctx)
	if err != nil {
		return nil, fmt.Errorf("acq: instrument rejected split acquisition settings: %w", err)
	}

	var (
		mu  sync.Mutex
		out = make(map[Channel][]float64, len(ids))
	)
	grp, ctx := errgroup.WithContext(ctx)
	for _, ch := range ids {
		ch := ch
		grp.Go(func() error {
			err := a.wait(ctx, fmt.Sprintf("ACQ:TRig:STAT:CH%d?", ch), "TD")
			if err != nil {
				return fmt.Errorf("acq: could not wait for trigger of channel %d: %w", ch, err)
			}
			err = a.wait(ctx, fmt.Sprintf("ACQ:TRig:FILL:CH%d?", ch), "1")
			if err != nil {
				return fmt.Errorf("acq: could not wait for buffer of channel %d: %w", ch, err)
			}
			a.msg.Printf("CH%d: data acquired", ch)

			data, err := a.c.QueryFloats(ctx, fmt.Sprintf("ACQ:SOUR%d:DATA?", ch))
			if err != nil {
				return fmt.Errorf("acq: could not read data of channel %d: %w", ch, err)
			}
			mu.Lock()
			out[ch] = data
			mu.Unlock()
			return nil
		})
	}

	err = grp.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// wait polls the instrument with query until it replies want.
func (a *Acquirer) wait(ctx context.Context, query, want string) error {
	tick := time.NewTicker(a.cfg.poll)
	defer tick.Stop()

	for {
		reply, err := a.c.Query(ctx, query)
		if err != nil {
			return err
		}
		if reply == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}
