// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dio

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-lpc/redpitaya/scpi"
	"github.com/go-lpc/redpitaya/sim"
)

var discard = log.New(io.Discard, "", 0)

func newTestDIO(t *testing.T) (*DIO, *sim.Server) {
	t.Helper()

	srv, err := sim.New("localhost:0", sim.WithLogger(discard))
	if err != nil {
		t.Fatalf("could not create simulator: %+v", err)
	}
	go srv.Serve()

	c, err := scpi.Dial(context.Background(), srv.Addr())
	if err != nil {
		t.Fatalf("could not dial simulator: %+v", err)
	}
	t.Cleanup(func() {
		c.Close()
		srv.Close()
	})
	return New(c, WithLogger(discard)), srv
}

func TestPins(t *testing.T) {
	for _, tc := range []struct {
		pin  Pin
		want string
	}{
		{LED(0), "LED0"},
		{DION(3), "DIO3_N"},
		{DIOP(7), "DIO7_P"},
	} {
		if got := string(tc.pin); got != tc.want {
			t.Fatalf("invalid pin: got=%q, want=%q", got, tc.want)
		}
	}
	if got, want := Direction(3).String(), "Direction(3)"; got != want {
		t.Fatalf("invalid direction: got=%q, want=%q", got, want)
	}
}

func TestState(t *testing.T) {
	d, srv := newTestDIO(t)
	ctx := context.Background()

	err := d.SetDirection(ctx, DION(2), In)
	if err != nil {
		t.Fatalf("could not set direction: %+v", err)
	}
	srv.SetPin("DIO2_N", true)

	v, err := d.State(ctx, DION(2))
	if err != nil {
		t.Fatalf("could not read state: %+v", err)
	}
	if !v {
		t.Fatalf("DIO2_N should be high")
	}

	err = d.SetState(ctx, LED(2), true)
	if err != nil {
		t.Fatalf("could not set state: %+v", err)
	}
	// commands are fire-and-forget: wait for the instrument to process them.
	err = d.c.CheckError(ctx)
	if err != nil {
		t.Fatalf("instrument error: %+v", err)
	}
	if !srv.Pin("LED2") {
		t.Fatalf("LED2 should be on")
	}

	err = d.SetState(ctx, DION(2), false)
	if err != nil {
		t.Fatalf("could not send state: %+v", err)
	}
	err = d.c.CheckError(ctx)
	if err == nil {
		t.Fatalf("expected an instrument error when driving an input")
	}
	if !srv.Pin("DIO2_N") {
		t.Fatalf("DIO2_N should still be high")
	}

	_, err = d.State(ctx, Pin("BOGUS"))
	if err == nil {
		t.Fatalf("expected an error")
	}

	err = d.SetDirection(ctx, LED(0), Direction(42))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestMirror(t *testing.T) {
	d, srv := newTestDIO(t)

	var in, out []Pin
	for i := 0; i < 8; i++ {
		in = append(in, DION(i))
		out = append(out, LED(i))
	}
	srv.SetPin("DIO1_N", true)
	srv.SetPin("DIO6_N", true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- d.Mirror(ctx, in, out, time.Millisecond)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !(srv.Pin("LED1") && srv.Pin("LED6")) {
		if time.Now().After(deadline) {
			t.Fatalf("LEDs did not mirror inputs")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	err := <-done
	if err != nil {
		t.Fatalf("mirror failed: %+v", err)
	}
	for _, led := range []string{"LED0", "LED2", "LED3", "LED4", "LED5", "LED7"} {
		if srv.Pin(led) {
			t.Fatalf("%s should be off", led)
		}
	}

	err = d.Mirror(context.Background(), in, out[:2], time.Millisecond)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
