// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"log"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/redpitaya/sim"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMonitor(t *testing.T) {
	defer func(w io.Writer) {
		log.SetOutput(w)
	}(log.Writer())
	log.SetOutput(io.Discard)

	var sent []string
	defer func(f func(subject, body string)) {
		alertFunc = f
	}(alertFunc)
	alertFunc = func(subject, body string) {
		sent = append(sent, subject)
	}

	srv, err := sim.New("localhost:0", sim.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not create simulator: %+v", err)
	}
	go srv.Serve()

	ctx := context.Background()
	mon := newMonitor(srv.Addr(), time.Second, 2)

	mon.check(ctx)
	if got, want := testutil.ToFloat64(instUp), 1.0; got != want {
		t.Fatalf("invalid up state: got=%g, want=%g", got, want)
	}
	ok0 := testutil.ToFloat64(probes.WithLabelValues("ok"))
	if ok0 < 1 {
		t.Fatalf("invalid number of successful probes: %g", ok0)
	}

	srv.Close()

	for i := 0; i < 10; i++ {
		mon.check(ctx)
	}
	if got, want := testutil.ToFloat64(instUp), 0.0; got != want {
		t.Fatalf("invalid up state: got=%g, want=%g", got, want)
	}
	if got, want := mon.failures, 10; got != want {
		t.Fatalf("invalid number of failures: got=%d, want=%d", got, want)
	}
	if got, want := len(sent), 5; got != want {
		t.Fatalf("invalid number of alerts: got=%d, want=%d", got, want)
	}

	srv, err = sim.New("localhost:0", sim.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not create simulator: %+v", err)
	}
	go srv.Serve()
	defer srv.Close()

	mon.addr = srv.Addr()
	mon.check(ctx)
	if mon.failures != 0 || mon.alerts != 0 {
		t.Fatalf("alert state not reset: failures=%d, alerts=%d", mon.failures, mon.alerts)
	}
	if got, want := testutil.ToFloat64(probes.WithLabelValues("ok")), ok0+1; got != want {
		t.Fatalf("invalid number of successful probes: got=%g, want=%g", got, want)
	}
}

func TestSplitTargets(t *testing.T) {
	for _, tc := range []struct {
		s    string
		want []string
	}{
		{s: "", want: nil},
		{s: "a@example.org", want: []string{"a@example.org"}},
		{s: "a@example.org, b@example.org,", want: []string{"a@example.org", "b@example.org"}},
	} {
		t.Run(tc.s, func(t *testing.T) {
			got := splitTargets(tc.s)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid targets:\ngot= %q\nwant=%q", got, tc.want)
			}
		})
	}
}
