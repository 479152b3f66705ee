// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rp-mon monitors the SCPI server of a Red Pitaya instrument.
//
// rp-mon periodically probes the instrument identity and exposes the
// results as Prometheus metrics on the -http address.
// After -fail consecutive failed probes, mail alerts are sent to the
// MAIL_TGTS recipients, using the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER and MAIL_PORT environment variables.
package main // import "github.com/go-lpc/redpitaya/cmd/rp-mon"

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/redpitaya/scpi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mail "gopkg.in/gomail.v2"
)

var (
	instUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "redpitaya_up",
		Help: "Whether the last probe of the instrument succeeded.",
	})
	probeLatency = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "redpitaya_probe_latency_seconds",
		Help: "Duration of the last successful probe.",
	})
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redpitaya_probes_total",
			Help: "Number of probes, by status.",
		},
		[]string{"status"},
	)
	alerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redpitaya_alerts_total",
		Help: "Number of alerts sent.",
	})
)

func main() {
	var (
		addr = flag.String("addr", "localhost:5000", "[ip]:port of the instrument SCPI server")
		web  = flag.String("http", ":9100", "[ip]:port to serve metrics on")
		freq = flag.Duration("freq", 30*time.Second, "probing interval")
		fail = flag.Int("fail", 3, "number of consecutive failed probes before alerting")
	)

	flag.Parse()

	log.SetPrefix("rp-mon: ")
	log.SetFlags(0)

	prometheus.MustRegister(instUp)
	prometheus.MustRegister(probeLatency)
	prometheus.MustRegister(probes)
	prometheus.MustRegister(alerts)

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(*web, nil)
		if err != nil {
			log.Fatalf("could not serve metrics: %+v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mon := newMonitor(*addr, *freq, *fail)
	log.Printf("monitoring %q every %v (metrics on %q)...", *addr, *freq, *web)
	mon.run(ctx)
}

type monitor struct {
	addr string
	freq time.Duration
	fail int

	failures int // consecutive failed probes
	alerts   int // alerts sent during the current outage
}

func newMonitor(addr string, freq time.Duration, fail int) *monitor {
	if fail < 1 {
		fail = 1
	}
	return &monitor{addr: addr, freq: freq, fail: fail}
}

func (mon *monitor) run(ctx context.Context) {
	tick := time.NewTicker(mon.freq)
	defer tick.Stop()

	for {
		mon.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// check probes the instrument once and updates metrics and alert state.
func (mon *monitor) check(ctx context.Context) {
	start := time.Now()
	idn, err := mon.probe(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		probes.WithLabelValues("fail").Inc()
		instUp.Set(0)
		mon.failures++
		log.Printf("could not probe instrument %q (failures=%d): %+v", mon.addr, mon.failures, err)
		if mon.failures >= mon.fail {
			mon.alert(err)
		}
		return
	}

	probes.WithLabelValues("ok").Inc()
	probeLatency.Set(time.Since(start).Seconds())
	instUp.Set(1)
	if mon.failures >= mon.fail {
		log.Printf("instrument %q is back: %s", mon.addr, idn)
	}
	mon.failures = 0
	mon.alerts = 0
}

func (mon *monitor) probe(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, mon.freq)
	defer cancel()

	c, err := scpi.Dial(ctx, mon.addr, scpi.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		return "", err
	}
	defer c.Close()

	idn, err := c.Query(ctx, "*IDN?")
	if err != nil {
		return "", fmt.Errorf("could not query identity: %w", err)
	}
	err = c.CheckError(ctx)
	if err != nil {
		return "", err
	}
	return idn, c.Close()
}

func (mon *monitor) alert(err error) {
	const maxAlerts = 5
	if mon.alerts >= maxAlerts {
		return
	}
	mon.alerts++
	alerts.Inc()

	subject := fmt.Sprintf("[rp-mon] instrument alert: %q", mon.addr)
	body := fmt.Sprintf("addr: %q\nfailures: %d\nfreq: %v\nerror: %+v",
		mon.addr, mon.failures, mon.freq, err,
	)
	alertFunc(subject, body)
}

var alertFunc = alertMail

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = splitTargets(os.Getenv("MAIL_TGTS"))
)

func alertMail(subject, body string) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func splitTargets(s string) []string {
	var tgts []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			tgts = append(tgts, v)
		}
	}
	return tgts
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
