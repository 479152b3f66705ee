// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rpctl controls a Red Pitaya instrument.
//
// Instrument commands go through the SCPI server of the instrument.
// Settings are read from a redpitaya.{toml,yaml,json} configuration file
// (see the -config flag) and RP_-prefixed environment variables.
//
// Examples:
//
//	$> rpctl burst --ch 2 --samples 16384 --cycles 1 --reps 5 --period 50000
//	$> rpctl acquire --ch 1 --dec 8 --src CH1_PE --level 0.1
//	$> rpctl arb list
//	$> rpctl la decode dump.bin uart.json --type UART --rle
//	$> rpctl shell
package main // import "github.com/go-lpc/redpitaya/cmd/rpctl"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/go-lpc/redpitaya"
	"github.com/go-lpc/redpitaya/internal/config"
	"github.com/go-lpc/redpitaya/scpi"
	"github.com/spf13/cobra"
)

func main() {
	log.SetPrefix("rpctl: ")
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type app struct {
	out io.Writer

	fname   string // configuration file
	addr    string
	verbose bool

	cfg config.Config
}

func newRootCmd(w io.Writer) *cobra.Command {
	app := &app{out: w}

	version, _ := redpitaya.Version()
	root := &cobra.Command{
		Use:   "rpctl",
		Short: "Control a Red Pitaya instrument",
		Long: `rpctl drives the signal generator, the acquisition, the digital I/O,
the arbitrary waveform catalog, the logic analyzer decoders and the
UART/I2C peripherals of a Red Pitaya instrument.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
	}
	root.SetOut(w)

	flags := root.PersistentFlags()
	flags.StringVar(&app.fname, "config", "", "path to configuration file")
	flags.StringVar(&app.addr, "addr", "", "[ip]:port of the instrument SCPI server (overrides configuration)")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "trace SCPI exchanges")

	root.AddCommand(
		app.burstCmd(),
		app.continuousCmd(),
		app.acquireCmd(),
		app.splitCmd(),
		app.dioCmd(),
		app.arbCmd(),
		app.laCmd(),
		app.uartCmd(),
		app.i2cCmd(),
		app.shellCmd(),
	)
	return root
}

func (app *app) load() error {
	cfg, err := config.Load(app.fname)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if app.addr != "" {
		cfg.Addr = app.addr
	}
	app.cfg = cfg
	return nil
}

func (app *app) logger(prefix string) *log.Logger {
	if !app.verbose {
		return log.New(io.Discard, prefix, 0)
	}
	return log.New(os.Stderr, prefix, 0)
}

func (app *app) dial(ctx context.Context) (*scpi.Client, error) {
	c, err := scpi.Dial(ctx, app.cfg.Addr,
		scpi.WithTimeout(app.cfg.Timeout),
		scpi.WithTrace(app.verbose),
		scpi.WithLogger(app.logger("scpi: ")),
	)
	if err != nil {
		return nil, fmt.Errorf("could not dial instrument: %w", err)
	}
	return c, nil
}
