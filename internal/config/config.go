// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the persistent settings of the redpitaya tools.
//
// Settings are read from a redpitaya.{toml,yaml,json} file, searched in
// /opt/redpitaya then in the current directory, and may be overridden by
// RP_-prefixed environment variables (RP_ADDR, RP_UART_BAUD, ...).
package config // import "github.com/go-lpc/redpitaya/internal/config"

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings of the redpitaya tools.
type Config struct {
	Addr    string        // SCPI server address
	Timeout time.Duration // SCPI exchange timeout
	Chunk   int           // AXI data message size, in samples

	UART struct {
		Device  string
		Baud    int
		Timeout time.Duration
	}

	ARB struct {
		Dir    string
		Driver string
		DSN    string
	}

	I2C struct {
		Bus int
	}

	File string // configuration file used, if any
}

// Paths are the directories searched for a configuration file.
var Paths = []string{"/opt/redpitaya", "."}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("redpitaya")
	v.SetEnvPrefix("RP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", "rp-f0xxxx.local:5000")
	v.SetDefault("timeout", "5s")
	v.SetDefault("chunk", 16384)
	v.SetDefault("uart.device", "/dev/ttyPS1")
	v.SetDefault("uart.baud", 115200)
	v.SetDefault("uart.timeout", "5s")
	v.SetDefault("arb.dir", "/opt/redpitaya/arb")
	v.SetDefault("arb.driver", "sqlite3")
	v.SetDefault("arb.dsn", "")
	v.SetDefault("i2c.bus", 0)
	return v
}

// Load loads the settings from fname, or from the first redpitaya file
// found in Paths when fname is empty.
// A missing file in Paths is not an error: defaults are used.
func Load(fname string) (Config, error) {
	v := newViper()
	switch fname {
	case "":
		for _, dir := range Paths {
			v.AddConfigPath(dir)
		}
	default:
		v.SetConfigFile(fname)
	}

	err := v.ReadInConfig()
	if err != nil {
		var nf viper.ConfigFileNotFoundError
		if fname != "" || !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("config: could not read configuration: %w", err)
		}
	}

	var cfg Config
	cfg.File = v.ConfigFileUsed()
	cfg.Addr = v.GetString("addr")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.Chunk = v.GetInt("chunk")
	cfg.UART.Device = v.GetString("uart.device")
	cfg.UART.Baud = v.GetInt("uart.baud")
	cfg.UART.Timeout = v.GetDuration("uart.timeout")
	cfg.ARB.Dir = v.GetString("arb.dir")
	cfg.ARB.Driver = v.GetString("arb.driver")
	cfg.ARB.DSN = v.GetString("arb.dsn")
	cfg.I2C.Bus = v.GetInt("i2c.bus")

	if cfg.ARB.DSN == "" && cfg.ARB.Driver == "sqlite3" {
		cfg.ARB.DSN = filepath.Join(cfg.ARB.Dir, "arb.db")
	}

	switch {
	case cfg.Chunk <= 0 || cfg.Chunk > 16384:
		return cfg, fmt.Errorf("config: invalid chunk size %d", cfg.Chunk)
	case cfg.UART.Baud <= 0:
		return cfg, fmt.Errorf("config: invalid UART baud rate %d", cfg.UART.Baud)
	}
	return cfg, nil
}
