// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hw gives access to the low-speed peripherals of the board:
// the UART port of the extension connector and the I2C bus.
package hw // import "github.com/go-lpc/redpitaya/hw"
