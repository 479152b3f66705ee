// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc4 implements the 4-bit cyclic redundancy check used by the
// framed UART protocol.
//
// The polynomial is x^4+x+1 (0x13), bits are fed MSB first and the
// register starts at zero.
package crc4 // import "github.com/go-lpc/redpitaya/internal/crc4"

import (
	"hash"
)

// Size of a CRC-4 checksum in bytes.
const Size = 1

// Poly is the CRC-4 polynomial, including the implicit x^4 term.
const Poly = 0x13

// Hash8 is the common interface implemented by all 8-bit (or smaller)
// hash functions.
type Hash8 interface {
	hash.Hash
	Sum8() uint8
}

type digest struct {
	crc uint8
}

// New creates a new Hash8 computing the CRC-4 checksum.
func New() Hash8 {
	return &digest{}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0 }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = update(d.crc, p)
	return len(p), nil
}

func (d *digest) Sum8() uint8 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	return append(in, d.crc)
}

// Checksum returns the CRC-4 checksum of data.
func Checksum(data []byte) uint8 {
	return update(0, data)
}

func update(crc uint8, p []byte) uint8 {
	for _, v := range p {
		for i := 7; i >= 0; i-- {
			bit := (v >> uint(i)) & 1
			msb := (crc >> 3) & 1
			crc <<= 1
			if msb^bit == 1 {
				crc ^= Poly
			}
			crc &= 0x0f
		}
	}
	return crc
}

var _ Hash8 = (*digest)(nil)
