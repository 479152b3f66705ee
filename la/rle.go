// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"fmt"
	"io"

	"github.com/go-lpc/redpitaya/internal/mmap"
)

// MaxRun is the largest number of samples encoded by a single RLE record.
const MaxRun = 256

// Unpack expands a run-length encoded stream of {count, value} records.
// Each record stands for count+1 copies of value.
func Unpack(raw []byte) ([]byte, error) {
	return unpack(mmap.HandleFrom(raw))
}

// byteSource is a random-access view over captured bytes.
type byteSource interface {
	Len() int
	At(i int) byte
}

func unpack(src byteSource) ([]byte, error) {
	size := src.Len()
	if size%2 != 0 {
		return nil, fmt.Errorf("la: odd RLE stream length %d", size)
	}
	n := 0
	for i := 0; i < size; i += 2 {
		n += int(src.At(i)) + 1
	}
	out := make([]byte, 0, n)
	for i := 0; i < size; i += 2 {
		cnt, v := int(src.At(i))+1, src.At(i+1)
		for j := 0; j < cnt; j++ {
			out = append(out, v)
		}
	}
	return out, nil
}

// Pack run-length encodes samples into {count, value} records.
func Pack(samples []byte) []byte {
	out := make([]byte, 0, 2*len(samples)/MaxRun+2)
	for i := 0; i < len(samples); {
		v := samples[i]
		j := i + 1
		for j < len(samples) && samples[j] == v && j-i < MaxRun {
			j++
		}
		out = append(out, byte(j-i-1), v)
		i = j
	}
	return out
}

// PrintRLE prints the captured data: one line per RLE record, or one
// line per sample when full is set.
func (c *Controller) PrintRLE(w io.Writer, full bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if full || !c.rle {
		for i, v := range c.samples {
			fmt.Fprintf(w, "%8d: 0x%02x %08b\n", i, v, v)
		}
		return
	}

	pos := 0
	for i := 0; i+1 < c.raw.Len(); i += 2 {
		cnt, v := int(c.raw.At(i))+1, c.raw.At(i+1)
		fmt.Fprintf(w, "%8d: 0x%02x %08b x %d\n", pos, v, v, cnt)
		pos += cnt
	}
}
