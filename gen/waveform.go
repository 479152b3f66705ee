// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gen

import (
	"math"
	"strconv"
	"strings"
)

// Chunk is a contiguous slice of a waveform sent in one AXI data message.
type Chunk struct {
	Offset int
	Len    int
}

// Chunks splits n samples into contiguous chunks of at most size samples.
func Chunks(n, size int) []Chunk {
	if n <= 0 || size <= 0 {
		return nil
	}
	out := make([]Chunk, 0, (n+size-1)/size)
	for beg := 0; beg < n; beg += size {
		end := beg + size
		if end > n {
			end = n
		}
		out = append(out, Chunk{Offset: beg, Len: end - beg})
	}
	return out
}

// FormatChunk formats the AXI data message of a chunk for channel ch.
func FormatChunk(ch int, c Chunk, samples []float32) string {
	o := new(strings.Builder)
	o.Grow(32 + 10*len(samples))
	o.WriteString("SOUR")
	o.WriteString(strconv.Itoa(ch))
	o.WriteString(":AXI:OFFSET")
	o.WriteString(strconv.Itoa(c.Offset))
	o.WriteString(":DATA")
	o.WriteString(strconv.Itoa(len(samples)))
	o.WriteString(" ")
	for i, v := range samples {
		if i > 0 {
			o.WriteByte(',')
		}
		o.WriteString(strconv.FormatFloat(float64(v), 'f', 6, 32))
	}
	return o.String()
}

// Sine3 returns n samples of sin(t) + 1/3 sin(3t) over one period.
func Sine3(n int) []float32 {
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		t := 2 * math.Pi / float64(n) * float64(i)
		out[i] = float32(math.Sin(t) + 1.0/3.0*math.Sin(3*t))
	}
	return out
}

// SamplesFor returns the number of 2-byte samples the region can hold,
// capped at limit.
func SamplesFor(r Region, limit int) int {
	n := r.Size / 2
	if limit >= 0 && uint64(limit) < n {
		return limit
	}
	return int(n)
}
