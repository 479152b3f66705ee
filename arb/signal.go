// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arb

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadSignal reads the samples of an ARB file.
func ReadSignal(fname string) ([]float32, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("arb: could not open ARB file: %w", err)
	}
	defer f.Close()

	return ParseSignal(f)
}

// ParseSignal parses ARB samples, one per line or comma separated.
// Samples must lie within [-1, 1].
func ParseSignal(r io.Reader) ([]float32, error) {
	var (
		out  []float32
		sc   = bufio.NewScanner(r)
		line = 0
	)
	for sc.Scan() {
		line++
		for _, tok := range strings.Split(sc.Text(), ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return nil, fmt.Errorf("arb: line %d: invalid sample %q", line, tok)
			}
			if math.IsNaN(v) || v < -1 || v > 1 {
				return nil, fmt.Errorf("arb: line %d: sample %v out of range [-1, 1]", line, v)
			}
			if len(out) == MaxSamples {
				return nil, fmt.Errorf("arb: too many samples (max=%d)", MaxSamples)
			}
			out = append(out, float32(v))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("arb: could not read samples: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("arb: no sample")
	}
	return out, nil
}

// GenFileCSV writes the valid signals of the catalog as a CSV table: a
// header row with the signal names, then one row per sample index.
func (c *Catalog) GenFileCSV(w io.Writer) error {
	sigs := c.valid()

	var (
		cw   = csv.NewWriter(w)
		row  = make([]string, len(sigs))
		rows = 0
	)
	for i, e := range sigs {
		row[i] = e.Name
		if len(e.data) > rows {
			rows = len(e.data)
		}
	}
	err := cw.Write(row)
	if err != nil {
		return fmt.Errorf("arb: could not write CSV header: %w", err)
	}

	for j := 0; j < rows; j++ {
		for i, e := range sigs {
			row[i] = ""
			if j < len(e.data) {
				row[i] = strconv.FormatFloat(float64(e.data[j]), 'f', 6, 32)
			}
		}
		err = cw.Write(row)
		if err != nil {
			return fmt.Errorf("arb: could not write CSV row %d: %w", j, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("arb: could not flush CSV file: %w", err)
	}
	return nil
}

// GenFileCOE writes the valid signals of the catalog, one after the
// other, as a Xilinx coefficient file of 14-bit two's complement words.
func (c *Catalog) GenFileCOE(w io.Writer) error {
	sigs := c.valid()

	bw := bufio.NewWriter(w)
	off := 0
	for _, e := range sigs {
		fmt.Fprintf(bw, "; %s: offset=%d samples=%d\n", e.Name, off, len(e.data))
		off += len(e.data)
	}
	bw.WriteString("memory_initialization_radix=16;\n")
	bw.WriteString("memory_initialization_vector=\n")

	n := 0
	for _, e := range sigs {
		for _, v := range e.data {
			n++
			sep := ",\n"
			if n == off {
				sep = ";\n"
			}
			fmt.Fprintf(bw, "%04x%s", COEWord(v), sep)
		}
	}
	if off == 0 {
		bw.WriteString(";\n")
	}

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("arb: could not write COE file: %w", err)
	}
	return nil
}

// COEWord converts a sample in [-1, 1] to a 14-bit two's complement word.
func COEWord(v float32) uint16 {
	const fullScale = 1<<13 - 1
	x := math.Round(float64(v) * fullScale)
	switch {
	case x > fullScale:
		x = fullScale
	case x < -fullScale-1:
		x = -fullScale - 1
	}
	return uint16(int16(x)) & 0x3fff
}
