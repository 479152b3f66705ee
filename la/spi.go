// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"errors"
	"fmt"
)

// SPI packet controls.
const (
	SPIData uint8 = iota + 1
	SPIPartialData
)

// SPISettings configures a SPI decoder.
// Invert applies to every line.
type SPISettings struct {
	CLK        uint32 `json:"clk"`
	MISO       uint32 `json:"miso"` // 0 if unused
	MOSI       uint32 `json:"mosi"` // 0 if unused
	CS         uint32 `json:"cs"`   // 0 if unused: always selected
	CPOL       uint32 `json:"cpol"`
	CPHA       uint32 `json:"cpha"`
	BitOrder   uint32 `json:"bit_order"`   // 0: MSB first, 1: LSB first
	CSPolarity uint32 `json:"cs_polarity"` // 0: active low, 1: active high
	WordSize   uint32 `json:"word_size"`   // in bits
	Invert     uint32 `json:"invert"`
	AcqSpeed   uint32 `json:"acq_speed"`
}

type spiDecoder struct {
	cfg SPISettings
}

func newSPIDecoder() *spiDecoder {
	return &spiDecoder{
		cfg: SPISettings{
			CLK:      1,
			MOSI:     2,
			MISO:     3,
			CS:       4,
			WordSize: 8,
			AcqSpeed: defAcqSpeed,
		},
	}
}

func (dec *spiDecoder) settings() interface{} { return &dec.cfg }

func (dec *spiDecoder) validate() error {
	cfg := dec.cfg
	if err := checkLine("clk", cfg.CLK, true); err != nil {
		return err
	}
	if cfg.MISO == 0 && cfg.MOSI == 0 {
		return errors.New("no MISO nor MOSI line")
	}
	for _, v := range []struct {
		name string
		line uint32
	}{{"miso", cfg.MISO}, {"mosi", cfg.MOSI}, {"cs", cfg.CS}} {
		if err := checkLine(v.name, v.line, false); err != nil {
			return err
		}
	}
	switch {
	case cfg.CPOL > 1:
		return fmt.Errorf("invalid CPOL %d", cfg.CPOL)
	case cfg.CPHA > 1:
		return fmt.Errorf("invalid CPHA %d", cfg.CPHA)
	case cfg.BitOrder > 1:
		return fmt.Errorf("invalid bit order %d", cfg.BitOrder)
	case cfg.CSPolarity > 1:
		return fmt.Errorf("invalid CS polarity %d", cfg.CSPolarity)
	case cfg.WordSize < 1 || cfg.WordSize > 32:
		return fmt.Errorf("invalid word size %d", cfg.WordSize)
	case cfg.Invert > 1:
		return fmt.Errorf("invalid invert flag %d", cfg.Invert)
	}
	return nil
}

type spiWord struct {
	beg, end   int
	n          uint32
	mosi, miso uint32
}

func (dec *spiDecoder) decode(samples []byte) []Packet {
	var (
		cfg    = dec.cfg
		inv    = cfg.Invert != 0
		rising = cfg.CPOL == cfg.CPHA // sampling edge
		word   spiWord
		pkts   []Packet
	)

	selected := func(v byte) bool {
		if cfg.CS == 0 {
			return true
		}
		return level(v, cfg.CS, inv) == (cfg.CSPolarity == 1)
	}
	shift := func(w, bit uint32) uint32 {
		if cfg.BitOrder == 0 {
			return w<<1 | bit
		}
		return w | bit<<word.n
	}
	bit := func(v byte, line uint32) uint32 {
		if line == 0 || !level(v, line, inv) {
			return 0
		}
		return 1
	}
	flush := func(ctrl uint8) {
		if word.n == 0 {
			return
		}
		n := float64(word.end - word.beg + 1)
		if cfg.MOSI != 0 {
			pkts = append(pkts, Packet{
				LineName: "MOSI", Control: ctrl, Data: word.mosi,
				SampleStart: float64(word.beg), Length: n,
			})
		}
		if cfg.MISO != 0 {
			pkts = append(pkts, Packet{
				LineName: "MISO", Control: ctrl, Data: word.miso,
				SampleStart: float64(word.beg), Length: n,
			})
		}
		word = spiWord{}
	}

	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if !selected(cur) {
			if selected(prev) {
				flush(SPIPartialData)
			}
			continue
		}
		c0, c1 := level(prev, cfg.CLK, inv), level(cur, cfg.CLK, inv)
		if c0 == c1 || c1 != rising {
			continue
		}
		if word.n == 0 {
			word.beg = i
		}
		word.mosi = shift(word.mosi, bit(cur, cfg.MOSI))
		word.miso = shift(word.miso, bit(cur, cfg.MISO))
		word.end = i
		word.n++
		if word.n == cfg.WordSize {
			flush(SPIData)
		}
	}
	flush(SPIPartialData)
	return pkts
}
