// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"errors"
	"fmt"
	"sort"
)

// UART packet controls.
const (
	UARTStartBit uint8 = iota + 1
	UARTStartBitError
	UARTData
	UARTParityBit
	UARTParityError
	UARTStopBit
	UARTStopBitError
)

// UARTSettings configures a UART decoder.
type UARTSettings struct {
	RX          uint32 `json:"rx"`            // RX line (1..8), 0 if unused
	TX          uint32 `json:"tx"`            // TX line (1..8), 0 if unused
	Baudrate    uint32 `json:"baudrate"`      // in bit/s
	Invert      uint32 `json:"invert"`        // 1 if lines are inverted
	BitOrder    uint32 `json:"bit_order"`     // 0: LSB first, 1: MSB first
	NumDataBits uint32 `json:"num_data_bits"` // 5..9
	Parity      uint32 `json:"parity"`        // 0: none, 1: even, 2: odd, 3: always 0, 4: always 1
	NumStopBits uint32 `json:"num_stop_bits"` // 0: none, 1: 0.5, 2: 1.0, 3: 1.5, 4: 2.0
	AcqSpeed    uint32 `json:"acq_speed"`     // sampling rate, in Hz
}

const (
	uartLSBFirst = 0
	uartMSBFirst = 1

	parityNone  = 0
	parityEven  = 1
	parityOdd   = 2
	parityZero  = 3
	parityOne   = 4
	defAcqSpeed = 125000000
)

var uartStopBits = [...]float64{0, 0.5, 1, 1.5, 2}

type uartDecoder struct {
	cfg UARTSettings
}

func newUARTDecoder() *uartDecoder {
	return &uartDecoder{
		cfg: UARTSettings{
			RX:          1,
			Baudrate:    9600,
			NumDataBits: 8,
			NumStopBits: 2,
			AcqSpeed:    defAcqSpeed,
		},
	}
}

func (dec *uartDecoder) settings() interface{} { return &dec.cfg }

func (dec *uartDecoder) validate() error {
	cfg := dec.cfg
	if cfg.RX == 0 && cfg.TX == 0 {
		return errors.New("no RX nor TX line")
	}
	for _, v := range []struct {
		name string
		line uint32
	}{{"rx", cfg.RX}, {"tx", cfg.TX}} {
		if err := checkLine(v.name, v.line, false); err != nil {
			return err
		}
	}
	switch {
	case cfg.Baudrate == 0:
		return errors.New("invalid null baudrate")
	case cfg.AcqSpeed < 2*cfg.Baudrate:
		return fmt.Errorf("acquisition speed %d Hz too low for %d bauds", cfg.AcqSpeed, cfg.Baudrate)
	case cfg.BitOrder > uartMSBFirst:
		return fmt.Errorf("invalid bit order %d", cfg.BitOrder)
	case cfg.NumDataBits < 5 || cfg.NumDataBits > 9:
		return fmt.Errorf("invalid number of data bits %d", cfg.NumDataBits)
	case cfg.Parity > parityOne:
		return fmt.Errorf("invalid parity %d", cfg.Parity)
	case int(cfg.NumStopBits) >= len(uartStopBits):
		return fmt.Errorf("invalid number of stop bits %d", cfg.NumStopBits)
	case cfg.Invert > 1:
		return fmt.Errorf("invalid invert flag %d", cfg.Invert)
	}
	return nil
}

func (dec *uartDecoder) decode(samples []byte) []Packet {
	var pkts []Packet
	if dec.cfg.RX != 0 {
		pkts = append(pkts, dec.line(samples, dec.cfg.RX, "RX")...)
	}
	if dec.cfg.TX != 0 {
		pkts = append(pkts, dec.line(samples, dec.cfg.TX, "TX")...)
	}
	sort.SliceStable(pkts, func(i, j int) bool {
		return pkts[i].SampleStart < pkts[j].SampleStart
	})
	return pkts
}

func (dec *uartDecoder) line(samples []byte, line uint32, name string) []Packet {
	var (
		cfg   = dec.cfg
		inv   = cfg.Invert != 0
		bitw  = float64(cfg.AcqSpeed) / float64(cfg.Baudrate)
		nbits = int(cfg.NumDataBits)
		stop  = uartStopBits[cfg.NumStopBits]
		npar  = 0
		pkts  []Packet
	)
	if cfg.Parity != parityNone {
		npar = 1
	}
	at := func(pos float64) bool {
		return level(samples[int(pos)], line, inv)
	}

	// position, relative to the start bit, of the last sample needed by a frame.
	last := float64(1+nbits+npar) * bitw
	switch {
	case stop > 0:
		last += stop * bitw / 2
	default:
		last -= bitw / 2
	}

	for i := 1; i < len(samples); i++ {
		if !at(float64(i-1)) || at(float64(i)) {
			continue
		}
		beg := float64(i)
		if int(beg+last) >= len(samples) {
			break
		}
		if at(beg + bitw/2) {
			pkts = append(pkts, Packet{
				LineName:    name,
				Control:     UARTStartBitError,
				SampleStart: beg,
				Length:      bitw / 2,
			})
			continue
		}
		pkts = append(pkts, Packet{
			LineName:    name,
			Control:     UARTStartBit,
			SampleStart: beg,
			Length:      bitw,
		})

		pos := beg + bitw
		var (
			data uint32
			ones int
		)
		for k := 0; k < nbits; k++ {
			var bit uint32
			if at(pos + (float64(k)+0.5)*bitw) {
				bit = 1
				ones++
			}
			switch cfg.BitOrder {
			case uartLSBFirst:
				data |= bit << k
			default:
				data = data<<1 | bit
			}
		}
		pkts = append(pkts, Packet{
			LineName:    name,
			Control:     UARTData,
			Data:        data,
			SampleStart: pos,
			Length:      float64(nbits) * bitw,
		})
		pos += float64(nbits) * bitw

		if npar > 0 {
			var bit uint32
			if at(pos + bitw/2) {
				bit = 1
			}
			ctrl := UARTParityBit
			if !parityOK(cfg.Parity, ones, bit) {
				ctrl = UARTParityError
			}
			pkts = append(pkts, Packet{
				LineName:    name,
				Control:     ctrl,
				Data:        bit,
				SampleStart: pos,
				Length:      bitw,
			})
			pos += bitw
		}

		if stop > 0 {
			ctrl := UARTStopBit
			if !at(pos + stop*bitw/2) {
				ctrl = UARTStopBitError
			}
			pkts = append(pkts, Packet{
				LineName:    name,
				Control:     ctrl,
				SampleStart: pos,
				Length:      stop * bitw,
			})
			pos += stop * bitw
		}

		if next := int(pos) - 1; next > i {
			i = next
		}
	}
	return pkts
}

func parityOK(parity uint32, ones int, bit uint32) bool {
	switch parity {
	case parityEven:
		return (ones+int(bit))%2 == 0
	case parityOdd:
		return (ones+int(bit))%2 == 1
	case parityZero:
		return bit == 0
	case parityOne:
		return bit == 1
	}
	return true
}
