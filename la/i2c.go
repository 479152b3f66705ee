// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import "fmt"

// I2C packet controls.
const (
	I2CStart uint8 = iota + 1
	I2CRepeatedStart
	I2CStop
	I2CAck
	I2CNack
	I2CAddressRead
	I2CAddressWrite
	I2CDataRead
	I2CDataWrite
)

// I2CSettings configures an I2C decoder.
type I2CSettings struct {
	SCL           uint32 `json:"scl"`
	SDA           uint32 `json:"sda"`
	AddressFormat uint32 `json:"address_format"` // 0: shifted (7-bit address), 1: unshifted (address byte with R/W bit)
	Invert        uint32 `json:"invert"`
	AcqSpeed      uint32 `json:"acq_speed"`
}

type i2cDecoder struct {
	cfg I2CSettings
}

func newI2CDecoder() *i2cDecoder {
	return &i2cDecoder{
		cfg: I2CSettings{
			SCL:      1,
			SDA:      2,
			AcqSpeed: defAcqSpeed,
		},
	}
}

func (dec *i2cDecoder) settings() interface{} { return &dec.cfg }

func (dec *i2cDecoder) validate() error {
	cfg := dec.cfg
	if err := checkLine("scl", cfg.SCL, true); err != nil {
		return err
	}
	if err := checkLine("sda", cfg.SDA, true); err != nil {
		return err
	}
	switch {
	case cfg.SCL == cfg.SDA:
		return fmt.Errorf("scl and sda share line %d", cfg.SCL)
	case cfg.AddressFormat > 1:
		return fmt.Errorf("invalid address format %d", cfg.AddressFormat)
	case cfg.Invert > 1:
		return fmt.Errorf("invalid invert flag %d", cfg.Invert)
	}
	return nil
}

func (dec *i2cDecoder) decode(samples []byte) []Packet {
	const name = "I2C"
	var (
		cfg  = dec.cfg
		inv  = cfg.Invert != 0
		pkts []Packet

		busy  bool   // between a start and a stop condition
		addr  bool   // next byte is an address
		read  bool   // current transfer direction
		nbits int    // bits of the current byte, ack included
		data  uint32 // current byte
		beg   int    // first bit of the current byte
	)

	for i := 1; i < len(samples); i++ {
		scl0, scl1 := level(samples[i-1], cfg.SCL, inv), level(samples[i], cfg.SCL, inv)
		sda0, sda1 := level(samples[i-1], cfg.SDA, inv), level(samples[i], cfg.SDA, inv)

		switch {
		case scl0 && scl1 && sda0 && !sda1:
			ctrl := I2CStart
			if busy {
				ctrl = I2CRepeatedStart
			}
			pkts = append(pkts, Packet{LineName: name, Control: ctrl, SampleStart: float64(i), Length: 1})
			busy, addr, nbits, data = true, true, 0, 0

		case scl0 && scl1 && !sda0 && sda1:
			if busy {
				pkts = append(pkts, Packet{LineName: name, Control: I2CStop, SampleStart: float64(i), Length: 1})
			}
			busy, nbits, data = false, 0, 0

		case busy && !scl0 && scl1:
			var bit uint32
			if sda1 {
				bit = 1
			}
			if nbits == 0 {
				beg = i
			}
			nbits++
			if nbits <= 8 {
				data = data<<1 | bit
			}
			if nbits < 8 {
				continue
			}
			if nbits == 8 {
				var ctrl uint8
				v := data
				switch {
				case addr:
					read = data&1 == 1
					ctrl = I2CAddressWrite
					if read {
						ctrl = I2CAddressRead
					}
					if cfg.AddressFormat == 0 {
						v = data >> 1
					}
				case read:
					ctrl = I2CDataRead
				default:
					ctrl = I2CDataWrite
				}
				pkts = append(pkts, Packet{
					LineName: name, Control: ctrl, Data: v,
					SampleStart: float64(beg), Length: float64(i - beg + 1),
				})
				continue
			}
			ctrl := I2CAck
			if bit == 1 {
				ctrl = I2CNack
			}
			pkts = append(pkts, Packet{LineName: name, Control: ctrl, Data: bit, SampleStart: float64(i), Length: 1})
			addr, nbits, data = false, 0, 0
		}
	}
	return pkts
}
