// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"reflect"
	"testing"

	"github.com/go-lpc/redpitaya/internal/mmap"
)

func decode(t *testing.T, typ DecoderType, settings string, samples []byte) []Packet {
	t.Helper()

	c := newTestController()
	err := c.setData(mmap.HandleFrom(samples), false, 0)
	if err != nil {
		t.Fatalf("could not set data: %+v", err)
	}
	err = c.AddDecoder("dec", typ)
	if err != nil {
		t.Fatalf("could not add decoder: %+v", err)
	}
	err = c.SetDecoderSettings("dec", settings)
	if err != nil {
		t.Fatalf("could not set decoder settings: %+v", err)
	}
	pkts, err := c.Decode("dec")
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	return pkts
}

type ctrlData struct {
	ctrl uint8
	data uint32
}

func controls(pkts []Packet) []ctrlData {
	out := make([]ctrlData, len(pkts))
	for i, p := range pkts {
		out[i] = ctrlData{p.Control, p.Data}
	}
	return out
}

func or(vs ...[]byte) []byte {
	out := make([]byte, len(vs[0]))
	for _, v := range vs {
		for i := range out {
			out[i] |= v[i]
		}
	}
	return out
}

func TestUARTDecoder(t *testing.T) {
	var rx, tx []bool
	rx = append(rx, ones(2)...)
	rx = append(rx, uartFrame('H', []bool{false})...)
	rx = append(rx, ones(10)...)

	tx = append(tx, ones(6)...)
	tx = append(tx, uartFrame('i', []bool{true})...) // wrong even parity
	tx = append(tx, ones(6)...)

	samples := or(expand(1, rx, 16), expand(2, tx, 16))
	pkts := decode(t, UART, `{"rx":1, "tx":2, "parity":1, "baudrate":9600, "acq_speed":153600}`, samples)

	want := []Packet{
		{LineName: "RX", Control: UARTStartBit, SampleStart: 32, Length: 16},
		{LineName: "RX", Control: UARTData, Data: 'H', SampleStart: 48, Length: 128},
		{LineName: "TX", Control: UARTStartBit, SampleStart: 96, Length: 16},
		{LineName: "TX", Control: UARTData, Data: 'i', SampleStart: 112, Length: 128},
		{LineName: "RX", Control: UARTParityBit, Data: 0, SampleStart: 176, Length: 16},
		{LineName: "RX", Control: UARTStopBit, SampleStart: 192, Length: 16},
		{LineName: "TX", Control: UARTParityError, Data: 1, SampleStart: 240, Length: 16},
		{LineName: "TX", Control: UARTStopBit, SampleStart: 256, Length: 16},
	}
	if !reflect.DeepEqual(pkts, want) {
		t.Fatalf("invalid packets:\ngot= %v\nwant=%v", pkts, want)
	}
}

func TestUARTDecoderOptions(t *testing.T) {
	for _, tc := range []struct {
		name     string
		bits     []bool
		settings string
		want     []ctrlData
	}{
		{
			name:     "msb-first",
			bits:     uartFrame('H', nil),
			settings: `{"bit_order":1, "baudrate":9600, "acq_speed":153600}`,
			want:     []ctrlData{{UARTStartBit, 0}, {UARTData, 0x12}, {UARTStopBit, 0}},
		},
		{
			name:     "stop-bit-error",
			bits:     append(uartFrame(0x55, nil)[:9], false),
			settings: `{"baudrate":9600, "acq_speed":153600}`,
			want:     []ctrlData{{UARTStartBit, 0}, {UARTData, 0x55}, {UARTStopBitError, 0}},
		},
		{
			name:     "odd-parity",
			bits:     uartFrame(0x01, []bool{false}),
			settings: `{"parity":2, "baudrate":9600, "acq_speed":153600}`,
			want:     []ctrlData{{UARTStartBit, 0}, {UARTData, 0x01}, {UARTParityBit, 0}, {UARTStopBit, 0}},
		},
		{
			name:     "always-one",
			bits:     uartFrame(0x01, []bool{false}),
			settings: `{"parity":4, "baudrate":9600, "acq_speed":153600}`,
			want:     []ctrlData{{UARTStartBit, 0}, {UARTData, 0x01}, {UARTParityError, 0}, {UARTStopBit, 0}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var bits []bool
			bits = append(bits, ones(2)...)
			bits = append(bits, tc.bits...)
			bits = append(bits, ones(4)...)

			got := controls(decode(t, UART, tc.settings, expand(1, bits, 16)))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, tc.want)
			}
		})
	}
}

func TestUARTDecoderInverted(t *testing.T) {
	// idle low, start bit high, 0xfe LSB first, stop bit low.
	bits := []bool{false, false, true, true}
	bits = append(bits, make([]bool, 7+1+4)...)

	got := controls(decode(t, UART, `{"invert":1, "baudrate":9600, "acq_speed":153600}`, expand(1, bits, 16)))
	want := []ctrlData{{UARTStartBit, 0}, {UARTData, 0xfe}, {UARTStopBit, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, want)
	}
}

func TestUARTDecoderGlitch(t *testing.T) {
	samples := expand(1, ones(20), 16)
	samples[40], samples[41] = 0, 0

	got := controls(decode(t, UART, `{"baudrate":9600, "acq_speed":153600}`, samples))
	want := []ctrlData{{UARTStartBitError, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, want)
	}
}

// spiWave renders SPI words on lines clk=1, mosi=2, miso=3, cs=4 (active low).
// Data is sent MSB first, set on clock low and sampled on the rising edge.
func spiWave(cpol bool, h, nbits int, words ...[2]uint32) []byte {
	var out []byte
	put := func(clk, mosi, miso, cs bool) {
		var v byte
		for i, b := range []bool{clk, mosi, miso, cs} {
			if b {
				v |= 1 << i
			}
		}
		for i := 0; i < h; i++ {
			out = append(out, v)
		}
	}

	put(cpol, false, false, true)
	put(cpol, false, false, false)
	for _, w := range words {
		for k := nbits - 1; k >= 0; k-- {
			mosi := (w[0]>>k)&1 == 1
			miso := (w[1]>>k)&1 == 1
			put(false, mosi, miso, false)
			put(true, mosi, miso, false)
		}
	}
	put(cpol, false, false, false)
	put(cpol, false, false, true)
	return out
}

func TestSPIDecoder(t *testing.T) {
	words := [][2]uint32{{0xa5, 0x3c}, {0x01, 0x80}}
	for _, tc := range []struct {
		name     string
		samples  []byte
		settings string
		want     []ctrlData
	}{
		{
			name:     "mode-0",
			samples:  spiWave(false, 4, 8, words...),
			settings: `{}`,
			want: []ctrlData{
				{SPIData, 0xa5}, {SPIData, 0x3c},
				{SPIData, 0x01}, {SPIData, 0x80},
			},
		},
		{
			name:     "mode-3",
			samples:  spiWave(true, 4, 8, words...),
			settings: `{"cpol":1, "cpha":1}`,
			want: []ctrlData{
				{SPIData, 0xa5}, {SPIData, 0x3c},
				{SPIData, 0x01}, {SPIData, 0x80},
			},
		},
		{
			name:     "lsb-first",
			samples:  spiWave(false, 4, 8, words...),
			settings: `{"bit_order":1}`,
			want: []ctrlData{
				{SPIData, 0xa5}, {SPIData, 0x3c},
				{SPIData, 0x80}, {SPIData, 0x01},
			},
		},
		{
			name:     "16-bit-words",
			samples:  spiWave(false, 2, 8, words...),
			settings: `{"word_size":16}`,
			want: []ctrlData{
				{SPIData, 0xa501}, {SPIData, 0x3c80},
			},
		},
		{
			name:     "partial",
			samples:  spiWave(false, 4, 4, [2]uint32{0xa, 0x5}),
			settings: `{}`,
			want: []ctrlData{
				{SPIPartialData, 0xa}, {SPIPartialData, 0x5},
			},
		},
		{
			name:     "mosi-only-no-cs",
			samples:  spiWave(false, 4, 8, words[0]),
			settings: `{"miso":0, "cs":0}`,
			want: []ctrlData{
				{SPIData, 0xa5},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pkts := decode(t, SPI, tc.settings, tc.samples)
			if got := controls(pkts); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, tc.want)
			}
			for i, p := range pkts {
				want := "MOSI"
				if i%2 == 1 && tc.name != "mosi-only-no-cs" {
					want = "MISO"
				}
				if p.LineName != want {
					t.Fatalf("packet %d: invalid line %q, want %q", i, p.LineName, want)
				}
			}
		})
	}

	pkts := decode(t, SPI, `{}`, spiWave(false, 4, 8, words...))
	if got, want := pkts[0].SampleStart, 12.0; got != want {
		t.Fatalf("invalid sample start: got=%v, want=%v", got, want)
	}
	if got, want := pkts[0].Length, 57.0; got != want {
		t.Fatalf("invalid length: got=%v, want=%v", got, want)
	}
}

// i2cWave renders I2C transfers on lines scl=1, sda=2.
type i2cWave struct {
	h   int
	out []byte
}

func (w *i2cWave) put(scl, sda bool) {
	var v byte
	if scl {
		v |= 1
	}
	if sda {
		v |= 2
	}
	for i := 0; i < w.h; i++ {
		w.out = append(w.out, v)
	}
}

func (w *i2cWave) start() {
	w.put(true, true)
	w.put(true, false)
	w.put(false, false)
}

func (w *i2cWave) restart() {
	w.put(false, true)
	w.put(true, true)
	w.put(true, false)
	w.put(false, false)
}

func (w *i2cWave) stop() {
	w.put(false, false)
	w.put(true, false)
	w.put(true, true)
}

func (w *i2cWave) byte(v byte, ack bool) {
	for k := 7; k >= 0; k-- {
		bit := (v>>k)&1 == 1
		w.put(false, bit)
		w.put(true, bit)
	}
	w.put(false, !ack)
	w.put(true, !ack)
}

func TestI2CDecoder(t *testing.T) {
	w := &i2cWave{h: 4}
	w.start()
	w.byte(0xa0, true)
	w.byte(0xa5, true)
	w.restart()
	w.byte(0xa1, true)
	w.byte(0x3c, false)
	w.stop()

	for _, tc := range []struct {
		name         string
		settings     string
		wAddr, rAddr uint32
	}{
		{"shifted", `{}`, 0x50, 0x50},
		{"unshifted", `{"address_format":1}`, 0xa0, 0xa1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pkts := decode(t, I2C, tc.settings, w.out)
			want := []ctrlData{
				{I2CStart, 0},
				{I2CAddressWrite, tc.wAddr},
				{I2CAck, 0},
				{I2CDataWrite, 0xa5},
				{I2CAck, 0},
				{I2CRepeatedStart, 0},
				{I2CAddressRead, tc.rAddr},
				{I2CAck, 0},
				{I2CDataRead, 0x3c},
				{I2CNack, 1},
				{I2CStop, 0},
			}
			if got := controls(pkts); !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, want)
			}
		})
	}
}

// canFrame returns the bits of a standard CAN data frame, including bit
// stuffing, a dominant ACK slot and the end of frame.
func canFrame(id uint32, data []byte, badCRC bool) []bool {
	var bits []bool
	push := func(v uint32, n int) {
		for k := n - 1; k >= 0; k-- {
			bits = append(bits, (v>>k)&1 == 1)
		}
	}
	push(0, 1) // SOF
	push(id, 11)
	push(0, 1) // RTR
	push(0, 1) // IDE
	push(0, 1) // r0
	push(uint32(len(data)), 4)
	for _, v := range data {
		push(uint32(v), 8)
	}
	var crc uint16
	for _, b := range bits {
		crc = crc15(crc, b)
	}
	if badCRC {
		crc ^= 1
	}
	push(uint32(crc), 15)

	var (
		out  []bool
		run  int
		last = true
	)
	for _, b := range bits {
		out = append(out, b)
		if b == last {
			run++
		} else {
			run, last = 1, b
		}
		if run == 5 {
			out = append(out, !b)
			run, last = 1, !b
		}
	}
	out = append(out, true, false, true) // CRC delimiter, ACK, ACK delimiter
	return append(out, ones(7)...)
}

func TestCANDecoder(t *testing.T) {
	const settings = `{"rx":1, "nominal_bitrate":500000, "acq_speed":8000000}`

	var bits []bool
	bits = append(bits, ones(3)...)
	bits = append(bits, canFrame(0x123, []byte{0xde, 0xad}, false)...)
	bits = append(bits, ones(3)...)
	bits = append(bits, canFrame(0x7ff, []byte{0x55}, false)...)
	bits = append(bits, ones(3)...)
	samples := expand(1, bits, 16)

	pkts := decode(t, CAN, settings, samples)
	want := []ctrlData{
		{CANStartOfFrame, 0},
		{CANID, 0x123},
		{CANRTR, 0},
		{CANIDE, 0},
		{CANReserved, 0},
		{CANDLC, 2},
		{CANData, 0xde},
		{CANData, 0xad},
		{CANCRC, 0x0b6e},
		{CANAck, 0},
		{CANEndOfFrame, 0},

		{CANStartOfFrame, 0},
		{CANID, 0x7ff},
		{CANRTR, 0},
		{CANIDE, 0},
		{CANReserved, 0},
		{CANDLC, 1},
		{CANData, 0x55},
		{CANCRC, 0x3984},
		{CANAck, 0},
		{CANEndOfFrame, 0},
	}
	if got := controls(pkts); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, want)
	}
	if got, want := pkts[0].SampleStart, 48.0; got != want {
		t.Fatalf("invalid SOF position: got=%v, want=%v", got, want)
	}

	t.Run("frame-limit", func(t *testing.T) {
		pkts := decode(t, CAN, `{"rx":1, "nominal_bitrate":500000, "acq_speed":8000000, "frame_limit":1}`, samples)
		if got := controls(pkts); !reflect.DeepEqual(got, want[:11]) {
			t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, want[:11])
		}
	})

	t.Run("crc-error", func(t *testing.T) {
		var bits []bool
		bits = append(bits, ones(3)...)
		bits = append(bits, canFrame(0x123, []byte{0xde, 0xad}, true)...)
		bits = append(bits, ones(3)...)
		pkts := decode(t, CAN, settings, expand(1, bits, 16))
		got := controls(pkts)
		if len(got) != 11 || got[8] != (ctrlData{CANCRCError, 0x0b6f}) {
			t.Fatalf("invalid packets: %v", got)
		}
	})

	t.Run("stuff-error", func(t *testing.T) {
		var bits []bool
		bits = append(bits, ones(3)...)
		bits = append(bits, make([]bool, 12)...)
		bits = append(bits, ones(10)...)
		pkts := decode(t, CAN, settings, expand(1, bits, 16))
		want := []ctrlData{{CANStartOfFrame, 0}, {CANStuffError, 0}}
		if got := controls(pkts); !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid packets:\ngot= %v\nwant=%v", got, want)
		}
	})
}

func TestCRC15(t *testing.T) {
	for _, tc := range []struct {
		bits []bool
		want uint16
	}{
		{nil, 0},
		{[]bool{false, false}, 0},
		{[]bool{true}, 0x4599},
		{[]bool{true, false}, 0x4eab},
	} {
		var crc uint16
		for _, b := range tc.bits {
			crc = crc15(crc, b)
		}
		if crc != tc.want {
			t.Errorf("crc15(%v): got=0x%x, want=0x%x", tc.bits, crc, tc.want)
		}
	}
}
