// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"errors"
	"fmt"
)

// CAN packet controls.
const (
	CANStartOfFrame uint8 = iota + 1
	CANID
	CANExtendedID
	CANIDE
	CANRTR
	CANReserved
	CANDLC
	CANData
	CANCRC
	CANCRCError
	CANAck
	CANNack
	CANEndOfFrame
	CANStuffError
	CANFormError
)

// CANSettings configures a CAN decoder.
type CANSettings struct {
	RX             uint32  `json:"rx"`
	NominalBitrate uint32  `json:"nominal_bitrate"` // in bit/s
	SamplePoint    float64 `json:"sample_point"`    // in percent of the bit time
	FrameLimit     uint32  `json:"frame_limit"`     // 0: no limit
	Invert         uint32  `json:"invert"`
	AcqSpeed       uint32  `json:"acq_speed"`
}

const crc15Poly = 0x4599

type canDecoder struct {
	cfg CANSettings
}

func newCANDecoder() *canDecoder {
	return &canDecoder{
		cfg: CANSettings{
			RX:             1,
			NominalBitrate: 500000,
			SamplePoint:    87.5,
			AcqSpeed:       defAcqSpeed,
		},
	}
}

func (dec *canDecoder) settings() interface{} { return &dec.cfg }

func (dec *canDecoder) validate() error {
	cfg := dec.cfg
	if err := checkLine("rx", cfg.RX, true); err != nil {
		return err
	}
	switch {
	case cfg.NominalBitrate == 0:
		return errors.New("invalid null bitrate")
	case cfg.AcqSpeed < 2*cfg.NominalBitrate:
		return fmt.Errorf("acquisition speed %d Hz too low for %d bit/s", cfg.AcqSpeed, cfg.NominalBitrate)
	case cfg.SamplePoint <= 0 || cfg.SamplePoint >= 100:
		return fmt.Errorf("invalid sample point %g%%", cfg.SamplePoint)
	case cfg.Invert > 1:
		return fmt.Errorf("invalid invert flag %d", cfg.Invert)
	}
	return nil
}

func (dec *canDecoder) decode(samples []byte) []Packet {
	var (
		cfg    = dec.cfg
		pkts   []Packet
		frames uint32
	)
	r := canReader{
		samples: samples,
		line:    cfg.RX,
		inv:     cfg.Invert != 0,
		bitw:    float64(cfg.AcqSpeed) / float64(cfg.NominalBitrate),
		sp:      cfg.SamplePoint / 100,
	}

	for i := 1; i < len(samples); i++ {
		if cfg.FrameLimit > 0 && frames >= cfg.FrameLimit {
			break
		}
		// start of frame: recessive to dominant transition.
		if !r.lvl(i-1) || r.lvl(i) {
			continue
		}
		r.reset(float64(i))
		pkts = r.frame(pkts)
		if r.eof {
			break
		}
		if r.sof {
			frames++
		}
		if next := int(r.pos) - 1; next > i {
			i = next
		}
	}
	return pkts
}

var errCANStuff = errors.New("la: CAN stuff error")

// canReader reads the bits of a CAN frame.
// Levels are logic levels: dominant is false, recessive is true.
type canReader struct {
	samples []byte
	line    uint32
	inv     bool
	bitw    float64
	sp      float64

	pos   float64 // start of the next bit
	stuff bool    // bit stuffing enabled
	run   int     // number of consecutive identical bits
	last  bool
	crc   uint16
	sof   bool // start of frame seen
	eof   bool // ran out of samples
	err   error
}

func (r *canReader) lvl(i int) bool {
	return level(r.samples[i], r.line, r.inv)
}

func (r *canReader) reset(pos float64) {
	r.pos = pos
	r.stuff = true
	r.run = 0
	r.last = true
	r.crc = 0
	r.sof = false
	r.eof = false
	r.err = nil
}

// raw reads the next bit on the wire, resynchronizing on edges found
// within half a bit of the nominal bit boundary.
func (r *canReader) raw() bool {
	if r.err != nil {
		return true
	}
	s := int(r.pos + r.sp*r.bitw)
	if s >= len(r.samples) {
		r.eof = true
		r.err = errors.New("la: CAN frame truncated")
		return true
	}
	bit := r.lvl(s)

	next := r.pos + r.bitw
	hi := int(next + r.bitw/2)
	for j := s + 1; j <= hi && j < len(r.samples); j++ {
		if r.lvl(j) != r.lvl(j-1) {
			next = float64(j)
			break
		}
	}
	r.pos = next
	return bit
}

// bit reads the next destuffed bit.
func (r *canReader) bit() bool {
	b := r.raw()
	if !r.stuff || r.err != nil {
		return b
	}
	if r.run == 5 {
		if b == r.last {
			r.err = errCANStuff
			return b
		}
		r.run, r.last = 1, b
		b = r.raw()
		if r.err != nil {
			return b
		}
	}
	if b == r.last {
		r.run++
	} else {
		r.run, r.last = 1, b
	}
	return b
}

// field reads n destuffed bits, MSB first, updating the CRC.
func (r *canReader) field(n int) (v uint32, beg float64) {
	beg = r.pos
	for k := 0; k < n; k++ {
		b := r.bit()
		if r.err != nil {
			return v, beg
		}
		r.crc = crc15(r.crc, b)
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, beg
}

func (r *canReader) packet(ctrl uint8, v uint32, beg float64) Packet {
	return Packet{
		LineName:    "RX",
		Control:     ctrl,
		Data:        v,
		SampleStart: beg,
		Length:      r.pos - beg,
	}
}

func (r *canReader) frame(pkts []Packet) []Packet {
	fail := func(beg float64) []Packet {
		if r.eof {
			return pkts
		}
		ctrl := CANFormError
		if errors.Is(r.err, errCANStuff) {
			ctrl = CANStuffError
		}
		return append(pkts, r.packet(ctrl, 0, beg))
	}

	sof, beg := r.field(1)
	if r.err != nil || sof != 0 {
		return pkts
	}
	r.sof = true
	pkts = append(pkts, r.packet(CANStartOfFrame, 0, beg))

	id, beg := r.field(11)
	if r.err != nil {
		return fail(beg)
	}
	pkts = append(pkts, r.packet(CANID, id, beg))

	rtr, rbeg := r.field(1)
	rlen := r.pos - rbeg
	ide, beg := r.field(1)
	if r.err != nil {
		return fail(beg)
	}

	if ide == 0 {
		p := r.packet(CANRTR, rtr, rbeg)
		p.Length = rlen
		pkts = append(pkts, p, r.packet(CANIDE, ide, beg))
		res, beg := r.field(1)
		if r.err != nil {
			return fail(beg)
		}
		pkts = append(pkts, r.packet(CANReserved, res, beg))
	} else {
		pkts = append(pkts, r.packet(CANIDE, ide, beg))
		eid, beg := r.field(18)
		if r.err != nil {
			return fail(beg)
		}
		pkts = append(pkts, r.packet(CANExtendedID, id<<18|eid, beg))
		rtr, rbeg = r.field(1)
		if r.err != nil {
			return fail(rbeg)
		}
		pkts = append(pkts, r.packet(CANRTR, rtr, rbeg))
		res, beg := r.field(2)
		if r.err != nil {
			return fail(beg)
		}
		pkts = append(pkts, r.packet(CANReserved, res, beg))
	}

	dlc, beg := r.field(4)
	if r.err != nil {
		return fail(beg)
	}
	pkts = append(pkts, r.packet(CANDLC, dlc, beg))

	if rtr == 0 {
		n := int(dlc)
		if n > 8 {
			n = 8
		}
		for k := 0; k < n; k++ {
			v, beg := r.field(8)
			if r.err != nil {
				return fail(beg)
			}
			pkts = append(pkts, r.packet(CANData, v, beg))
		}
	}

	want := r.crc
	crc, beg := r.field(15)
	if r.err != nil {
		return fail(beg)
	}
	ctrl := CANCRC
	if uint16(crc) != want {
		ctrl = CANCRCError
	}
	pkts = append(pkts, r.packet(ctrl, crc, beg))

	if r.run == 5 {
		beg = r.pos
		if r.raw() == r.last && r.err == nil {
			r.err = errCANStuff
		}
		if r.err != nil {
			return fail(beg)
		}
	}
	r.stuff = false
	beg = r.pos
	if !r.raw() {
		r.err = errors.New("la: CAN CRC delimiter not recessive")
		return fail(beg)
	}

	beg = r.pos
	ack := r.raw()
	if r.err != nil {
		return fail(beg)
	}
	ctrl = CANAck
	if ack {
		ctrl = CANNack
	}
	pkts = append(pkts, r.packet(ctrl, 0, beg))

	beg = r.pos
	for k := 0; k < 8; k++ {
		// ACK delimiter and end of frame.
		if !r.raw() {
			if r.err == nil {
				r.err = errors.New("la: CAN end of frame not recessive")
			}
			return fail(beg)
		}
	}
	return append(pkts, r.packet(CANEndOfFrame, 0, beg))
}

func crc15(crc uint16, bit bool) uint16 {
	msb := crc&0x4000 != 0
	crc = (crc << 1) & 0x7fff
	if msb != bit {
		crc ^= crc15Poly
	}
	return crc
}
