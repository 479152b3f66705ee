// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-lpc/redpitaya/internal/mmap"
)

func newTestController() *Controller {
	return NewController(WithLogger(log.New(io.Discard, "la: ", 0)))
}

// expand renders bits on the 1-based line, spb samples per bit.
// Other lines are kept low.
func expand(line uint32, bits []bool, spb int) []byte {
	out := make([]byte, 0, len(bits)*spb)
	for _, b := range bits {
		var v byte
		if b {
			v = 1 << (line - 1)
		}
		for i := 0; i < spb; i++ {
			out = append(out, v)
		}
	}
	return out
}

func ones(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

// uartFrame returns the bits of an 8-bit UART frame, LSB first, with
// an optional parity bit and one stop bit.
func uartFrame(v byte, parity []bool) []bool {
	bits := []bool{false}
	for i := 0; i < 8; i++ {
		bits = append(bits, v&(1<<i) != 0)
	}
	bits = append(bits, parity...)
	return append(bits, true)
}

func TestUnpack(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
		want []byte
		err  string
	}{
		{
			name: "empty",
			raw:  []byte{},
			want: []byte{},
		},
		{
			name: "runs",
			raw:  []byte{2, 0xa, 0, 0xb, 1, 0xc},
			want: []byte{0xa, 0xa, 0xa, 0xb, 0xc, 0xc},
		},
		{
			name: "odd",
			raw:  []byte{2, 0xa, 0},
			err:  "la: odd RLE stream length 3",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Unpack(tc.raw)
			switch {
			case err != nil && tc.err != "":
				if got, want := err.Error(), tc.err; got != want {
					t.Fatalf("invalid error: got=%q, want=%q", got, want)
				}
				return
			case err != nil:
				t.Fatalf("could not unpack: %+v", err)
			case tc.err != "":
				t.Fatalf("expected an error (%s)", tc.err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("invalid samples:\ngot= %v\nwant=%v", got, tc.want)
			}
		})
	}
}

func TestUnpackMapped(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		raw  []byte
		err  string
	}{
		{name: "runs", raw: Pack(append(make([]byte, 600), 3, 3, 7))},
		{name: "odd", raw: []byte{2, 0xa, 0}, err: "la: odd RLE stream length 3"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(dir, tc.name+".bin")
			err := os.WriteFile(fname, tc.raw, 0644)
			if err != nil {
				t.Fatal(err)
			}

			h, err := mmap.Open(fname)
			if err != nil {
				t.Fatalf("could not map file: %+v", err)
			}
			defer h.Close()

			got, err := unpack(h)
			want, werr := Unpack(tc.raw)
			if tc.err != "" {
				if err == nil || werr == nil {
					t.Fatalf("expected an error (%s)", tc.err)
				}
				if got, want := err.Error(), tc.err; got != want {
					t.Fatalf("invalid error: got=%q, want=%q", got, want)
				}
				return
			}
			if err != nil {
				t.Fatalf("could not unpack: %+v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("invalid samples:\ngot= %v\nwant=%v", got, want)
			}
		})
	}
}

func TestPack(t *testing.T) {
	samples := append(make([]byte, 300), 1, 1, 2)
	raw := Pack(samples)
	if got, want := raw, []byte{255, 0, 43, 0, 1, 1, 0, 2}; !bytes.Equal(got, want) {
		t.Fatalf("invalid RLE stream:\ngot= %v\nwant=%v", got, want)
	}

	got, err := Unpack(raw)
	if err != nil {
		t.Fatalf("could not unpack: %+v", err)
	}
	if !bytes.Equal(got, samples) {
		t.Fatalf("round trip failed")
	}
}

func TestDecoderSettings(t *testing.T) {
	c := newTestController()

	err := c.AddDecoder("uart", UART)
	if err != nil {
		t.Fatalf("could not add decoder: %+v", err)
	}
	err = c.AddDecoder("uart", SPI)
	if err == nil {
		t.Fatalf("expected an error on duplicate decoder")
	}

	got, err := c.DecoderSettings("uart")
	if err != nil {
		t.Fatalf("could not get settings: %+v", err)
	}
	want := `{"rx":1,"tx":0,"baudrate":9600,"invert":0,"bit_order":0,"num_data_bits":8,"parity":0,"num_stop_bits":2,"acq_speed":125000000}`
	if got != want {
		t.Fatalf("invalid default settings:\ngot= %s\nwant=%s", got, want)
	}

	err = c.SetDecoderSettings("uart", `{"baudrate": 115200, "parity": 1}`)
	if err != nil {
		t.Fatalf("could not set settings: %+v", err)
	}
	err = c.SetDecoderSettingsUInt("uart", "rx", 3)
	if err != nil {
		t.Fatalf("could not set rx: %+v", err)
	}

	want = `{"rx":3,"tx":0,"baudrate":115200,"invert":0,"bit_order":0,"num_data_bits":8,"parity":1,"num_stop_bits":2,"acq_speed":125000000}`
	got, _ = c.DecoderSettings("uart")
	if got != want {
		t.Fatalf("invalid settings:\ngot= %s\nwant=%s", got, want)
	}

	for _, tc := range []struct {
		name, json string
	}{
		{"unknown-key", `{"foo": 1}`},
		{"invalid-json", `{"rx": `},
		{"data-bits", `{"num_data_bits": 4}`},
		{"stop-bits", `{"num_stop_bits": 5}`},
		{"line", `{"rx": 9}`},
		{"no-line", `{"rx": 0, "tx": 0}`},
		{"slow-acq", `{"acq_speed": 1000}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := c.SetDecoderSettings("uart", tc.json)
			if err == nil {
				t.Fatalf("expected an error")
			}
			got, _ := c.DecoderSettings("uart")
			if got != want {
				t.Fatalf("settings modified by invalid update:\ngot= %s\nwant=%s", got, want)
			}
		})
	}

	for _, typ := range []DecoderType{SPI, I2C, CAN} {
		err := c.AddDecoder(typ.String(), typ)
		if err != nil {
			t.Fatalf("could not add %v decoder: %+v", typ, err)
		}
	}
	err = c.SetDecoderSettingsUInt("CAN", "sample_point", 75)
	if err != nil {
		t.Fatalf("could not set CAN sample point: %+v", err)
	}
	got, _ = c.DecoderSettings("CAN")
	want = `{"rx":1,"nominal_bitrate":500000,"sample_point":75,"frame_limit":0,"invert":0,"acq_speed":125000000}`
	if got != want {
		t.Fatalf("invalid CAN settings:\ngot= %s\nwant=%s", got, want)
	}

	if got, want := c.Decoders(), []string{"CAN", "I2C", "SPI", "uart"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid decoders: got=%q, want=%q", got, want)
	}

	err = c.RemoveDecoder("SPI")
	if err != nil {
		t.Fatalf("could not remove decoder: %+v", err)
	}
	err = c.RemoveDecoder("SPI")
	if err == nil {
		t.Fatalf("expected an error removing an unknown decoder")
	}
	_, err = c.DecoderSettings("SPI")
	if err == nil {
		t.Fatalf("expected an error on unknown decoder")
	}
	_, err = c.Decode("SPI")
	if !errors.Is(err, ErrUnknownDecoder) {
		t.Fatalf("invalid error: %+v", err)
	}
	if got := c.DecodedData("SPI"); got != nil {
		t.Fatalf("unexpected decoded data: %v", got)
	}
}

func TestParseDecoderType(t *testing.T) {
	for _, typ := range []DecoderType{UART, SPI, I2C, CAN} {
		got, err := ParseDecoderType(typ.String())
		if err != nil {
			t.Fatalf("could not parse %v: %+v", typ, err)
		}
		if got != typ {
			t.Fatalf("invalid type: got=%v, want=%v", got, typ)
		}
	}
	_, err := ParseDecoderType("JTAG")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestParseEdge(t *testing.T) {
	for _, e := range []Edge{Rising, Falling, RisingOrFalling, High, Low} {
		got, err := ParseEdge(e.String())
		if err != nil {
			t.Fatalf("could not parse %v: %+v", e, err)
		}
		if got != e {
			t.Fatalf("invalid edge: got=%v, want=%v", got, e)
		}
	}
	_, err := ParseEdge("EDGE")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestAnnotation(t *testing.T) {
	for _, tc := range []struct {
		typ  DecoderType
		ctrl uint8
		want string
	}{
		{UART, UARTData, "DATA"},
		{UART, UARTParityError, "PARITY ERROR"},
		{SPI, SPIPartialData, "PARTIAL DATA"},
		{I2C, I2CAddressRead, "ADDRESS READ"},
		{CAN, CANCRCError, "CRC ERROR"},
		{CAN, 0, "UNKNOWN(0)"},
		{DecoderType(42), 1, "UNKNOWN(1)"},
	} {
		if got := Annotation(tc.typ, tc.ctrl); got != tc.want {
			t.Errorf("%v/%d: got=%q, want=%q", tc.typ, tc.ctrl, got, tc.want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	c := newTestController()
	err := c.LoadFromFile("testdata/uart_dump.bin", true, 0)
	if err != nil {
		t.Fatalf("could not load capture: %+v", err)
	}

	if got, want := c.CapturedDataSize(), 142; got != want {
		t.Fatalf("invalid data size: got=%d, want=%d", got, want)
	}
	if got, want := c.CapturedSamples(), 1840; got != want {
		t.Fatalf("invalid samples: got=%d, want=%d", got, want)
	}
	dump, err := os.ReadFile("testdata/uart_dump.bin")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Data(), dump; !bytes.Equal(got, want) {
		t.Fatalf("invalid captured bytes")
	}

	err = c.AddDecoder("UART", UART)
	if err != nil {
		t.Fatalf("could not add decoder: %+v", err)
	}
	raw, err := os.ReadFile("testdata/uart_settings.json")
	if err != nil {
		t.Fatalf("could not read settings: %+v", err)
	}
	err = c.SetDecoderSettings("UART", string(raw))
	if err != nil {
		t.Fatalf("could not set settings: %+v", err)
	}

	pkts, err := c.Decode("UART")
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	if got, want := len(pkts), 33; got != want {
		t.Fatalf("invalid number of packets: got=%d, want=%d", got, want)
	}

	var msg []byte
	for _, p := range pkts {
		switch p.Control {
		case UARTData:
			msg = append(msg, byte(p.Data))
		case UARTStartBit, UARTStopBit:
		default:
			t.Fatalf("unexpected packet %v (%s)", p, Annotation(UART, p.Control))
		}
	}
	if got, want := string(msg), "Red Pitaya\n"; got != want {
		t.Fatalf("invalid message: got=%q, want=%q", got, want)
	}
	if got, want := c.DecodedData("UART"), pkts; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid decoded data")
	}

	fname := filepath.Join(t.TempDir(), "dump.bin")
	err = c.SaveCaptureDataToFile(fname)
	if err != nil {
		t.Fatalf("could not save capture: %+v", err)
	}
	got, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read back capture: %+v", err)
	}
	if !bytes.Equal(got, dump) {
		t.Fatalf("invalid saved capture")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	odd := filepath.Join(dir, "odd.bin")
	err := os.WriteFile(odd, []byte{1, 2, 3}, 0644)
	if err != nil {
		t.Fatal(err)
	}

	c := newTestController()
	for _, tc := range []struct {
		name  string
		fname string
		rle   bool
		trig  int
	}{
		{"missing", filepath.Join(dir, "missing.bin"), false, 0},
		{"odd", odd, true, 0},
		{"trigger", odd, false, 3},
		{"negative-trigger", odd, false, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := c.LoadFromFile(tc.fname, tc.rle, tc.trig)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	err = c.LoadFromFile("testdata/uart_dump.bin", true, 0)
	if err != nil {
		t.Fatalf("could not load capture: %+v", err)
	}
	prev := c.raw

	err = c.LoadFromFile(odd, false, 2)
	if err != nil {
		t.Fatalf("could not load raw capture: %+v", err)
	}
	if prev.Len() != 0 {
		t.Fatalf("previous capture file still mapped")
	}
	if got, want := c.UnpackedData(), []byte{1, 2, 3}; !bytes.Equal(got, want) {
		t.Fatalf("invalid samples: got=%v, want=%v", got, want)
	}
	if got, want := c.Trigger(), 2; got != want {
		t.Fatalf("invalid trigger: got=%d, want=%d", got, want)
	}
}

func TestPrintRLE(t *testing.T) {
	c := newTestController()
	err := c.setData(mmap.HandleFrom([]byte{2, 0x01, 0, 0x80}), true, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		full bool
		want string
	}{
		{
			full: false,
			want: `       0: 0x01 00000001 x 3
       3: 0x80 10000000 x 1
`,
		},
		{
			full: true,
			want: `       0: 0x01 00000001
       1: 0x01 00000001
       2: 0x01 00000001
       3: 0x80 10000000
`,
		},
	} {
		o := new(strings.Builder)
		c.PrintRLE(o, tc.full)
		if got := o.String(); got != tc.want {
			t.Fatalf("invalid output (full=%v):\ngot:\n%s\nwant:\n%s", tc.full, got, tc.want)
		}
	}
}

type recorder struct {
	mu      sync.Mutex
	timeout bool
	samples int
	pre     int
	decoded []string
}

func (r *recorder) CaptureStatus(c *Controller, timeout bool, nbytes, samples, pre, post int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = timeout
	r.samples = samples
	r.pre = pre
}

func (r *recorder) DecodeDone(c *Controller, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoded = append(r.decoded, name)
}

func TestRunAsync(t *testing.T) {
	var bits []bool
	bits = append(bits, ones(4)...)
	bits = append(bits, uartFrame('O', nil)...)
	bits = append(bits, uartFrame('K', nil)...)
	bits = append(bits, ones(4)...)
	samples := expand(1, bits, 16)

	c := newTestController()
	cb := new(recorder)
	c.SetDelegate(cb)
	c.SetEnableRLE(true)
	c.SetDecimation(1)
	c.SetTrigger(0, Falling)
	c.SetPreTriggerSamples(10)
	c.SetPostTriggerSamples(0)

	err := c.AddDecoder("UART", UART)
	if err != nil {
		t.Fatal(err)
	}
	err = c.SetDecoderSettings("UART", `{"rx":1, "baudrate":9600, "acq_speed":153600}`)
	if err != nil {
		t.Fatal(err)
	}

	err = c.RunAsync(context.Background(), NewBufferSource(samples))
	if err != nil {
		t.Fatalf("could not start capture: %+v", err)
	}
	if c.Wait(5 * time.Second) {
		t.Fatalf("capture timed out")
	}
	if err := c.Err(); err != nil {
		t.Fatalf("capture failed: %+v", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.timeout {
		t.Fatalf("unexpected timeout")
	}
	// trigger on the first start bit, 10 samples of pre-trigger.
	if got, want := cb.samples, len(samples)-64+10; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if got, want := cb.pre, 10; got != want {
		t.Fatalf("invalid pre-trigger: got=%d, want=%d", got, want)
	}
	if got, want := cb.decoded, []string{"UART"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid decode notifications: got=%q, want=%q", got, want)
	}

	var msg []byte
	for _, p := range c.DecodedData("UART") {
		if p.Control == UARTData {
			msg = append(msg, byte(p.Data))
		}
	}
	if got, want := string(msg), "OK"; got != want {
		t.Fatalf("invalid message: got=%q, want=%q", got, want)
	}
	if got, want := c.CapturedDataSize(), len(Pack(samples[54:])); got != want {
		t.Fatalf("invalid data size: got=%d, want=%d", got, want)
	}
}

func TestRunAsyncTimeout(t *testing.T) {
	c := newTestController()
	cb := new(recorder)
	c.SetDelegate(cb)
	c.SetTrigger(3, Rising)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.RunAsync(ctx, NewBufferSource(make([]byte, 128)))
	if err != nil {
		t.Fatalf("could not start capture: %+v", err)
	}
	if c.Wait(5 * time.Second) {
		t.Fatalf("capture did not complete")
	}
	if err := c.Err(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("invalid error: %+v", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.timeout {
		t.Fatalf("expected a timeout status")
	}
}

func TestWait(t *testing.T) {
	c := newTestController()
	if c.Wait(time.Millisecond) {
		t.Fatalf("wait without capture should not time out")
	}

	release := make(chan struct{})
	src := SourceFunc(func(ctx context.Context, req Request) ([]byte, int, error) {
		<-release
		return []byte{1, 2, 3}, 0, nil
	})

	err := c.RunAsync(context.Background(), src)
	if err != nil {
		t.Fatalf("could not start capture: %+v", err)
	}
	err = c.RunAsync(context.Background(), src)
	if err == nil {
		t.Fatalf("expected an error on concurrent capture")
	}

	if !c.Wait(time.Millisecond) {
		t.Fatalf("expected a timeout")
	}
	close(release)
	if c.Wait(0) {
		t.Fatalf("unexpected timeout")
	}
	if got, want := c.UnpackedData(), []byte{1, 2, 3}; !bytes.Equal(got, want) {
		t.Fatalf("invalid samples: got=%v, want=%v", got, want)
	}
}

func TestRunAsyncErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		set  func(c *Controller)
	}{
		{"decimation", func(c *Controller) { c.SetDecimation(0) }},
		{"line", func(c *Controller) { c.SetTrigger(8, Rising) }},
		{"edge", func(c *Controller) { c.SetTrigger(1, Edge(42)) }},
		{"pre", func(c *Controller) { c.SetPreTriggerSamples(-1) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestController()
			tc.set(c)
			err := c.RunAsync(context.Background(), NewBufferSource(nil))
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	c := newTestController()
	src := SourceFunc(func(ctx context.Context, req Request) ([]byte, int, error) {
		return nil, 0, io.ErrUnexpectedEOF
	})
	err := c.RunAsync(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	c.Wait(0)
	if err := c.Err(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestBufferSource(t *testing.T) {
	samples := []byte{0, 0, 1, 1, 0, 0, 2, 2, 0, 0}
	for _, tc := range []struct {
		name string
		req  Request
		want []byte
		trig int
	}{
		{
			name: "no-trigger",
			req:  Request{Decimation: 1, Line: -1},
			want: samples,
		},
		{
			name: "decimation",
			req:  Request{Decimation: 2, Line: -1},
			want: []byte{0, 1, 0, 2, 0},
		},
		{
			name: "rising",
			req:  Request{Decimation: 1, Line: 1, Edge: Rising, Pre: 1, Post: 2},
			want: []byte{0, 2, 2},
			trig: 1,
		},
		{
			name: "falling",
			req:  Request{Decimation: 1, Line: 0, Edge: Falling, Pre: 8},
			want: []byte{0, 0, 1, 1, 0, 0, 2, 2, 0, 0},
			trig: 4,
		},
		{
			name: "rising-or-falling",
			req:  Request{Decimation: 1, Line: 0, Edge: RisingOrFalling, Post: 3},
			want: []byte{1, 1, 0},
		},
		{
			name: "high",
			req:  Request{Decimation: 1, Line: 1, Edge: High},
			want: []byte{2, 2, 0, 0},
		},
		{
			name: "low",
			req:  Request{Decimation: 1, Line: 0, Edge: Low, Post: 1},
			want: []byte{0},
		},
		{
			name: "rle",
			req:  Request{RLE: true, Decimation: 1, Line: -1},
			want: []byte{1, 0, 1, 1, 1, 0, 1, 2, 1, 0},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw, trig, err := NewBufferSource(samples).Capture(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("could not capture: %+v", err)
			}
			if !bytes.Equal(raw, tc.want) {
				t.Fatalf("invalid capture:\ngot= %v\nwant=%v", raw, tc.want)
			}
			if trig != tc.trig {
				t.Fatalf("invalid trigger: got=%d, want=%d", trig, tc.trig)
			}
		})
	}
}
