// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crc4_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/go-lpc/redpitaya/internal/crc4"
)

func TestCRC4(t *testing.T) {
	for _, tc := range []struct {
		raw  []byte
		want uint8
	}{
		{raw: nil, want: 0x0},
		{raw: []byte{0x0}, want: 0x0},
		{raw: []byte{0x1}, want: 0x3},
		{raw: []byte{0xff}, want: 0x4},
		{raw: []byte{0x1, 0x2, 0x3, 0x4, 0x5}, want: 0x9},
		{raw: []byte{0, 1, 2, 3, 4, 5, 6, 7}, want: 0xc},
		{raw: []byte("TEST str"), want: 0x4},
	} {
		t.Run(fmt.Sprintf("%x", tc.raw), func(t *testing.T) {
			crc := crc4.New()
			if got, want := crc.BlockSize(), 1; got != want {
				t.Fatalf("invalid crc4 block size: got=%d, want=%d", got, want)
			}
			if got, want := crc.Size(), crc4.Size; got != want {
				t.Fatalf("invalid crc4 size: got=%d, want=%d", got, want)
			}

			_, err := crc.Write([]byte{0xde, 0xad})
			if err != nil {
				t.Fatalf("could not write crc4 hash: %+v", err)
			}
			crc.Reset()

			// feed one byte at a time to exercise the running state.
			for i := range tc.raw {
				_, err = crc.Write(tc.raw[i : i+1])
				if err != nil {
					t.Fatalf("could not write crc4 hash: %+v", err)
				}
			}

			if got, want := crc.Sum8(), tc.want; got != want {
				t.Fatalf("invalid crc4 checksum: got=0x%x, want=0x%x", got, want)
			}

			if got, want := crc4.Checksum(tc.raw), tc.want; got != want {
				t.Fatalf("invalid crc4 checksum: got=0x%x, want=0x%x", got, want)
			}

			if got, want := crc.Sum([]byte{0xaa}), []byte{0xaa, tc.want}; !bytes.Equal(got, want) {
				t.Fatalf("invalid crc4 sum: got=0x%x, want=0x%x", got, want)
			}
		})
	}
}
