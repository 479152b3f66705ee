// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmap // import "github.com/go-lpc/redpitaya/internal/mmap"

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHandle(t *testing.T) {
	t.Run("nil-handle", func(t *testing.T) {
		var h *Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		err = h.Close()
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid close error: %+v", err)
		}
	})
	t.Run("nil-data", func(t *testing.T) {
		var h Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		err = h.Close()
		if err != nil {
			t.Fatalf("error closing nil-data handle: %+v", err)
		}
	})
}

func TestHandleFrom(t *testing.T) {
	h := HandleFrom([]byte{0, 1, 2, 3})

	if got, want := h.Len(), 4; got != want {
		t.Fatalf("invalid len: got=%d, want=%d", got, want)
	}

	if got, want := h.At(1), byte(1); got != want {
		t.Fatalf("invalid value: got=%d, want=%d", got, want)
	}

	_, err := h.ReadAt(nil, -1)
	if got, want := err.Error(), "mmap: invalid ReadAt offset -1"; got != want {
		t.Fatalf("invalid error: %+v", err)
	}

	buf := make([]byte, 3)
	n, err := h.ReadAt(buf, 2)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("invalid short read error: %+v", err)
	}
	if got, want := buf[:n], []byte{2, 3}; !bytes.Equal(got, want) {
		t.Fatalf("invalid read: got=%v, want=%v", got, want)
	}

	err = h.Close()
	if err != nil {
		t.Fatalf("could not close handle: %+v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		fname := filepath.Join(dir, "capture.bin")
		want := []byte{0xca, 0xfe, 0xfa, 0xde, 0x42}
		err := os.WriteFile(fname, want, 0644)
		if err != nil {
			t.Fatalf("could not create file: %+v", err)
		}

		h, err := Open(fname)
		if err != nil {
			t.Fatalf("could not mmap file: %+v", err)
		}
		defer h.Close()

		if got := h.Bytes(); !bytes.Equal(got, want) {
			t.Fatalf("invalid content: got=%x, want=%x", got, want)
		}

		err = h.Close()
		if err != nil {
			t.Fatalf("could not close mmap handle: %+v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		fname := filepath.Join(dir, "empty.bin")
		err := os.WriteFile(fname, nil, 0644)
		if err != nil {
			t.Fatalf("could not create file: %+v", err)
		}

		h, err := Open(fname)
		if err != nil {
			t.Fatalf("could not mmap empty file: %+v", err)
		}
		defer h.Close()

		if got, want := h.Len(), 0; got != want {
			t.Fatalf("invalid len: got=%d, want=%d", got, want)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "not-there.bin"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("invalid error: %+v", err)
		}
	})
}
