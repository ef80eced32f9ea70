// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package streamio

import (
	"bytes"
	"testing"
)

func collectChunks(t *testing.T, chunkSize int64, input []byte) ([][]byte, *ChunkedWriter) {
	t.Helper()
	var chunks [][]byte
	w := New(chunkSize, int64(len(input)), func(buf []byte) error {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		chunks = append(chunks, cp)
		return nil
	})
	if err := w.Init(int64(len(input))); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return chunks, w
}

func TestChunkedWriter_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int64
		length    int
	}{
		{"exact multiple", 4, 12},
		{"short tail", 4, 10},
		{"single byte tail", 5, 11},
		{"shorter than one chunk", 10, 3},
		{"empty", 8, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := make([]byte, tc.length)
			for i := range input {
				input[i] = byte(i)
			}

			chunks, w := collectChunks(t, tc.chunkSize, input)

			var got []byte
			for i, c := range chunks {
				if i != len(chunks)-1 && int64(len(c)) != tc.chunkSize {
					t.Errorf("chunk %d has length %d, want %d", i, len(c), tc.chunkSize)
				}
				got = append(got, c...)
			}
			if !bytes.Equal(got, input) {
				t.Errorf("delivered bytes do not match input")
			}
			if tc.length > 0 {
				lastLen := int64(len(chunks[len(chunks)-1]))
				wantLast := ((int64(tc.length) - 1) % tc.chunkSize) + 1
				if lastLen != wantLast {
					t.Errorf("last chunk length = %d, want %d", lastLen, wantLast)
				}
			}
			if w.Finish() != int64(tc.length) {
				t.Errorf("Finish() = %d, want %d", w.Finish(), tc.length)
			}
		})
	}
}

func TestChunkedWriter_AlignedWritesBypassBuffer(t *testing.T) {
	var chunks [][]byte
	w := New(4, 8, func(buf []byte) error {
		chunks = append(chunks, buf)
		return nil
	})
	if err := w.Init(8); err != nil {
		t.Fatalf("Init: %v", err)
	}
	input := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Each delivered chunk should alias the original slice's backing
	// array when the write was chunk-aligned (no internal buffer copy).
	if &chunks[0][0] != &input[0] {
		t.Errorf("expected first aligned chunk to bypass internal buffer")
	}
}

func TestChunkedWriter_SplitAcrossWrites(t *testing.T) {
	var chunks [][]byte
	w := New(4, 6, func(buf []byte) error {
		cp := append([]byte(nil), buf...)
		chunks = append(chunks, cp)
		return nil
	})
	if err := w.Init(6); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := w.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if _, err := w.Write([]byte{4, 5, 6}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	want := [][]byte{{1, 2, 3, 4}, {5, 6}}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if !bytes.Equal(chunks[i], want[i]) {
			t.Errorf("chunk %d = %v, want %v", i, chunks[i], want[i])
		}
	}
}

func TestChunkedWriter_Overflow(t *testing.T) {
	w := New(4, 4, func(buf []byte) error { return nil })
	if err := w.Init(4); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, err := w.Write([]byte{1, 2, 3, 4, 5})
	if _, ok := err.(*StreamOverflowError); !ok {
		t.Fatalf("expected StreamOverflowError, got %v (%T)", err, err)
	}
}

func TestChunkedWriter_SizeMismatch(t *testing.T) {
	w := New(4, 10, func(buf []byte) error { return nil })
	err := w.Init(8)
	mismatch, ok := err.(*SizeMismatchError)
	if !ok {
		t.Fatalf("expected SizeMismatchError, got %v (%T)", err, err)
	}
	if mismatch.Declared != 8 || mismatch.Expected != 10 {
		t.Errorf("SizeMismatchError = %+v, want Declared=8 Expected=10", mismatch)
	}
}
