// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package streamio

import "fmt"

// SizeMismatchError is returned by Init when the declared size doesn't
// match the stream length the writer was constructed with.
type SizeMismatchError struct {
	Declared, Expected int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("chunked writer: init size %d does not match declared stream length %d", e.Declared, e.Expected)
}

// StreamOverflowError is returned when more bytes are written than the
// declared stream length.
type StreamOverflowError struct {
	Limit int64
}

func (e *StreamOverflowError) Error() string {
	return fmt.Sprintf("chunked writer: stream exceeded declared length of %d bytes", e.Limit)
}

// Consumer receives fixed-size chunks (and a single shorter tail chunk)
// as a ChunkedWriter coalesces arbitrary writes.
type Consumer func(buf []byte) error

// ChunkedWriter converts arbitrary-sized writes into fixed-size chunk
// deliveries to a downstream Consumer, sized for a transport (like
// fastboot's bounded download buffer) that only accepts chunks of a
// declared maximum size. The final chunk, when the stream length isn't
// an exact multiple of chunkSize, is shorter.
type ChunkedWriter struct {
	chunkSize      int64
	consume        Consumer
	expectedLength int64
	streamLength   int64

	buf         []byte
	delivered   int64
	initialized bool
}

// New builds a ChunkedWriter that hands consumer fixed-size slices of
// chunkSize bytes, with a single shorter final chunk. streamLength is
// the total byte count the caller declares up front; Init must later be
// called with a matching size (spec.md §4.5) or it fails with
// SizeMismatchError.
func New(chunkSize, streamLength int64, consumer Consumer) *ChunkedWriter {
	return &ChunkedWriter{
		chunkSize:      chunkSize,
		consume:        consumer,
		expectedLength: streamLength,
	}
}

// Init declares the total stream length. size must equal the
// streamLength New was constructed with; a mismatch fails fast with
// SizeMismatchError rather than silently truncating or padding later.
func (w *ChunkedWriter) Init(size int64) error {
	if size != w.expectedLength {
		return &SizeMismatchError{Declared: size, Expected: w.expectedLength}
	}
	w.streamLength = size
	w.initialized = true
	w.buf = make([]byte, 0, w.chunkSize)
	return nil
}

// Write accepts an arbitrarily sized slice, coalescing it into the
// internal buffer and flushing full chunkSize chunks to the consumer as
// they fill. Writes that are exactly chunk-aligned with an empty
// internal buffer bypass the buffer entirely and are forwarded without a
// copy.
func (w *ChunkedWriter) Write(p []byte) (int, error) {
	if !w.initialized {
		return 0, fmt.Errorf("chunked writer: Write called before Init")
	}

	total := w.delivered + int64(len(w.buf)) + int64(len(p))
	if total > w.streamLength {
		return 0, &StreamOverflowError{Limit: w.streamLength}
	}

	n := 0
	for len(p) > 0 {
		if len(w.buf) == 0 && int64(len(p)) >= w.chunkSize {
			chunk := p[:w.chunkSize]
			if err := w.consume(chunk); err != nil {
				return n, err
			}
			w.delivered += w.chunkSize
			n += int(w.chunkSize)
			p = p[w.chunkSize:]
			continue
		}

		room := int(w.chunkSize) - len(w.buf)
		take := len(p)
		if take > room {
			take = room
		}
		w.buf = append(w.buf, p[:take]...)
		p = p[take:]
		n += take

		if int64(len(w.buf)) == w.chunkSize {
			if err := w.consume(w.buf); err != nil {
				return n, err
			}
			w.delivered += int64(len(w.buf))
			w.buf = w.buf[:0]
		}
	}

	// If everything observed so far exactly accounts for the declared
	// length, any buffered tail must be flushed now rather than waiting
	// for a Write that will never come.
	if w.delivered+int64(len(w.buf)) == w.streamLength && len(w.buf) > 0 {
		if err := w.consume(w.buf); err != nil {
			return n, err
		}
		w.delivered += int64(len(w.buf))
		w.buf = w.buf[:0]
	}

	return n, nil
}

// Finish returns the total number of bytes handed to the consumer.
func (w *ChunkedWriter) Finish() int64 {
	return w.delivered
}
