// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package streamio provides the random-access entry reader and the
// fixed-chunk write adapter the flash driver needs to move partition
// images between a zip-like container and a bounded-transfer wire
// protocol without buffering a whole partition in memory.
package streamio

import (
	"fmt"
	"io"

	"go.flashforge.dev/flashforge/archive"
)

// EntryReader is a random-access byte reader over a single archive
// entry. For a stored (uncompressed) entry, ReadAt slices the outer
// archive blob directly — no copy beyond what that slice costs. For a
// compressed entry it falls back to a one-shot decoded in-memory copy,
// per spec.md §4.4 and §9's noted limitation on constrained hosts.
type EntryReader struct {
	entry archive.Entry
	ar    archive.Archive

	// decoded is populated lazily on first read of a compressed entry.
	decoded []byte
}

// NewEntryReader builds a reader over the named archive entry.
func NewEntryReader(ar archive.Archive, name string) (*EntryReader, error) {
	e, ok := ar.Entry(name)
	if !ok {
		return nil, fmt.Errorf("no such archive entry: %q", name)
	}
	return &EntryReader{entry: e, ar: ar}, nil
}

// Size returns the entry's logical size: the uncompressed size in every
// case, since that's the definition a caller streams against regardless
// of on-disk compression.
func (r *EntryReader) Size() int64 {
	return r.entry.UncompressedSize
}

// clamp maps an index that may run negative or past the end of the
// entry into [0, size], per spec.md §4.4's ClampRange.
func clamp(i, size int64) int64 {
	if i < 0 {
		i += size
		if i < 0 {
			i = 0
		}
		return i
	}
	if i > size {
		return size
	}
	return i
}

// ReadRange returns the bytes in the logical half-open range [start,
// end) of the entry's uncompressed payload, after clamping both bounds
// into [0, Size()].
func (r *EntryReader) ReadRange(start, end int64) ([]byte, error) {
	size := r.Size()
	start = clamp(start, size)
	end = clamp(end, size)
	if end < start {
		end = start
	}

	if r.entry.Method == archive.MethodStored {
		buf := make([]byte, end-start)
		off := r.entry.Offset + r.entry.LocalHeaderSize + start
		if _, err := r.ar.OuterBlob().ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("reading stored entry %q: %w", r.entry.Name, err)
		}
		return buf, nil
	}

	if r.decoded == nil {
		d, err := r.ar.Decode(r.entry.Name)
		if err != nil {
			return nil, fmt.Errorf("decoding compressed entry %q: %w", r.entry.Name, err)
		}
		r.decoded = d
	}
	return r.decoded[start:end], nil
}

// ReadAll returns the entry's full decoded payload.
func (r *EntryReader) ReadAll() ([]byte, error) {
	return r.ReadRange(0, r.Size())
}

// sequentialGulp bounds how much of a stored entry NewReader pulls from
// the outer blob per Read call, so a caller streaming a multi-gigabyte
// partition image through io.Copy never holds more than one gulp.
const sequentialGulp = 1 << 20 // 1 MiB

// sequentialReader adapts an EntryReader into a plain forward-only
// io.Reader, suitable for handing to a FastbootSession.Flash call or to
// a ChunkedWriter.
type sequentialReader struct {
	r   *EntryReader
	pos int64
}

// NewReader returns a sequential io.Reader over the entry's full
// payload, for the common case of handing a stream straight to the
// transport collaborator.
func (r *EntryReader) NewReader() io.Reader {
	return &sequentialReader{r: r}
}

func (s *sequentialReader) Read(p []byte) (int, error) {
	if s.pos >= s.r.Size() {
		return 0, io.EOF
	}
	end := s.pos + int64(len(p))
	gulp := s.pos + sequentialGulp
	if gulp < end {
		end = gulp
	}
	buf, err := s.r.ReadRange(s.pos, end)
	if err != nil {
		return 0, err
	}
	n := copy(p, buf)
	s.pos += int64(n)
	return n, nil
}
