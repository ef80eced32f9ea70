// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package archive declares the collaborator contract the flash driver
// consumes for reading an optimized factory archive. Central-directory
// decoding, CRC validation, and inflate are explicitly out of scope for
// the core (spec.md §1) — this package only names the shapes the core
// needs from whatever does that work. The concrete implementation lives
// in package zipfile.
package archive

import "io"

// CompressionMethod mirrors the zip central-directory compression
// method field. Method 0 is "stored" (no compression); anything else is
// some flavor of deflate/etc that must be decoded before use.
type CompressionMethod uint16

const (
	MethodStored CompressionMethod = 0
)

// Entry is the metadata the core needs about a single archive member.
// The core assumes central-directory correctness: it never re-derives
// these fields from the raw bytes itself.
type Entry struct {
	// Name is the full path of the entry within the archive, e.g.
	// "raven/boot.img".
	Name string

	// UncompressedSize is the decoded size of the entry's payload.
	UncompressedSize int64

	// CompressedSize is the size of the entry's payload as stored; equal
	// to UncompressedSize when Method is MethodStored.
	CompressedSize int64

	Method CompressionMethod

	// Offset is the byte offset of the entry's local file header within
	// the outer archive blob.
	Offset int64

	// LocalHeaderSize is the size in bytes of the local file header that
	// precedes the entry's payload at Offset.
	LocalHeaderSize int64
}

// Archive is the collaborator contract: entry listing, random-access to
// the raw outer blob (for the stored-entry fast path), and an on-demand
// decoder (for the compressed fallback).
type Archive interface {
	// Entries returns every member of the archive, order unspecified.
	Entries() []Entry

	// Entry looks up a single member by full path. The bool is false if
	// no such entry exists.
	Entry(name string) (Entry, bool)

	// OuterBlob returns random access to the raw archive bytes, used for
	// the zero-copy stored-entry read path.
	OuterBlob() io.ReaderAt

	// Decode returns the fully inflated payload of a compressed entry.
	// Only called when Entry.Method != MethodStored.
	Decode(name string) ([]byte, error)
}
