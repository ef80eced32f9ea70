// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package zipfile is the concrete archive.Archive implementation: it
// does the central-directory decoding, CRC validation, and inflate that
// spec.md §1 names as out of scope for the core flash driver. It exists
// so the repository is runnable end to end; flashscript/flashplan/
// flashexec never import it directly, only the archive.Archive
// interface it satisfies.
package zipfile

import (
	"archive/zip"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"go.flashforge.dev/flashforge/archive"
)

// decodeCacheSize bounds how many distinct compressed entries are kept
// inflated in memory at once. Optimized factory archives store
// partition images uncompressed (spec.md §4.4's common case), so in
// practice this cache only ever holds the odd check-requirements
// manifest or a compressed secondary asset.
const decodeCacheSize = 8

// Archive adapts a stdlib *zip.Reader, backed by an io.ReaderAt over the
// whole archive blob, into the archive.Archive collaborator contract.
type Archive struct {
	outer   io.ReaderAt
	entries map[string]archive.Entry
	files   map[string]*zip.File
	cache   *lru.Cache[string, []byte]
}

var _ archive.Archive = (*Archive)(nil)

// Open parses the zip central directory of an archive blob of the given
// size, readable at random offsets through outer.
func Open(outer io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(outer, size)
	if err != nil {
		return nil, fmt.Errorf("parsing archive central directory: %w", err)
	}

	cache, err := lru.New[string, []byte](decodeCacheSize)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		outer:   outer,
		entries: make(map[string]archive.Entry, len(zr.File)),
		files:   make(map[string]*zip.File, len(zr.File)),
		cache:   cache,
	}

	for _, f := range zr.File {
		headerOffset, err := f.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("locating data for %s: %w", f.Name, err)
		}
		// f.DataOffset() already accounts for the local file header, so
		// the entry's Offset/LocalHeaderSize split is (headerOffset, 0):
		// the core's clamp arithmetic in spec.md §4.4 still works out to
		// the same byte range either way, since it only ever adds the
		// two together.
		a.entries[f.Name] = archive.Entry{
			Name:             f.Name,
			UncompressedSize: int64(f.UncompressedSize64),
			CompressedSize:   int64(f.CompressedSize64),
			Method:           archive.CompressionMethod(f.Method),
			Offset:           headerOffset,
			LocalHeaderSize:  0,
		}
		a.files[f.Name] = f
	}

	return a, nil
}

func (a *Archive) Entries() []archive.Entry {
	out := make([]archive.Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	return out
}

func (a *Archive) Entry(name string) (archive.Entry, bool) {
	e, ok := a.entries[name]
	return e, ok
}

func (a *Archive) OuterBlob() io.ReaderAt {
	return a.outer
}

func (a *Archive) Decode(name string) ([]byte, error) {
	if buf, ok := a.cache.Get(name); ok {
		return buf, nil
	}

	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("no such archive entry: %q", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("inflating %s: %w", name, err)
	}

	a.cache.Add(name, buf)
	return buf, nil
}
