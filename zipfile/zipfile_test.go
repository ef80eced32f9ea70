// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package zipfile

import (
	"archive/zip"
	"bytes"
	"testing"
)

func buildTestZip(t *testing.T, entries map[string][]byte, stored map[string]bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		method := zip.Deflate
		if stored[name] {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("CreateHeader(%s): %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestOpen_EntriesMatchSourceContent(t *testing.T) {
	payloads := map[string][]byte{
		"script.txt": []byte("flash boot boot.img"),
		"boot.img":   bytes.Repeat([]byte{0xAB}, 4096),
	}
	raw := buildTestZip(t, payloads, map[string]bool{"boot.img": true, "script.txt": true})

	a, err := Open(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if len(a.Entries()) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(a.Entries()))
	}

	for name, want := range payloads {
		got, err := a.Decode(name)
		if err != nil {
			t.Fatalf("Decode(%s): %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Decode(%s) = %q, want %q", name, got, want)
		}
	}
}

func TestOpen_CompressedEntryDecodesViaCache(t *testing.T) {
	payload := bytes.Repeat([]byte("flashforge"), 1000)
	raw := buildTestZip(t, map[string][]byte{"manifest.txt": payload}, nil)

	a, err := Open(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entry, ok := a.Entry("manifest.txt")
	if !ok {
		t.Fatal("Entry(manifest.txt) not found")
	}
	if entry.Method == 0 {
		t.Fatalf("expected a compressed method, got Stored")
	}

	first, err := a.Decode("manifest.txt")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(first, payload) {
		t.Fatal("decoded payload mismatch")
	}

	// Second call should be served from the LRU cache; content must still
	// be correct (this exercises the cache-hit path, not just the miss).
	second, err := a.Decode("manifest.txt")
	if err != nil {
		t.Fatalf("Decode (cached): %v", err)
	}
	if !bytes.Equal(second, payload) {
		t.Fatal("cached decoded payload mismatch")
	}
}

func TestOpen_UnknownEntry(t *testing.T) {
	raw := buildTestZip(t, map[string][]byte{"a": []byte("x")}, map[string]bool{"a": true})
	a, err := Open(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := a.Entry("missing"); ok {
		t.Fatal("Entry(missing) unexpectedly found")
	}
	if _, err := a.Decode("missing"); err == nil {
		t.Fatal("Decode(missing) expected an error")
	}
}

func TestOpen_StoredEntryOffsetsAreUsableThroughOuterBlob(t *testing.T) {
	payload := []byte("stored-directly")
	raw := buildTestZip(t, map[string][]byte{"boot.img": payload}, map[string]bool{"boot.img": true})

	a, err := Open(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entry, ok := a.Entry("boot.img")
	if !ok {
		t.Fatal("Entry(boot.img) not found")
	}

	got := make([]byte, entry.UncompressedSize)
	n, err := a.OuterBlob().ReadAt(got, entry.Offset+entry.LocalHeaderSize)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if int64(n) != entry.UncompressedSize || !bytes.Equal(got, payload) {
		t.Fatalf("ReadAt = %q, want %q", got[:n], payload)
	}
}
