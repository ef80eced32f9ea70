// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type fakeSource struct {
	fetched string
	blob    Blob
	err     error
}

func (f *fakeSource) Fetch(ctx context.Context, location string) (Blob, error) {
	f.fetched = location
	return f.blob, f.err
}

func TestResolve_LocalPathBypassesRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	blob, err := Resolve(context.Background(), path, Registry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer blob.Close()

	if blob.Size() != 5 {
		t.Errorf("Size() = %d, want 5", blob.Size())
	}
	got := make([]byte, 5)
	if _, err := blob.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("ReadAt = %q, want %q", got, "hello")
	}
}

func TestResolve_LocalPathMissing(t *testing.T) {
	if _, err := Resolve(context.Background(), "/no/such/archive.zip", Registry{}); err == nil {
		t.Fatal("Resolve: expected an error for a missing local file")
	}
}

func TestResolve_DispatchesByScheme(t *testing.T) {
	src := &fakeSource{blob: newMemBlob([]byte("remote"))}
	reg := Registry{"gs": src}

	blob, err := Resolve(context.Background(), "gs://bucket/archive.zip", reg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer blob.Close()

	if src.fetched != "gs://bucket/archive.zip" {
		t.Errorf("fetched = %q, want the original location", src.fetched)
	}
	if blob.Size() != 6 {
		t.Errorf("Size() = %d, want 6", blob.Size())
	}
}

func TestResolve_UnregisteredScheme(t *testing.T) {
	if _, err := Resolve(context.Background(), "s3://bucket/archive.zip", Registry{}); err == nil {
		t.Fatal("Resolve: expected an error for an unregistered scheme")
	}
}

func TestMemBlob_ReadAtPastEnd(t *testing.T) {
	b := newMemBlob([]byte("abc"))
	buf := make([]byte, 3)
	n, err := b.ReadAt(buf, 3)
	if n != 0 || err == nil {
		t.Errorf("ReadAt past end = (%d, %v), want (0, non-nil)", n, err)
	}
}

func TestMemBlob_PartialReadAtTail(t *testing.T) {
	b := newMemBlob([]byte("abcdef"))
	buf := make([]byte, 4)
	n, err := b.ReadAt(buf, 4)
	if n != 2 || err == nil {
		t.Errorf("ReadAt tail = (%d, %v), want (2, io.EOF)", n, err)
	}
	if string(buf[:n]) != "ef" {
		t.Errorf("ReadAt tail content = %q, want %q", buf[:n], "ef")
	}
}
