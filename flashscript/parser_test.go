// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package flashscript

import (
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kr/pretty"

	"go.flashforge.dev/flashforge/archive"
)

type fakeArchive struct {
	entries []archive.Entry
	blob    []byte
	decoded map[string][]byte
}

func (f *fakeArchive) Entries() []archive.Entry { return f.entries }

func (f *fakeArchive) Entry(name string) (archive.Entry, bool) {
	for _, e := range f.entries {
		if e.Name == name {
			return e, true
		}
	}
	return archive.Entry{}, false
}

func (f *fakeArchive) OuterBlob() io.ReaderAt { return strings.NewReader(string(f.blob)) }

func (f *fakeArchive) Decode(name string) ([]byte, error) {
	return f.decoded[name], nil
}

// newStoredScript builds a fake archive whose outer blob is just the
// script body with a zero-size synthetic local header, so script.txt
// reads back verbatim through the stored-entry fast path.
func newStoredScript(t *testing.T, dir, body string) *fakeArchive {
	t.Helper()
	return &fakeArchive{
		blob: []byte(body),
		entries: []archive.Entry{
			{
				Name:             dir + "script.txt",
				UncompressedSize: int64(len(body)),
				CompressedSize:   int64(len(body)),
				Method:           archive.MethodStored,
				Offset:           0,
				LocalHeaderSize:  0,
			},
		},
	}
}

func TestParse_EmptyScript(t *testing.T) {
	ar := newStoredScript(t, "boot/", "")
	cmds, err := Parse(ar)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cmds) != 0 {
		t.Fatalf("expected no commands, got %v", cmds)
	}
}

func TestParse_CommentsAndBlankLines(t *testing.T) {
	ar := newStoredScript(t, "boot/", "# header\ncheck-var product raven\n\nerase userdata\n")
	cmds, err := Parse(ar)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Command{
		{Kind: KindCheckVar, Name: "product", Expected: "raven", Line: 2},
		{Kind: KindErase, Partition: "userdata", Line: 4},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s\ngot: %# v", diff, pretty.Formatter(cmds))
	}
}

func TestParse_FlashOtherSlot(t *testing.T) {
	ar := newStoredScript(t, "boot/", "flash boot boot.img other-slot\n")
	cmds, err := Parse(ar)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Command{
		{Kind: KindFlash, Partition: "boot", FileRef: "boot/boot.img", Slot: SlotOther, Line: 1},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_InvalidSlotToken(t *testing.T) {
	ar := newStoredScript(t, "boot/", "flash boot boot.img weird-slot\n")
	_, err := Parse(ar)
	var malformed *MalformedLineError
	if !asMalformed(err, &malformed) {
		t.Fatalf("expected MalformedLineError, got %v (%T)", err, err)
	}
}

func TestParse_RunCmdPreservesSpaces(t *testing.T) {
	ar := newStoredScript(t, "boot/", "run-cmd oem unlock confirm\n")
	cmds, err := Parse(ar)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Raw != "oem unlock confirm" {
		t.Fatalf("got %+v", cmds)
	}
}

func TestParse_UnknownCommand(t *testing.T) {
	ar := newStoredScript(t, "boot/", "frobnicate now\n")
	_, err := Parse(ar)
	var unknown *UnknownCommandError
	if !asUnknown(err, &unknown) {
		t.Fatalf("expected UnknownCommandError, got %v (%T)", err, err)
	}
}

func TestParse_ScriptMissing(t *testing.T) {
	ar := &fakeArchive{}
	_, err := Parse(ar)
	var missing *ScriptMissingError
	if !asMissing(err, &missing) {
		t.Fatalf("expected ScriptMissingError, got %v (%T)", err, err)
	}
}

func TestParse_ArityMismatches(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"check-requirements extra arg", "check-requirements a.txt extra"},
		{"check-var too few", "check-var product"},
		{"erase no partition", "erase"},
		{"flash too few", "flash boot"},
		{"maybe-cancel-snapshot-update extra", "maybe-cancel-snapshot-update now"},
		{"reboot-bootloader extra", "reboot-bootloader now"},
		{"toggle-active-slot extra", "toggle-active-slot now"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ar := newStoredScript(t, "boot/", tc.line+"\n")
			_, err := Parse(ar)
			var malformed *MalformedLineError
			if !asMalformed(err, &malformed) {
				t.Fatalf("expected MalformedLineError for %q, got %v", tc.line, err)
			}
		})
	}
}

func TestParse_Determinism(t *testing.T) {
	body := "check-var product raven\nflash boot boot.img\nerase userdata\n"
	ar1 := newStoredScript(t, "boot/", body)
	ar2 := newStoredScript(t, "boot/", body)

	c1, err := Parse(ar1)
	if err != nil {
		t.Fatalf("Parse 1: %v", err)
	}
	c2, err := Parse(ar2)
	if err != nil {
		t.Fatalf("Parse 2: %v", err)
	}
	if diff := cmp.Diff(c1, c2); diff != "" {
		t.Errorf("identical scripts produced different commands (-first +second):\n%s\nfirst: %# v\nsecond: %# v", diff, pretty.Formatter(c1), pretty.Formatter(c2))
	}
}

func asMalformed(err error, target **MalformedLineError) bool {
	e, ok := err.(*MalformedLineError)
	if ok {
		*target = e
	}
	return ok
}

func asUnknown(err error, target **UnknownCommandError) bool {
	e, ok := err.(*UnknownCommandError)
	if ok {
		*target = e
	}
	return ok
}

func asMissing(err error, target **ScriptMissingError) bool {
	e, ok := err.(*ScriptMissingError)
	if ok {
		*target = e
	}
	return ok
}
