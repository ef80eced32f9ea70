// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package flashplan builds the immutable FlashPlan consumed by
// flashexec: the parsed command sequence plus the precomputed aggregate
// flash size used to normalize progress fractions.
package flashplan

import (
	"fmt"

	"go.flashforge.dev/flashforge/archive"
	"go.flashforge.dev/flashforge/flashscript"
)

// MissingEntryError is returned at plan construction time when a Flash
// command's file_ref has no corresponding archive entry. This is
// stricter than ScriptParser itself (spec.md §4.2): the aggregate byte
// count flashplan computes would be undefined otherwise.
type MissingEntryError struct {
	FileRef string
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("archive has no entry for flash file_ref %q", e.FileRef)
}

// Plan is the ordered command sequence plus its precomputed
// TotalFlashBytes. It is built once per archive and never mutated again.
type Plan struct {
	Commands        []flashscript.Command
	TotalFlashBytes int64

	// entrySize maps a Flash command's FileRef to the archive entry's
	// uncompressed size, recorded at construction and exposed through
	// EntrySize.
	entrySize map[string]int64
}

// Build constructs a Plan from a parsed command list and the archive
// that was used to resolve it.
func Build(commands []flashscript.Command, ar archive.Archive) (*Plan, error) {
	p := &Plan{
		Commands:  commands,
		entrySize: make(map[string]int64),
	}

	for _, cmd := range commands {
		if cmd.Kind != flashscript.KindFlash {
			continue
		}
		e, ok := ar.Entry(cmd.FileRef)
		if !ok {
			return nil, &MissingEntryError{FileRef: cmd.FileRef}
		}
		p.entrySize[cmd.FileRef] = e.UncompressedSize
		p.TotalFlashBytes += e.UncompressedSize
	}

	return p, nil
}

// EntrySize returns the uncompressed size recorded for a Flash command's
// file_ref at plan construction time.
func (p *Plan) EntrySize(fileRef string) int64 {
	return p.entrySize[fileRef]
}
