// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package flashscript

import (
	"bufio"
	"fmt"
	"strings"

	"go.flashforge.dev/flashforge/archive"
)

const scriptSuffix = "/script.txt"

// Parse locates the archive's script.txt, tokenizes it, and returns the
// ordered Command sequence. File references in the script are resolved
// relative to script.txt's containing directory (the "entry-name
// prefix"). Parsing never checks that a Flash/CheckRequirements file_ref
// actually exists in the archive. FlashPlan checks Flash file_refs
// (spec.md §4.2), since a missing flash entry would leave
// total_flash_bytes undefined; a missing CheckRequirements entry surfaces
// only when the executor reads it.
func Parse(ar archive.Archive) ([]Command, error) {
	prefix, body, err := locateScript(ar)
	if err != nil {
		return nil, err
	}

	var commands []Command
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cmd, err := parseLine(line, lineNo, prefix)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading script.txt: %w", err)
	}

	return commands, nil
}

func locateScript(ar archive.Archive) (prefix string, body []byte, err error) {
	var match *archive.Entry
	for _, e := range ar.Entries() {
		e := e
		if strings.HasSuffix(e.Name, scriptSuffix) {
			if match != nil {
				// Ambiguous archives are not anticipated by spec.md;
				// the first match in Entries() order wins. That order is
				// unspecified by archive.Archive, so which of several
				// script.txt entries is chosen is not defined.
				break
			}
			match = &e
		}
	}
	if match == nil {
		return "", nil, &ScriptMissingError{}
	}

	prefix = strings.TrimSuffix(match.Name, "script.txt")

	body, err = readEntryFully(ar, *match)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", match.Name, err)
	}
	return prefix, body, nil
}

func readEntryFully(ar archive.Archive, e archive.Entry) ([]byte, error) {
	if e.Method == archive.MethodStored {
		if e.UncompressedSize == 0 {
			return []byte{}, nil
		}
		buf := make([]byte, e.UncompressedSize)
		if _, err := ar.OuterBlob().ReadAt(buf, e.Offset+e.LocalHeaderSize); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return ar.Decode(e.Name)
}

// parseLine tokenizes a single non-comment, non-blank line by single
// ASCII space (spec.md §4.1's open question: tabs or repeated spaces are
// not inferred to mean anything). A repeated space yields an empty token
// or an extra token and surfaces as MalformedLineError; a tab glued to the
// keyword leaves no recognizable keyword and surfaces as
// UnknownCommandError. run-cmd is the exception: its raw text after the
// first space is kept verbatim, extra spaces and tabs included.
func parseLine(line string, lineNo int, prefix string) (Command, error) {
	tokens := strings.Split(line, " ")
	keyword := tokens[0]

	malformed := func() (Command, error) {
		return Command{}, &MalformedLineError{Line: lineNo, Text: line}
	}

	switch keyword {
	case "check-requirements":
		if len(tokens) != 2 || tokens[1] == "" {
			return malformed()
		}
		return Command{Kind: KindCheckRequirements, FileRef: prefix + tokens[1], Line: lineNo}, nil

	case "check-var":
		if len(tokens) != 3 || tokens[1] == "" || tokens[2] == "" {
			return malformed()
		}
		return Command{Kind: KindCheckVar, Name: tokens[1], Expected: tokens[2], Line: lineNo}, nil

	case "erase":
		if len(tokens) != 2 || tokens[1] == "" {
			return malformed()
		}
		return Command{Kind: KindErase, Partition: tokens[1], Line: lineNo}, nil

	case "flash":
		if len(tokens) != 3 && len(tokens) != 4 {
			return malformed()
		}
		if tokens[1] == "" || tokens[2] == "" {
			return malformed()
		}
		slot := SlotCurrent
		if len(tokens) == 4 {
			if tokens[3] != "other-slot" {
				return malformed()
			}
			slot = SlotOther
		}
		return Command{
			Kind:      KindFlash,
			Partition: tokens[1],
			FileRef:   prefix + tokens[2],
			Slot:      slot,
			Line:      lineNo,
		}, nil

	case "maybe-cancel-snapshot-update":
		if len(tokens) != 1 {
			return malformed()
		}
		return Command{Kind: KindMaybeCancelSnapshotUpdate, Line: lineNo}, nil

	case "reboot-bootloader":
		if len(tokens) != 1 {
			return malformed()
		}
		return Command{Kind: KindRebootBootloader, Line: lineNo}, nil

	case "run-cmd":
		// run-cmd is the only keyword that preserves internal
		// whitespace: raw is everything after the first space, not a
		// token list. A bare "run-cmd" with nothing following it has no
		// such substring and is malformed.
		raw, ok := strings.CutPrefix(line, "run-cmd ")
		if !ok {
			return malformed()
		}
		return Command{Kind: KindRunCmd, Raw: raw, Line: lineNo}, nil

	case "toggle-active-slot":
		if len(tokens) != 1 {
			return malformed()
		}
		return Command{Kind: KindToggleActiveSlot, Line: lineNo}, nil

	default:
		return Command{}, &UnknownCommandError{Line: lineNo, Text: line}
	}
}
