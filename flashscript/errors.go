// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package flashscript

import "fmt"

// ScriptMissingError is returned when the archive has no entry ending in
// "/script.txt".
type ScriptMissingError struct{}

func (e *ScriptMissingError) Error() string {
	return "no script.txt entry found in archive"
}

// MalformedLineError reports a syntax or arity violation on a given line.
type MalformedLineError struct {
	Line int
	Text string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("script.txt:%d: malformed line: %q", e.Line, e.Text)
}

// UnknownCommandError reports an unrecognized keyword.
type UnknownCommandError struct {
	Line int
	Text string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("script.txt:%d: unknown command: %q", e.Line, e.Text)
}
