// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package flashexec interprets a flashplan.Plan against a live
// FastbootSession, driving progress callbacks, honoring the wipe policy,
// handling reboot-induced reconnection, and enforcing command
// preconditions. See spec.md §4.3.
package flashexec

import (
	"context"
	"io"
)

// Session is the fastboot transport collaborator the core consumes.
// USB enumeration, wire framing, and command encoding are explicitly
// out of scope (spec.md §1) — this is only the shape the executor
// needs.
type Session interface {
	// GetVar issues "getvar name" and returns the device's reported
	// value. ok is false when the variable is unsupported by the
	// device, distinct from an empty-string value.
	GetVar(ctx context.Context, name string) (value string, ok bool, err error)

	// Run passes an opaque fastboot command string through verbatim.
	Run(ctx context.Context, raw string) error

	// Flash streams stream to the named partition/slot, invoking
	// progress with a fraction in [0,1] as the transfer proceeds.
	Flash(ctx context.Context, partition string, slot Slot, stream io.Reader, progress func(frac float32)) error

	// Erase issues "erase:partition".
	Erase(ctx context.Context, partition string) error
}

// Slot mirrors flashscript.Slot at the transport boundary so this
// package doesn't need to import flashscript just for an enum value in
// its own interface signature.
type Slot int

const (
	SlotCurrent Slot = iota
	SlotOther
)

// Rebooter is the collaborator invoked for RebootBootloader. Reboot may
// invalidate the prior Session; the executor re-binds to whatever
// Reconnect yields.
type Rebooter interface {
	Reboot(ctx context.Context, target string) error
}

// ReconnectFunc is invoked after a bootloader reboot and must yield a
// usable Session — possibly the same handle, possibly a fresh one. It is
// free to block presenting UI; the core awaits it.
type ReconnectFunc func(ctx context.Context) (Session, error)

// Requirements checks a device against a check-requirements manifest's
// contents.
type Requirements interface {
	Check(ctx context.Context, manifest string) error
}

// Verifier is the cryptographic-verification collaborator named in
// spec.md §1 as optional; a nil Verifier skips verification entirely.
type Verifier interface {
	VerifyEntry(ctx context.Context, fileRef string, payload []byte) error
}

// Progress receives (action, item, overall) events, where action is one
// of "wipe", "flash", "reboot".
type Progress func(action, item string, overall float32)
