// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package devicefsm formalizes the device-side state narrative from
// spec.md §4.3 ("bootloader → downloading → flashed → possibly
// rebooted → bootloader-again") as an explicit state machine, so an
// out-of-order transition surfaces as a loud bug during development
// rather than a silent wire-protocol confusion. This is bookkeeping
// local to the executor; it never changes what's sent over the wire.
package devicefsm

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	StateBootloader  = "bootloader"
	StateDownloading = "downloading"
	StateFlashed     = "flashed"
	StateRebooting   = "rebooting"

	EventBeginDownload = "begin_download"
	EventFlashed       = "flashed"
	EventReboot        = "reboot"
	EventReconnected   = "reconnected"
)

// Machine tracks the device's logical state across a FlashPlan walk.
type Machine struct {
	fsm *fsm.FSM
}

// New returns a Machine starting in the bootloader state, matching
// flashexec's entry assumption (spec.md §4.3: "the executor assumes the
// FastbootSession is already in bootloader mode at entry").
func New() *Machine {
	f := fsm.NewFSM(
		StateBootloader,
		fsm.Events{
			{Name: EventBeginDownload, Src: []string{StateBootloader, StateFlashed}, Dst: StateDownloading},
			{Name: EventFlashed, Src: []string{StateDownloading}, Dst: StateFlashed},
			{Name: EventReboot, Src: []string{StateBootloader, StateFlashed}, Dst: StateRebooting},
			{Name: EventReconnected, Src: []string{StateRebooting}, Dst: StateBootloader},
		},
		fsm.Callbacks{},
	)
	return &Machine{fsm: f}
}

// Fire drives a transition, wrapping the FSM's rejection (wrong source
// state) into a plain error the executor can surface as a Transport
// failure alongside its command-index context.
func (m *Machine) Fire(ctx context.Context, event string) error {
	if err := m.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("device state machine: %w", err)
	}
	return nil
}

// State returns the machine's current state.
func (m *Machine) State() string {
	return m.fsm.Current()
}
