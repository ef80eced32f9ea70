// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package flashexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"go.flashforge.dev/flashforge/archive"
	"go.flashforge.dev/flashforge/devicefsm"
	"go.flashforge.dev/flashforge/flashplan"
	"go.flashforge.dev/flashforge/flashscript"
	"go.flashforge.dev/flashforge/logging"
	"go.flashforge.dev/flashforge/streamio"
)

const avbCustomKeyPartition = "avb_custom_key"

// ChunkedFlasher is an optional capability a Session may additionally
// implement: some device USB drivers need a partition image pushed in
// fixed-size pieces rather than pulled through io.Reader. When a Session
// implements this, Executor adapts the stream through a
// streamio.ChunkedWriter (spec.md §4.5) instead of calling Flash
// directly.
type ChunkedFlasher interface {
	MaxDownloadSize(ctx context.Context) (int64, bool, error)
	DownloadChunk(ctx context.Context, chunk []byte) error
	FlashStaged(ctx context.Context, partition string, slot Slot) error
}

// HeartbeatInterval controls how often Executor logs a "still flashing"
// line during a long single Flash command, mirroring botanist's
// device.go ticker. Tests may shrink this.
var HeartbeatInterval = 2 * time.Minute

// Executor interprets a flashplan.Plan against a live Session.
type Executor struct {
	Archive      archive.Archive
	Session      Session
	Rebooter     Rebooter
	Reconnect    ReconnectFunc
	Requirements Requirements
	Verifier     Verifier // optional
	Progress     Progress // optional

	// Wipe selects whether non-avb_custom_key Erase commands actually
	// run (spec.md §4.3's wipe gating rule).
	Wipe bool

	fsm *devicefsm.Machine

	mu           deadlock.Mutex
	flashedBytes int64
}

// Run walks plan.Commands in order, failing fast on the first error. The
// Session field may be replaced mid-run by a RebootBootloader command's
// reconnection.
func (e *Executor) Run(ctx context.Context, plan *flashplan.Plan) error {
	if e.fsm == nil {
		e.fsm = devicefsm.New()
	}
	if e.Progress == nil {
		e.Progress = func(string, string, float32) {}
	}

	for i, cmd := range plan.Commands {
		if err := e.runCommand(ctx, i, cmd, plan); err != nil {
			var te *TransportError
			if errors.As(err, &te) {
				te.CommandIndex = i
			}
			return err
		}
	}
	return nil
}

func (e *Executor) overall(plan *flashplan.Plan) float32 {
	if plan.TotalFlashBytes == 0 {
		return 0
	}
	e.mu.Lock()
	flashed := e.flashedBytes
	e.mu.Unlock()
	return float32(flashed) / float32(plan.TotalFlashBytes)
}

func (e *Executor) addFlashed(n int64) {
	e.mu.Lock()
	e.flashedBytes += n
	e.mu.Unlock()
}

func (e *Executor) runCommand(ctx context.Context, idx int, cmd flashscript.Command, plan *flashplan.Plan) error {
	wrap := func(err error) error {
		if err == nil {
			return nil
		}
		return &TransportError{CommandIndex: idx, Err: err}
	}

	switch cmd.Kind {
	case flashscript.KindCheckRequirements:
		return e.runCheckRequirements(ctx, cmd)

	case flashscript.KindCheckVar:
		return e.runCheckVar(ctx, cmd)

	case flashscript.KindErase:
		overall := e.overall(plan)
		e.Progress("wipe", cmd.Partition, overall)
		shouldErase := e.Wipe || cmd.Partition == avbCustomKeyPartition
		if !shouldErase {
			return nil
		}
		return wrap(e.Session.Erase(ctx, cmd.Partition))

	case flashscript.KindFlash:
		return e.runFlash(ctx, idx, cmd, plan)

	case flashscript.KindMaybeCancelSnapshotUpdate:
		return e.runMaybeCancelSnapshotUpdate(ctx)

	case flashscript.KindRebootBootloader:
		return e.runReboot(ctx, plan)

	case flashscript.KindRunCmd:
		return wrap(e.Session.Run(ctx, cmd.Raw))

	case flashscript.KindToggleActiveSlot:
		return e.runToggleActiveSlot(ctx)

	default:
		return fmt.Errorf("command %d: unhandled command kind %v", idx, cmd.Kind)
	}
}

func (e *Executor) runCheckRequirements(ctx context.Context, cmd flashscript.Command) error {
	reader, err := streamio.NewEntryReader(e.Archive, cmd.FileRef)
	if err != nil {
		return err
	}
	payload, err := reader.ReadAll()
	if err != nil {
		return err
	}
	if e.Requirements == nil {
		return nil
	}
	if err := e.Requirements.Check(ctx, string(payload)); err != nil {
		return &RequirementsFailedError{Detail: err.Error()}
	}
	return nil
}

func (e *Executor) runCheckVar(ctx context.Context, cmd flashscript.Command) error {
	actual, ok, err := e.Session.GetVar(ctx, cmd.Name)
	if err != nil {
		return &TransportError{Err: err}
	}
	if !ok || actual != cmd.Expected {
		return &VarMismatchError{Name: cmd.Name, Expected: cmd.Expected, Actual: actual}
	}
	return nil
}

func (e *Executor) runMaybeCancelSnapshotUpdate(ctx context.Context) error {
	status, ok, err := e.Session.GetVar(ctx, "snapshot-update-status")
	if err != nil {
		return &TransportError{Err: err}
	}
	if !ok || status == "none" {
		return nil
	}
	return e.Session.Run(ctx, "snapshot-update:cancel")
}

func (e *Executor) runToggleActiveSlot(ctx context.Context) error {
	current, ok, err := e.Session.GetVar(ctx, "current-slot")
	if err != nil {
		return &TransportError{Err: err}
	}
	if !ok {
		return &UnknownSlotError{Value: current}
	}
	other, err := complementSlot(current)
	if err != nil {
		return err
	}
	return e.Session.Run(ctx, "set_active:"+other)
}

func complementSlot(s string) (string, error) {
	switch s {
	case "a":
		return "b", nil
	case "b":
		return "a", nil
	default:
		return "", &UnknownSlotError{Value: s}
	}
}

func (e *Executor) runReboot(ctx context.Context, plan *flashplan.Plan) error {
	overall := e.overall(plan)
	e.Progress("reboot", "device", overall)

	if err := e.fsm.Fire(ctx, devicefsm.EventReboot); err != nil {
		return &TransportError{Err: err}
	}
	if err := e.Rebooter.Reboot(ctx, "bootloader"); err != nil {
		return &TransportError{Err: err}
	}

	newSession, err := e.Reconnect(ctx)
	if err != nil {
		return &TransportError{Err: err}
	}
	e.Session = newSession

	if err := e.fsm.Fire(ctx, devicefsm.EventReconnected); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

func (e *Executor) runFlash(ctx context.Context, idx int, cmd flashscript.Command, plan *flashplan.Plan) error {
	entry, ok := e.Archive.Entry(cmd.FileRef)
	if !ok {
		return fmt.Errorf("command %d: %w", idx, &flashplan.MissingEntryError{FileRef: cmd.FileRef})
	}

	if e.Verifier != nil {
		reader, err := streamio.NewEntryReader(e.Archive, cmd.FileRef)
		if err != nil {
			return err
		}
		payload, err := reader.ReadAll()
		if err != nil {
			return err
		}
		if err := e.Verifier.VerifyEntry(ctx, cmd.FileRef, payload); err != nil {
			return fmt.Errorf("command %d: verification failed for %s: %w", idx, cmd.FileRef, err)
		}
	}

	reader, err := streamio.NewEntryReader(e.Archive, cmd.FileRef)
	if err != nil {
		return err
	}

	var f float32
	if plan.TotalFlashBytes > 0 {
		f = float32(entry.UncompressedSize) / float32(plan.TotalFlashBytes)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	group.Go(func() error {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return nil
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				logging.Infof(ctx, "still flashing %s (%d/%d bytes overall)", cmd.Partition, e.currentFlashed(), plan.TotalFlashBytes)
			}
		}
	})

	slot := convertSlot(cmd.Slot)
	baseOverall := e.overall(plan)

	onFrac := func(frac float32) {
		e.Progress("flash", cmd.FileRef, baseOverall+frac*f)
	}

	var flashErr error
	if cf, ok := e.Session.(ChunkedFlasher); ok {
		flashErr = e.runChunkedFlash(ctx, cf, cmd, entry, reader, slot, onFrac)
	} else {
		flashErr = e.Session.Flash(ctx, cmd.Partition, slot, reader.NewReader(), onFrac)
	}

	close(stop)
	_ = group.Wait()

	if flashErr != nil {
		return &TransportError{CommandIndex: idx, Err: flashErr}
	}

	if err := e.fsm.Fire(ctx, devicefsm.EventBeginDownload); err != nil {
		return &TransportError{CommandIndex: idx, Err: err}
	}
	if err := e.fsm.Fire(ctx, devicefsm.EventFlashed); err != nil {
		return &TransportError{CommandIndex: idx, Err: err}
	}

	e.addFlashed(entry.UncompressedSize)
	return nil
}

func (e *Executor) currentFlashed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flashedBytes
}

// rateWindowSize bounds how many recent per-chunk transfer rates feed
// the trailing-window ETA estimate.
const rateWindowSize = 8

func (e *Executor) runChunkedFlash(ctx context.Context, cf ChunkedFlasher, cmd flashscript.Command, entry archive.Entry, reader *streamio.EntryReader, slot Slot, onFrac func(float32)) error {
	chunkSize, ok, err := cf.MaxDownloadSize(ctx)
	if err != nil {
		return err
	}
	if !ok || chunkSize <= 0 {
		chunkSize = entry.UncompressedSize
	}

	var delivered int64
	var rates []float64
	lastChunk := time.Now()

	w := streamio.New(chunkSize, entry.UncompressedSize, func(buf []byte) error {
		if err := cf.DownloadChunk(ctx, buf); err != nil {
			return err
		}

		now := time.Now()
		if elapsed := now.Sub(lastChunk).Seconds(); elapsed > 0 {
			rates = append(rates, float64(len(buf))/elapsed)
			if len(rates) > rateWindowSize {
				rates = rates[len(rates)-rateWindowSize:]
			}
		}
		lastChunk = now

		delivered += int64(len(buf))
		if entry.UncompressedSize > 0 {
			onFrac(float32(delivered) / float32(entry.UncompressedSize))
		}
		if remaining := entry.UncompressedSize - delivered; remaining > 0 && len(rates) > 0 {
			meanRate := stat.Mean(rates, nil)
			if meanRate > 0 {
				eta := time.Duration(float64(remaining)/meanRate) * time.Second
				logging.Debugf(ctx, "flashing %s: %d/%d bytes, eta %s", cmd.Partition, delivered, entry.UncompressedSize, eta.Round(time.Second))
			}
		}
		return nil
	})
	if err := w.Init(entry.UncompressedSize); err != nil {
		return err
	}

	src := reader.NewReader()
	buf := make([]byte, 1<<20)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	return cf.FlashStaged(ctx, cmd.Partition, slot)
}

func convertSlot(s flashscript.Slot) Slot {
	if s == flashscript.SlotOther {
		return SlotOther
	}
	return SlotCurrent
}
