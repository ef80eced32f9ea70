// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.flashforge.dev/flashforge/flashscript"
	"go.flashforge.dev/flashforge/streamio"
	"go.flashforge.dev/flashforge/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every flashed entry in the archive against its signed targets manifest.",
	RunE:  runVerify,
}

const targetsManifestEntry = "targets.json"

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ar, blob, plan, err := buildPlan(ctx)
	if err != nil {
		return err
	}
	defer blob.Close()

	manifestReader, err := streamio.NewEntryReader(ar, targetsManifestEntry)
	if err != nil {
		return fmt.Errorf("archive has no %s: %w", targetsManifestEntry, err)
	}
	raw, err := manifestReader.ReadAll()
	if err != nil {
		return err
	}

	manifest, err := verify.ParseTargetsManifest(raw)
	if err != nil {
		return err
	}
	v := verify.New(manifest)

	failures := 0
	for _, c := range plan.Commands {
		if c.Kind != flashscript.KindFlash {
			continue
		}
		reader, err := streamio.NewEntryReader(ar, c.FileRef)
		if err != nil {
			return err
		}
		payload, err := reader.ReadAll()
		if err != nil {
			return err
		}
		if err := v.VerifyEntry(ctx, c.FileRef, payload); err != nil {
			fmt.Printf("FAIL %s: %v\n", c.FileRef, err)
			failures++
			continue
		}
		fmt.Printf("OK   %s\n", c.FileRef)
	}

	if failures > 0 {
		return fmt.Errorf("%d entries failed verification", failures)
	}
	return nil
}
