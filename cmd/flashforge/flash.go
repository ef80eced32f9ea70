// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"go.flashforge.dev/flashforge/fastboot"
	"go.flashforge.dev/flashforge/fetch"
	"go.flashforge.dev/flashforge/flashexec"
	"go.flashforge.dev/flashforge/flashplan"
	"go.flashforge.dev/flashforge/flashscript"
	"go.flashforge.dev/flashforge/logging"
	"go.flashforge.dev/flashforge/statusserver"
	"go.flashforge.dev/flashforge/telemetry"
	"go.flashforge.dev/flashforge/zipfile"
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Flash the configured archive to the configured device.",
	RunE:  runFlash,
}

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Parse and plan the configured archive without touching a device.",
	RunE:  runDryRun,
}

func openArchive(ctx context.Context) (*zipfile.Archive, fetch.Blob, error) {
	location := viper.GetString("archive")
	if location == "" {
		return nil, nil, fmt.Errorf("--archive (or FLASHFORGE_ARCHIVE) is required")
	}

	blob, err := fetch.Resolve(ctx, location, fetch.Registry{})
	if err != nil {
		return nil, nil, fmt.Errorf("resolving archive: %w", err)
	}

	ar, err := zipfile.Open(blob, blob.Size())
	if err != nil {
		blob.Close()
		return nil, nil, fmt.Errorf("opening archive: %w", err)
	}
	return ar, blob, nil
}

func buildPlan(ctx context.Context) (*zipfile.Archive, fetch.Blob, *flashplan.Plan, error) {
	ar, blob, err := openArchive(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	commands, err := flashscript.Parse(ar)
	if err != nil {
		blob.Close()
		return nil, nil, nil, fmt.Errorf("parsing script: %w", err)
	}

	plan, err := flashplan.Build(commands, ar)
	if err != nil {
		blob.Close()
		return nil, nil, nil, fmt.Errorf("building plan: %w", err)
	}

	return ar, blob, plan, nil
}

func runDryRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, blob, plan, err := buildPlan(ctx)
	if err != nil {
		return err
	}
	defer blob.Close()

	fmt.Printf("%d commands, %s total flash bytes\n", len(plan.Commands), humanize.Bytes(uint64(plan.TotalFlashBytes)))
	for _, c := range plan.Commands {
		fmt.Println(c.String())
	}
	return nil
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ar, blob, plan, err := buildPlan(ctx)
	if err != nil {
		return err
	}
	defer blob.Close()

	metrics := telemetry.NewMetrics()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	status := statusserver.New()
	if addr := viper.GetString("metrics_addr"); addr != "" {
		go func() {
			logging.Infof(ctx, "status server listening on %s", addr)
			if err := http.ListenAndServe(addr, status); err != nil {
				logging.Warningf(ctx, "status server stopped: %v", err)
			}
		}()
	}

	var publisher *telemetry.MQTTPublisher
	if broker := viper.GetString("mqtt_broker"); broker != "" {
		publisher, err = telemetry.NewMQTTPublisher(ctx, broker, "flashforge", viper.GetString("serial"))
		if err != nil {
			logging.Warningf(ctx, "mqtt telemetry disabled: %v", err)
			publisher = nil
		}
	}

	isTTY := term.IsTerminal(int(0))
	start := time.Now()

	progress := func(action, item string, overall float32) {
		status.Observe(action, item, overall)
		if publisher != nil {
			publisher.Publish(ctx, action, item, overall)
		}
		if isTTY {
			fmt.Printf("\r%-8s %-24s %5.1f%% (%s elapsed)", action, item, overall*100, time.Since(start).Round(time.Second))
		} else {
			logging.Infof(ctx, "%s %s %.1f%%", action, item, overall*100)
		}
	}

	session := &fastboot.Session{Serial: viper.GetString("serial")}

	executor := &flashexec.Executor{
		Archive:  ar,
		Session:  session,
		Rebooter: session,
		Reconnect: func(ctx context.Context) (flashexec.Session, error) {
			// The device's USB identity doesn't change across a
			// bootloader reboot, so reusing the same handle is
			// correct; fastboot re-enumerates under the same serial.
			return session, nil
		},
		Progress: progress,
		Wipe:     viper.GetBool("wipe"),
	}

	err = executor.Run(ctx, plan)
	if isTTY {
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("flash failed: %w", err)
	}

	fmt.Println("flash complete")
	return nil
}
