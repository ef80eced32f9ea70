// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command flashforge drives an optimized factory archive against a
// connected device in fastboot mode.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flashforge",
	Short: "Flash an optimized factory archive to a device over fastboot.",
	Long: `flashforge interprets script.txt inside an optimized factory archive
and drives it against a device already in fastboot mode, handling A/B
slot selection, wipe gating, and bootloader-reboot reconnection.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.flashforge.yaml)")
	rootCmd.PersistentFlags().String("archive", "", "archive location: local path (no gs://, s3:// or sftp:// source is registered, so those schemes are rejected)")
	rootCmd.PersistentFlags().String("serial", "", "device serial selector (empty selects the sole attached device)")
	rootCmd.PersistentFlags().Bool("wipe", false, "run the script's erase commands; avb_custom_key is erased either way (spec.md §4.3 wipe gating)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "address to serve /healthz, /progress, /metrics on (empty disables)")
	rootCmd.PersistentFlags().String("mqtt-broker", "", "MQTT broker URL for progress telemetry (empty disables)")

	_ = viper.BindPFlag("archive", rootCmd.PersistentFlags().Lookup("archive"))
	_ = viper.BindPFlag("serial", rootCmd.PersistentFlags().Lookup("serial"))
	_ = viper.BindPFlag("wipe", rootCmd.PersistentFlags().Lookup("wipe"))
	_ = viper.BindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("mqtt_broker", rootCmd.PersistentFlags().Lookup("mqtt-broker"))

	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(dryRunCmd)
	rootCmd.AddCommand(verifyCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".flashforge")
	}

	viper.SetEnvPrefix("FLASHFORGE")
	viper.AutomaticEnv()

	// A missing config file is not an error: every setting also has a
	// flag/env fallback.
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
