// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package telemetry wraps the flashexec.Progress callback contract with
// optional observability sinks. Neither sink changes core semantics;
// both are pure observers of the progress stream.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a flash session reports
// through. Register them against whatever registry the caller's
// statusserver exposes.
type Metrics struct {
	FlashBytesTotal     prometheus.Counter
	CommandDurationSecs prometheus.Histogram
	CommandTotal        *prometheus.CounterVec
}

// NewMetrics constructs a fresh, unregistered Metrics set.
func NewMetrics() *Metrics {
	m := &Metrics{
		FlashBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashforge_flash_bytes_total",
			Help: "Total bytes written to device partitions across all flash commands.",
		}),
		CommandDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flashforge_command_duration_seconds",
			Help:    "Duration of individual script commands.",
			Buckets: prometheus.DefBuckets,
		}),
		CommandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashforge_command_total",
				Help: "Total script commands executed, by outcome.",
			},
			[]string{"outcome"}, // outcome: success/failed
		),
	}
	// Create both outcome series up front so flashforge_command_total is
	// exported (at zero) from registration on, not only after the first
	// RecordCommand.
	for _, outcome := range []string{"success", "failed"} {
		m.CommandTotal.WithLabelValues(outcome)
	}
	return m
}

// MustRegister registers every collector against reg, panicking on a
// duplicate registration — mirroring the teacher pack's init-time
// MustRegister convention for metrics that are only ever constructed
// once per process.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.FlashBytesTotal, m.CommandDurationSecs, m.CommandTotal)
}

// RecordCommand records a single script command's outcome and latency.
func (m *Metrics) RecordCommand(outcome string, seconds float64) {
	m.CommandTotal.WithLabelValues(outcome).Inc()
	m.CommandDurationSecs.Observe(seconds)
}

// RecordFlashedBytes accumulates bytes written to device storage.
func (m *Metrics) RecordFlashedBytes(n int64) {
	m.FlashBytesTotal.Add(float64(n))
}
