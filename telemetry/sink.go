// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package telemetry

import (
	"context"

	"go.flashforge.dev/flashforge/flashexec"
)

// MultiSink composes zero or more observability sinks into a single
// flashexec.Progress callback. Either field may be nil.
type MultiSink struct {
	Metrics   *Metrics
	Publisher *MQTTPublisher

	ctx context.Context
}

// NewMultiSink returns a flashexec.Progress that forwards each event to
// the MQTT publisher when it is non-nil. metrics is kept on the sink but
// not updated by progress events (see Observe). ctx is used for the MQTT
// publishes.
func NewMultiSink(ctx context.Context, metrics *Metrics, publisher *MQTTPublisher) flashexec.Progress {
	s := &MultiSink{Metrics: metrics, Publisher: publisher, ctx: ctx}
	return s.Observe
}

// Observe satisfies flashexec.Progress.
func (s *MultiSink) Observe(action, item string, overall float32) {
	if s.Publisher != nil {
		s.Publisher.Publish(s.ctx, action, item, overall)
	}
	// Metrics.RecordFlashedBytes/RecordCommand are driven directly by the
	// caller at command boundaries (telemetry has no byte-delta signal
	// from a bare overall fraction), so Observe itself only forwards the
	// human-facing event stream.
}
