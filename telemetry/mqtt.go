// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"go.flashforge.dev/flashforge/logging"
)

// ProgressEvent is the retained JSON payload republished on
// flashforge/<session>/progress for remote dashboards.
type ProgressEvent struct {
	Action  string  `json:"action"`
	Item    string  `json:"item"`
	Overall float32 `json:"overall"`
}

// MQTTPublisher republishes progress events over MQTT. Publishes are
// best-effort: a failed publish is logged and never returned to the
// caller. Publish runs synchronously on the caller's goroutine, with no
// queue in between.
type MQTTPublisher struct {
	cm    *autopaho.ConnectionManager
	topic string
}

// NewMQTTPublisher connects to brokerURL and returns a publisher that
// republishes progress events, retained, on flashforge/<sessionID>/progress.
func NewMQTTPublisher(ctx context.Context, brokerURL, clientID, sessionID string) (*MQTTPublisher, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing mqtt broker url: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		ConnectTimeout:                10 * time.Second,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
		},
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			logging.Infof(ctx, "mqtt telemetry connection up (broker %s)", brokerURL)
		},
		OnConnectError: func(err error) {
			logging.Warningf(ctx, "mqtt telemetry connect error: %v", err)
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}

	return &MQTTPublisher{
		cm:    cm,
		topic: fmt.Sprintf("flashforge/%s/progress", sessionID),
	}, nil
}

// Publish republishes a progress event as a retained MQTT message.
// Errors are logged, not returned: a publish failure must never abort
// the flash it's reporting on.
func (p *MQTTPublisher) Publish(ctx context.Context, action, item string, overall float32) {
	payload, err := json.Marshal(ProgressEvent{Action: action, Item: item, Overall: overall})
	if err != nil {
		logging.Warningf(ctx, "mqtt telemetry: marshaling progress event: %v", err)
		return
	}

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.topic,
		QoS:     0,
		Retain:  true,
		Payload: payload,
	}); err != nil {
		logging.Warningf(ctx, "mqtt telemetry: publish failed: %v", err)
	}
}

// Close disconnects the underlying MQTT connection.
func (p *MQTTPublisher) Close(ctx context.Context) error {
	return p.cm.Disconnect(ctx)
}
