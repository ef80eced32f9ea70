// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.flashforge.dev/flashforge/telemetry"
)

func TestServer_Healthz(t *testing.T) {
	s := New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_ProgressReflectsLastObservation(t *testing.T) {
	s := New()
	s.Observe("flash", "boot.img", 0.42)

	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got telemetry.ProgressEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := telemetry.ProgressEvent{Action: "flash", Item: "boot.img", Overall: 0.42}
	if got != want {
		t.Errorf("progress = %+v, want %+v", got, want)
	}
}

func TestServer_ProgressDefaultsToZeroValue(t *testing.T) {
	s := New()
	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var got telemetry.ProgressEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != (telemetry.ProgressEvent{}) {
		t.Errorf("progress = %+v, want zero value", got)
	}
}

func TestServer_MetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a Content-Type header from promhttp.Handler")
	}
}
