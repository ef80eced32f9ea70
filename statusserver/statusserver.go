// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package statusserver exposes the operator-facing HTTP surface spec.md
// §1 excludes from the core ("User-facing UI"). It only ever subscribes
// to the same progress stream a caller could otherwise consume
// directly; it never drives the flash itself.
package statusserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.flashforge.dev/flashforge/telemetry"
)

// Server serves /healthz, /progress, and /metrics.
type Server struct {
	mu   sync.RWMutex
	last telemetry.ProgressEvent

	router *mux.Router
}

// New builds a Server. Its /metrics endpoint serves
// prometheus.DefaultRegisterer, so callers should register a
// telemetry.Metrics against that registry (the default MustRegister
// target) for the endpoint to report live counters.
func New() *Server {
	s := &Server{router: mux.NewRouter()}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

// ServeHTTP satisfies http.Handler, so a Server can be passed straight
// to http.ListenAndServe or mounted as a sub-router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Observe records the most recent progress event for /progress to
// report. It has the same (action, item, overall) shape as
// flashexec.Progress, so it can serve as a progress callback or be called
// from one alongside other sinks.
func (s *Server) Observe(action, item string, overall float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = telemetry.ProgressEvent{Action: action, Item: item, Overall: overall}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	event := s.last
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(event)
}
