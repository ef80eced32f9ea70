// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package logging provides the context-first logging convention used
// throughout this repository (logging.Infof(ctx, format, args...)),
// backed by a zap SugaredLogger. The call-site idiom mirrors the
// teacher's own logger package; the zap backend is an enrichment pulled
// from the rest of the retrieved pack (see DESIGN.md).
package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

var global *zap.SugaredLogger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	global = l.Sugar()
}

// WithLogger attaches a logger to ctx for code that wants a
// request-scoped instance (e.g. a CLI invocation tagging every line with
// a session ID).
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func from(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return global
}

func Infof(ctx context.Context, format string, args ...any) {
	from(ctx).Infof(format, args...)
}

func Warningf(ctx context.Context, format string, args ...any) {
	from(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...any) {
	from(ctx).Errorf(format, args...)
}

func Debugf(ctx context.Context, format string, args ...any) {
	from(ctx).Debugf(format, args...)
}

// Sync flushes any buffered log entries. Callers should defer this from
// main().
func Sync() {
	_ = global.Sync()
}
