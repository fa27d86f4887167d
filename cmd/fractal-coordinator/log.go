// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
)

// channelLogger builds the logger for one listener channel, honoring
// its info/error toggles. Warnings ride with info. Both toggles off
// yields a discard logger.
func channelLogger(w io.Writer, channel string, infoEnabled, errorEnabled bool) *slog.Logger {
	if !infoEnabled && !errorEnabled {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	handler := &toggleHandler{
		inner:        inner.WithAttrs([]slog.Attr{slog.String("channel", channel)}),
		infoEnabled:  infoEnabled,
		errorEnabled: errorEnabled,
	}
	return slog.New(handler)
}

// toggleHandler filters records by the per-channel level toggles
// before delegating to a standard text handler.
type toggleHandler struct {
	inner        slog.Handler
	infoEnabled  bool
	errorEnabled bool
}

func (h *toggleHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level >= slog.LevelError {
		return h.errorEnabled
	}
	return h.infoEnabled
}

func (h *toggleHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.inner.Handle(ctx, record)
}

func (h *toggleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &toggleHandler{
		inner:        h.inner.WithAttrs(attrs),
		infoEnabled:  h.infoEnabled,
		errorEnabled: h.errorEnabled,
	}
}

func (h *toggleHandler) WithGroup(name string) slog.Handler {
	return &toggleHandler{
		inner:        h.inner.WithGroup(name),
		infoEnabled:  h.infoEnabled,
		errorEnabled: h.errorEnabled,
	}
}
