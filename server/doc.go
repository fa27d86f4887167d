// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the coordinator's two TCP listeners: the
// worker-facing Dispatcher and the client-facing TileServer.
//
// Both share one socket discipline: an accept loop that spawns a
// goroutine per connection, a per-read deadline applied before every
// read (when enabled), and clean log-and-close recovery on transient
// socket errors: a timeout, a connection reset, or an interrupted
// system call never disturbs other connections or the accept loop.
//
// The wire protocols are non-framed little-endian byte sequences; each
// side reads exactly the number of bytes the protocol state dictates.
// See protocol.go for the bit-exact message formats.
package server
