// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lease tracks the in-memory workload state for one
// coordinator: which tiles still need computation, which are leased to
// a worker right now, and which are already persisted.
//
// A lease is a time-bounded assignment of one tile coordinate to one
// worker. The Board hands out leases in a deterministic enumeration
// order, validates returning responses against outstanding leases, and
// reclaims expired leases both lazily (the next enumeration skips
// them) and eagerly (a periodic sweeper drops them).
//
// A process-wide Registry records which levels are owned by a live
// Board, so two Boards can never distribute the same level.
package lease
