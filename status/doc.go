// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package status implements the coordinator's operator-facing
// liveness endpoint: a Unix socket that answers every connection with
// one CBOR-encoded snapshot of lease and completion state, then
// closes. It is read-only and carries no tile data; the worker and
// client wire protocols are untouched by it.
package status
