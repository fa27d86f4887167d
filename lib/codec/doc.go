// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// fractal components. The status socket speaks CBOR; this package pins
// the encoder to Core Deterministic Encoding so the same status always
// produces identical bytes.
package codec
