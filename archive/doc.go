// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive reads and writes tile archives: a zstd-compressed
// stream of persisted tiles used to move a tile set between machines
// or keep an offline copy. Each record carries the tile coordinate,
// its category, a BLAKE3 digest of the encoded stream, and the
// encoded stream itself; import verifies every digest before touching
// the store.
//
// The archive format is internal to the fractal-archive tool. It is
// not part of the coordinator's persistent-state contract (the index
// and data file formats are), so it may change between releases.
package archive
