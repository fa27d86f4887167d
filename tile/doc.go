// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tile defines the tile data model for the distributed
// Mandelbrot computation: grid coordinates, payload classification,
// and the self-describing byte encoding used both on disk and on the
// client-facing wire.
//
// A tile is a fixed-size array of Side×Side iteration-count bytes
// produced by a worker. The coordinator treats the bytes opaquely; the
// only structure it derives is the Category (uniformly zero, uniformly
// one, or regular), which drives the compact on-disk representation.
//
// The encoding (codec.go) prefixes one selector byte and picks the
// shorter of two candidate encodings per tile:
//
//   - 0x00 raw: the payload verbatim
//   - 0x01 RLE: runs of (length uint32 little-endian, value byte)
//
// Uniform and heavily banded tiles compress from 16 MiB to a few
// bytes; high-entropy tiles pay exactly one selector byte of overhead.
package tile
