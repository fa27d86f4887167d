// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists computed tiles and serves them back.
//
// On-disk layout is one directory (the data directory) holding an
// append-only index file (_index.dat) and one data file per regular
// tile. The index records every persisted tile; uniform tiles
// (all-zero, all-one) are index entries only and their payloads are
// synthesized on load. Data files hold the tile's encoded byte stream
// exactly as the tile codec produced it.
//
// The index format is bit-exact little-endian:
//
//	level:u32 iReal:u32 iImag:u32 category:u32
//	[ if category == regular: nameLen:i32 name:ASCII[nameLen] ]
//
// Save writes the data file before appending the index record, so a
// crash between the two leaves an orphan data file rather than an
// index entry pointing at nothing. Orphans are invisible to
// enumeration and a later save of the same coordinate picks a fresh
// file name.
//
// TileStore methods are individually safe for concurrent use, but all
// in-process access is expected to flow through Worker, a
// single-consumer job queue that serializes storage operations so that
// network handlers never hold the index lock directly.
package store
