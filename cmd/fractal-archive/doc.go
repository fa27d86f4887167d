// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// fractal-archive moves persisted tile sets in and out of a
// coordinator data directory as compressed, digest-verified archive
// files.
//
//	fractal-archive export -o DIR --output tiles.frtar [--levels 2,4]
//	fractal-archive import -o DIR --input tiles.frtar
//
// Export walks the index and writes every matching tile; import
// replays an archive, skipping tiles the index already holds. Run it
// against a stopped coordinator: the tools share file locks with a
// live process, but a live coordinator will not see imported tiles
// until restart.
package main
