// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// fractal-coordinator is the server side of the distributed Mandelbrot
// computation. It owns a fixed set of levels, leases tile assignments
// to remote workers over the distributer listener, persists returned
// tiles to disk, and serves them to clients over the data server
// listener.
//
// A level may be owned by exactly one coordinator process; the owned
// set is given with -l/--levels and enforced at startup. All other
// flags have working defaults; see --help.
package main
