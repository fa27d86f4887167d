// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the coordinator's configuration: the owned
// levels with their depth caps, the two listener endpoints, the
// per-channel log toggles, and the data directory.
//
// Configuration comes from the command line, optionally seeded by a
// single YAML file named with --config. There is no automatic
// discovery and no environment fallback; a flag given explicitly
// always wins over the file. Unknown keys in the file are an error,
// not a warning, because a typo must not silently configure nothing.
package config
