// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides process-level helpers shared by the fractal
// binaries: the standard entrypoint error handler.
package process
