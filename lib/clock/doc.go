// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a deterministic clock that advances only when Advance
// is called.
//
// Lease deadlines, the lease sweeper, and storage retry backoff all run
// on a Clock, so tests can expire a one-hour lease or fire a five-minute
// sweep without waiting.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Board struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	board, err := NewBoard(BoardConfig{Clock: c, ...})
//	c.WaitForTimers(1)          // sweeper ticker registered
//	c.Advance(5 * time.Minute)  // deterministically fires a sweep
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock, it
// registers a pending waiter. Use WaitForTimers to block until a
// specific number of waiters are registered before calling Advance.
// This eliminates the race between timer registration and time
// advancement that plagues tests using time.Sleep for synchronization.
package clock
