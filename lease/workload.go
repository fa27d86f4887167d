// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/fractal/tile"
)

// MaxDepthUnspecified is the sentinel for a workload whose recursion
// cap is unknown. Matching skips the depth comparison when either side
// carries the sentinel.
const MaxDepthUnspecified = ^uint32(0)

// Workload is one unit of assignable work: a tile coordinate plus the
// worker-side recursion cap advertised for it.
type Workload struct {
	Coord    tile.Coord
	MaxDepth uint32
}

func (w Workload) String() string {
	if w.MaxDepth == MaxDepthUnspecified {
		return fmt.Sprintf("%v depth=?", w.Coord)
	}
	return fmt.Sprintf("%v depth=%d", w.Coord, w.MaxDepth)
}

// Matches reports whether two workloads describe the same work. The
// coordinates must be equal; the depth caps are compared only when
// both sides carry one. The relation is deliberately not an equality:
// a workload with an unspecified depth matches any depth, so Workload
// values must not be used as map keys for lease lookups.
func (w Workload) Matches(other Workload) bool {
	if w.Coord != other.Coord {
		return false
	}
	if w.MaxDepth == MaxDepthUnspecified || other.MaxDepth == MaxDepthUnspecified {
		return true
	}
	return w.MaxDepth == other.MaxDepth
}

// Lease is a workload assigned to one worker until an absolute
// deadline.
type Lease struct {
	Workload Workload
	Deadline time.Time
}

// Expired reports whether the lease deadline has passed. A response
// arriving exactly at the deadline still matches.
func (l Lease) Expired(now time.Time) bool {
	return now.After(l.Deadline)
}

// AcceptsResponse reports whether a returning worker response settles
// this lease: the workloads match and the lease has not expired.
func (l Lease) AcceptsResponse(response Workload, now time.Time) bool {
	return !l.Expired(now) && l.Workload.Matches(response)
}
