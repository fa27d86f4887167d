// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/fractal/lib/clock"
	"github.com/bureau-foundation/fractal/tile"
)

const (
	// DefaultTTL is the lease lifetime: how long a worker has to
	// return a computed tile before the coordinate is re-issued.
	DefaultTTL = time.Hour

	// DefaultSweepInterval is how often the background sweeper drops
	// expired leases. Expired leases are also reclaimed lazily by
	// NextNeeded, so the sweeper only bounds memory, not latency.
	DefaultSweepInterval = 5 * time.Minute
)

// LevelSpec is one owned level and the recursion cap advertised to
// workers for its tiles.
type LevelSpec struct {
	Level    uint32
	MaxDepth uint32
}

// BoardConfig holds the parameters for constructing a Board.
type BoardConfig struct {
	// Registry is the process-wide ownership registry. Required.
	Registry *Registry

	// Levels are the owned levels in configuration order. NextNeeded
	// enumerates them in exactly this order. Required, non-empty.
	Levels []LevelSpec

	// Completed seeds the completed set, normally with the coordinates
	// of every owned-level index entry discovered at startup.
	Completed []tile.Coord

	// TTL is the lease lifetime. Defaults to DefaultTTL.
	TTL time.Duration

	// SweepInterval is the sweeper period. Defaults to
	// DefaultSweepInterval.
	SweepInterval time.Duration

	// Clock drives deadlines and the sweeper. Defaults to the real
	// clock.
	Clock clock.Clock

	// Logger receives operational messages. Defaults to discard.
	Logger *slog.Logger
}

// Board is the lease state for one coordinator: the outstanding
// leases and the completed set for the levels it owns. All access
// goes through one mutex; the Board is the concurrency hot spot
// between dispatcher connection handlers.
type Board struct {
	levels   []LevelSpec
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger
	ttl      time.Duration

	mu sync.Mutex
	// outstanding holds at most one lease per coordinate. It is a
	// slice, not a map: lease lookup is by the Matches predicate,
	// which is not an equality and cannot be a map key.
	outstanding []Lease
	completed   map[tile.Coord]struct{}
	// completedPerLevel lets NextNeeded skip fully-finished levels
	// without enumerating their grids.
	completedPerLevel map[uint32]uint64

	sweepStop chan struct{}
	sweepDone chan struct{}

	closeOnce sync.Once
}

// NewBoard claims the configured levels in the registry, seeds the
// completed set, and starts the background sweeper. Fails with
// ErrLevelAlreadyOwned if any level is owned by another live Board.
func NewBoard(cfg BoardConfig) (*Board, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("lease: BoardConfig.Registry is required")
	}
	if len(cfg.Levels) == 0 {
		return nil, fmt.Errorf("lease: BoardConfig.Levels is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	board := &Board{
		levels:            cfg.Levels,
		registry:          cfg.Registry,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		ttl:               cfg.TTL,
		completed:         make(map[tile.Coord]struct{}, len(cfg.Completed)),
		completedPerLevel: make(map[uint32]uint64, len(cfg.Levels)),
		sweepStop:         make(chan struct{}),
		sweepDone:         make(chan struct{}),
	}
	if err := cfg.Registry.claim(board.OwnedLevels()); err != nil {
		return nil, err
	}
	for _, coord := range cfg.Completed {
		if _, duplicate := board.completed[coord]; duplicate {
			continue
		}
		board.completed[coord] = struct{}{}
		board.completedPerLevel[coord.Level]++
	}

	go board.sweepLoop(cfg.SweepInterval)
	return board, nil
}

// Close stops the sweeper and releases the owned levels. The Board
// must not be used afterward.
func (b *Board) Close() {
	b.closeOnce.Do(func() {
		close(b.sweepStop)
		<-b.sweepDone
		b.registry.release(b.OwnedLevels())
	})
}

// OwnedLevels returns the owned level numbers in configuration order.
func (b *Board) OwnedLevels() []uint32 {
	levels := make([]uint32, len(b.levels))
	for i, spec := range b.levels {
		levels[i] = spec.Level
	}
	return levels
}

// NextNeeded returns the first workload that is neither completed nor
// held by an unexpired lease, enumerating levels in configuration
// order and tile indices real-major ascending. Returns false when
// every owned tile is completed or leased.
//
// An expired lease does not block its coordinate: reclamation is lazy
// here and does not wait for the sweeper.
func (b *Board) NextNeeded() (Workload, bool) {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	leased := make(map[tile.Coord]struct{}, len(b.outstanding))
	for _, lease := range b.outstanding {
		if !lease.Expired(now) {
			leased[lease.Workload.Coord] = struct{}{}
		}
	}

	for _, spec := range b.levels {
		total := uint64(spec.Level) * uint64(spec.Level)
		if b.completedPerLevel[spec.Level] == total {
			continue
		}
		for indexReal := uint32(0); indexReal < spec.Level; indexReal++ {
			for indexImag := uint32(0); indexImag < spec.Level; indexImag++ {
				coord := tile.Coord{Level: spec.Level, IndexReal: indexReal, IndexImag: indexImag}
				if _, done := b.completed[coord]; done {
					continue
				}
				if _, held := leased[coord]; held {
					continue
				}
				return Workload{Coord: coord, MaxDepth: spec.MaxDepth}, true
			}
		}
	}
	return Workload{}, false
}

// Grant records a lease on the workload with a fresh deadline and
// returns it. An expired lease on the same coordinate is silently
// replaced. If a live lease already holds the coordinate (two
// handlers racing between NextNeeded and Grant), the existing lease
// is kept and returned unchanged; a coordinate is never doubly
// leased.
func (b *Board) Grant(workload Workload) Lease {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.outstanding {
		if existing.Workload.Coord != workload.Coord {
			continue
		}
		if !existing.Expired(now) {
			return existing
		}
		b.outstanding[i] = Lease{Workload: workload, Deadline: now.Add(b.ttl)}
		return b.outstanding[i]
	}

	lease := Lease{Workload: workload, Deadline: now.Add(b.ttl)}
	b.outstanding = append(b.outstanding, lease)
	return lease
}

// Accept settles a returning worker response. If an unexpired lease
// matches it, the lease is removed, the coordinate joins the
// completed set, and Accept returns true. Otherwise the response is
// stale or unsolicited and Accept returns false.
func (b *Board) Accept(response Workload) bool {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, lease := range b.outstanding {
		if !lease.AcceptsResponse(response, now) {
			continue
		}
		b.outstanding = append(b.outstanding[:i], b.outstanding[i+1:]...)
		coord := lease.Workload.Coord
		if _, duplicate := b.completed[coord]; !duplicate {
			b.completed[coord] = struct{}{}
			b.completedPerLevel[coord.Level]++
		}
		return true
	}
	return false
}

// Sweep drops every lease whose deadline has passed.
func (b *Board) Sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.outstanding[:0]
	for _, lease := range b.outstanding {
		if lease.Expired(now) {
			b.logger.Info("lease expired",
				"workload", lease.Workload.String(),
				"deadline", lease.Deadline,
			)
			continue
		}
		kept = append(kept, lease)
	}
	b.outstanding = kept
}

// sweepLoop runs Sweep on a fixed period until Close.
func (b *Board) sweepLoop(interval time.Duration) {
	defer close(b.sweepDone)
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			b.Sweep(now)
		case <-b.sweepStop:
			return
		}
	}
}

// LevelProgress is the completion state of one owned level.
type LevelProgress struct {
	Level     uint32
	MaxDepth  uint32
	Total     uint64
	Completed uint64
}

// Stats is a point-in-time snapshot of the board for operational
// reporting.
type Stats struct {
	Outstanding int
	Completed   int
	Levels      []LevelProgress
}

// Stats returns a snapshot of lease and completion counts. The
// outstanding count includes expired leases the sweeper has not yet
// dropped.
func (b *Board) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Outstanding: len(b.outstanding),
		Completed:   len(b.completed),
		Levels:      make([]LevelProgress, len(b.levels)),
	}
	for i, spec := range b.levels {
		stats.Levels[i] = LevelProgress{
			Level:     spec.Level,
			MaxDepth:  spec.MaxDepth,
			Total:     uint64(spec.Level) * uint64(spec.Level),
			Completed: b.completedPerLevel[spec.Level],
		}
	}
	return stats
}
