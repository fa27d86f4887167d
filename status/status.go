// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/fractal/lease"
	"github.com/bureau-foundation/fractal/lib/clock"
	"github.com/bureau-foundation/fractal/lib/codec"
)

// Response is the CBOR snapshot written to every status connection.
// It contains only aggregate operational state, never tile content.
type Response struct {
	TilesCompleted    uint64        `cbor:"tiles_completed"`
	LeasesOutstanding int           `cbor:"leases_outstanding"`
	UptimeSeconds     float64       `cbor:"uptime_seconds"`
	Levels            []LevelStatus `cbor:"levels"`
}

// LevelStatus is the completion state of one owned level.
type LevelStatus struct {
	Level     uint32 `cbor:"level"`
	MaxDepth  uint32 `cbor:"max_depth"`
	Total     uint64 `cbor:"total"`
	Completed uint64 `cbor:"completed"`
}

// Server answers status connections from a lease board snapshot.
type Server struct {
	board     *lease.Board
	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time
}

// Config holds the status server's dependencies.
type Config struct {
	// Board supplies the state snapshot. Required.
	Board *lease.Board

	// Clock provides uptime measurement. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives connection-level messages. Defaults to discard.
	Logger *slog.Logger
}

// NewServer returns a status server; uptime counts from this moment.
func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		board:     cfg.Board,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		startedAt: cfg.Clock.Now(),
	}
}

// Serve accepts connections until ctx is cancelled. Each connection
// receives one encoded Response and is closed; nothing is read.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("status: accept: %w", err)
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	stats := s.board.Stats()
	response := Response{
		TilesCompleted:    uint64(stats.Completed),
		LeasesOutstanding: stats.Outstanding,
		UptimeSeconds:     s.clock.Now().Sub(s.startedAt).Seconds(),
		Levels:            make([]LevelStatus, len(stats.Levels)),
	}
	for i, progress := range stats.Levels {
		response.Levels[i] = LevelStatus{
			Level:     progress.Level,
			MaxDepth:  progress.MaxDepth,
			Total:     progress.Total,
			Completed: progress.Completed,
		}
	}

	encoded, err := codec.Marshal(response)
	if err != nil {
		s.logger.Error("status encoding failed", "error", err)
		return
	}
	if _, err := conn.Write(encoded); err != nil {
		s.logger.Error("status write failed", "error", err)
	}
}
