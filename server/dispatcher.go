// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/fractal/lease"
	"github.com/bureau-foundation/fractal/store"
	"github.com/bureau-foundation/fractal/tile"
)

// Dispatcher is the worker-facing listener. Workers connect to fetch
// a tile assignment or to return a computed payload; every connection
// carries exactly one exchange and is then closed.
type Dispatcher struct {
	board       *lease.Board
	storage     *store.Worker
	logger      *slog.Logger
	readTimeout time.Duration
}

// DispatcherConfig holds the dispatcher's dependencies.
type DispatcherConfig struct {
	// Board hands out and settles leases. Required.
	Board *lease.Board

	// Storage persists accepted payloads. Required.
	Storage *store.Worker

	// ReadTimeout is the per-read socket deadline; zero disables
	// deadlines entirely (the -t/--timeout flag).
	ReadTimeout time.Duration

	// Logger receives connection-level messages. Defaults to discard.
	Logger *slog.Logger
}

// NewDispatcher returns a dispatcher ready to serve.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		board:       cfg.Board,
		storage:     cfg.Storage,
		logger:      cfg.Logger,
		readTimeout: cfg.ReadTimeout,
	}
}

// Serve runs the accept loop on the listener until ctx is cancelled.
func (d *Dispatcher) Serve(ctx context.Context, listener net.Listener) error {
	d.logger.Info("dispatcher listening", "address", listener.Addr().String())
	return serveLoop(ctx, listener, d.logger, d.handle)
}

// handle runs one worker exchange. Every error path closes the
// connection. Only a payload read that fails after an accepted
// response leaves state behind: the coordinate stays completed.
func (d *Dispatcher) handle(conn net.Conn) {
	defer conn.Close()

	var purpose [1]byte
	if err := readFull(conn, purpose[:], d.readTimeout); err != nil {
		logConnError(d.logger, conn, "read purpose", err)
		return
	}

	switch purpose[0] {
	case PurposeRequest:
		d.handleRequest(conn)
	case PurposeResponse:
		d.handleResponse(conn)
	default:
		d.logger.Error("unknown purpose byte",
			"purpose", purpose[0],
			"remote", conn.RemoteAddr().String(),
		)
	}
}

// handleRequest leases the next needed tile to the worker. The lease
// is granted only after the workload message is on the wire; a failed
// write costs nothing.
func (d *Dispatcher) handleRequest(conn net.Conn) {
	workload, ok := d.board.NextNeeded()
	if !ok {
		if err := writeAll(conn, []byte{CodeWorkloadNotAvailable}); err != nil {
			logConnError(d.logger, conn, "write not-available", err)
		}
		return
	}

	var message [17]byte
	message[0] = CodeWorkloadAvailable
	binary.LittleEndian.PutUint32(message[1:5], workload.Coord.Level)
	binary.LittleEndian.PutUint32(message[5:9], workload.MaxDepth)
	binary.LittleEndian.PutUint32(message[9:13], workload.Coord.IndexReal)
	binary.LittleEndian.PutUint32(message[13:17], workload.Coord.IndexImag)
	if err := writeAll(conn, message[:]); err != nil {
		logConnError(d.logger, conn, "write workload", err)
		return
	}

	granted := d.board.Grant(workload)
	d.logger.Info("workload leased",
		"workload", workload.String(),
		"deadline", granted.Deadline,
		"remote", conn.RemoteAddr().String(),
	)
}

// handleResponse validates a returning workload against the
// outstanding leases and, when accepted, reads the payload and hands
// it to storage without waiting for the write: the coordinate is
// already accounted completed, so durability is best-effort relative
// to this worker.
func (d *Dispatcher) handleResponse(conn net.Conn) {
	var fields [16]byte
	if err := readFull(conn, fields[:], d.readTimeout); err != nil {
		logConnError(d.logger, conn, "read response workload", err)
		return
	}
	response := lease.Workload{
		Coord: tile.Coord{
			Level:     binary.LittleEndian.Uint32(fields[0:4]),
			IndexReal: binary.LittleEndian.Uint32(fields[8:12]),
			IndexImag: binary.LittleEndian.Uint32(fields[12:16]),
		},
		MaxDepth: binary.LittleEndian.Uint32(fields[4:8]),
	}

	if !response.Coord.Valid() {
		d.logger.Error("response with out-of-range coordinate",
			"workload", response.String(),
			"remote", conn.RemoteAddr().String(),
		)
		return
	}

	if !d.board.Accept(response) {
		d.logger.Info("response rejected",
			"workload", response.String(),
			"remote", conn.RemoteAddr().String(),
		)
		if err := writeAll(conn, []byte{CodeResponseReject}); err != nil {
			logConnError(d.logger, conn, "write reject", err)
		}
		return
	}

	if err := writeAll(conn, []byte{CodeResponseAccept}); err != nil {
		logConnError(d.logger, conn, "write accept", err)
		return
	}

	payload := make([]byte, tile.PayloadSize)
	if err := readFull(conn, payload, d.readTimeout); err != nil {
		// The coordinate stays completed in memory; with no payload
		// there is nothing to persist, so the next process restart
		// rediscovers the gap and reissues the tile.
		logConnError(d.logger, conn, "read payload", err)
		return
	}

	d.storage.SaveAsync(response.Coord, payload, nil)
	d.logger.Info("response accepted",
		"workload", response.String(),
		"remote", conn.RemoteAddr().String(),
	)
}
