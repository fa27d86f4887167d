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

	"github.com/bureau-foundation/fractal/store"
	"github.com/bureau-foundation/fractal/tile"
)

// TileServer is the client-facing listener. Clients request one tile
// per connection and receive its encoded byte stream.
type TileServer struct {
	storage     *store.Worker
	logger      *slog.Logger
	readTimeout time.Duration
}

// TileServerConfig holds the tile server's dependencies.
type TileServerConfig struct {
	// Storage answers index lookups and payload loads. Required.
	Storage *store.Worker

	// ReadTimeout is the per-read socket deadline; zero disables
	// deadlines entirely.
	ReadTimeout time.Duration

	// Logger receives connection-level messages. Defaults to discard.
	Logger *slog.Logger
}

// NewTileServer returns a tile server ready to serve.
func NewTileServer(cfg TileServerConfig) *TileServer {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TileServer{
		storage:     cfg.Storage,
		logger:      cfg.Logger,
		readTimeout: cfg.ReadTimeout,
	}
}

// Serve runs the accept loop on the listener until ctx is cancelled.
func (s *TileServer) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("tile server listening", "address", listener.Addr().String())
	return serveLoop(ctx, listener, s.logger, s.handle)
}

// handle answers one tile request. Invalid parameters are rejected
// before any index work; a missing or unreadable tile answers
// not-available rather than disturbing the connection.
func (s *TileServer) handle(conn net.Conn) {
	defer conn.Close()

	var request [12]byte
	if err := readFull(conn, request[:], s.readTimeout); err != nil {
		logConnError(s.logger, conn, "read request", err)
		return
	}
	coord := tile.Coord{
		Level:     binary.LittleEndian.Uint32(request[0:4]),
		IndexReal: binary.LittleEndian.Uint32(request[4:8]),
		IndexImag: binary.LittleEndian.Uint32(request[8:12]),
	}

	if !coord.Valid() {
		if err := writeAll(conn, []byte{CodeTileRejected}); err != nil {
			logConnError(s.logger, conn, "write rejected", err)
		}
		return
	}

	entries, err := s.storage.Lookup([]tile.Coord{coord})
	if err != nil {
		s.logger.Error("index lookup failed", "tile", coord.String(), "error", err)
		s.writeNotAvailable(conn)
		return
	}
	if entries[0] == nil {
		s.writeNotAvailable(conn)
		return
	}

	payload, err := s.storage.LoadPayload(*entries[0])
	if err != nil {
		s.logger.Error("payload load failed", "tile", coord.String(), "error", err)
		s.writeNotAvailable(conn)
		return
	}

	// Clients always receive the self-describing encoded stream, so a
	// synthesized uniform payload is encoded just like a regular one.
	encoded := tile.Encode(payload)

	var header [5]byte
	header[0] = CodeTileAccepted
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(encoded)))
	if err := writeAll(conn, header[:]); err != nil {
		logConnError(s.logger, conn, "write header", err)
		return
	}
	if err := writeAll(conn, encoded); err != nil {
		logConnError(s.logger, conn, "write tile", err)
	}
}

func (s *TileServer) writeNotAvailable(conn net.Conn) {
	if err := writeAll(conn, []byte{CodeTileNotAvailable}); err != nil {
		logConnError(s.logger, conn, "write not-available", err)
	}
}
