// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/fractal/lease"
	"github.com/bureau-foundation/fractal/lib/clock"
	"github.com/bureau-foundation/fractal/lib/codec"
	"github.com/bureau-foundation/fractal/lib/testutil"
	"github.com/bureau-foundation/fractal/tile"
)

func TestStatusSnapshot(t *testing.T) {
	t.Parallel()

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	board, err := lease.NewBoard(lease.BoardConfig{
		Registry: lease.NewRegistry(),
		Levels:   []lease.LevelSpec{{Level: 2, MaxDepth: 100}},
		Completed: []tile.Coord{
			{Level: 2, IndexReal: 0, IndexImag: 0},
		},
		Clock: fakeClock,
	})
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	t.Cleanup(board.Close)

	workload, _ := board.NextNeeded()
	board.Grant(workload)

	server := NewServer(Config{Board: board, Clock: fakeClock})
	fakeClock.Advance(90 * time.Second)

	socketPath := filepath.Join(testutil.SocketDir(t), "status.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		if err := <-served; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	encoded, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}

	var response Response
	if err := codec.Unmarshal(encoded, &response); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if response.TilesCompleted != 1 {
		t.Errorf("TilesCompleted = %d, want 1", response.TilesCompleted)
	}
	if response.LeasesOutstanding != 1 {
		t.Errorf("LeasesOutstanding = %d, want 1", response.LeasesOutstanding)
	}
	if response.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %v, want 90", response.UptimeSeconds)
	}
	if len(response.Levels) != 1 || response.Levels[0].Total != 4 || response.Levels[0].Completed != 1 {
		t.Errorf("Levels = %+v, want one level at 1/4", response.Levels)
	}
}
