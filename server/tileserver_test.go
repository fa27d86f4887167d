// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/fractal/store"
	"github.com/bureau-foundation/fractal/tile"
)

// TileServer tests construct storage Workers (a process-wide
// singleton), so they do not run in parallel.

type tileServerFixture struct {
	tileStore *store.TileStore
	storage   *store.Worker
	address   string
}

// startTileServer seeds the store via seed before the worker starts,
// then serves it.
func startTileServer(t *testing.T, seed func(*store.TileStore)) *tileServerFixture {
	t.Helper()

	tileStore := store.Open(store.Config{Parent: t.TempDir()})
	if seed != nil {
		seed(tileStore)
	}
	storage := store.NewWorker(tileStore, nil)
	t.Cleanup(storage.Close)

	tileServer := NewTileServer(TileServerConfig{Storage: storage})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- tileServer.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		if err := <-served; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	return &tileServerFixture{
		tileStore: tileStore,
		storage:   storage,
		address:   listener.Addr().String(),
	}
}

// queryTile sends one tile request and returns the status code plus
// the encoded stream on accept.
func queryTile(t *testing.T, address string, level, indexReal, indexImag uint32) (byte, []byte) {
	t.Helper()
	conn := dial(t, address)

	var request [12]byte
	binary.LittleEndian.PutUint32(request[0:4], level)
	binary.LittleEndian.PutUint32(request[4:8], indexReal)
	binary.LittleEndian.PutUint32(request[8:12], indexImag)
	mustWrite(t, conn, request[:])

	code := mustRead(t, conn, 1)[0]
	if code != CodeTileAccepted {
		return code, nil
	}
	length := binary.LittleEndian.Uint32(mustRead(t, conn, 4))
	return code, mustRead(t, conn, int(length))
}

func TestTileServerHitOnUniformTile(t *testing.T) {
	fixture := startTileServer(t, func(tileStore *store.TileStore) {
		payload := bytes.Repeat([]byte{0x01}, tile.PayloadSize)
		if err := tileStore.Save(tile.Coord{Level: 4, IndexReal: 1, IndexImag: 2}, payload); err != nil {
			t.Fatalf("seed Save: %v", err)
		}
	})

	code, encoded := queryTile(t, fixture.address, 4, 1, 2)
	if code != CodeTileAccepted {
		t.Fatalf("query answered 0x%02x, want accepted", code)
	}

	// An all-one tile is one RLE run: selector, length 16,777,216
	// little-endian, value 0x01. Six bytes total.
	want := []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x01}
	if !bytes.Equal(encoded, want) {
		t.Fatalf("encoded stream:\ngot  %x\nwant %x", encoded, want)
	}
}

func TestTileServerMissAnswersNotAvailable(t *testing.T) {
	fixture := startTileServer(t, func(tileStore *store.TileStore) {
		payload := bytes.Repeat([]byte{0x01}, tile.PayloadSize)
		if err := tileStore.Save(tile.Coord{Level: 4, IndexReal: 1, IndexImag: 2}, payload); err != nil {
			t.Fatalf("seed Save: %v", err)
		}
	})

	code, _ := queryTile(t, fixture.address, 4, 0, 0)
	if code != CodeTileNotAvailable {
		t.Fatalf("miss answered 0x%02x, want not-available", code)
	}
}

func TestTileServerRejectsInvalidParameters(t *testing.T) {
	fixture := startTileServer(t, nil)

	tests := []struct {
		name                        string
		level, indexReal, indexImag uint32
	}{
		{name: "iReal equals level", level: 4, indexReal: 4, indexImag: 0},
		{name: "iImag exceeds level", level: 4, indexReal: 0, indexImag: 9},
		{name: "level zero", level: 0, indexReal: 0, indexImag: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			code, _ := queryTile(t, fixture.address, test.level, test.indexReal, test.indexImag)
			if code != CodeTileRejected {
				t.Errorf("query answered 0x%02x, want rejected", code)
			}
		})
	}
}

func TestTileServerRegularTileRoundTrip(t *testing.T) {
	payload := make([]byte, tile.PayloadSize)
	for i := range payload {
		payload[i] = byte((i / 2048) % 5)
	}
	coord := tile.Coord{Level: 8, IndexReal: 3, IndexImag: 7}

	fixture := startTileServer(t, func(tileStore *store.TileStore) {
		if err := tileStore.Save(coord, payload); err != nil {
			t.Fatalf("seed Save: %v", err)
		}
	})

	code, encoded := queryTile(t, fixture.address, coord.Level, coord.IndexReal, coord.IndexImag)
	if code != CodeTileAccepted {
		t.Fatalf("query answered 0x%02x, want accepted", code)
	}
	decoded, err := tile.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("served stream does not decode to the stored payload")
	}
}

func TestTileServerCorruptDataFileAnswersNotAvailable(t *testing.T) {
	coord := tile.Coord{Level: 2, IndexReal: 1, IndexImag: 0}
	payload := make([]byte, tile.PayloadSize)
	for i := range payload {
		payload[i] = byte(i % 3)
	}

	fixture := startTileServer(t, func(tileStore *store.TileStore) {
		if err := tileStore.Save(coord, payload); err != nil {
			t.Fatalf("seed Save: %v", err)
		}
	})

	// Truncate the data file behind the index's back.
	entries, err := fixture.storage.Lookup([]tile.Coord{coord})
	if err != nil || entries[0] == nil {
		t.Fatalf("Lookup: %v, %v", entries, err)
	}
	if err := truncateDataFile(fixture.tileStore, entries[0].Name); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	code, _ := queryTile(t, fixture.address, coord.Level, coord.IndexReal, coord.IndexImag)
	if code != CodeTileNotAvailable {
		t.Fatalf("corrupt tile answered 0x%02x, want not-available", code)
	}
}

// truncateDataFile overwrites a data file with a malformed stream.
func truncateDataFile(tileStore *store.TileStore, name string) error {
	return os.WriteFile(filepath.Join(tileStore.Dir(), name), []byte{0x01, 0x05}, 0o644)
}
