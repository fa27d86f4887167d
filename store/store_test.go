// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/fractal/tile"
)

// regularPayload builds a payload that classifies as regular.
func regularPayload(t *testing.T) []byte {
	t.Helper()
	payload := make([]byte, tile.PayloadSize)
	for i := range payload {
		payload[i] = byte((i / 512) % 11)
	}
	if tile.Classify(payload) != tile.CategoryRegular {
		t.Fatal("test payload is not regular")
	}
	return payload
}

func newTestStore(t *testing.T) *TileStore {
	t.Helper()
	return Open(Config{Parent: t.TempDir()})
}

// readEntries drains a scanner and closes it.
func readEntries(t *testing.T, tileStore *TileStore) []IndexEntry {
	t.Helper()
	scanner, err := tileStore.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	defer scanner.Close()
	var entries []IndexEntry
	for scanner.Next() {
		entries = append(entries, scanner.Entry())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return entries
}

func TestSaveUniformTileIsIndexOnly(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	coord := tile.Coord{Level: 2, IndexReal: 0, IndexImag: 0}
	if err := tileStore.Save(coord, make([]byte, tile.PayloadSize)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries := readEntries(t, tileStore)
	if len(entries) != 1 {
		t.Fatalf("index holds %d entries, want 1", len(entries))
	}
	if entries[0].Category != tile.CategoryAllZero || entries[0].Name != "" {
		t.Errorf("entry = %+v, want AllZero with empty name", entries[0])
	}

	// No data file alongside the index.
	dirEntries, err := os.ReadDir(tileStore.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(dirEntries) != 1 || dirEntries[0].Name() != indexFileName {
		t.Errorf("data directory holds %d entries, want only %s", len(dirEntries), indexFileName)
	}
}

func TestSaveRegularTileWritesDataFileFirst(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	coord := tile.Coord{Level: 2, IndexReal: 0, IndexImag: 1}
	payload := regularPayload(t)
	if err := tileStore.Save(coord, payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries := readEntries(t, tileStore)
	if len(entries) != 1 {
		t.Fatalf("index holds %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Category != tile.CategoryRegular || entry.Name != "2;0;1" {
		t.Fatalf("entry = %+v, want regular named 2;0;1", entry)
	}

	// The data file holds the codec's encoded stream.
	encoded, err := os.ReadFile(filepath.Join(tileStore.Dir(), entry.Name))
	if err != nil {
		t.Fatalf("read data file: %v", err)
	}
	decoded, err := tile.Decode(encoded)
	if err != nil {
		t.Fatalf("decode data file: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("data file does not decode to the saved payload")
	}
}

func TestSaveCollisionAppendsSuffixZeroFirst(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	coord := tile.Coord{Level: 2, IndexReal: 1, IndexImag: 1}
	payload := regularPayload(t)
	if err := tileStore.Save(coord, payload); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := tileStore.Save(coord, payload); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	entries := readEntries(t, tileStore)
	if len(entries) != 2 {
		t.Fatalf("index holds %d entries, want 2", len(entries))
	}
	if entries[0].Name != "2;1;1" {
		t.Errorf("first name = %q, want 2;1;1", entries[0].Name)
	}
	if entries[1].Name != "2;1;10" {
		t.Errorf("second name = %q, want 2;1;10 (suffix 0, base never retried)", entries[1].Name)
	}
}

func TestOrphanDataFileIsInvisibleAndNotReused(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	// Simulate a crash between data-file write and index append: the
	// file exists, the index does not mention it.
	if err := tileStore.ensureReady(); err != nil {
		t.Fatalf("ensureReady: %v", err)
	}
	orphan := filepath.Join(tileStore.Dir(), "2;1;0")
	if err := os.WriteFile(orphan, []byte{0x00}, 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}

	if entries := readEntries(t, tileStore); len(entries) != 0 {
		t.Fatalf("enumerate returned %d entries for an orphan, want 0", len(entries))
	}

	// A re-save of the same coordinate picks a fresh suffixed name.
	coord := tile.Coord{Level: 2, IndexReal: 1, IndexImag: 0}
	if err := tileStore.Save(coord, regularPayload(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries := readEntries(t, tileStore)
	if len(entries) != 1 || entries[0].Name != "2;1;00" {
		t.Fatalf("entries = %+v, want one entry named 2;1;00", entries)
	}
}

func TestEnumeratePreservesInsertionOrder(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	coords := []tile.Coord{
		{Level: 4, IndexReal: 3, IndexImag: 3},
		{Level: 2, IndexReal: 0, IndexImag: 0},
		{Level: 4, IndexReal: 0, IndexImag: 1},
	}
	for _, coord := range coords {
		if err := tileStore.Save(coord, make([]byte, tile.PayloadSize)); err != nil {
			t.Fatalf("Save %v: %v", coord, err)
		}
	}

	entries := readEntries(t, tileStore)
	if len(entries) != len(coords) {
		t.Fatalf("index holds %d entries, want %d", len(entries), len(coords))
	}
	for i, coord := range coords {
		if entries[i].Coord != coord {
			t.Errorf("entry[%d] = %v, want %v", i, entries[i].Coord, coord)
		}
	}
}

func TestLookupEntriesPreservesOrderWithMisses(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	present := tile.Coord{Level: 4, IndexReal: 1, IndexImag: 2}
	if err := tileStore.Save(present, bytes.Repeat([]byte{0x01}, tile.PayloadSize)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	missing := tile.Coord{Level: 4, IndexReal: 0, IndexImag: 0}
	results, err := tileStore.LookupEntries([]tile.Coord{missing, present})
	if err != nil {
		t.Fatalf("LookupEntries: %v", err)
	}
	if results[0] != nil {
		t.Errorf("results[0] = %+v, want nil for a missing coordinate", results[0])
	}
	if results[1] == nil || results[1].Category != tile.CategoryAllOne {
		t.Errorf("results[1] = %+v, want an AllOne entry", results[1])
	}
}

func TestLoadPayloadSynthesizesUniform(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	// No data directory bootstrap needed: uniform loads do no I/O.
	payload, err := tileStore.LoadPayload(IndexEntry{
		Coord:    tile.Coord{Level: 4, IndexReal: 1, IndexImag: 2},
		Category: tile.CategoryAllOne,
	})
	if err != nil {
		t.Fatalf("LoadPayload: %v", err)
	}
	if tile.Classify(payload) != tile.CategoryAllOne {
		t.Error("synthesized payload is not all one")
	}
}

func TestLoadPayloadRegularRoundTrip(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	coord := tile.Coord{Level: 8, IndexReal: 5, IndexImag: 6}
	payload := regularPayload(t)
	if err := tileStore.Save(coord, payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries := readEntries(t, tileStore)
	loaded, err := tileStore.LoadPayload(entries[0])
	if err != nil {
		t.Fatalf("LoadPayload: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Error("loaded payload differs from saved payload")
	}
}

func TestLoadPayloadMissingDataFile(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)
	if err := tileStore.ensureReady(); err != nil {
		t.Fatalf("ensureReady: %v", err)
	}

	_, err := tileStore.LoadPayload(IndexEntry{
		Coord:    tile.Coord{Level: 2, IndexReal: 0, IndexImag: 0},
		Category: tile.CategoryRegular,
		Name:     "2;0;0",
	})
	if !errors.Is(err, ErrMissingData) {
		t.Errorf("error = %v, want ErrMissingData", err)
	}
}

func TestEnumerateCorruptIndex(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)

	coord := tile.Coord{Level: 2, IndexReal: 0, IndexImag: 0}
	if err := tileStore.Save(coord, make([]byte, tile.PayloadSize)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Append half a record header.
	indexFile, err := os.OpenFile(tileStore.indexPath(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	if _, err := indexFile.Write([]byte{0x02, 0x00, 0x00, 0x00, 0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	indexFile.Close()

	scanner, err := tileStore.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	defer scanner.Close()
	count := 0
	for scanner.Next() {
		count++
	}
	if count != 1 {
		t.Errorf("scanned %d whole records, want 1", count)
	}
	if !errors.Is(scanner.Err(), ErrCorruptIndex) {
		t.Errorf("scanner error = %v, want ErrCorruptIndex", scanner.Err())
	}
}

func TestSavePanicsOnWrongPayloadLength(t *testing.T) {
	t.Parallel()
	tileStore := newTestStore(t)
	defer func() {
		if recover() == nil {
			t.Fatal("Save accepted a short payload")
		}
	}()
	_ = tileStore.Save(tile.Coord{Level: 2}, make([]byte, 100))
}
