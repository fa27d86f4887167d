// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/fractal/store"
	"github.com/bureau-foundation/fractal/tile"
)

// Export walks the store's index and writes every tile whose level is
// in levels (all levels when the filter is empty) to an archive on w.
// Returns the number of tiles exported.
func Export(tileStore *store.TileStore, w io.Writer, levels []uint32) (int, error) {
	wanted := make(map[uint32]struct{}, len(levels))
	for _, level := range levels {
		wanted[level] = struct{}{}
	}

	// Collect the entries first: the scanner holds the index lock,
	// and payload loads should not run under it longer than needed.
	scanner, err := tileStore.Enumerate()
	if err != nil {
		return 0, err
	}
	var entries []store.IndexEntry
	for scanner.Next() {
		entry := scanner.Entry()
		if len(wanted) > 0 {
			if _, ok := wanted[entry.Coord.Level]; !ok {
				continue
			}
		}
		entries = append(entries, entry)
	}
	scanErr := scanner.Err()
	scanner.Close()
	if scanErr != nil {
		return 0, scanErr
	}

	writer, err := NewWriter(w)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		payload, err := tileStore.LoadPayload(entry)
		if err != nil {
			return 0, fmt.Errorf("archive: export tile %v: %w", entry.Coord, err)
		}
		record := Record{
			Coord:    entry.Coord,
			Category: entry.Category,
			Encoded:  tile.Encode(payload),
		}
		if err := writer.WriteRecord(record); err != nil {
			return 0, err
		}
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Import replays an archive into the store. Tiles whose coordinate is
// already in the index are skipped; everything else is decoded
// (verifying the digest and the encoding) and saved. Returns the
// number of tiles added and skipped.
func Import(tileStore *store.TileStore, r io.Reader) (added, skipped int, err error) {
	reader, err := NewReader(r)
	if err != nil {
		return 0, 0, err
	}
	defer reader.Close()

	for {
		record, err := reader.Next()
		if err == io.EOF {
			return added, skipped, nil
		}
		if err != nil {
			return added, skipped, err
		}

		existing, err := tileStore.LookupEntries([]tile.Coord{record.Coord})
		if err != nil {
			return added, skipped, err
		}
		if existing[0] != nil {
			skipped++
			continue
		}

		payload, err := tile.Decode(record.Encoded)
		if err != nil {
			return added, skipped, fmt.Errorf("archive: import tile %v: %w", record.Coord, err)
		}
		if err := tileStore.Save(record.Coord, payload); err != nil {
			return added, skipped, err
		}
		added++
	}
}
