// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/fractal/tile"
)

// ErrCorruptIndex means the index file holds a record that cannot be
// parsed: a truncated record, an unknown category, or a malformed data
// file name. There is no automatic repair.
var ErrCorruptIndex = errors.New("store: corrupt index")

// maxDataFileNameLength bounds the name field of an index record. Data
// file names are "{level};{iReal};{iImag}" plus a small collision
// suffix, so anything near this bound is corruption, not data.
const maxDataFileNameLength = 255

// IndexEntry is one record of the index file: a persisted tile. Name
// is the data file name and is meaningful only for CategoryRegular.
type IndexEntry struct {
	Coord    tile.Coord
	Category tile.Category
	Name     string
}

// appendIndexRecord writes one index record to w in the bit-exact
// little-endian format.
func appendIndexRecord(w io.Writer, entry IndexEntry) error {
	var header [16]byte
	binary.LittleEndian.PutUint32(header[0:4], entry.Coord.Level)
	binary.LittleEndian.PutUint32(header[4:8], entry.Coord.IndexReal)
	binary.LittleEndian.PutUint32(header[8:12], entry.Coord.IndexImag)
	binary.LittleEndian.PutUint32(header[12:16], uint32(entry.Category))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write index record: %w", err)
	}
	if entry.Category != tile.CategoryRegular {
		return nil
	}
	var nameLength [4]byte
	binary.LittleEndian.PutUint32(nameLength[:], uint32(len(entry.Name)))
	if _, err := w.Write(nameLength[:]); err != nil {
		return fmt.Errorf("write index record name length: %w", err)
	}
	if _, err := io.WriteString(w, entry.Name); err != nil {
		return fmt.Errorf("write index record name: %w", err)
	}
	return nil
}

// readIndexRecord reads one index record from r. Returns io.EOF when r
// is exhausted at a record boundary, and ErrCorruptIndex when a record
// is truncated or malformed.
func readIndexRecord(r io.Reader) (IndexEntry, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return IndexEntry{}, io.EOF
		}
		return IndexEntry{}, fmt.Errorf("%w: truncated record header: %v", ErrCorruptIndex, err)
	}

	entry := IndexEntry{
		Coord: tile.Coord{
			Level:     binary.LittleEndian.Uint32(header[0:4]),
			IndexReal: binary.LittleEndian.Uint32(header[4:8]),
			IndexImag: binary.LittleEndian.Uint32(header[8:12]),
		},
		Category: tile.Category(binary.LittleEndian.Uint32(header[12:16])),
	}

	switch entry.Category {
	case tile.CategoryAllZero, tile.CategoryAllOne:
		return entry, nil
	case tile.CategoryRegular:
	default:
		return IndexEntry{}, fmt.Errorf("%w: unknown category %d for tile %v", ErrCorruptIndex, uint32(entry.Category), entry.Coord)
	}

	var lengthBuffer [4]byte
	if _, err := io.ReadFull(r, lengthBuffer[:]); err != nil {
		return IndexEntry{}, fmt.Errorf("%w: truncated name length for tile %v", ErrCorruptIndex, entry.Coord)
	}
	nameLength := int32(binary.LittleEndian.Uint32(lengthBuffer[:]))
	if nameLength <= 0 || nameLength > maxDataFileNameLength {
		return IndexEntry{}, fmt.Errorf("%w: name length %d for tile %v", ErrCorruptIndex, nameLength, entry.Coord)
	}

	name := make([]byte, nameLength)
	if _, err := io.ReadFull(r, name); err != nil {
		return IndexEntry{}, fmt.Errorf("%w: truncated name for tile %v", ErrCorruptIndex, entry.Coord)
	}
	for _, b := range name {
		if b >= 0x80 {
			return IndexEntry{}, fmt.Errorf("%w: non-ASCII name for tile %v", ErrCorruptIndex, entry.Coord)
		}
	}
	entry.Name = string(name)
	return entry, nil
}
