// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tile

import "fmt"

const (
	// Side is the width and height of a tile in values. A level-L
	// image is an L×L grid of tiles, so the full image at level L is
	// L·Side values square.
	Side = 4096

	// PayloadSize is the byte length of one tile payload.
	PayloadSize = Side * Side
)

// The complex plane covered by every level. Per-axis tile extent at
// level L is (MaxAxis-MinAxis)/L.
const (
	MinAxis = -2.0
	MaxAxis = 2.0
)

// Coord identifies one tile of the level grid. IndexReal and IndexImag
// must both be less than Level for the coordinate to be valid.
type Coord struct {
	Level     uint32
	IndexReal uint32
	IndexImag uint32
}

// Valid reports whether the coordinate lies inside its level grid.
func (c Coord) Valid() bool {
	return c.IndexReal < c.Level && c.IndexImag < c.Level
}

// Origin returns the complex-plane point at which the tile starts:
// (-2 + r·4/L) + (-2 + i·4/L)i.
func (c Coord) Origin() (real, imag float64) {
	extent := c.Extent()
	return MinAxis + float64(c.IndexReal)*extent, MinAxis + float64(c.IndexImag)*extent
}

// Extent returns the per-axis width of the tile on the complex plane.
func (c Coord) Extent() float64 {
	return (MaxAxis - MinAxis) / float64(c.Level)
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.Level, c.IndexReal, c.IndexImag)
}

// Category classifies a tile payload. The numeric values are part of
// the on-disk index format and must not change.
type Category uint32

const (
	// CategoryRegular is any payload that is not uniformly 0x00 or
	// 0x01. Regular tiles are stored in their own data file.
	CategoryRegular Category = 0

	// CategoryAllZero is a payload of all 0x00 bytes. Stored as an
	// index entry only; the payload is synthesized on load.
	CategoryAllZero Category = 1

	// CategoryAllOne is a payload of all 0x01 bytes. Stored as an
	// index entry only; the payload is synthesized on load.
	CategoryAllOne Category = 2
)

func (c Category) String() string {
	switch c {
	case CategoryRegular:
		return "regular"
	case CategoryAllZero:
		return "all-zero"
	case CategoryAllOne:
		return "all-one"
	default:
		return fmt.Sprintf("category(%d)", uint32(c))
	}
}

// Classify derives the category of a payload by scanning it. Panics if
// the payload is not exactly PayloadSize bytes; callers own length
// validation before a payload enters the system.
func Classify(payload []byte) Category {
	mustPayloadSize(payload)
	first := payload[0]
	if first != 0x00 && first != 0x01 {
		return CategoryRegular
	}
	for _, b := range payload[1:] {
		if b != first {
			return CategoryRegular
		}
	}
	if first == 0x00 {
		return CategoryAllZero
	}
	return CategoryAllOne
}

// Uniform synthesizes the payload for a uniform category without any
// I/O. Panics on CategoryRegular: regular payloads only exist in
// data files.
func Uniform(category Category) []byte {
	var value byte
	switch category {
	case CategoryAllZero:
		value = 0x00
	case CategoryAllOne:
		value = 0x01
	default:
		panic("tile: Uniform called with non-uniform category " + category.String())
	}
	payload := make([]byte, PayloadSize)
	if value != 0 {
		for i := range payload {
			payload[i] = value
		}
	}
	return payload
}

func mustPayloadSize(payload []byte) {
	if len(payload) != PayloadSize {
		panic(fmt.Sprintf("tile: payload is %d bytes, want %d", len(payload), PayloadSize))
	}
}
