// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Encoding selector bytes. The selector is the first byte of every
// encoded tile, on disk and on the wire.
const (
	encodingRaw byte = 0x00
	encodingRLE byte = 0x01
)

// rleRunSize is the wire size of one RLE run: a uint32 little-endian
// length followed by the run value byte.
const rleRunSize = 5

// Decode error kinds. Decode wraps these with positional context;
// classify with errors.Is.
var (
	// ErrBadEncoding means the selector byte names an unknown encoding.
	ErrBadEncoding = errors.New("unknown encoding selector")

	// ErrTruncated means the stream ended before the encoding was
	// complete.
	ErrTruncated = errors.New("truncated encoded stream")

	// ErrLengthMismatch means the encoding describes more payload
	// bytes than PayloadSize, or carries a zero-length run. Too few
	// bytes is ErrTruncated.
	ErrLengthMismatch = errors.New("encoded length mismatch")
)

// Encode serializes a payload to a self-describing byte stream. It
// measures the output length of every known encoding and emits the
// shortest, breaking ties toward the lower selector byte. Infallible
// for any payload; panics if the payload is not PayloadSize bytes.
func Encode(payload []byte) []byte {
	mustPayloadSize(payload)

	rawLength := 1 + PayloadSize
	rleLength := 1 + rleRunSize*countRuns(payload)
	if rleLength < rawLength {
		return encodeRLE(payload, rleLength)
	}
	return encodeRaw(payload)
}

// Decode reverses Encode. Fails with ErrBadEncoding, ErrTruncated, or
// ErrLengthMismatch; see the error docs for the conditions.
func Decode(encoded []byte) ([]byte, error) {
	if len(encoded) == 0 {
		return nil, fmt.Errorf("tile: %w: missing encoding selector", ErrTruncated)
	}
	selector, body := encoded[0], encoded[1:]
	switch selector {
	case encodingRaw:
		return decodeRaw(body)
	case encodingRLE:
		return decodeRLE(body)
	default:
		return nil, fmt.Errorf("tile: %w: 0x%02x", ErrBadEncoding, selector)
	}
}

func encodeRaw(payload []byte) []byte {
	encoded := make([]byte, 1+PayloadSize)
	encoded[0] = encodingRaw
	copy(encoded[1:], payload)
	return encoded
}

func encodeRLE(payload []byte, encodedLength int) []byte {
	encoded := make([]byte, 1, encodedLength)
	encoded[0] = encodingRLE

	runValue := payload[0]
	runLength := uint32(0)
	var runBuffer [rleRunSize]byte
	for _, value := range payload {
		if value == runValue {
			runLength++
			continue
		}
		binary.LittleEndian.PutUint32(runBuffer[:4], runLength)
		runBuffer[4] = runValue
		encoded = append(encoded, runBuffer[:]...)
		runValue = value
		runLength = 1
	}
	binary.LittleEndian.PutUint32(runBuffer[:4], runLength)
	runBuffer[4] = runValue
	return append(encoded, runBuffer[:]...)
}

// countRuns returns the number of maximal same-value runs in payload.
func countRuns(payload []byte) int {
	runs := 1
	previous := payload[0]
	for _, value := range payload[1:] {
		if value != previous {
			runs++
			previous = value
		}
	}
	return runs
}

func decodeRaw(body []byte) ([]byte, error) {
	if len(body) < PayloadSize {
		return nil, fmt.Errorf("tile: %w: raw body is %d bytes, want %d", ErrTruncated, len(body), PayloadSize)
	}
	if len(body) > PayloadSize {
		return nil, fmt.Errorf("tile: %w: raw body is %d bytes, want %d", ErrLengthMismatch, len(body), PayloadSize)
	}
	payload := make([]byte, PayloadSize)
	copy(payload, body)
	return payload, nil
}

func decodeRLE(body []byte) ([]byte, error) {
	payload := make([]byte, 0, PayloadSize)
	for offset := 0; offset < len(body); offset += rleRunSize {
		if len(payload) == PayloadSize {
			return nil, fmt.Errorf("tile: %w: %d trailing bytes after full payload", ErrLengthMismatch, len(body)-offset)
		}
		if offset+rleRunSize > len(body) {
			return nil, fmt.Errorf("tile: %w: partial run at offset %d", ErrTruncated, offset)
		}
		runLength := binary.LittleEndian.Uint32(body[offset : offset+4])
		runValue := body[offset+4]
		if runLength == 0 {
			return nil, fmt.Errorf("tile: %w: zero-length run at offset %d", ErrLengthMismatch, offset)
		}
		if int(runLength) > PayloadSize-len(payload) {
			return nil, fmt.Errorf("tile: %w: runs describe more than %d bytes", ErrLengthMismatch, PayloadSize)
		}
		for i := uint32(0); i < runLength; i++ {
			payload = append(payload, runValue)
		}
	}
	if len(payload) != PayloadSize {
		return nil, fmt.Errorf("tile: %w: runs describe %d bytes, want %d", ErrTruncated, len(payload), PayloadSize)
	}
	return payload, nil
}
