// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/fractal/tile"
)

// magic identifies a tile archive stream. It precedes the compressed
// body uncompressed, so a wrong file fails before any decompression.
var magic = [8]byte{'F', 'R', 'T', 'I', 'L', 'E', 'S', '1'}

var (
	// ErrBadMagic means the input does not start with the archive
	// magic, meaning it is not a tile archive.
	ErrBadMagic = errors.New("archive: not a tile archive")

	// ErrCorrupt means a record is structurally broken: a truncated
	// header, an implausible length, or an invalid coordinate.
	ErrCorrupt = errors.New("archive: corrupt record")

	// ErrDigestMismatch means a record's encoded stream does not hash
	// to its recorded digest.
	ErrDigestMismatch = errors.New("archive: digest mismatch")
)

// maxEncodedLength bounds a record's encoded stream: the raw encoding
// is the largest the tile codec produces.
const maxEncodedLength = 1 + tile.PayloadSize

// recordHeaderSize is the fixed prefix of each record: level, iReal,
// iImag, category, and encoded length (uint32 little-endian each),
// then the 32-byte BLAKE3 digest.
const recordHeaderSize = 20 + 32

// Record is one archived tile.
type Record struct {
	Coord    tile.Coord
	Category tile.Category
	Encoded  []byte
}

// Writer writes a tile archive to an underlying stream.
type Writer struct {
	compressor *zstd.Encoder
}

// NewWriter writes the archive magic and prepares the compressed
// body. Close flushes the compressor; the caller owns closing the
// underlying writer.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(magic[:]); err != nil {
		return nil, fmt.Errorf("archive: write magic: %w", err)
	}
	compressor, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &Writer{compressor: compressor}, nil
}

// WriteRecord appends one tile record, computing its digest.
func (w *Writer) WriteRecord(record Record) error {
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], record.Coord.Level)
	binary.LittleEndian.PutUint32(header[4:8], record.Coord.IndexReal)
	binary.LittleEndian.PutUint32(header[8:12], record.Coord.IndexImag)
	binary.LittleEndian.PutUint32(header[12:16], uint32(record.Category))
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(record.Encoded)))
	digest := blake3.Sum256(record.Encoded)
	copy(header[20:], digest[:])

	if _, err := w.compressor.Write(header[:]); err != nil {
		return fmt.Errorf("archive: write record header: %w", err)
	}
	if _, err := w.compressor.Write(record.Encoded); err != nil {
		return fmt.Errorf("archive: write record body: %w", err)
	}
	return nil
}

// Close flushes the compressed body. The Writer must not be used
// afterward.
func (w *Writer) Close() error {
	if err := w.compressor.Close(); err != nil {
		return fmt.Errorf("archive: close: %w", err)
	}
	return nil
}

// Reader reads a tile archive.
type Reader struct {
	decompressor *zstd.Decoder
}

// NewReader checks the archive magic and prepares the decompressor.
func NewReader(r io.Reader) (*Reader, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if header != magic {
		return nil, ErrBadMagic
	}
	decompressor, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &Reader{decompressor: decompressor}, nil
}

// Next returns the next record, verifying its digest. Returns io.EOF
// at the end of the archive.
func (r *Reader) Next() (Record, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r.decompressor, header[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: truncated header: %v", ErrCorrupt, err)
	}

	record := Record{
		Coord: tile.Coord{
			Level:     binary.LittleEndian.Uint32(header[0:4]),
			IndexReal: binary.LittleEndian.Uint32(header[4:8]),
			IndexImag: binary.LittleEndian.Uint32(header[8:12]),
		},
		Category: tile.Category(binary.LittleEndian.Uint32(header[12:16])),
	}
	if !record.Coord.Valid() {
		return Record{}, fmt.Errorf("%w: invalid coordinate %v", ErrCorrupt, record.Coord)
	}

	encodedLength := binary.LittleEndian.Uint32(header[16:20])
	if encodedLength == 0 || encodedLength > maxEncodedLength {
		return Record{}, fmt.Errorf("%w: encoded length %d for tile %v", ErrCorrupt, encodedLength, record.Coord)
	}

	record.Encoded = make([]byte, encodedLength)
	if _, err := io.ReadFull(r.decompressor, record.Encoded); err != nil {
		return Record{}, fmt.Errorf("%w: truncated body for tile %v: %v", ErrCorrupt, record.Coord, err)
	}

	digest := blake3.Sum256(record.Encoded)
	var recorded [32]byte
	copy(recorded[:], header[20:])
	if digest != recorded {
		return Record{}, fmt.Errorf("%w: tile %v", ErrDigestMismatch, record.Coord)
	}
	return record, nil
}

// Close releases the decompressor.
func (r *Reader) Close() {
	r.decompressor.Close()
}
