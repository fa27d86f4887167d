// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/fractal/lib/clock"
	"github.com/bureau-foundation/fractal/tile"
)

const (
	// dataDirName is the directory created under the configured parent
	// to hold the index file and the tile data files.
	dataDirName = "tile_data"

	// indexFileName is the append-only index inside the data directory.
	indexFileName = "_index.dat"

	// ioRetryDelay is the backoff between attempts when a file is in
	// use by another process. Retries continue indefinitely; a
	// sibling process holds the index lock only for the duration of
	// one read or append.
	ioRetryDelay = 10 * time.Millisecond
)

// ErrMissingData means a regular index entry points at a data file
// that does not exist or cannot be read.
var ErrMissingData = errors.New("store: data file missing")

// TileStore owns the on-disk state: the index file handle discipline
// and the data directory. Callers never touch the files directly.
//
// The index file is guarded by a process-wide exclusive lock
// (indexMu) held for the entire read or append, plus an flock on the
// file itself for out-of-process safety. Data files are guarded by a
// set of names currently in use; a reader that wants a contested name
// polls until it is released. A writer does not wait for a contested
// name: it skips it and claims the next suffixed name instead.
type TileStore struct {
	dir    string
	clock  clock.Clock
	logger *slog.Logger

	// indexMu serializes index file access in-process. The Worker
	// queue makes this effectively redundant within one process, but
	// the lock stays so TileStore is safe on its own (tools use it
	// without a Worker).
	indexMu sync.Mutex

	// inUseMu guards inUse, the set of data file names currently
	// being read or written.
	inUseMu sync.Mutex
	inUse   map[string]struct{}

	bootstrapMu  sync.Mutex
	bootstrapped bool
}

// Config holds the parameters for opening a tile store.
type Config struct {
	// Parent is the directory under which the data directory is
	// created. Defaults to the working directory.
	Parent string

	// Clock provides retry backoff timing. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Defaults to discard.
	Logger *slog.Logger
}

// Open returns a TileStore rooted under cfg.Parent. No filesystem
// state is touched until the first operation (directory bootstrap is
// lazy).
func Open(cfg Config) *TileStore {
	if cfg.Parent == "" {
		cfg.Parent = "."
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TileStore{
		dir:    filepath.Join(cfg.Parent, dataDirName),
		clock:  cfg.Clock,
		logger: cfg.Logger,
		inUse:  make(map[string]struct{}),
	}
}

// Dir returns the data directory path.
func (s *TileStore) Dir() string { return s.dir }

// ensureReady creates the data directory and an empty index file on
// the first operation.
func (s *TileStore) ensureReady() error {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()
	if s.bootstrapped {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: create data directory: %w", err)
	}
	file, err := os.OpenFile(s.indexPath(), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: create index file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("store: create index file: %w", err)
	}
	s.bootstrapped = true
	return nil
}

func (s *TileStore) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

// Save persists one tile: derives its category, writes the encoded
// payload to a fresh data file when regular, then appends one index
// record. The data file is written before the index record so that a
// crash between the two leaves a recoverable orphan file instead of a
// dangling index entry.
//
// Panics if the payload is not exactly tile.PayloadSize bytes; that
// is a programmer error upstream, not an I/O condition.
func (s *TileStore) Save(coord tile.Coord, payload []byte) error {
	if len(payload) != tile.PayloadSize {
		panic(fmt.Sprintf("store: Save payload is %d bytes, want %d", len(payload), tile.PayloadSize))
	}
	if err := s.ensureReady(); err != nil {
		return err
	}

	entry := IndexEntry{
		Coord:    coord,
		Category: tile.Classify(payload),
	}

	if entry.Category == tile.CategoryRegular {
		name, err := s.claimFreshDataFileName(coord)
		if err != nil {
			return err
		}
		writeErr := s.writeDataFile(name, tile.Encode(payload))
		s.releaseDataFile(name)
		if writeErr != nil {
			return writeErr
		}
		entry.Name = name
	}

	return s.appendEntry(entry)
}

// Enumerate opens the index for a sequential scan. The returned
// scanner holds the index lock until Close is called; callers must
// Close it promptly.
func (s *TileStore) Enumerate() (*IndexScanner, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	s.indexMu.Lock()
	file, err := s.openIndexLocked(os.O_RDONLY)
	if err != nil {
		s.indexMu.Unlock()
		return nil, err
	}
	return &IndexScanner{store: s, file: file, reader: bufio.NewReader(file)}, nil
}

// LookupEntries scans the index once and returns the first matching
// entry per requested coordinate, preserving input order. Missing
// coordinates yield nil. The scan stops early once every coordinate
// is resolved.
func (s *TileStore) LookupEntries(coords []tile.Coord) ([]*IndexEntry, error) {
	results := make([]*IndexEntry, len(coords))
	if len(coords) == 0 {
		return results, nil
	}

	scanner, err := s.Enumerate()
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	remaining := len(coords)
	for scanner.Next() {
		entry := scanner.Entry()
		for i, coord := range coords {
			if results[i] != nil || entry.Coord != coord {
				continue
			}
			match := entry
			results[i] = &match
			remaining--
		}
		if remaining == 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// LoadPayload returns the decoded payload for an index entry. Uniform
// categories are synthesized without touching the filesystem; regular
// entries are read from their data file and decoded.
func (s *TileStore) LoadPayload(entry IndexEntry) ([]byte, error) {
	switch entry.Category {
	case tile.CategoryAllZero, tile.CategoryAllOne:
		return tile.Uniform(entry.Category), nil
	}

	s.acquireDataFile(entry.Name)
	encoded, err := s.readDataFile(entry.Name)
	s.releaseDataFile(entry.Name)
	if err != nil {
		return nil, err
	}

	payload, err := tile.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("store: decode data file %q for tile %v: %w", entry.Name, entry.Coord, err)
	}
	return payload, nil
}

// appendEntry appends one record to the index under the exclusive
// index lock.
func (s *TileStore) appendEntry(entry IndexEntry) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	file, err := s.openIndexLocked(os.O_WRONLY | os.O_APPEND)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := appendIndexRecord(writer, entry); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("store: append index record: %w", err)
	}
	return nil
}

// openIndexLocked opens the index file with the given flags and takes
// an exclusive flock on it, retrying indefinitely with a short backoff
// while another process holds the file. Must be called with indexMu
// held. The flock is released when the returned file is closed.
func (s *TileStore) openIndexLocked(flag int) (*os.File, error) {
	for {
		file, err := os.OpenFile(s.indexPath(), flag, 0o644)
		if err != nil {
			if isInUseError(err) {
				s.clock.Sleep(ioRetryDelay)
				continue
			}
			return nil, fmt.Errorf("store: open index: %w", err)
		}
		if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			file.Close()
			if isInUseError(err) {
				s.clock.Sleep(ioRetryDelay)
				continue
			}
			return nil, fmt.Errorf("store: lock index: %w", err)
		}
		return file, nil
	}
}

// claimFreshDataFileName picks a data file name for a new regular
// tile and marks it in use. The base name is "{level};{iReal};{iImag}";
// on collision with an existing file (or a name another writer holds),
// integer suffixes are appended starting at "0". The base name is
// never retried after a collision.
func (s *TileStore) claimFreshDataFileName(coord tile.Coord) (string, error) {
	base := fmt.Sprintf("%d;%d;%d", coord.Level, coord.IndexReal, coord.IndexImag)

	s.inUseMu.Lock()
	defer s.inUseMu.Unlock()

	name := base
	for suffix := 0; ; suffix++ {
		taken, err := s.nameTakenLocked(name)
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		name = base + strconv.Itoa(suffix)
	}
	s.inUse[name] = struct{}{}
	return name, nil
}

// nameTakenLocked reports whether a data file name is unavailable:
// present on disk or claimed by a concurrent writer. Must be called
// with inUseMu held.
func (s *TileStore) nameTakenLocked(name string) (bool, error) {
	if _, held := s.inUse[name]; held {
		return true, nil
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("store: stat data file %q: %w", name, err)
}

// acquireDataFile blocks until name is not in use by another
// goroutine, polling with the standard backoff, then marks it in use.
func (s *TileStore) acquireDataFile(name string) {
	for {
		s.inUseMu.Lock()
		if _, held := s.inUse[name]; !held {
			s.inUse[name] = struct{}{}
			s.inUseMu.Unlock()
			return
		}
		s.inUseMu.Unlock()
		s.clock.Sleep(ioRetryDelay)
	}
}

func (s *TileStore) releaseDataFile(name string) {
	s.inUseMu.Lock()
	delete(s.inUse, name)
	s.inUseMu.Unlock()
}

// writeDataFile writes the encoded tile stream to a new data file,
// retrying open indefinitely while the path is busy in another
// process. Any other I/O error is fatal to the operation.
func (s *TileStore) writeDataFile(name string, encoded []byte) error {
	path := filepath.Join(s.dir, name)
	var file *os.File
	for {
		var err error
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err == nil {
			break
		}
		if isInUseError(err) {
			s.clock.Sleep(ioRetryDelay)
			continue
		}
		return fmt.Errorf("store: create data file %q: %w", name, err)
	}
	if _, err := file.Write(encoded); err != nil {
		file.Close()
		return fmt.Errorf("store: write data file %q: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("store: write data file %q: %w", name, err)
	}
	return nil
}

// readDataFile reads a data file whole, retrying open while the path
// is busy in another process.
func (s *TileStore) readDataFile(name string) ([]byte, error) {
	path := filepath.Join(s.dir, name)
	for {
		encoded, err := os.ReadFile(path)
		if err == nil {
			return encoded, nil
		}
		if isInUseError(err) {
			s.clock.Sleep(ioRetryDelay)
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrMissingData, name)
		}
		return nil, fmt.Errorf("store: read data file %q: %w", name, err)
	}
}

// isInUseError classifies errors that mean another process holds the
// file right now: retry, don't fail.
func isInUseError(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EBUSY) ||
		errors.Is(err, unix.ETXTBSY)
}

// IndexScanner is a sequential reader over the index file. It holds
// the store's index lock from Enumerate until Close; a scanner left
// open blocks every other storage operation.
type IndexScanner struct {
	store  *TileStore
	file   *os.File
	reader *bufio.Reader
	entry  IndexEntry
	err    error
	done   bool
}

// Next advances to the next index record. Returns false at the end of
// the index or on error; check Err after the loop.
func (sc *IndexScanner) Next() bool {
	if sc.done {
		return false
	}
	entry, err := readIndexRecord(sc.reader)
	if err == io.EOF {
		sc.done = true
		return false
	}
	if err != nil {
		sc.err = err
		sc.done = true
		return false
	}
	sc.entry = entry
	return true
}

// Entry returns the record read by the last successful Next.
func (sc *IndexScanner) Entry() IndexEntry { return sc.entry }

// Err returns the first error encountered during the scan, if any.
func (sc *IndexScanner) Err() error { return sc.err }

// Close releases the index file and the index lock. Safe to call
// more than once.
func (sc *IndexScanner) Close() {
	if sc.file == nil {
		return
	}
	sc.file.Close()
	sc.file = nil
	sc.store.indexMu.Unlock()
}
