// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/fractal/tile"
)

// workerActive guards the one-Worker-per-process rule. The index lock
// discipline assumes a single serialization point; a second live
// Worker would silently break it.
var workerActive atomic.Bool

// Worker is the single-consumer job queue in front of a TileStore.
// Network handlers must not hold the index lock themselves: a slow
// handler would starve every other handler of storage access, and a
// handler taking locks in its own order could deadlock. Handlers
// submit a job instead and block on a per-job completion channel; a
// single background goroutine executes jobs FIFO.
//
// The queue is unbounded. Bounded memory follows from the bounded
// number of concurrent connections upstream, not from the queue.
type Worker struct {
	store  *TileStore
	logger *slog.Logger

	mu      sync.Mutex
	pending *sync.Cond
	queue   []func()
	closed  bool
	done    chan struct{}
}

// NewWorker starts the worker goroutine. Exactly one Worker may be
// live per process; constructing a second one panics.
func NewWorker(tileStore *TileStore, logger *slog.Logger) *Worker {
	if !workerActive.CompareAndSwap(false, true) {
		panic("store: a second Worker was constructed; exactly one per process")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	worker := &Worker{
		store:  tileStore,
		logger: logger,
		done:   make(chan struct{}),
	}
	worker.pending = sync.NewCond(&worker.mu)
	go worker.loop()
	return worker
}

// Close stops the worker after draining already-queued jobs. Blocks
// until the worker goroutine exits. After Close a new Worker may be
// constructed (tests rely on this).
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.pending.Signal()
	w.mu.Unlock()

	<-w.done
	workerActive.Store(false)
}

// loop is the single consumer: wait for a job, execute, repeat.
func (w *Worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.pending.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.mu.Unlock()
			return
		}
		job := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		job()
	}
}

// submit enqueues a job for the consumer goroutine. Enqueueing never
// blocks on storage I/O.
func (w *Worker) submit(job func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		panic("store: job submitted to a closed Worker")
	}
	w.queue = append(w.queue, job)
	w.pending.Signal()
}

// run submits a job and blocks until the consumer has executed it.
func (w *Worker) run(job func()) {
	completed := make(chan struct{})
	w.submit(func() {
		defer close(completed)
		job()
	})
	<-completed
}

// Enumerate returns every index entry whose level is in ownedLevels,
// in index (insertion) order.
func (w *Worker) Enumerate(ownedLevels []uint32) ([]IndexEntry, error) {
	owned := make(map[uint32]struct{}, len(ownedLevels))
	for _, level := range ownedLevels {
		owned[level] = struct{}{}
	}

	var entries []IndexEntry
	var resultErr error
	w.run(func() {
		scanner, err := w.store.Enumerate()
		if err != nil {
			resultErr = err
			return
		}
		defer scanner.Close()
		for scanner.Next() {
			entry := scanner.Entry()
			if _, ok := owned[entry.Coord.Level]; ok {
				entries = append(entries, entry)
			}
		}
		resultErr = scanner.Err()
	})
	return entries, resultErr
}

// Lookup returns one optional entry per input coordinate, preserving
// order. The underlying scan exits early once every coordinate is
// resolved.
func (w *Worker) Lookup(coords []tile.Coord) ([]*IndexEntry, error) {
	var entries []*IndexEntry
	var resultErr error
	w.run(func() {
		entries, resultErr = w.store.LookupEntries(coords)
	})
	return entries, resultErr
}

// LoadPayload returns the decoded payload for an entry.
func (w *Worker) LoadPayload(entry IndexEntry) ([]byte, error) {
	var payload []byte
	var resultErr error
	w.run(func() {
		payload, resultErr = w.store.LoadPayload(entry)
	})
	return payload, resultErr
}

// Save persists a tile and blocks until its index record has been
// written.
func (w *Worker) Save(coord tile.Coord, payload []byte) error {
	var resultErr error
	w.run(func() {
		resultErr = w.store.Save(coord, payload)
	})
	return resultErr
}

// SaveAsync enqueues a save and returns immediately. The callback
// (optional) receives the save result on the worker goroutine.
// Dispatcher response handlers use this: the worker's tile is already
// accounted as completed in memory, so the handler does not hold the
// connection open for disk latency.
func (w *Worker) SaveAsync(coord tile.Coord, payload []byte, callback func(error)) {
	w.submit(func() {
		err := w.store.Save(coord, payload)
		if err != nil {
			w.logger.Error("asynchronous tile save failed",
				"tile", coord.String(),
				"error", err,
			)
		}
		if callback != nil {
			callback(err)
		}
	})
}
