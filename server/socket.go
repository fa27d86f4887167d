// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// DefaultReadTimeout is the per-read socket deadline applied when
// timeouts are enabled. The deadline is refreshed before every read
// system call, so a large payload is fine as long as bytes keep
// arriving.
const DefaultReadTimeout = 100 * time.Millisecond

// isTransientError classifies socket errors that end one connection
// without meaning anything for the rest of the server: a read
// timeout, a peer reset, or an interrupted system call. The handler
// logs and closes; the accept loop continues.
func isTransientError(err error) bool {
	var netError net.Error
	if errors.As(err, &netError) && netError.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EINTR)
}

// serveLoop accepts connections until ctx is cancelled and dispatches
// each to handle on its own goroutine. Closing the listener is the
// cancellation mechanism: Accept returns and the loop exits cleanly.
func serveLoop(ctx context.Context, listener net.Listener, logger *slog.Logger, handle func(net.Conn)) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTransientError(err) {
				logger.Error("accept failed", "error", err)
				continue
			}
			return err
		}
		go handle(conn)
	}
}

// readFull fills buffer from conn, applying the read deadline before
// every read system call. A timeout of zero disables deadlines.
// Socket deadlines are wall-clock by nature (the kernel interprets
// them), so this is the one place that bypasses the clock package.
func readFull(conn net.Conn, buffer []byte, timeout time.Duration) error {
	filled := 0
	for filled < len(buffer) {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return err
			}
		}
		n, err := conn.Read(buffer[filled:])
		filled += n
		if filled == len(buffer) {
			return nil
		}
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// writeAll writes buffer to conn in full.
func writeAll(conn net.Conn, buffer []byte) error {
	_, err := conn.Write(buffer)
	return err
}

// logConnError logs a per-connection failure at error level, tagging
// whether it was a transient socket condition. Either way the caller
// closes the connection and the process continues.
func logConnError(logger *slog.Logger, conn net.Conn, stage string, err error) {
	logger.Error("connection error",
		"stage", stage,
		"remote", conn.RemoteAddr().String(),
		"transient", isTransientError(err),
		"error", err,
	)
}
