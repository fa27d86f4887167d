// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fractal/lease"
	"github.com/bureau-foundation/fractal/lib/clock"
	"github.com/bureau-foundation/fractal/lib/config"
	"github.com/bureau-foundation/fractal/lib/process"
	"github.com/bureau-foundation/fractal/server"
	"github.com/bureau-foundation/fractal/status"
	"github.com/bureau-foundation/fractal/store"
	"github.com/bureau-foundation/fractal/tile"
)

// version is stamped by the build.
var version = "development"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		levelsFlag     string
		configPath     string
		showVersion    bool
		showHelp       bool
		timeoutFlag    bool
		distAddr       string
		distPort       uint16
		dataAddr       string
		dataPort       uint16
		distLogInfo    bool
		distLogError   bool
		dataLogInfo    bool
		dataLogError   bool
		dataDirectory  string
		statusSocket   string
	)

	flagSet := pflag.NewFlagSet("fractal-coordinator", pflag.ContinueOnError)
	flagSet.StringVarP(&levelsFlag, "levels", "l", "", "owned levels and depth caps as level:maxDepth pairs, e.g. 2:100,4:500")
	flagSet.BoolVarP(&timeoutFlag, "timeout", "t", true, "enable the per-read socket timeout")
	flagSet.StringVar(&distAddr, "distributer-addr", "0.0.0.0", "distributer (worker-facing) listen address")
	flagSet.Uint16Var(&distPort, "distributer-port", 59010, "distributer listen port")
	flagSet.StringVar(&dataAddr, "data-server-addr", "0.0.0.0", "data server (client-facing) listen address")
	flagSet.Uint16Var(&dataPort, "data-server-port", 59011, "data server listen port")
	flagSet.BoolVar(&distLogInfo, "distributer-log-info", true, "log distributer info messages")
	flagSet.BoolVar(&distLogError, "distributer-log-error", true, "log distributer error messages")
	flagSet.BoolVar(&dataLogInfo, "data-server-log-info", true, "log data server info messages")
	flagSet.BoolVar(&dataLogError, "data-server-log-error", true, "log data server error messages")
	flagSet.StringVarP(&dataDirectory, "data-directory", "o", "", "parent directory for the tile data directory (default: working directory)")
	flagSet.StringVar(&configPath, "config", "", "YAML config file (flags override file values)")
	flagSet.StringVar(&statusSocket, "status-socket", "", "Unix socket path for the operator status endpoint")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if showHelp {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("fractal-coordinator %s\n", version)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Explicit flags override the file.
	if flagSet.Changed("levels") {
		levels, err := config.ParseLevels(levelsFlag)
		if err != nil {
			return err
		}
		cfg.Levels = levels
	}
	if flagSet.Changed("timeout") {
		cfg.Timeout = timeoutFlag
	}
	if flagSet.Changed("distributer-addr") {
		cfg.DistributerAddr = distAddr
	}
	if flagSet.Changed("distributer-port") {
		cfg.DistributerPort = distPort
	}
	if flagSet.Changed("data-server-addr") {
		cfg.DataServerAddr = dataAddr
	}
	if flagSet.Changed("data-server-port") {
		cfg.DataServerPort = dataPort
	}
	if flagSet.Changed("distributer-log-info") {
		cfg.DistributerLogInfo = distLogInfo
	}
	if flagSet.Changed("distributer-log-error") {
		cfg.DistributerLogError = distLogError
	}
	if flagSet.Changed("data-server-log-info") {
		cfg.DataServerLogInfo = dataLogInfo
	}
	if flagSet.Changed("data-server-log-error") {
		cfg.DataServerLogError = dataLogError
	}
	if flagSet.Changed("data-directory") {
		cfg.DataDirectory = dataDirectory
	}
	if flagSet.Changed("status-socket") {
		cfg.StatusSocket = statusSocket
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve wires the coordinator together and runs it until ctx is
// cancelled or a listener fails.
func serve(ctx context.Context, cfg config.Config) error {
	systemClock := clock.Real()
	coordinatorLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	tileStore := store.Open(store.Config{
		Parent: cfg.DataDirectory,
		Clock:  systemClock,
		Logger: coordinatorLogger,
	})
	storage := store.NewWorker(tileStore, coordinatorLogger)
	defer storage.Close()

	// Reconcile with what is already on disk: every persisted
	// owned-level tile seeds the completed set and is never reissued.
	levelSpecs := make([]lease.LevelSpec, len(cfg.Levels))
	ownedLevels := make([]uint32, len(cfg.Levels))
	for i, level := range cfg.Levels {
		levelSpecs[i] = lease.LevelSpec{Level: level.Level, MaxDepth: level.MaxDepth}
		ownedLevels[i] = level.Level
	}
	persisted, err := storage.Enumerate(ownedLevels)
	if err != nil {
		return err
	}
	completed := make([]tile.Coord, len(persisted))
	for i, entry := range persisted {
		completed[i] = entry.Coord
	}

	board, err := lease.NewBoard(lease.BoardConfig{
		Registry:  lease.NewRegistry(),
		Levels:    levelSpecs,
		Completed: completed,
		Clock:     systemClock,
		Logger:    coordinatorLogger,
	})
	if err != nil {
		return err
	}
	defer board.Close()

	coordinatorLogger.Info("coordinator starting",
		"levels", len(cfg.Levels),
		"persisted_tiles", len(completed),
		"data_directory", tileStore.Dir(),
	)

	var readTimeout time.Duration
	if cfg.Timeout {
		readTimeout = server.DefaultReadTimeout
	}

	dispatcher := server.NewDispatcher(server.DispatcherConfig{
		Board:       board,
		Storage:     storage,
		ReadTimeout: readTimeout,
		Logger:      channelLogger(os.Stderr, "distributer", cfg.DistributerLogInfo, cfg.DistributerLogError),
	})
	tileServer := server.NewTileServer(server.TileServerConfig{
		Storage:     storage,
		ReadTimeout: readTimeout,
		Logger:      channelLogger(os.Stderr, "data-server", cfg.DataServerLogInfo, cfg.DataServerLogError),
	})

	dispatcherListener, err := net.Listen("tcp", cfg.DistributerEndpoint())
	if err != nil {
		return fmt.Errorf("distributer listen: %w", err)
	}
	tileListener, err := net.Listen("tcp", cfg.DataServerEndpoint())
	if err != nil {
		dispatcherListener.Close()
		return fmt.Errorf("data server listen: %w", err)
	}

	// One failing listener takes the others down with it via the
	// shared serve context; on a clean shutdown every Serve returns
	// nil once the signal context is cancelled.
	serveCtx, stopServers := context.WithCancel(ctx)
	defer stopServers()

	failed := make(chan error, 3)
	go func() { failed <- dispatcher.Serve(serveCtx, dispatcherListener) }()
	go func() { failed <- tileServer.Serve(serveCtx, tileListener) }()

	serverCount := 2
	if cfg.StatusSocket != "" {
		// A stale socket from a previous run blocks the listener.
		if err := os.Remove(cfg.StatusSocket); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("status socket: %w", err)
		}
		statusListener, err := net.Listen("unix", cfg.StatusSocket)
		if err != nil {
			return fmt.Errorf("status listen: %w", err)
		}
		statusServer := status.NewServer(status.Config{
			Board:  board,
			Clock:  systemClock,
			Logger: coordinatorLogger,
		})
		go func() { failed <- statusServer.Serve(serveCtx, statusListener) }()
		serverCount++
	}

	var firstError error
	for i := 0; i < serverCount; i++ {
		if err := <-failed; err != nil && firstError == nil {
			firstError = err
			stopServers()
		}
	}
	if firstError != nil {
		return firstError
	}
	coordinatorLogger.Info("coordinator stopped")
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `fractal-coordinator is the distributed Mandelbrot tile coordinator.

Owns a set of levels, leases tile computations to remote workers on
the distributer endpoint, persists completed tiles, and serves them
to clients on the data server endpoint.

Usage:
  fractal-coordinator -l LEVELS [flags]

Flags:
%s`, flagSet.FlagUsages())
}
