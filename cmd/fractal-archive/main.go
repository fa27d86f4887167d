// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fractal/archive"
	"github.com/bureau-foundation/fractal/lib/process"
	"github.com/bureau-foundation/fractal/store"
)

// version is stamped by the build.
var version = "development"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("a command is required: export or import")
	}

	switch os.Args[1] {
	case "export":
		return runExport(os.Args[2:])
	case "import":
		return runImport(os.Args[2:])
	case "--version":
		fmt.Printf("fractal-archive %s\n", version)
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func runExport(args []string) error {
	var (
		dataDirectory string
		outputPath    string
		levelsFlag    string
	)
	flagSet := pflag.NewFlagSet("fractal-archive export", pflag.ContinueOnError)
	flagSet.StringVarP(&dataDirectory, "data-directory", "o", ".", "parent directory of the tile data directory")
	flagSet.StringVar(&outputPath, "output", "", "archive file to write (required)")
	flagSet.StringVar(&levelsFlag, "levels", "", "comma-separated levels to export (default: all)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if outputPath == "" {
		return fmt.Errorf("--output is required")
	}
	levels, err := parseLevelList(levelsFlag)
	if err != nil {
		return err
	}

	output, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer output.Close()

	tileStore := store.Open(store.Config{Parent: dataDirectory})
	exported, err := archive.Export(tileStore, output, levels)
	if err != nil {
		return err
	}
	if err := output.Close(); err != nil {
		return err
	}

	fmt.Printf("exported %d tiles to %s\n", exported, outputPath)
	return nil
}

func runImport(args []string) error {
	var (
		dataDirectory string
		inputPath     string
	)
	flagSet := pflag.NewFlagSet("fractal-archive import", pflag.ContinueOnError)
	flagSet.StringVarP(&dataDirectory, "data-directory", "o", ".", "parent directory of the tile data directory")
	flagSet.StringVar(&inputPath, "input", "", "archive file to read (required)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if inputPath == "" {
		return fmt.Errorf("--input is required")
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer input.Close()

	tileStore := store.Open(store.Config{Parent: dataDirectory})
	added, skipped, err := archive.Import(tileStore, input)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d tiles (%d already present)\n", added, skipped)
	return nil
}

// parseLevelList parses the --levels filter: "2,4,8".
func parseLevelList(spec string) ([]uint32, error) {
	if spec == "" {
		return nil, nil
	}
	var levels []uint32
	for _, field := range strings.Split(spec, ",") {
		level, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("level %q: %w", field, err)
		}
		levels = append(levels, uint32(level))
	}
	return levels, nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `fractal-archive exports and imports persisted tile sets.

Commands:
  export    write tiles from a data directory to an archive file
  import    replay an archive file into a data directory

Run "fractal-archive export --help" or "... import --help" for flags.
`)
}
