// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level is one owned level and the recursion cap advertised to
// workers computing its tiles.
type Level struct {
	Level    uint32 `yaml:"level"`
	MaxDepth uint32 `yaml:"max_depth"`
}

// Config is the coordinator configuration.
type Config struct {
	// Levels are the levels this coordinator owns, in the order they
	// are distributed. Required.
	Levels []Level `yaml:"levels"`

	// Timeout enables the per-read socket deadline on both listeners.
	Timeout bool `yaml:"timeout"`

	// Distributer endpoint (worker-facing listener).
	DistributerAddr string `yaml:"distributer_addr"`
	DistributerPort uint16 `yaml:"distributer_port"`

	// Data server endpoint (client-facing listener).
	DataServerAddr string `yaml:"data_server_addr"`
	DataServerPort uint16 `yaml:"data_server_port"`

	// Per-channel log toggles.
	DistributerLogInfo  bool `yaml:"distributer_log_info"`
	DistributerLogError bool `yaml:"distributer_log_error"`
	DataServerLogInfo   bool `yaml:"data_server_log_info"`
	DataServerLogError  bool `yaml:"data_server_log_error"`

	// DataDirectory is the parent under which the tile data
	// directory is created.
	DataDirectory string `yaml:"data_directory"`

	// StatusSocket, when non-empty, enables the operator status
	// endpoint on this Unix socket path.
	StatusSocket string `yaml:"status_socket"`
}

// Default returns the configuration before any file or flag is
// applied.
func Default() Config {
	return Config{
		Timeout:             true,
		DistributerAddr:     "0.0.0.0",
		DistributerPort:     59010,
		DataServerAddr:      "0.0.0.0",
		DataServerPort:      59011,
		DistributerLogInfo:  true,
		DistributerLogError: true,
		DataServerLogInfo:   true,
		DataServerLogError:  true,
		DataDirectory:       ".",
	}
}

// Load reads a YAML config file over the defaults. Unknown keys are
// an error.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseLevels parses the -l/--levels flag syntax: comma-separated
// "level:maxDepth" pairs, e.g. "2:100,4:500".
func ParseLevels(spec string) ([]Level, error) {
	if spec == "" {
		return nil, fmt.Errorf("config: empty levels specification")
	}
	var levels []Level
	for _, pair := range strings.Split(spec, ",") {
		levelText, depthText, found := strings.Cut(pair, ":")
		if !found {
			return nil, fmt.Errorf("config: level %q is not level:maxDepth", pair)
		}
		level, err := strconv.ParseUint(strings.TrimSpace(levelText), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: level in %q: %w", pair, err)
		}
		depth, err := strconv.ParseUint(strings.TrimSpace(depthText), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: maxDepth in %q: %w", pair, err)
		}
		levels = append(levels, Level{Level: uint32(level), MaxDepth: uint32(depth)})
	}
	return levels, nil
}

// Validate checks the configuration for the mistakes that must fail
// at startup rather than at first use.
func (c *Config) Validate() error {
	if len(c.Levels) == 0 {
		return fmt.Errorf("config: at least one level is required (-l/--levels)")
	}
	seen := make(map[uint32]struct{}, len(c.Levels))
	for _, level := range c.Levels {
		if level.Level == 0 {
			return fmt.Errorf("config: level 0 is not a valid grid")
		}
		if level.MaxDepth == 0 {
			return fmt.Errorf("config: level %d has maxDepth 0", level.Level)
		}
		if _, duplicate := seen[level.Level]; duplicate {
			return fmt.Errorf("config: level %d configured twice", level.Level)
		}
		seen[level.Level] = struct{}{}
	}
	if c.DistributerAddr == "" || c.DataServerAddr == "" {
		return fmt.Errorf("config: listener addresses must not be empty")
	}
	return nil
}

// DistributerEndpoint returns the worker-facing listen address.
func (c *Config) DistributerEndpoint() string {
	return net.JoinHostPort(c.DistributerAddr, strconv.Itoa(int(c.DistributerPort)))
}

// DataServerEndpoint returns the client-facing listen address.
func (c *Config) DataServerEndpoint() string {
	return net.JoinHostPort(c.DataServerAddr, strconv.Itoa(int(c.DataServerPort)))
}
