// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads sentinel's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/sentinel/services/sentinel/telemetry"
)

// Environment overrides applied after the file is read.
const (
	EnvDataDir  = "SENTINEL_DATA_DIR"
	EnvLogLevel = "SENTINEL_LOG_LEVEL"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Config is the root of the configuration file.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
	Diff       DiffConfig       `yaml:"diff"`
	Simulation SimulationConfig `yaml:"simulation"`
	Server     ServerConfig     `yaml:"server"`
}

// StorageConfig locates the model store.
type StorageConfig struct {
	Path           string        `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory       bool          `yaml:"in_memory"`
	SyncWrites     bool          `yaml:"sync_writes"`
	GCInterval     time.Duration `yaml:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
	GraphCacheSize int64         `yaml:"graph_cache_size" validate:"gte=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// DiffConfig holds defaults for model comparison.
type DiffConfig struct {
	// LowConfidenceThreshold flags records whose smaller match count is
	// below it.
	LowConfidenceThreshold uint64 `yaml:"low_confidence_threshold"`

	// TopK limits printed and returned records. Zero returns all.
	TopK int `yaml:"top_k" validate:"gte=0"`

	// Workers bounds concurrent distance computations.
	Workers int `yaml:"workers" validate:"gte=0"`

	// MinTransitionCount excludes rarely seen transitions from distances.
	MinTransitionCount uint64 `yaml:"min_transition_count"`

	// Normalize rescales latency vectors before computing distances.
	Normalize bool `yaml:"normalize"`
}

// SimulationConfig holds defaults for pruning and walking.
type SimulationConfig struct {
	Walks      int     `yaml:"walks" validate:"gte=0"`
	Workers    int     `yaml:"workers" validate:"gte=0"`
	Seed       uint64  `yaml:"seed"`
	MaxSteps   int     `yaml:"max_steps" validate:"gte=0"`
	Cutoff     float64 `yaml:"cutoff" validate:"gte=0,lt=1"`
	AllowLoops bool    `yaml:"allow_loops"`
	MaxDepth   int     `yaml:"max_depth" validate:"gte=0"`

	// MaxWalks caps the walks a single request may ask for. Zero disables
	// the cap.
	MaxWalks int `yaml:"max_walks" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// SimulateRate limits POST /simulate in requests per second. Zero
	// disables the limit.
	SimulateRate  float64 `yaml:"simulate_rate" validate:"gte=0"`
	SimulateBurst int     `yaml:"simulate_burst" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path:           defaultDataDir(),
			SyncWrites:     true,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
			GraphCacheSize: 64,
		},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Diff: DiffConfig{
			LowConfidenceThreshold: 30,
			TopK:                   25,
			MinTransitionCount:     1000,
		},
		Simulation: SimulationConfig{
			Walks:    10000,
			MaxSteps: 1_000_000,
			Cutoff:   1e-5,
			MaxDepth: 10000,
			MaxWalks: 1_000_000,
		},
		Server: ServerConfig{
			Addr:            ":8087",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies environment overrides, and
// validates the result. An empty path skips the file.
//
// Unknown keys in the file are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every struct tag.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if sim := c.Simulation; sim.MaxWalks > 0 && sim.Walks > sim.MaxWalks {
		return fmt.Errorf("%w: simulation.walks %d exceeds simulation.max_walks %d",
			ErrInvalidConfig, sim.Walks, sim.MaxWalks)
	}
	return nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, Default()); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Write encodes cfg as YAML to w.
func Write(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentinel/data"
	}
	return filepath.Join(home, ".sentinel", "data")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
