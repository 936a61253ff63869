// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(30), cfg.Diff.LowConfidenceThreshold)
	assert.Equal(t, 1e-5, cfg.Simulation.Cutoff)
	assert.Equal(t, 1_000_000, cfg.Simulation.MaxWalks)
	assert.Equal(t, ":8087", cfg.Server.Addr)
	assert.Equal(t, "sentinel", cfg.Telemetry.ServiceName)
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvLogLevel, "")

	t.Run("file overlays defaults", func(t *testing.T) {
		path := writeConfig(t, `
storage:
  path: /var/lib/sentinel
  gc_interval: 1m
simulation:
  walks: 500
  seed: 42
server:
  addr: 127.0.0.1:9000
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/sentinel", cfg.Storage.Path)
		assert.Equal(t, time.Minute, cfg.Storage.GCInterval)
		assert.Equal(t, 500, cfg.Simulation.Walks)
		assert.Equal(t, uint64(42), cfg.Simulation.Seed)
		assert.Equal(t, 1e-5, cfg.Simulation.Cutoff, "unset keys keep defaults")
		assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	})

	t.Run("empty path and empty file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default().Simulation, cfg.Simulation)

		cfg, err = Load(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, Default().Diff, cfg.Diff)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv(EnvDataDir, "/tmp/sentinel-env")
		t.Setenv(EnvLogLevel, "DEBUG")
		cfg, err := Load(writeConfig(t, "storage:\n  path: /ignored\n"))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/sentinel-env", cfg.Storage.Path)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "simulation:\n  walkz: 3\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "walkz")
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, body := range []string{
			"simulation:\n  cutoff: 1.5\n",
			"logging:\n  level: loud\n",
			"storage:\n  path: \"\"\n",
			"telemetry:\n  trace_exporter: zipkin\n",
			"server:\n  addr: \"\"\n",
			"simulation:\n  walks: 20\n  max_walks: 10\n",
		} {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, ErrInvalidConfig, body)
		}
	})

	t.Run("in-memory needs no path", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "storage:\n  path: \"\"\n  in_memory: true\n"))
		require.NoError(t, err)
		assert.True(t, cfg.Storage.InMemory)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestWriteDefault(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "nested", "sentinel.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, Default().Storage.GCInterval, cfg.Storage.GCInterval)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Default()))
	assert.Contains(t, buf.String(), "min_transition_count: 1000")
	assert.Contains(t, buf.String(), "shutdown_timeout: 10s")
}
