// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/pkg/logging"
	"github.com/AleutianAI/sentinel/pkg/ux"
	"github.com/AleutianAI/sentinel/services/sentinel"
	"github.com/AleutianAI/sentinel/services/sentinel/config"
)

// app carries state shared by every command of one invocation.
type app struct {
	configPath  string
	personality string
	jsonOut     bool
	verbose     bool

	cfg    config.Config
	logger *logging.Logger
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Model, compare, and simulate program execution traces",
		Long: `Sentinel builds variable-order Markov models from execution trace dumps,
reports which transitions changed between two runs, and estimates
latency between code locations by Monte Carlo simulation.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&a.personality, "personality", "",
		"Output style: full, minimal, or machine (default: full on a terminal, machine otherwise)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.ingestCmd(),
		a.validateCmd(),
		a.runsCmd(),
		a.deleteCmd(),
		a.watchCmd(),
		a.diffCmd(),
		a.fixedDiffCmd(),
		a.distanceCmd(),
		a.simulateCmd(),
		a.serveCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if a.verbose {
		level = logging.LevelDebug
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "sentinel",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger.Install()
	a.logger = logger
	slog.Debug("configuration loaded", "config", a.configPath, "data_dir", cfg.Storage.Path)
	return nil
}

// open opens the configured store. The caller must call the returned func.
func (a *app) open() (*sentinel.Service, func(), error) {
	svc, closeFn, err := sentinel.Open(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, func() {
		if err := closeFn(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}, nil
}

func (a *app) printer(cmd *cobra.Command) *ux.Printer {
	w := cmd.OutOrStdout()
	return ux.NewPrinter(w, ux.DetectPersonality(a.personality, w))
}

// emitJSON writes v when --json is set and reports whether it did.
func (a *app) emitJSON(w io.Writer, v any) (bool, error) {
	if !a.jsonOut {
		return false, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
