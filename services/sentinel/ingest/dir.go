// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDumpPattern matches the per-thread dump files written by the
// tracer.
const DefaultDumpPattern = "*.im.out*"

// DefaultParseWorkers bounds concurrent dump parsing.
const DefaultParseWorkers = 8

// ParseFile parses a single dump file.
func ParseFile(path string) (*Summary, *LocationTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening dump: %w", err)
	}
	defer f.Close()

	sum, table, err := ParseDump(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return sum, table, nil
}

// ReadDumpDir parses and merges every dump in dir matching pattern.
//
// Description:
//
//	Files are parsed concurrently and merged in lexical file order, so the
//	result does not depend on scheduling. Each per-thread model is validated
//	before it is merged, and the merged model is validated again after every
//	merge: two individually valid dumps can together hold a context and one
//	of its suffixes.
//
// Inputs:
//
//	ctx - Cancels outstanding parses.
//	dir - Directory to scan.
//	pattern - Glob pattern; empty selects DefaultDumpPattern.
//
// Outputs:
//
//	*Summary - The merged counts.
//	error - ErrNoDumps, a parse error, or a *markov.ModelInvariantError
//	        naming the offending file.
func ReadDumpDir(ctx context.Context, dir, pattern string) (*Summary, error) {
	if pattern == "" {
		pattern = DefaultDumpPattern
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("globbing %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoDumps, dir, pattern)
	}
	sort.Strings(paths)
	start := time.Now()

	parsed := make([]*Summary, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultParseWorkers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			sum, _, err := ParseFile(path)
			if err != nil {
				return err
			}
			parsed[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := NewSummary()
	for i, sum := range parsed {
		name := filepath.Base(paths[i])
		if err := sum.Model().Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		merged.Merge(sum)
		if err := merged.Model().Validate(); err != nil {
			return nil, fmt.Errorf("merging %s: %w", name, err)
		}
	}

	slog.Info("dumps ingested",
		slog.String("dir", dir),
		slog.Int("files", len(paths)),
		slog.Int("locations", len(merged.Known)),
		slog.Int("transitions", len(merged.Transitions)),
		slog.Duration("duration", time.Since(start)),
	)
	return merged, nil
}
