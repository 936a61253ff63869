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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// SamplePrefix starts every flat latency file name.
const SamplePrefix = "event-flat-"

// BuildCDF reduces latency samples to a CDF over grid.
//
// Each grid point p maps to the linearly interpolated p-quantile of the
// samples. samples is not modified.
func BuildCDF(samples []float64, grid []float64) (markov.CDF, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	for _, p := range grid {
		if !(p > 0 && p <= 1) {
			return nil, fmt.Errorf("%w: grid point %g outside (0,1]", markov.ErrInvalidCDF, p)
		}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	values := make([]float64, len(grid))
	for i, p := range grid {
		values[i] = stat.Quantile(p, stat.LinInterp, sorted, nil)
	}
	return markov.NewCDF(grid, values)
}

// ParseSampleName extracts the source and destination locations from a
// flat sample file name of the form
// "event-flat-<file:line>-<file:line>-<pid>-<tid>-im".
//
// File names may contain '-'; the split is taken at the first position
// where both sides parse as locations.
func ParseSampleName(name string) (markov.Location, markov.Location, error) {
	base := filepath.Base(name)
	rest, ok := strings.CutPrefix(base, SamplePrefix)
	if !ok {
		return markov.Location{}, markov.Location{}, fmt.Errorf("%w: %q", ErrMalformedSampleName, base)
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] != '-' {
			continue
		}
		src, err := markov.ParseLocation(rest[:i])
		if err != nil {
			continue
		}
		if dst, ok := leadingLocation(rest[i+1:]); ok {
			return src, dst, nil
		}
	}
	return markov.Location{}, markov.Location{}, fmt.Errorf("%w: %q", ErrMalformedSampleName, base)
}

// leadingLocation parses the shortest prefix of s, ending at '-' or the end
// of s, that is a valid location.
func leadingLocation(s string) (markov.Location, bool) {
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '-' {
			continue
		}
		if loc, err := markov.ParseLocation(s[:i]); err == nil {
			return loc, true
		}
	}
	return markov.Location{}, false
}

// ReadSamples reads one elapsed time per line. Lines that are not finite
// numbers are skipped and counted.
func ReadSamples(r io.Reader) ([]float64, int, error) {
	var out []float64
	skipped := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			skipped++
			continue
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, err
	}
	return out, skipped, nil
}

// ReadLatencyDir builds a latency CDF for every transition with flat sample
// files in dir.
//
// Description:
//
//	Files are grouped by the (source, destination) pair encoded in their
//	names; samples from every thread of a pair are pooled before the CDF is
//	computed over markov.PercentileGrid. Files whose names do not parse are
//	logged and skipped.
//
// Outputs:
//
//	[]markov.TransitionCDF - One row per pair, sorted by source then
//	                         destination.
//	error - A read error, or ErrNoSamples for a pair with no usable values.
func ReadLatencyDir(ctx context.Context, dir string) ([]markov.TransitionCDF, error) {
	paths, err := filepath.Glob(filepath.Join(dir, SamplePrefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("globbing latency files: %w", err)
	}
	sort.Strings(paths)

	groups := make(map[[2]markov.Location][]string)
	for _, path := range paths {
		src, dst, err := ParseSampleName(path)
		if err != nil {
			slog.Warn("skipping latency file", slog.String("file", path), slog.String("error", err.Error()))
			continue
		}
		key := [2]markov.Location{src, dst}
		groups[key] = append(groups[key], path)
	}

	keys := make([][2]markov.Location, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sortPairs(keys)

	out := make([]markov.TransitionCDF, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var samples []float64
		for _, path := range groups[key] {
			xs, err := readSampleFile(path)
			if err != nil {
				return nil, err
			}
			samples = append(samples, xs...)
		}
		cdf, err := BuildCDF(samples, markov.PercentileGrid)
		if err != nil {
			return nil, fmt.Errorf("%s->%s: %w", key[0], key[1], err)
		}
		out = append(out, markov.TransitionCDF{
			Src:    key[0],
			Dst:    key[1],
			Grid:   cdf.Grid(),
			Values: cdf.Values(),
		})
	}
	return out, nil
}

func readSampleFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening latency file: %w", err)
	}
	defer f.Close()

	xs, skipped, err := ReadSamples(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if skipped > 0 {
		slog.Warn("skipped unparsable latency samples",
			slog.String("file", filepath.Base(path)),
			slog.Int("count", skipped),
		)
	}
	return xs, nil
}
