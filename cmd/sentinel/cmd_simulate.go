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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/services/sentinel"
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// summaryColumns are the percentile levels printed in table output. JSON
// output carries every level.
var summaryColumns = []float64{0.05, 0.25, 0.50, 0.75, 0.95}

func (a *app) simulateCmd() *cobra.Command {
	var (
		terminals []string
		depth     int
		req       sentinel.SimulateRequest
		cutoff    float64
	)
	cmd := &cobra.Command{
		Use:   "simulate <run> <start>",
		Short: "Estimate latency from a location to terminal locations",
		Long: `Prunes the run's first-order graph to edges that can reach a terminal, then
performs random walks from <start>, summing a latency sample for each edge
taken. Terminals are given with --terminal, or derived with --depth as every
location exactly that many transitions from <start>. Locations are file:line.`,
		Example: `  sentinel simulate base src/io.c:120 --terminal src/io.c:188
  sentinel simulate base src/io.c:120 --depth 3 --walks 50000 --seed 1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := markov.ParseLocation(args[1])
			if err != nil {
				return err
			}
			req.Run, req.Start = args[0], start
			if req.Terminals, err = parseLocations(terminals); err != nil {
				return err
			}
			if cmd.Flags().Changed("depth") {
				req.Depth = &depth
			}
			if cmd.Flags().Changed("cutoff") {
				req.Cutoff = &cutoff
			}

			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			res, err := svc.Simulate(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ok, err := a.emitJSON(cmd.OutOrStdout(), res); ok {
				return err
			}

			p := a.printer(cmd)
			p.Title(fmt.Sprintf("%d walks from %s in %s", res.Walks, res.Start, res.Run))
			headers := []string{"TERMINAL", "HITS", "RATIO"}
			idx := make([]int, 0, len(summaryColumns))
			for _, level := range summaryColumns {
				for i, l := range res.Levels {
					if l == level {
						idx = append(idx, i)
						headers = append(headers, fmt.Sprintf("P%02.0f", level*100))
						break
					}
				}
			}
			rows := make([][]string, 0, len(res.Terminals))
			for _, term := range res.Terminals {
				row := []string{term.Location.String(), formatCount(term.Hits), formatFloat(term.HitRatio)}
				for _, i := range idx {
					if i < len(term.Percentiles) {
						row = append(row, formatFloat(term.Percentiles[i]))
					} else {
						row = append(row, "-")
					}
				}
				rows = append(rows, row)
			}
			numeric := make([]int, 0, len(headers)-1)
			for i := 1; i < len(headers); i++ {
				numeric = append(numeric, i)
			}
			p.Table(headers, rows, numeric...)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&terminals, "terminal", "t", nil, "Terminal location (repeatable)")
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "Use every location this many transitions from start as a terminal")
	cmd.Flags().IntVarP(&req.Walks, "walks", "n", 0, "Number of walks (default from config)")
	cmd.Flags().Uint64Var(&req.Seed, "seed", 0, "Random seed (default from config; 0 draws a fresh seed)")
	cmd.Flags().Float64Var(&cutoff, "cutoff", 0, "Smallest path probability explored while pruning (default from config)")
	cmd.Flags().BoolVar(&req.AllowLoops, "allow-loops", false, "Let pruning revisit locations already on the current path")
	return cmd
}
