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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/services/sentinel"
	"github.com/AleutianAI/sentinel/services/sentinel/diff"
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

func (a *app) diffCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "diff <left> <right>",
		Short: "Compare the variable-order models of two runs",
		Long: `Unifies the transitions of both models, recovers each side's conditional
probability, and ranks transitions by how much that probability changed.
Each record carries a Welch test p-value; records backed by fewer than the
configured number of observations are marked low confidence.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			resp, err := svc.DiffModels(cmd.Context(), args[0], args[1], topK)
			if err != nil {
				return err
			}
			if ok, err := a.emitJSON(cmd.OutOrStdout(), resp); ok {
				return err
			}
			p := a.printer(cmd)
			p.Title(fmt.Sprintf("%s vs %s: %d transitions, %d present on one side only",
				resp.Left, resp.Right, resp.Total, resp.Uncomparable))
			rows := make([][]string, 0, len(resp.Records))
			for _, r := range resp.Records {
				flag := ""
				if r.LowConfidence {
					flag = "low"
				}
				rows = append(rows, []string{
					markov.FormatContext(r.Transition.Context),
					r.Transition.Next.String(),
					formatFloat(r.Score),
					formatFloat(r.LeftProbability),
					formatFloat(r.RightProbability),
					formatFloat(r.PValue),
					flag,
				})
			}
			p.Table([]string{"CONTEXT", "NEXT", "SCORE", "LEFT", "RIGHT", "P", "CONF"}, rows, 2, 3, 4, 5)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Records to show (0 uses the configured default, -1 shows all)")
	return cmd
}

func (a *app) fixedDiffCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "fixed-diff <left> <right>",
		Short: "Compare the first-order tables of two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			resp, err := svc.DiffRuns(cmd.Context(), args[0], args[1], topK)
			if err != nil {
				return err
			}
			if ok, err := a.emitJSON(cmd.OutOrStdout(), resp); ok {
				return err
			}
			p := a.printer(cmd)
			p.KeyValues([][2]string{
				{"left", resp.Left},
				{"right", resp.Right},
				{"aggregate", formatFloat(resp.Aggregate)},
			})

			p.Title("Events")
			events := make([][]string, 0, len(resp.Events))
			for _, e := range resp.Events {
				events = append(events, []string{e.Location.String(), formatFloat(e.Ratio), formatFloat(e.Left), formatFloat(e.Right)})
			}
			p.Table([]string{"LOCATION", "RATIO", "LEFT", "RIGHT"}, events, 1, 2, 3)

			p.Title("Joint scores")
			p.Table(pairHeaders, pairRows(resp.Scores), 2, 3, 4)
			p.Title("Transition probabilities")
			p.Table(pairHeaders, pairRows(resp.Transitions), 2, 3, 4)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Rows per table (0 uses the configured default, -1 shows all)")
	return cmd
}

var pairHeaders = []string{"SRC", "DST", "RATIO", "LEFT", "RIGHT"}

func pairRows(ps []diff.PairRatio) [][]string {
	rows := make([][]string, 0, len(ps))
	for _, pr := range ps {
		rows = append(rows, []string{pr.Src.String(), pr.Dst.String(), formatFloat(pr.Ratio), formatFloat(pr.Left), formatFloat(pr.Right)})
	}
	return rows
}

func (a *app) distanceCmd() *cobra.Command {
	var (
		topK      int
		normalize bool
		minCount  uint64
	)
	cmd := &cobra.Command{
		Use:   "distance <left> <right>",
		Short: "Rank transitions by latency distribution distance between two runs",
		Long: `Compares the latency CDFs of transitions present in both runs using the
earth mover's distance over the percentile grid. Transitions seen no more
than --min-count times in either run are skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			req := sentinel.DistanceRequest{Left: args[0], Right: args[1], TopK: topK}
			if cmd.Flags().Changed("normalize") {
				req.Normalize = &normalize
			}
			if cmd.Flags().Changed("min-count") {
				req.MinTransitionCount = &minCount
			}
			resp, err := svc.Distances(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ok, err := a.emitJSON(cmd.OutOrStdout(), resp); ok {
				return err
			}
			p := a.printer(cmd)
			p.Title(fmt.Sprintf("%s vs %s: %d transitions compared", resp.Left, resp.Right, resp.Compared))
			rows := make([][]string, 0, len(resp.Distances))
			for _, d := range resp.Distances {
				rows = append(rows, []string{d.Src.String(), d.Dst.String(), formatFloat(d.Value)})
			}
			p.Table([]string{"SRC", "DST", "DISTANCE"}, rows, 2)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Rows to show (0 uses the configured default, -1 shows all)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "Scale each pair by its larger maximum latency (default from config)")
	cmd.Flags().Uint64Var(&minCount, "min-count", 0, "Skip transitions seen no more than this many times (default from config)")
	return cmd
}

func parseLocations(values []string) ([]markov.Location, error) {
	out := make([]markov.Location, 0, len(values))
	for _, v := range values {
		loc, err := markov.ParseLocation(v)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

func formatCount(n int) string {
	return strconv.Itoa(n)
}
