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
	"fmt"
	"log/slog"
	"sort"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// FirstOrderTables collapses a summary to the first-order tables of a run.
//
// Description:
//
//	Each variable-order transition is attributed to the most recent
//	location of its context and counts are summed per (source,
//	destination). The transition probability is that sum divided by the
//	source's event count. Transitions with an empty context have no source
//	and are dropped. Latency rows are kept for pairs that appear in the
//	transition table; the rest are dropped. A transition without a latency
//	row is kept, and markov.RunTables.Graph reports it.
//
// Inputs:
//
//	run - The run identifier recorded in the tables.
//	sum - Merged dump counts.
//	cdfs - Latency rows, typically from ReadLatencyDir.
//
// Outputs:
//
//	*markov.RunTables - Rows sorted by source then destination.
//	error - ErrInconsistentCounts when a source is seen fewer times than
//	        its outgoing transitions.
func FirstOrderTables(run string, sum *Summary, cdfs []markov.TransitionCDF) (*markov.RunTables, error) {
	counts := make(map[[2]markov.Location]uint64)
	for _, tc := range sum.Transitions {
		ctx := tc.Transition.Context
		if len(ctx) == 0 {
			continue
		}
		counts[[2]markov.Location{ctx[len(ctx)-1], tc.Transition.Next}] += tc.Count
	}

	keys := make([][2]markov.Location, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sortPairs(keys)

	rows := make([]markov.TransitionProbability, 0, len(keys))
	for _, k := range keys {
		n := counts[k]
		src := sum.Events[k[0]]
		if src == 0 || n > src {
			return nil, fmt.Errorf("%w: %s->%s seen %d times, source %d times", ErrInconsistentCounts, k[0], k[1], n, src)
		}
		rows = append(rows, markov.TransitionProbability{
			Src:         k[0],
			Dst:         k[1],
			Probability: float64(n) / float64(src),
			Count:       n,
		})
	}

	kept := make([]markov.TransitionCDF, 0, len(cdfs))
	for _, c := range cdfs {
		if _, ok := counts[[2]markov.Location{c.Src, c.Dst}]; ok {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Src != kept[j].Src {
			return kept[i].Src.Less(kept[j].Src)
		}
		return kept[i].Dst.Less(kept[j].Dst)
	})
	if dropped := len(cdfs) - len(kept); dropped > 0 {
		slog.Debug("dropped latency rows without transitions",
			slog.String("run", run),
			slog.Int("count", dropped),
		)
	}

	return &markov.RunTables{
		Run:         run,
		Events:      sum.Model().Events(),
		Transitions: rows,
		CDFs:        kept,
	}, nil
}

func sortPairs(keys [][2]markov.Location) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0].Less(keys[j][0])
		}
		return keys[i][1].Less(keys[j][1])
	})
}
