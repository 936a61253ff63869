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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/pkg/validation"
	"github.com/AleutianAI/sentinel/services/sentinel"
)

func (a *app) ingestCmd() *cobra.Command {
	var req sentinel.IngestRequest
	cmd := &cobra.Command{
		Use:   "ingest <run> <dump-dir>",
		Short: "Build and store a run's model from trace dumps",
		Long: `Reads every dump file in <dump-dir>, merges them into one variable-order
model, validates it, and stores it under <run>. With --latency, per-transition
latency samples are summarized into CDFs so the run can be simulated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Run, req.DumpDir = args[0], args[1]
			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			res, err := svc.Ingest(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ok, err := a.emitJSON(cmd.OutOrStdout(), res); ok {
				return err
			}
			p := a.printer(cmd)
			p.Success("stored run " + res.Run)
			p.KeyValues([][2]string{
				{"locations", strconv.Itoa(res.Locations)},
				{"events", strconv.FormatUint(res.Events, 10)},
				{"transitions", strconv.Itoa(res.Transitions)},
				{"first-order", strconv.Itoa(res.FirstOrderTransitions)},
				{"latency cdfs", strconv.Itoa(res.CDFs)},
			})
			if req.LatencyDir == "" {
				p.Warning("no latency samples; this run cannot be simulated")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Pattern, "pattern", "", "Glob selecting dump files (default \"*.im.out*\")")
	cmd.Flags().StringVar(&req.LatencyDir, "latency", "", "Directory of per-transition latency sample files")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <run>",
		Short: "Check a stored model's order-reduction invariant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			summary, err := svc.Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok, err := a.emitJSON(cmd.OutOrStdout(), summary); ok {
				return err
			}
			p := a.printer(cmd)
			p.Success("model " + summary.Run + " is valid")
			p.KeyValues([][2]string{
				{"locations", strconv.Itoa(summary.Locations)},
				{"events", strconv.FormatUint(summary.Events, 10)},
				{"transitions", strconv.Itoa(summary.Transitions)},
				{"contexts", strconv.Itoa(summary.Contexts)},
				{"max order", strconv.Itoa(summary.MaxOrder)},
			})
			return nil
		},
	}
}

func (a *app) runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			runs, err := svc.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := a.emitJSON(cmd.OutOrStdout(), sentinel.RunsResponse{Runs: runs}); ok {
				return err
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{r.Run, strconv.FormatBool(r.HasModel), strconv.FormatBool(r.HasTables)})
			}
			a.printer(cmd).Table([]string{"RUN", "MODEL", "TABLES"}, rows)
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run>...",
		Short: "Delete stored runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateRunIDs(args); err != nil {
				return err
			}
			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			p := a.printer(cmd)
			for _, run := range args {
				if err := svc.DeleteRun(cmd.Context(), run); err != nil {
					return err
				}
				p.Success("deleted run " + run)
			}
			return nil
		},
	}
}
