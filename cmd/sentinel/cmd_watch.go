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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/services/sentinel"
	"github.com/AleutianAI/sentinel/services/sentinel/ingest"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		req      sentinel.IngestRequest
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <run> <dump-dir>",
		Short: "Keep a run's model current while its dumps are being written",
		Long: `Ingests <run> like "ingest", then re-ingests it whenever a file in
<dump-dir> or the --latency directory changes. A batch that fails to parse
is reported and the last good model stays stored. Stops on interrupt.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Run, req.DumpDir = args[0], args[1]
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, done, err := a.open()
			if err != nil {
				return err
			}
			defer done()

			p := a.printer(cmd)
			return svc.Watch(ctx, req, debounce, func(res *sentinel.IngestResult, err error) {
				if err != nil {
					p.Warning(err.Error())
					return
				}
				if ok, _ := a.emitJSON(cmd.OutOrStdout(), res); ok {
					return
				}
				p.Success(fmt.Sprintf("ingested run %s: %d events, %d transitions, %d latency cdfs",
					res.Run, res.Events, res.Transitions, res.CDFs))
			})
		},
	}
	cmd.Flags().StringVar(&req.Pattern, "pattern", "", "Glob selecting dump files (default \"*.im.out*\")")
	cmd.Flags().StringVar(&req.LatencyDir, "latency", "", "Directory of per-transition latency sample files")
	cmd.Flags().DurationVar(&debounce, "debounce", ingest.DefaultDebounce, "Quiet period before re-ingesting")
	return cmd
}
