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
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// maxLineSize bounds a single dump line. Deep contexts produce long lines.
const maxLineSize = 1 << 20

// =============================================================================
// Summary
// =============================================================================

// Summary holds the raw counts read from one or more dumps.
type Summary struct {
	// Known lists every declared location in first-seen order.
	Known []markov.Location

	// Events maps each location to its event count.
	Events map[markov.Location]uint64

	// Transitions maps each transition key to its context, next location,
	// and count.
	Transitions map[markov.TransitionKey]markov.TransitionCount
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{
		Events:      make(map[markov.Location]uint64),
		Transitions: make(map[markov.TransitionKey]markov.TransitionCount),
	}
}

// Merge folds other into s, summing counts for shared keys. other is not
// modified.
func (s *Summary) Merge(other *Summary) {
	seen := make(map[markov.Location]struct{}, len(s.Known))
	for _, loc := range s.Known {
		seen[loc] = struct{}{}
	}
	for _, loc := range other.Known {
		if _, ok := seen[loc]; !ok {
			seen[loc] = struct{}{}
			s.Known = append(s.Known, loc)
		}
	}
	for loc, n := range other.Events {
		s.Events[loc] += n
	}
	for key, tc := range other.Transitions {
		cur, ok := s.Transitions[key]
		if !ok {
			cur = markov.TransitionCount{Transition: markov.NewTransition(tc.Transition.Context, tc.Transition.Next)}
		}
		cur.Count += tc.Count
		s.Transitions[key] = cur
	}
}

// TransitionCounts returns the transitions sorted by key.
func (s *Summary) TransitionCounts() []markov.TransitionCount {
	ts := make([]markov.Transition, 0, len(s.Transitions))
	for _, tc := range s.Transitions {
		ts = append(ts, tc.Transition)
	}
	markov.SortTransitions(ts)
	out := make([]markov.TransitionCount, len(ts))
	for i, t := range ts {
		out[i] = s.Transitions[t.Key()]
	}
	return out
}

// Model builds the variable-order graph for the summary. The result is not
// validated.
func (s *Summary) Model() *markov.VariableOrderGraph {
	return markov.FromCounts(s.Events, s.TransitionCounts(), markov.WithKnownLocations(s.Known))
}

func (s *Summary) addTransition(t markov.Transition, count uint64) {
	key := t.Key()
	cur, ok := s.Transitions[key]
	if !ok {
		cur = markov.TransitionCount{Transition: t}
	}
	cur.Count += count
	s.Transitions[key] = cur
}

// =============================================================================
// Parsing
// =============================================================================

// ParseDump reads one per-thread dump.
//
// Description:
//
//	The dump starts with event lines "file:line = id, count". The first line
//	containing "->" switches to transition lines "(id,id,...)->id: count",
//	where the parenthesized ids are the context, oldest first. Transition
//	lines without a parenthesized context are first-order records from older
//	tracers and are skipped. Blank lines are ignored.
//
// Inputs:
//
//	r - The dump contents.
//
// Outputs:
//
//	*Summary - Counts keyed by location.
//	*LocationTable - The id mapping declared by this dump.
//	error - ErrMalformedLine, ErrDuplicateID, ErrUnknownID, or a read error,
//	        each prefixed with the line number.
func ParseDump(r io.Reader) (*Summary, *LocationTable, error) {
	sum := NewSummary()
	table := NewLocationTable()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	inTransitions := false
	skipped := 0
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !inTransitions && strings.Contains(line, "->") {
			inTransitions = true
		}
		if !inTransitions {
			loc, id, count, err := parseEventLine(line)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if err := table.Add(id, loc); err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if _, ok := sum.Events[loc]; !ok {
				sum.Known = append(sum.Known, loc)
			}
			sum.Events[loc] += count
			continue
		}
		if !strings.Contains(line, "(") {
			skipped++
			continue
		}
		t, count, err := parseTransitionLine(line, table)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		sum.addTransition(t, count)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading dump: %w", err)
	}
	if skipped > 0 {
		slog.Debug("skipped first-order transition lines", slog.Int("count", skipped))
	}
	return sum, table, nil
}

// parseEventLine parses "file:line = id, count".
func parseEventLine(line string) (markov.Location, int, uint64, error) {
	left, right, ok := strings.Cut(line, "=")
	if !ok {
		return markov.Location{}, 0, 0, fmt.Errorf("%w: %q: missing '='", ErrMalformedLine, line)
	}
	loc, err := markov.ParseLocation(left)
	if err != nil {
		return markov.Location{}, 0, 0, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	idStr, countStr, ok := strings.Cut(right, ",")
	if !ok {
		return markov.Location{}, 0, 0, fmt.Errorf("%w: %q: missing ','", ErrMalformedLine, line)
	}
	id, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil {
		return markov.Location{}, 0, 0, fmt.Errorf("%w: %q: bad id: %v", ErrMalformedLine, line, err)
	}
	count, err := strconv.ParseUint(strings.TrimSpace(countStr), 10, 64)
	if err != nil {
		return markov.Location{}, 0, 0, fmt.Errorf("%w: %q: bad count: %v", ErrMalformedLine, line, err)
	}
	return loc, id, count, nil
}

// parseTransitionLine parses "(id,id,...)->id: count".
func parseTransitionLine(line string, table *LocationTable) (markov.Transition, uint64, error) {
	left, right, ok := strings.Cut(line, "->")
	if !ok {
		return markov.Transition{}, 0, fmt.Errorf("%w: %q: missing '->'", ErrMalformedLine, line)
	}
	left = strings.TrimSpace(left)
	if !strings.HasPrefix(left, "(") || !strings.HasSuffix(left, ")") {
		return markov.Transition{}, 0, fmt.Errorf("%w: %q: context not parenthesized", ErrMalformedLine, line)
	}
	inner := strings.TrimSpace(left[1 : len(left)-1])

	var ctx []markov.Location
	if inner != "" {
		for _, field := range strings.Split(inner, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return markov.Transition{}, 0, fmt.Errorf("%w: %q: bad context id: %v", ErrMalformedLine, line, err)
			}
			loc, err := table.Location(id)
			if err != nil {
				return markov.Transition{}, 0, err
			}
			ctx = append(ctx, loc)
		}
	}

	nextStr, countStr, ok := strings.Cut(right, ":")
	if !ok {
		return markov.Transition{}, 0, fmt.Errorf("%w: %q: missing ':'", ErrMalformedLine, line)
	}
	nextID, err := strconv.Atoi(strings.TrimSpace(nextStr))
	if err != nil {
		return markov.Transition{}, 0, fmt.Errorf("%w: %q: bad next id: %v", ErrMalformedLine, line, err)
	}
	next, err := table.Location(nextID)
	if err != nil {
		return markov.Transition{}, 0, err
	}
	count, err := strconv.ParseUint(strings.TrimSpace(countStr), 10, 64)
	if err != nil {
		return markov.Transition{}, 0, fmt.Errorf("%w: %q: bad count: %v", ErrMalformedLine, line, err)
	}
	return markov.NewTransition(ctx, next), count, nil
}
