// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markov

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Location
// =============================================================================

// Location identifies a source position that emitted a trace event.
//
// Location is a comparable value type and is the canonical node identity
// for every model in this package.
type Location struct {
	// File is the source file identifier as recorded by the tracer.
	File string `json:"file"`

	// Line is the source line number.
	Line int `json:"line"`
}

// String renders the location as "file:line".
func (l Location) String() string {
	return l.File + ":" + strconv.Itoa(l.Line)
}

// Less orders locations by file, then line.
func (l Location) Less(o Location) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	return l.Line < o.Line
}

// ParseLocation parses a "file:line" string.
//
// The split happens at the last colon so file identifiers containing colons
// survive a round trip through String.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
	line, err := strconv.Atoi(strings.TrimSpace(s[idx+1:]))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %q: %v", ErrInvalidLocation, s, err)
	}
	return Location{File: strings.TrimSpace(s[:idx]), Line: line}, nil
}

// SortLocations sorts a slice of locations in place.
func SortLocations(locs []Location) {
	sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
}

// EventRecord is a location with its observed event probability.
//
// Created when raw counts are normalized by the total event count and
// immutable thereafter.
type EventRecord struct {
	Location    Location `json:"location"`
	Probability float64  `json:"probability"`
}

// =============================================================================
// Contexts
// =============================================================================

// ContextKey is the canonical map key for a context (a sequence of prior
// locations, oldest first).
type ContextKey string

// KeyOf returns the canonical key for ctx. The empty context has key "".
func KeyOf(ctx []Location) ContextKey {
	if len(ctx) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, loc := range ctx {
		sb.WriteString(loc.File)
		sb.WriteByte(0)
		sb.WriteString(strconv.Itoa(loc.Line))
		sb.WriteByte(0x1f)
	}
	return ContextKey(sb.String())
}

// FormatContext renders a context as "(a:1,b:2)".
func FormatContext(ctx []Location) string {
	parts := make([]string, len(ctx))
	for i, loc := range ctx {
		parts[i] = loc.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// =============================================================================
// Variable-order transitions
// =============================================================================

// TransitionKey is the canonical map key for a Transition.
type TransitionKey string

// Transition is a variable-order transition (s-k, ..., s) -> s'.
//
// Identity is the exact (context, next) pair: two transitions with different
// context lengths are distinct even when they describe the same behavior at
// different orders.
type Transition struct {
	// Context holds the prior locations, most recent last. May be empty.
	Context []Location `json:"context"`

	// Next is the location observed after Context.
	Next Location `json:"next"`
}

// NewTransition copies ctx so the caller may reuse its slice.
func NewTransition(ctx []Location, next Location) Transition {
	c := make([]Location, len(ctx))
	copy(c, ctx)
	return Transition{Context: c, Next: next}
}

// Key returns the canonical identity of the transition.
func (t Transition) Key() TransitionKey {
	var sb strings.Builder
	sb.WriteString(string(KeyOf(t.Context)))
	sb.WriteByte(0x1e)
	sb.WriteString(t.Next.File)
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(t.Next.Line))
	return TransitionKey(sb.String())
}

// ContextKey returns the canonical key of the transition's context.
func (t Transition) ContextKey() ContextKey {
	return KeyOf(t.Context)
}

// Order is the context length.
func (t Transition) Order() int {
	return len(t.Context)
}

// WithContext returns a transition with the same Next and a different
// context. ctx is not copied.
func (t Transition) WithContext(ctx []Location) Transition {
	return Transition{Context: ctx, Next: t.Next}
}

// String renders the transition as "(a:1,b:2)->c:3".
func (t Transition) String() string {
	return FormatContext(t.Context) + "->" + t.Next.String()
}

// TransitionCount pairs a transition with its observed count.
type TransitionCount struct {
	Transition Transition `json:"transition"`
	Count      uint64     `json:"count"`
}

// SortTransitions orders transitions by their canonical key.
func SortTransitions(ts []Transition) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Key() < ts[j].Key() })
}
